// File: rpc/timeout_test.go
// Author: momentics <momentics@gmail.com>
//
// A server that never responds must surface a Timeout to the client, and a
// response that finally does arrive after the client gave up must be
// dropped silently rather than delivered to a stale completion.

package rpc

import (
	"sync"
	"testing"
	"time"
)

type stallService struct {
	release chan struct{}
}

func (s *stallService) FullName() string { return "Stall" }

func (s *stallService) Dispatch(method string, request []byte, ctrl *ServerController) {
	worker := ctrl.conn.worker
	go func() {
		<-s.release
		worker.Post(func() { ctrl.Finish(request) })
	}()
}

func TestRPCTimeoutAndLateResponseDropped(t *testing.T) {
	svc := &stallService{release: make(chan struct{})}
	srv := NewServer(ServerOptions{WorkerCount: 1, ListenBacklog: 8})
	if err := srv.RegisterService(svc, true); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}
	if err := srv.AddEndpoint("127.0.0.1", 0); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	port, err := srv.ListenerPort(0)
	if err != nil {
		t.Fatalf("ListenerPort: %v", err)
	}

	var mu sync.Mutex
	completions := 0
	done := make(chan struct{})
	var w *Worker

	go func() {
		var err error
		w, err = NewWorker()
		if err != nil {
			t.Errorf("NewWorker: %v", err)
			close(done)
			return
		}
		ch := NewChannel(w, "127.0.0.1", port, DefaultChannelOptions())
		if err := ch.Open(); err != nil {
			t.Errorf("Open: %v", err)
			close(done)
			return
		}

		opts := DefaultControllerOptions()
		opts.RPCTimeout = 50 * time.Millisecond
		ctrl := NewController(opts)
		request := []byte("slow")
		var response []byte
		err = ch.CallMethod("Stall", "Wait", ctrl, request, &response, func() {
			mu.Lock()
			completions++
			mu.Unlock()
			if ctrl.Code() != CodeTimeout {
				t.Errorf("got code %v, want Timeout", ctrl.Code())
			}
			close(done)
		})
		if err != nil {
			t.Errorf("CallMethod: %v", err)
			close(done)
			return
		}

		w.Run()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rpc timeout completion")
	}

	// Let the stalled handler finish and attempt delivery well after the
	// client gave up; it must not produce a second completion.
	close(svc.release)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := completions
	mu.Unlock()
	if got != 1 {
		t.Fatalf("completion fired %d times, want exactly 1 (late response must be dropped)", got)
	}

	if w != nil {
		w.Stop()
	}
}
