// File: rpc/cancel_test.go
// Author: momentics <momentics@gmail.com>
//
// Canceling a call that is racing with the server's response must still
// deliver the completion exactly once, whichever side wins the race: with a
// Canceled code if the cancel lands first, with the response otherwise.

package rpc

import (
	"sync"
	"testing"
	"time"
)

type holdService struct {
	release chan struct{}
}

func (s *holdService) FullName() string { return "Hold" }

func (s *holdService) Dispatch(method string, request []byte, ctrl *ServerController) {
	worker := ctrl.conn.worker
	go func() {
		<-s.release
		worker.Post(func() { ctrl.Finish(request) })
	}()
}

func TestCancelRacingResponse(t *testing.T) {
	svc := &holdService{release: make(chan struct{})}
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
	var ctrl *Controller

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

		ctrl = NewController(DefaultControllerOptions())
		request := []byte("hold")
		var response []byte
		err = ch.CallMethod("Hold", "Wait", ctrl, request, &response, func() {
			mu.Lock()
			completions++
			mu.Unlock()
			close(done)
		})
		if err != nil {
			t.Errorf("CallMethod: %v", err)
			close(done)
			return
		}

		w.Run()
	}()

	// Give the call a moment to be dispatched on the server before racing
	// the cancel against the eventual response. StartCancel must run on the
	// channel's owning goroutine, so it is marshaled through the worker.
	time.Sleep(100 * time.Millisecond)
	close(svc.release)
	w.Post(func() { _ = ctrl.StartCancel() })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancel/response race completion")
	}

	mu.Lock()
	got := completions
	mu.Unlock()
	if got != 1 {
		t.Fatalf("completion fired %d times, want exactly 1", got)
	}

	if w != nil {
		w.Stop()
	}
}
