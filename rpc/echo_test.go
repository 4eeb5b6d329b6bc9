// File: rpc/echo_test.go
// Author: momentics <momentics@gmail.com>
//
// End-to-end echo-reversal scenario: a client calls a reversing service
// over a real TCP loopback connection and gets its request reversed back.

package rpc

import (
	"testing"
	"time"
)

type reverseService struct{}

func (reverseService) FullName() string { return "Echo" }

func (reverseService) Dispatch(method string, request []byte, ctrl *ServerController) {
	if method != "Reverse" {
		ctrl.Fail(CodeMissingRequired, "unknown method "+method)
		ctrl.Finish(nil)
		return
	}
	out := make([]byte, len(request))
	for i, b := range request {
		out[len(out)-1-i] = b
	}
	ctrl.Finish(out)
}

func TestEchoReversal(t *testing.T) {
	srv := NewServer(ServerOptions{WorkerCount: 2, ListenBacklog: 64})
	if err := srv.RegisterService(reverseService{}, true); err != nil {
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

		ctrl := NewController(DefaultControllerOptions())
		request := []byte("abc")
		var response []byte
		err = ch.CallMethod("Echo", "Reverse", ctrl, request, &response, func() {
			if ctrl.Failed() {
				t.Errorf("call failed: code=%v text=%q", ctrl.Code(), ctrl.ErrorText())
			} else if string(response) != "cba" {
				t.Errorf("got %q, want %q", response, "cba")
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
		t.Fatal("timed out waiting for echo completion")
	}
	if w != nil {
		w.Stop()
	}
}
