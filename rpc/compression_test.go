// File: rpc/compression_test.go
// Author: momentics <momentics@gmail.com>
//
// End-to-end scenario covering a compressed request/response round trip,
// per spec.md §8's scenario 4. Bodies are sized above codec.Threshold so
// the framer actually exercises Compress/Decompress rather than falling
// back to identity.

package rpc

import (
	"bytes"
	"testing"
	"time"

	"github.com/momentics/qrpc/codec"
)

func TestEchoReversalSnappy(t *testing.T) {
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

	request := bytes.Repeat([]byte("abcdefgh"), 64) // 512 bytes, well above Threshold.
	want := make([]byte, len(request))
	for i, b := range request {
		want[len(want)-1-i] = b
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

		opts := DefaultControllerOptions()
		opts.Compression = codec.Snappy
		ctrl := NewController(opts)
		var response []byte
		err = ch.CallMethod("Echo", "Reverse", ctrl, request, &response, func() {
			if ctrl.Failed() {
				t.Errorf("call failed: code=%v text=%q", ctrl.Code(), ctrl.ErrorText())
			} else if !bytes.Equal(response, want) {
				t.Errorf("got %d bytes, want %d bytes matching the reversed request", len(response), len(want))
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
		t.Fatal("timed out waiting for compressed echo completion")
	}
	if w != nil {
		w.Stop()
	}
}
