// File: rpc/worker.go
// Author: momentics <momentics@gmail.com>
//
// Worker is the goroutine loop of spec.md §4.7: a reactor, a cross-thread
// event queue, and a thread-local (here: worker-local) codec, running
// init/exit hooks shaped like the teacher's
// internal/concurrency/executor.go init/exit hook pair.

package rpc

import (
	"sync"

	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/internal/gid"
	"github.com/momentics/qrpc/internal/queue"
	"github.com/momentics/qrpc/reactor"
)

// Worker owns one reactor goroutine plus everything reached only through
// its event queue: a codec and the set of server connections it accepted
// (spec.md §3 "Worker", §4.7).
type Worker struct {
	index  int
	server *Server
	react  reactor.Reactor
	queue  *queue.Queue
	codec  *codec.Compressor
	guard  gid.Guard

	initHook func(*Worker)
	exitHook func(*Worker)

	mu    sync.Mutex
	conns map[*ServerConn]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorker returns a standalone worker with its own reactor, suitable
// for running client channels without a Server attached. Call Run on the
// goroutine that is to own every channel scheduled on it — typically
// after configuring those channels with Open/CallMethod, since Run does
// not return until Stop is called.
func NewWorker() (*Worker, error) {
	react, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		react: react,
		queue: queue.New(),
		conns: make(map[*ServerConn]struct{}),
		stop:  make(chan struct{}),
	}
	w.codec = codec.Global().Acquire(w)
	return w, nil
}

func newWorker(index int, server *Server, react reactor.Reactor, opts ServerOptions) *Worker {
	w := &Worker{
		index:    index,
		server:   server,
		react:    react,
		queue:    queue.New(),
		initHook: opts.InitHook,
		exitHook: opts.ExitHook,
		conns:    make(map[*ServerConn]struct{}),
		stop:     make(chan struct{}),
	}
	w.codec = codec.Global().Acquire(w)
	return w
}

// Run is the worker's goroutine loop: init hook, then service readiness
// and cross-thread tasks until Stop, then the exit hook and reactor
// teardown. The calling goroutine becomes this worker's owner for every
// thread-affinity check performed on its connections.
func (w *Worker) Run() {
	w.guard = gid.NewGuard()
	w.queue.SetNotify(w.react.Wake)
	// Tasks pushed before the notify hook was installed did not wake the
	// reactor; wake it once so the first poll drains them.
	w.react.Wake()
	if w.initHook != nil {
		w.initHook(w)
	}
	w.react.Run(w.stop, w.queue.Drain)
	w.closeAllConns()
	if w.exitHook != nil {
		w.exitHook(w)
	}
	codec.Global().Release(w)
	w.react.Close()
}

// Post runs fn on this worker's goroutine — the mechanism a service
// handler uses to deliver a completion from another goroutine back to
// its owning worker (spec.md §10, server handler thread affinity).
func (w *Worker) Post(fn func()) {
	w.queue.Push(fn)
}

// Stop asks Run to return once its current iteration completes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.react.Wake()
	})
}

// link hands fd to the worker as a new server connection; runs on the
// worker goroutine via the event queue (spec.md §4.6 "Link" task).
func (w *Worker) link(fd int) {
	conn := newServerConn(w, fd)
	w.addConn(conn)
	conn.start()
}

// listen registers a listening fd with this worker's reactor; runs on the
// worker goroutine (spec.md §4.6 "Listen" task, used when the server was
// not given a dedicated reactor for its listeners).
func (w *Worker) listen(fd int, accept func()) {
	w.react.Register(fd, reactor.Read, func(fd int, readable, writable, errored bool) {
		if readable {
			accept()
		}
	})
}

func (w *Worker) addConn(c *ServerConn) {
	w.mu.Lock()
	w.conns[c] = struct{}{}
	w.mu.Unlock()
}

func (w *Worker) removeConn(c *ServerConn) {
	w.mu.Lock()
	delete(w.conns, c)
	w.mu.Unlock()
}

func (w *Worker) closeAllConns() {
	w.mu.Lock()
	conns := make([]*ServerConn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
