// File: rpc/server.go
// Author: momentics <momentics@gmail.com>
//
// Server owns endpoint registration, the worker pool, and the service
// registry (spec.md §4.6). Listener creation follows the teacher's
// transport/tcp/listener.go SO_REUSEADDR + backlog 1024 approach, ported
// onto golang.org/x/sys/unix via the transport package.

package rpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/qrpc/control"
	"github.com/momentics/qrpc/reactor"
	"github.com/momentics/qrpc/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type serverState int

const (
	ssInit serverState = iota
	ssRun
	ssExit
)

type endpoint struct {
	host string
	port int
}

type boundListener struct {
	fd   int
	host string
	port int
}

// Server listens on one or more endpoints, round-robins accepted
// connections across its worker pool, and owns the service registry
// (spec.md §3 "Server", §4.6).
type Server struct {
	opts ServerOptions

	mu        sync.Mutex
	state     serverState
	endpoints []endpoint
	listeners []boundListener

	workers []*Worker
	cursor  uint64
	accepted uint64

	registry *Registry
	metrics  *control.MetricsRegistry

	wg sync.WaitGroup
}

// NewServer returns a Server in the Init state with the builtin status
// service already registered, non-owned (spec.md §4.6).
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		opts:     opts,
		registry: newRegistry(),
		metrics:  control.NewMetricsRegistry(),
	}
	_ = s.registry.Register(NewStatusService(s.metrics), false)
	return s
}

// AddEndpoint registers host:port to listen on. Only legal in Init;
// rejects duplicates and out-of-range ports (spec.md §4.6). Port 0 asks
// the OS for an ephemeral port; see ListenerPort.
func (s *Server) AddEndpoint(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ssInit {
		return ErrInvalidState
	}
	if port < 0 || port > 65535 {
		return ErrBadArgument
	}
	for _, e := range s.endpoints {
		if e.host == host && e.port == port {
			return ErrEndpointExists
		}
	}
	s.endpoints = append(s.endpoints, endpoint{host: host, port: port})
	return nil
}

// RegisterService registers svc under its full name. Only legal in Init
// (spec.md §4.6).
func (s *Server) RegisterService(svc Service, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ssInit {
		return ErrInvalidState
	}
	return s.registry.Register(svc, owned)
}

// UnregisterService removes a service by full name. Only legal in Init or
// Exit (spec.md §4.6).
func (s *Server) UnregisterService(fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ssInit && s.state != ssExit {
		return ErrInvalidState
	}
	return s.registry.Unregister(fullName)
}

// Metrics exposes the server's metrics registry, also surfaced through
// the builtin status service's "Stats" method.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

// ListenerPort returns the actual bound port of the i-th endpoint added
// with AddEndpoint, resolved once Start has run (useful when the
// endpoint was registered with port 0 for an OS-assigned ephemeral port).
func (s *Server) ListenerPort(i int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.listeners) {
		return 0, ErrBadArgument
	}
	return s.listeners[i].port, nil
}

// Start transitions Init → Run: spins up the worker pool, then binds and
// listens on every registered endpoint (spec.md §4.6).
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != ssInit {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = ssRun
	endpoints := append([]endpoint(nil), s.endpoints...)
	s.mu.Unlock()

	n := s.opts.WorkerCount
	if n <= 0 {
		n = 1
	}
	s.workers = make([]*Worker, n)
	for i := 0; i < n; i++ {
		react, err := reactor.NewReactor()
		if err != nil {
			return fmt.Errorf("rpc: create reactor: %w", err)
		}
		s.workers[i] = newWorker(i, s, react, s.opts)
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Run()
		}(s.workers[i])
	}

	for _, ep := range endpoints {
		if err := s.listenOn(ep); err != nil {
			return err
		}
	}
	Logger.Info("rpc: server started", zap.Int("workers", n), zap.Int("endpoints", len(endpoints)))
	return nil
}

// listenOn binds and listens on ep, then registers the listening fd with
// the last worker's reactor via its event queue — a synchronous
// submission that waits for the registration to complete, matching
// spec.md §4.6's "no dedicated reactor supplied" path.
func (s *Server) listenOn(ep endpoint) error {
	fd, err := transport.ListenNonblocking(ep.host, ep.port, s.opts.ListenBacklog)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s:%d: %w", ep.host, ep.port, err)
	}
	boundPort := ep.port
	if boundPort == 0 {
		if p, err := transport.ListenerPort(fd); err == nil {
			boundPort = p
		}
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, boundListener{fd: fd, host: ep.host, port: boundPort})
	s.mu.Unlock()

	last := s.workers[len(s.workers)-1]
	last.queue.PushSync(func() {
		last.listen(fd, func() { s.acceptLoop(fd) })
	})
	return nil
}

// acceptLoop accepts connections from listenFD until it returns an error
// (expected: EAGAIN once the backlog is drained), round-robining each new
// connection to the next worker via its event queue as a Link task
// (spec.md §4.6, "Incoming connection").
func (s *Server) acceptLoop(listenFD int) {
	for {
		fd, err := transport.AcceptNonblocking(listenFD, transport.SocketOptions{})
		if err != nil {
			return
		}
		idx := atomic.AddUint64(&s.cursor, 1) % uint64(len(s.workers))
		w := s.workers[idx]
		s.metrics.Set("connections.accepted", atomic.AddUint64(&s.accepted, 1))
		w.queue.Push(func() { w.link(fd) })
	}
}

// Stop transitions Run → Exit: closes every listener, asks every worker
// to stop (each worker closes its own connections, then runs its exit
// hook), and waits
// for all worker goroutines to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != ssRun {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = ssExit
	listeners := append([]boundListener(nil), s.listeners...)
	s.mu.Unlock()

	var errs error
	for _, l := range listeners {
		if err := transport.CloseFD(l.fd); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, w := range s.workers {
		w.Stop()
	}
	s.wg.Wait()
	Logger.Info("rpc: server stopped")
	return errs
}
