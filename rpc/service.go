// File: rpc/service.go
// Author: momentics <momentics@gmail.com>
//
// Service is the external collaborator interface spec.md §1 names (an IDL
// toolchain's dispatch surface); Registry is the full-name → (Service,
// owned) map spec.md §3 and §4.6 describe. StatusService is the one
// concrete Service this repo ships, grounded on
// original_source/rpc/builtin.{h,cc}'s builtin status RPC (SPEC_FULL.md
// §13).

package rpc

import (
	"fmt"
	"sync"

	"github.com/momentics/qrpc/control"
)

// Service is the dispatch surface an IDL toolchain would generate
// (spec.md §1). Dispatch must eventually call ctrl.Finish exactly once,
// synchronously or from any goroutine that posts back to the owning
// worker (see ServerController.Finish).
type Service interface {
	FullName() string
	Dispatch(method string, request []byte, ctrl *ServerController)
}

// Registry maps a service's full name to the service plus an ownership
// flag, matching spec.md §3's server registry field.
type Registry struct {
	mu   sync.Mutex
	svcs map[string]registered
}

type registered struct {
	svc   Service
	owned bool
}

func newRegistry() *Registry {
	return &Registry{svcs: make(map[string]registered)}
}

// Register adds svc under its full name. Rejects duplicates
// (spec.md §4.6).
func (r *Registry) Register(svc Service, owned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := svc.FullName()
	if _, exists := r.svcs[name]; exists {
		return ErrServiceExists
	}
	r.svcs[name] = registered{svc: svc, owned: owned}
	return nil
}

// Unregister removes svc by full name.
func (r *Registry) Unregister(fullName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.svcs[fullName]; !exists {
		return ErrServiceMissing
	}
	delete(r.svcs, fullName)
	return nil
}

// Lookup returns the service registered under fullName, if any.
func (r *Registry) Lookup(fullName string) (Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.svcs[fullName]
	if !ok {
		return nil, false
	}
	return reg.svc, true
}

// StatusService is the builtin "status" service every Server registers
// automatically and non-owned (spec.md §4.6). It backs the channel's
// heartbeat probe (spec.md §4.4) and doubles as a general-purpose health
// and metrics probe.
type StatusService struct {
	metrics *control.MetricsRegistry
}

// NewStatusService returns a StatusService reporting through metrics (may
// be nil, in which case Stats always replies empty).
func NewStatusService(metrics *control.MetricsRegistry) *StatusService {
	return &StatusService{metrics: metrics}
}

// FullName implements Service.
func (s *StatusService) FullName() string { return "status" }

// Dispatch implements Service. Two methods are supported: "Ping" echoes
// the request back verbatim, and "Stats" returns a snapshot of the
// server's metrics registry formatted as key=value lines.
func (s *StatusService) Dispatch(method string, request []byte, ctrl *ServerController) {
	switch method {
	case "Ping":
		ctrl.Finish(request)
	case "Stats":
		ctrl.Finish([]byte(s.formatStats()))
	default:
		ctrl.Fail(CodeMissingRequired, "status: unknown method "+method)
		ctrl.Finish(nil)
	}
}

func (s *StatusService) formatStats() string {
	if s.metrics == nil {
		return ""
	}
	snap := s.metrics.GetSnapshot()
	out := ""
	for k, v := range snap {
		out += fmt.Sprintf("%s=%v\n", k, v)
	}
	return out
}
