// File: rpc/errors.go
// Author: momentics <momentics@gmail.com>
//
// Configuration-family errors (spec.md §7.1), returned synchronously and
// never affecting in-flight requests.

package rpc

import (
	"errors"

	"github.com/momentics/qrpc/wire"
)

// Code is the user-facing error code carried on a finished call's
// controller, re-exported from wire so callers never need to import it
// directly.
type Code = wire.Code

const (
	CodeOk               = wire.CodeOk
	CodeUnknown          = wire.CodeUnknown
	CodeBadArg           = wire.CodeBadArg
	CodeOutOfMemory      = wire.CodeOutOfMemory
	CodeWrongThread      = wire.CodeWrongThread
	CodeServiceExists    = wire.CodeServiceExists
	CodeServiceMissing   = wire.CodeServiceMissing
	CodeMissingRequired  = wire.CodeMissingRequired
	CodeCanceled         = wire.CodeCanceled
	CodeTimeout          = wire.CodeTimeout
	CodeResponseMalformed = wire.CodeResponseMalformed
	CodeUserDefined      = wire.CodeUserDefined
)

var (
	// ErrWrongThread is returned by every public Channel operation and by
	// Controller.StartCancel when invoked from a goroutine other than the
	// one that created the channel (spec.md §4.4 invariant (a)). The
	// Controller's result and address getters do not check the calling
	// goroutine.
	ErrWrongThread = errors.New("rpc: operation invoked from the wrong goroutine")
	// ErrBadArgument is returned for nil requests, empty method names, and
	// similarly malformed call arguments.
	ErrBadArgument = errors.New("rpc: bad argument")
	// ErrInvalidState is returned when an operation is attempted in a
	// server or channel state that does not permit it (e.g. registering a
	// service after Start).
	ErrInvalidState = errors.New("rpc: invalid state for this operation")
	// ErrServiceExists is returned by Registry.Register for a duplicate
	// full name.
	ErrServiceExists = errors.New("rpc: service already registered")
	// ErrServiceMissing is returned by Registry.Unregister for an unknown
	// full name.
	ErrServiceMissing = errors.New("rpc: service not registered")
	// ErrEndpointExists is returned by Server.AddEndpoint for a duplicate
	// host:port pair.
	ErrEndpointExists = errors.New("rpc: endpoint already added")
)

// connFault wraps a transport-layer error with an "rpc: connection fault"
// prefix. The fault paths (ClientConn.Fault, ServerConn.Fault) do not use
// it: they pass the framer's error on unwrapped.
type connFault struct {
	err error
}

func (f *connFault) Error() string { return "rpc: connection fault: " + f.err.Error() }
func (f *connFault) Unwrap() error { return f.err }
