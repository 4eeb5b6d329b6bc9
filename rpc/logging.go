// File: rpc/logging.go
// Author: momentics <momentics@gmail.com>
//
// Package-level structured logger, the way _examples/zhiqiangxu-zrpc wires
// zap through its connection and server types: a single overridable
// *zap.Logger rather than a context-threaded one, since nothing in this
// package needs per-request log scoping.

package rpc

import "go.uber.org/zap"

// Logger is used by every type in this package. Tests and embedders may
// replace it before calling into rpc, e.g. with zaptest.NewLogger(t).
var Logger = newDefaultLogger()

func newDefaultLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
