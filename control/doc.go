// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics telemetry for the RPC server: counters such as the
// accepted-connection count, exposed as a snapshot map.
package control
