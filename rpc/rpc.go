// Package rpc implements the request/response protocol that runs on
// top of routed messages (spec §6.2, "RPC request/response framing that
// runs *on top of* routed messages" — an external collaborator per
// spec §1, but the three core methods and their framing are specified
// closely enough to build directly).
//
// Grounded on original_source/src/social/rpc_channel.{h,cpp} for the
// request/respond-via-router shape (a request is routed to
// ComponentRPCEngine with PayloadType Request, a response is routed
// back to the source node with PayloadType Response) and on
// original_source/src/rpc/engine.hpp for the pending-call/timeout
// bookkeeping, reworked here against executor.Executor/clock.Clock
// instead of a Boost.Asio io_context.
package rpc

import (
	"errors"
	"time"
)

// Method names the three RPC methods spec §6.2 defines.
type Method string

const (
	MethodPing                 Method = "Core.Ping"
	MethodNameDbPublishAddress Method = "Core.NameDb.PublishAddress"
	MethodNameDbLookupAddress  Method = "Core.NameDb.LookupAddress"
)

// Status is the outcome carried by a response envelope.
type Status byte

const (
	StatusOK Status = iota
	StatusRequestTimedOut
	StatusMethodNotFound
	StatusBadRequest
	StatusBadResponse
)

// Errors surfaced to a Call's failure callback (spec §5 "RPC errors").
// None of these are ever raised as a panic: every failure path resolves
// to one of these four, delivered through the callback spec §5
// requires ("never as an exception").
var (
	ErrRequestTimedOut = errors.New("rpc: request timed out")
	ErrMethodNotFound  = errors.New("rpc: method not found")
	ErrBadRequest      = errors.New("rpc: bad request")
	ErrBadResponse     = errors.New("rpc: bad response")
)

func errForStatus(s Status) error {
	switch s {
	case StatusOK:
		return nil
	case StatusRequestTimedOut:
		return ErrRequestTimedOut
	case StatusMethodNotFound:
		return ErrMethodNotFound
	case StatusBadRequest:
		return ErrBadRequest
	default:
		return ErrBadResponse
	}
}

// DefaultTimeout and PublishTimeout are the two call timeouts spec §5
// names ("default 15s, raised to 30s for address publishing and
// partition control").
const (
	DefaultTimeout = 15 * time.Second
	PublishTimeout = 30 * time.Second
)

// PublishInterval is how often a node republishes its own address to
// its responsible landmarks (spec §4.F "every 600s").
const PublishInterval = 600 * time.Second
