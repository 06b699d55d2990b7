// Package transport declares the narrow interface the router core
// requires from its embedding transport layer (spec §6, "external
// interfaces" — delivery is an out-of-scope collaborator per spec §1's
// non-goals, but the shape of what the core calls is in scope).
package transport

import (
	"context"

	"github.com/luxfi/compactrouter/id"
)

// Transport is what router.Router needs to deliver wire frames to
// peers and to issue RPC calls through the embedding application.
// Grounded on networking/timeout.Manager's RegisterRequest/
// RegisterResponse callback shape for the call/timeout contract (spec
// §5 "RPC calls carry a timeout").
type Transport interface {
	// Send delivers a pre-framed wire message (router.Frame output) to
	// peer. Per-link ordering (spec §5) is the transport's
	// responsibility; the core assumes FIFO delivery per neighbor.
	Send(peer id.NodeIdentifier, msg []byte) error

	// Call issues an RPC request to peer and blocks for the response or
	// ctx's deadline, whichever comes first.
	Call(ctx context.Context, peer id.NodeIdentifier, method string, req []byte) ([]byte, error)
}
