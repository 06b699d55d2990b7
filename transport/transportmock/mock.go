// Package transportmock provides a recording fake transport.Transport
// for tests, grounded on networking/sender/sendermock's hand-rolled
// recording-fake style rather than a generated gomock.Controller mock
// (the teacher uses both styles across its mock packages; this is the
// simpler one and fits a narrow two-method interface).
package transportmock

import (
	"context"
	"sync"

	"github.com/luxfi/compactrouter/id"
)

// SentMessage records one Send call.
type SentMessage struct {
	Peer id.NodeIdentifier
	Msg  []byte
}

// CallRecord records one Call invocation.
type CallRecord struct {
	Peer   id.NodeIdentifier
	Method string
	Req    []byte
}

// Transport is a recording fake implementing transport.Transport.
// CallResponses/CallErr let a test script canned RPC responses per
// method; SendErr lets a test force Send failures.
type Transport struct {
	mu   sync.Mutex
	sent []SentMessage
	calls []CallRecord

	SendErr error

	// CallResponses maps method name to the response bytes Call returns.
	CallResponses map[string][]byte
	// CallErr maps method name to the error Call returns, taking
	// precedence over CallResponses for that method.
	CallErr map[string]error
}

// New returns an empty Transport fake.
func New() *Transport {
	return &Transport{
		CallResponses: make(map[string][]byte),
		CallErr:       make(map[string]error),
	}
}

// Send implements transport.Transport.
func (t *Transport) Send(peer id.NodeIdentifier, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, SentMessage{Peer: peer, Msg: append([]byte(nil), msg...)})
	return nil
}

// Call implements transport.Transport.
func (t *Transport) Call(_ context.Context, peer id.NodeIdentifier, method string, req []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, CallRecord{Peer: peer, Method: method, Req: append([]byte(nil), req...)})
	if err, ok := t.CallErr[method]; ok {
		return nil, err
	}
	return t.CallResponses[method], nil
}

// SentMessages returns a copy of every Send call recorded so far.
func (t *Transport) SentMessages() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// Calls returns a copy of every Call invocation recorded so far.
func (t *Transport) Calls() []CallRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]CallRecord(nil), t.calls...)
}
