// Package social implements the social identity (the locally-approved
// peer set and each peer's contact and security associations, spec
// §4.D) and the per-peer security-association lifecycle.
//
// Grounded on original_source/src/social/social_identity.{h,cpp} and
// src/social/peer.{h,cpp}; src/interplex/contact.{h,cpp} for Contact.
package social

import (
	"github.com/luxfi/compactrouter/id"
)

// AddressKind distinguishes the two Contact address shapes spec §3
// names: "address is either an IP endpoint or a local-socket path".
type AddressKind uint8

const (
	AddressIP AddressKind = iota
	AddressLocal
)

// Address is one entry in a Contact's priority-ordered address
// multiset.
type Address struct {
	Priority int
	Kind     AddressKind
	// Endpoint is "host:port" for AddressIP, a filesystem path for
	// AddressLocal.
	Endpoint string
}

// Contact is a peer's key plus its known addresses (spec §3). Two
// contacts are equal iff their NodeID is equal.
type Contact struct {
	Key       id.PeerKey
	Addresses []Address
}

// NodeID returns the node identifier derived from this contact's key.
func (c Contact) NodeID() id.NodeIdentifier {
	return c.Key.NodeID()
}

// Equal reports whether two contacts name the same node, per spec §3
// ("Two contacts are equal iff their node_id is equal").
func (c Contact) Equal(other Contact) bool {
	return c.NodeID() == other.NodeID()
}

// IsNull reports whether this is the zero-value (unset) contact.
func (c Contact) IsNull() bool {
	return c.Key == id.PeerKey{}
}
