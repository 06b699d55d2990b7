package router

// Tag identifies a wire message's payload type (spec §6.1). Every wire
// message is a length-prefixed, typed record: one byte of Tag followed
// by a four-byte big-endian length and the tagged payload.
type Tag byte

const (
	TagInterplexHello  Tag = 0x03
	TagSocialAnnounce  Tag = 0x05
	TagSocialRetract   Tag = 0x06
	TagSocialRefresh   Tag = 0x07
	TagSocialRouted    Tag = 0x08
	TagSocialSACreate  Tag = 0x09
	TagSocialSAInvalid Tag = 0x0A
	TagSocialSAFlush   Tag = 0x0B
)

// Component identifies the application-level destination of a
// RoutedMessage (spec §6.3). IDs below 0x80 are reserved by the core;
// application components use 0x80 and above.
type Component uint8

const (
	ComponentNull        Component = 0x00
	ComponentRPCEngine   Component = 0x01
	ComponentSloppyGroup Component = 0x02
)
