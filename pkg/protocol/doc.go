// Package protocol implements the Kestrel message protocol.
//
// The protocol package defines message schemas, envelopes, and the binary
// encoding used by every Kestrel connection. A message on the wire is an
// envelope: a schema id followed by that schema's arguments in declaration
// order.
//
// # Schemas
//
// A Schema binds a stable numeric id and a unique name to an ordered list
// of typed argument slots. Schemas are registered once, at bootstrap, into
// an explicit Registry instance; they are immutable afterwards. Multiple
// registries can coexist, one per protocol version.
//
// # Envelope Format
//
// Envelopes use binary encoding with big-endian byte order:
//   - ID (2 bytes): schema id
//   - ArgCount (2 bytes): number of arguments
//   - Per argument: type tag (1 byte) followed by the value bytes
//
// Strings and byte arrays are prefixed with a 2-byte length. Arrays are
// prefixed with a 2-byte element count.
//
// # Reserved Ids
//
// Ids 0xFF00 and above are reserved for the framework itself and are
// registered by every Registry at construction:
//   - HandshakeKey/SessionKey: the encrypted-transport bootstrap
//   - PingRequest/PingResponse: latency sampling
//   - InvalidMessage: the answer sent for unrecognized ids
//
// Decoding an envelope with an unregistered id does not fail; it yields an
// InvalidMessage envelope carrying the offending id so the peer can be
// answered instead of dropped.
package protocol
