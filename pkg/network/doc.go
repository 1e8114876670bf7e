// Package network implements the Kestrel connection engine.
//
// A connection owns one reader goroutine and one writer goroutine over a
// TCP stream. Frames on the stream are a 2-byte body length, a flag byte,
// and the envelope body; once the handshake establishes a session key the
// body is AES-GCM sealed (the length prefix and flag byte never are).
//
// Incoming envelopes resolve to handlers through a dispatcher built at
// bootstrap. A handler runs in two phases: Immediate, inline on the
// reader goroutine, restricted to connection-local state; and Delayed,
// drained once per tick by the owning server in the exact order messages
// arrived. The tick loop is the sole mutator of cross-connection state,
// so delayed handlers need no locks of their own.
//
// The Server aggregates the listener, a connection arena keyed by id, the
// tick loop, and the emergency-logout sweep for sessions left behind by
// unclean disconnects.
package network
