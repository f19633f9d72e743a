// Package broker owns the in-memory connection and room registries.
//
// A Broker tracks every live signaling connection, the set of rooms each
// connection has joined, and the membership of each room. All state lives in
// process memory for the lifetime of a connection; nothing is persisted.
//
// Rooms are created lazily on the first join and deleted the moment their
// last member leaves, so an empty room never exists in the registry. Teardown
// is the single cleanup path for explicit close, protocol transport errors,
// and keepalive timeouts, and is idempotent so any of those triggers may race.
package broker
