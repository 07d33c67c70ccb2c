// Package relay is a small session relay for local runs and end-to-end
// tests. It issues and reclaims peer identities, owns the authoritative
// shared state tree, aggregates client uploads into periodic state
// broadcasts and forwards haptic requests to their target peer.
package relay
