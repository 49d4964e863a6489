// Package protocol owns the realtime wire contract and parsing primitives.
//
// Ownership boundary:
// - outbound publishRequest frames
// - inbound event frames
// - structural validation entry points
//
// Protocol does not encrypt payloads or route events.
package protocol
