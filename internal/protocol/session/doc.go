// Package session owns realtime session reliability primitives.
//
// Ownership boundary:
// - reliability configuration (retries, ping/pong, close delays, backoff)
// - binding registration control messages
// - retry/backoff and pending-request primitives
// - client transport security validation
package session
