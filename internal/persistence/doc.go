// Package persistence is the board REST client.
//
// It creates, lists and deletes channels, writes encrypted content in ordered
// batches of at most MaxBatchSize items, and reads content back one page at a
// time or by following the service's Link "next" chain to exhaustion. The same
// client performs the binding registrations used by realtime negotiation.
package persistence
