// Package board owns the shared board domain model.
//
// Ownership boundary:
// - channel, content and file-reference shapes shared by realtime and persistence
// - channel id to realtime binding mapping
// - the error taxonomy surfaced by both pipelines
//
// Board does not perform network I/O or cryptography.
package board
