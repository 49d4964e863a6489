// Package realtime owns the board's live connection.
//
// Manager drives the connection state machine over a Transport. Router turns
// inbound frames into bus events. Publisher encrypts and sends board activity.
// Negotiator decides whether a board rides an existing shared connection or
// needs its own dedicated one.
//
// Bus topics:
//
//	online, offline                 connection transitions
//	event:<eventType>               routed inbound events
//	request, request:<requestId>    request events and their correlated responses
package realtime
