// Package transport implements realtime.Transport over gorilla/websocket.
package transport
