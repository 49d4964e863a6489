// Package codec encrypts and decrypts board content items.
//
// Plain items are encrypted as one text ciphertext (type STRING). File items
// carry a secure content reference (SCR); the SCR and the display name are
// encrypted independently under the same key and assembled into a JSON
// payload afterward (type FILE).
//
// Items are processed concurrently; results always come back in input order.
// Cryptographic primitives are supplied by an Encrypter.
package codec
