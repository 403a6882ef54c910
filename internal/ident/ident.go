// Package ident mints the unique identifiers assigned to new transactions.
package ident

import "github.com/google/uuid"

// Generator produces unique transaction ids. Production code uses Random;
// tests inject a deterministic sequence.
type Generator interface {
	NewID() string
}

// Random yields RFC 4122 version 4 ids.
type Random struct{}

// NewID returns a fresh random id.
func (Random) NewID() string { return uuid.NewString() }
