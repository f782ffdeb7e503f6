// Package idgen provides identifier generation.
//
// Record identifiers are ULIDs so they sort by creation time, which keeps
// append-only listings (payment attempts, audit entries) cheap to page.
// Externally visible handles (sessions, challenges) use random UUIDs.
package idgen

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + a lower-cased ULID (e.g. "pay_01hx...").
func WithPrefix(prefix string) string {
	return prefix + strings.ToLower(ulid.Make().String())
}
