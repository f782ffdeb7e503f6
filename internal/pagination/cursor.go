// Package pagination implements keyset paging over newest-first lists.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ErrInvalidCursor is returned for cursors that were not produced by Cursor.String.
var ErrInvalidCursor = errors.New("invalid cursor")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Cursor is the (created_at, id) key of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type wireCursor struct {
	T int64  `json:"t"`
	I string `json:"i"`
}

// String returns the opaque, URL-safe form of c.
func (c Cursor) String() string {
	data, _ := json.Marshal(wireCursor{T: c.CreatedAt.UnixNano(), I: c.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

// Parse reverses Cursor.String. An empty string yields a nil cursor.
func Parse(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var w wireCursor
	if err := json.Unmarshal(data, &w); err != nil || w.I == "" || w.T <= 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, w.T).UTC(), ID: w.I}, nil
}

// Follows reports whether a row keyed (createdAt, id) comes after c in
// newest-first order, ties broken by descending id. A nil cursor is
// followed by every row.
func (c *Cursor) Follows(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// Limit parses a page-size query value, falling back to DefaultLimit for
// missing or non-positive input and clamping to MaxLimit.
func Limit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}

// Page is one slice of a list plus the cursor for the next one.
type Page[T any] struct {
	Items   []T
	Next    string
	HasMore bool
}

// Paginate trims rows fetched with limit+1 down to limit. When the extra
// row was present, Next points after the last kept row.
func Paginate[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	rows = rows[:limit]
	return Page[T]{
		Items:   rows,
		Next:    key(rows[len(rows)-1]).String(),
		HasMore: true,
	}
}
