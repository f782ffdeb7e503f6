// Package factstore talks to the assistant/memory service that holds a
// cardholder's learned facts as free-text records.
//
// The remote service is reached over an unreliable network and has shipped
// several endpoint shapes over time, so the HTTP client probes candidate
// paths and tolerates heterogeneous payloads. Callers only ever see ordered
// Records; an empty slice is a valid answer.
package factstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("factstore: authentication failed")
	ErrUnavailable   = errors.New("factstore: unable to reach any endpoint")
	ErrCircuitOpen   = errors.New("factstore: circuit open")
	ErrMissingID     = errors.New("factstore: response carried no id")
	ErrNonJSON       = errors.New("factstore: non-JSON response")
	ErrNotConfigured = errors.New("factstore: api key not configured")
)

// StatusError is a non-retryable 4xx answer from the remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("factstore: upstream returned %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with one of the given codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// MemoryMode controls whether a message sent to the assistant is itself
// stored as a memory.
type MemoryMode string

const (
	MemoryOff  MemoryMode = "off"
	MemoryAuto MemoryMode = "Auto"
)

// Handle identifies one cardholder's memory space on the remote service.
type Handle struct {
	AssistantID string
	ThreadID    string
}

// Record is one stored fact. Memory is the free-text payload; Extra keeps
// whatever other fields the service returned (ids, scores, metadata).
type Record struct {
	Memory string
	Extra  map[string]any
}

// MarshalJSON flattens Extra next to the memory text, matching the shape
// the service itself returns.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+1)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["memory"] = r.Memory
	return json.Marshal(out)
}

// Tagged reports whether the record carries a TP_ fact tag.
func (r Record) Tagged() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Memory)), "tp_")
}

// Client is the contract the engine consumes.
type Client interface {
	CreateAssistant(ctx context.Context, name string) (string, error)
	CreateThread(ctx context.Context, assistantID string) (string, error)
	Retrieve(ctx context.Context, h Handle, query string, topK int) ([]Record, error)
	List(ctx context.Context, h Handle) ([]Record, error)
	Add(ctx context.Context, h Handle, text string, metadata map[string]any) error
	SendMessage(ctx context.Context, h Handle, message string, mode MemoryMode) ([]byte, error)
}

// preferTagged keeps only TP_ records when any exist, then caps to topK.
func preferTagged(records []Record, topK int) []Record {
	tagged := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Tagged() {
			tagged = append(tagged, r)
		}
	}
	if len(tagged) > 0 {
		records = tagged
	}
	if topK > 0 && len(records) > topK {
		records = records[:topK]
	}
	return records
}
