package factstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jaineelmodi11/KingsHacks/internal/idgen"
)

// MemoryClient is an in-process Client for development and tests.
type MemoryClient struct {
	mu         sync.RWMutex
	assistants map[string][]Record // assistant id -> records in insertion order
	threads    map[string]string   // thread id -> assistant id
	failure    error
	latency    time.Duration
}

// NewMemoryClient creates an empty in-memory fact store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		assistants: make(map[string][]Record),
		threads:    make(map[string]string),
	}
}

// SetFailure makes every subsequent call fail with err. Pass nil to recover.
func (m *MemoryClient) SetFailure(err error) {
	m.mu.Lock()
	m.failure = err
	m.mu.Unlock()
}

// SetLatency delays every subsequent call by d, honouring ctx.
func (m *MemoryClient) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

func (m *MemoryClient) gate(ctx context.Context) error {
	m.mu.RLock()
	failure, latency := m.failure, m.latency
	m.mu.RUnlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return failure
}

func (m *MemoryClient) CreateAssistant(ctx context.Context, name string) (string, error) {
	if err := m.gate(ctx); err != nil {
		return "", err
	}
	id := idgen.WithPrefix("asst_")
	m.mu.Lock()
	m.assistants[id] = nil
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryClient) CreateThread(ctx context.Context, assistantID string) (string, error) {
	if err := m.gate(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assistants[assistantID]; !ok {
		return "", &StatusError{Code: 404, Body: fmt.Sprintf("assistant %q not found", assistantID)}
	}
	id := idgen.WithPrefix("thr_")
	m.threads[id] = assistantID
	return id, nil
}

func (m *MemoryClient) Add(ctx context.Context, h Handle, text string, metadata map[string]any) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	extra := map[string]any{"id": idgen.WithPrefix("mem_")}
	if len(metadata) > 0 {
		extra["metadata"] = metadata
	}
	m.mu.Lock()
	m.assistants[h.AssistantID] = append(m.assistants[h.AssistantID], Record{Memory: text, Extra: extra})
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) List(ctx context.Context, h Handle) ([]Record, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.assistants[h.AssistantID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *MemoryClient) Retrieve(ctx context.Context, h Handle, _ string, topK int) ([]Record, error) {
	recs, err := m.List(ctx, h)
	if err != nil {
		return nil, err
	}
	return preferTagged(recs, topK), nil
}

// SendMessage answers with a canned assistant reply that echoes the stored
// facts, shaped like the remote service's message response.
func (m *MemoryClient) SendMessage(ctx context.Context, h Handle, message string, mode MemoryMode) ([]byte, error) {
	recs, err := m.List(ctx, h)
	if err != nil {
		return nil, err
	}
	if mode == MemoryAuto && strings.TrimSpace(message) != "" {
		if err := m.Add(ctx, h, message, map[string]any{"source": "chat"}); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]any{
		"role":               "assistant",
		"content":            fmt.Sprintf("Noted. %d fact(s) on file for this cardholder.", len(recs)),
		"retrieved_memories": recs,
	})
}

var _ Client = (*MemoryClient)(nil)
