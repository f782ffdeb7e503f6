// Package payments runs purchase authorization for a cardholder session:
// it scores each attempt against the cardholder's learned facts, records
// the attempt, and issues and resolves step-up challenges.
//
// Flow:
//  1. Cardholder session created, backed by an assistant + thread on the fact store
//  2. Authorize: purchase validated, facts retrieved, attempt scored
//  3. APPROVE → attempt APPROVED
//  4. CHALLENGE → challenge PENDING, attempt CHALLENGE_REQUIRED
//  5. Verify: challenge → COMPLETED (approve) or DENIED (deny)
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/pagination"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
)

var (
	ErrSessionNotFound   = errors.New("payments: session not found")
	ErrCardNotFound      = errors.New("payments: card not found for session")
	ErrChallengeNotFound = errors.New("payments: challenge not found")
	ErrInvalidAction     = errors.New("payments: action must be APPROVE or DENY")
	ErrChallengeResolved = errors.New("payments: challenge already resolved")
	ErrInvalidCard       = errors.New("payments: invalid card")
	ErrInvalidInput      = errors.New("payments: invalid input")
	ErrUpstream          = errors.New("payments: fact store request failed")
)

// Status is the outcome of an authorization.
type Status string

const (
	StatusApproved          Status = "APPROVED"
	StatusChallengeRequired Status = "CHALLENGE_REQUIRED"
)

// ChallengeStatus is the state of a step-up challenge.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeCompleted ChallengeStatus = "COMPLETED"
	ChallengeDenied    ChallengeStatus = "DENIED"
)

// Terminal reports whether the challenge has been resolved.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeCompleted || s == ChallengeDenied
}

// Action is the cardholder's answer to a challenge.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionDeny    Action = "DENY"
)

// ParseAction accepts APPROVE or DENY, trimmed and case-insensitive.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionApprove, ActionDeny:
		return a, nil
	default:
		return "", ErrInvalidAction
	}
}

// Session binds a cardholder to their memory space on the fact store.
type Session struct {
	ID          string    `json:"session_id"`
	AssistantID string    `json:"assistant_id"`
	ThreadID    string    `json:"thread_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Handle returns the fact-store handle for the session.
func (s *Session) Handle() factstore.Handle {
	return factstore.Handle{AssistantID: s.AssistantID, ThreadID: s.ThreadID}
}

// Card is a display-safe card reference. No PAN or CVV is ever held.
type Card struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"-"`
	Nickname       string    `json:"nickname"`
	Network        string    `json:"network"`
	Last4          string    `json:"last4"`
	ExpMonth       *int      `json:"exp_month"`
	ExpYear        *int      `json:"exp_year"`
	BillingCountry string    `json:"billing_country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CardSummary is the card as echoed back on an authorization.
type CardSummary struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Network  string `json:"network"`
	Last4    string `json:"last4"`
}

func (c *Card) Summary() CardSummary {
	return CardSummary{ID: c.ID, Nickname: c.Nickname, Network: c.Network, Last4: c.Last4}
}

// Attempt is one recorded authorization. Attempts are append-only.
type Attempt struct {
	ID              string               `json:"id"`
	SessionID       string               `json:"session_id"`
	CardID          string               `json:"card_id,omitempty"`
	Merchant        string               `json:"merchant"`
	Amount          float64              `json:"amount"`
	Currency        string               `json:"currency"`
	Country         string               `json:"country"`
	Channel         risk.Channel         `json:"channel"`
	ItemDescription string               `json:"item_description,omitempty"`
	DCCOffered      bool                 `json:"dcc_offered"`
	Decision        risk.Decision        `json:"decision"`
	ChallengeMethod risk.ChallengeMethod `json:"challenge_method"`
	RiskScore       int                  `json:"risk_score"`
	Status          Status               `json:"status"`
	ChallengeID     string               `json:"challenge_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	RawJSON         json.RawMessage      `json:"raw,omitempty"`
}

// Challenge is a step-up verification issued for a challenged attempt.
type Challenge struct {
	ID         string               `json:"challenge_id"`
	SessionID  string               `json:"session_id"`
	Method     risk.ChallengeMethod `json:"method"`
	Status     ChallengeStatus      `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

// AuditEntry records one assistant chat exchange.
type AuditEntry struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Timestamp     time.Time       `json:"timestamp"`
	UserPrompt    string          `json:"user_prompt"`
	AssistantText string          `json:"assistant_text"`
	RawJSON       json.RawMessage `json:"raw,omitempty"`
}

// Store persists sessions, cards, challenges, attempts and audit entries.
// Lookups that miss return the package's not-found sentinels.
type Store interface {
	UpsertSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)

	CreateCard(ctx context.Context, c *Card) error
	GetCard(ctx context.Context, sessionID, cardID string) (*Card, error)
	ListCards(ctx context.Context, sessionID string) ([]*Card, error)

	CreateChallenge(ctx context.Context, c *Challenge) error
	GetChallenge(ctx context.Context, sessionID, challengeID string) (*Challenge, error)
	// ResolveChallenge sets status and resolved_at. With fromPendingOnly the
	// update applies only to a PENDING challenge and a terminal one yields
	// ErrChallengeResolved.
	ResolveChallenge(ctx context.Context, sessionID, challengeID string, status ChallengeStatus, at time.Time, fromPendingOnly bool) (*Challenge, error)

	InsertAttempt(ctx context.Context, a *Attempt) error
	// ListAttempts returns attempts newest first, starting after cursor.
	ListAttempts(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*Attempt, error)

	InsertAudit(ctx context.Context, e *AuditEntry) error
}
