package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jaineelmodi11/KingsHacks/internal/pagination"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
)

// PostgresStore persists payments data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments tables (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL,
		thread_id    TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS cards (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL REFERENCES sessions(id),
		nickname        TEXT,
		network         TEXT NOT NULL,
		last4           CHAR(4) NOT NULL,
		exp_month       INTEGER,
		exp_year        INTEGER,
		billing_country TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_cards_session ON cards(session_id, created_at);

	CREATE TABLE IF NOT EXISTS challenges (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES sessions(id),
		method      TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'PENDING',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_challenges_session ON challenges(session_id);

	CREATE TABLE IF NOT EXISTS payment_attempts (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL REFERENCES sessions(id),
		card_id          TEXT,
		merchant         TEXT NOT NULL,
		amount           DOUBLE PRECISION NOT NULL,
		currency         TEXT NOT NULL,
		country          TEXT NOT NULL,
		channel          TEXT NOT NULL,
		item_description TEXT,
		dcc_offered      BOOLEAN NOT NULL DEFAULT FALSE,
		decision         TEXT NOT NULL,
		challenge_method TEXT NOT NULL,
		risk_score       INTEGER NOT NULL,
		status           TEXT NOT NULL,
		challenge_id     TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		raw_json         JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_payment_attempts_session ON payment_attempts(session_id, created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS audit_log (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL REFERENCES sessions(id),
		timestamp      TIMESTAMPTZ NOT NULL,
		user_prompt    TEXT NOT NULL,
		assistant_text TEXT,
		raw_json       JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log(session_id, timestamp);
`

func (p *PostgresStore) UpsertSession(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, assistant_id, thread_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			assistant_id = EXCLUDED.assistant_id,
			thread_id = EXCLUDED.thread_id`,
		s.ID, s.AssistantID, s.ThreadID, s.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, assistant_id, thread_id, created_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.AssistantID, &s.ThreadID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

const cardColumns = `id, session_id, nickname, network, last4, exp_month, exp_year, billing_country, created_at`

func (p *PostgresStore) CreateCard(ctx context.Context, c *Card) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.SessionID, nullString(c.Nickname), c.Network, c.Last4,
		nullInt(c.ExpMonth), nullInt(c.ExpYear), nullString(c.BillingCountry), c.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetCard(ctx context.Context, sessionID, cardID string) (*Card, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE id = $1 AND session_id = $2`, cardID, sessionID)

	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	return c, err
}

func (p *PostgresStore) ListCards(ctx context.Context, sessionID string) ([]*Card, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := []*Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const challengeColumns = `id, session_id, method, status, created_at, resolved_at`

func (p *PostgresStore) CreateChallenge(ctx context.Context, c *Challenge) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.SessionID, string(c.Method), string(c.Status), c.CreatedAt, nullTime(c.ResolvedAt),
	)
	return err
}

func (p *PostgresStore) GetChallenge(ctx context.Context, sessionID, challengeID string) (*Challenge, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges WHERE id = $1 AND session_id = $2`, challengeID, sessionID)

	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChallengeNotFound
	}
	return c, err
}

func (p *PostgresStore) ResolveChallenge(ctx context.Context, sessionID, challengeID string, status ChallengeStatus, at time.Time, fromPendingOnly bool) (*Challenge, error) {
	query := `
		UPDATE challenges SET status = $1, resolved_at = $2
		WHERE id = $3 AND session_id = $4`
	if fromPendingOnly {
		query += ` AND status = 'PENDING'`
	}
	row := p.db.QueryRowContext(ctx, query+` RETURNING `+challengeColumns,
		string(status), at, challengeID, sessionID)

	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := p.GetChallenge(ctx, sessionID, challengeID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrChallengeResolved
	}
	return c, err
}

const attemptColumns = `id, session_id, card_id, merchant, amount, currency, country, channel,
		       item_description, dcc_offered, decision, challenge_method, risk_score,
		       status, challenge_id, created_at, raw_json`

func (p *PostgresStore) InsertAttempt(ctx context.Context, a *Attempt) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.SessionID, nullString(a.CardID), a.Merchant, a.Amount, a.Currency, a.Country,
		string(a.Channel), nullString(a.ItemDescription), a.DCCOffered,
		string(a.Decision), string(a.ChallengeMethod), a.RiskScore,
		string(a.Status), nullString(a.ChallengeID), a.CreatedAt, nullJSON(a.RawJSON),
	)
	return err
}

func (p *PostgresStore) ListAttempts(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*Attempt, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cursor != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+attemptColumns+`
			FROM payment_attempts
			WHERE session_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, sessionID, cursor.CreatedAt, cursor.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+attemptColumns+`
			FROM payment_attempts
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (p *PostgresStore) InsertAudit(ctx context.Context, e *AuditEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, session_id, timestamp, user_prompt, assistant_text, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SessionID, e.Timestamp, e.UserPrompt, nullString(e.AssistantText), nullJSON(e.RawJSON),
	)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(s scanner) (*Card, error) {
	c := &Card{}
	var (
		nickname       sql.NullString
		expMonth       sql.NullInt64
		expYear        sql.NullInt64
		billingCountry sql.NullString
	)
	err := s.Scan(
		&c.ID, &c.SessionID, &nickname, &c.Network, &c.Last4,
		&expMonth, &expYear, &billingCountry, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Nickname = nickname.String
	c.BillingCountry = billingCountry.String
	if expMonth.Valid {
		v := int(expMonth.Int64)
		c.ExpMonth = &v
	}
	if expYear.Valid {
		v := int(expYear.Int64)
		c.ExpYear = &v
	}
	return c, nil
}

func scanChallenge(s scanner) (*Challenge, error) {
	c := &Challenge{}
	var (
		method     string
		status     string
		resolvedAt sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.SessionID, &method, &status, &c.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	c.Method = risk.ChallengeMethod(method)
	c.Status = ChallengeStatus(status)
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return c, nil
}

func scanAttempt(s scanner) (*Attempt, error) {
	a := &Attempt{}
	var (
		cardID          sql.NullString
		channel         string
		itemDescription sql.NullString
		decision        string
		method          string
		status          string
		challengeID     sql.NullString
		raw             []byte
	)
	err := s.Scan(
		&a.ID, &a.SessionID, &cardID, &a.Merchant, &a.Amount, &a.Currency, &a.Country, &channel,
		&itemDescription, &a.DCCOffered, &decision, &method, &a.RiskScore,
		&status, &challengeID, &a.CreatedAt, &raw,
	)
	if err != nil {
		return nil, err
	}
	a.CardID = cardID.String
	a.Channel = risk.Channel(channel)
	a.ItemDescription = itemDescription.String
	a.Decision = risk.Decision(decision)
	a.ChallengeMethod = risk.ChallengeMethod(method)
	a.Status = Status(status)
	a.ChallengeID = challengeID.String
	if len(raw) > 0 {
		a.RawJSON = json.RawMessage(raw)
	}
	return a, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
