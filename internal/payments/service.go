package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/idgen"
	"github.com/jaineelmodi11/KingsHacks/internal/logging"
	"github.com/jaineelmodi11/KingsHacks/internal/merchantintel"
	"github.com/jaineelmodi11/KingsHacks/internal/metrics"
	"github.com/jaineelmodi11/KingsHacks/internal/pagination"
	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
	"github.com/jaineelmodi11/KingsHacks/internal/syncutil"
	"github.com/jaineelmodi11/KingsHacks/internal/traces"
)

const (
	DefaultRetrieveTimeout = 8 * time.Second
	DefaultTopK            = 80

	queryAuthorize = "Return TP_PROFILE / TP_BASELINE / TP_TRUSTED_MERCHANT_* / TP_MERCHANT_FACTS for authorization."
	queryUI        = "Return TP_PROFILE / TP_BASELINE / TP_TRUSTED_MERCHANT_* / TP_MERCHANT_FACTS for TravelProof UI."

	chatPreamble = "You are TravelProof, a demo issuer assistant.\nExplain decisions briefly and clearly.\n\nUser: "

	msgDenied    = "User denied the challenge."
	msgCompleted = "Challenge approved. Payment completed."
)

// Service orchestrates sessions, authorization and challenge resolution.
type Service struct {
	store      Store
	facts      factstore.Client
	classifier merchantintel.Classifier
	scorer     *risk.Scorer
	cardLocks  *syncutil.KeyedMutex

	retrieveTimeout time.Duration
	topK            int
	strict          bool
	logger          *slog.Logger
	now             func() time.Time
}

// NewService creates a payments service.
func NewService(store Store, facts factstore.Client) *Service {
	return &Service{
		store:           store,
		facts:           facts,
		classifier:      merchantintel.Disabled{},
		scorer:          risk.NewScorer(),
		cardLocks:       syncutil.NewKeyedMutex(0),
		retrieveTimeout: DefaultRetrieveTimeout,
		topK:            DefaultTopK,
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClassifier enables merchant enrichment for merchants without facts.
func (s *Service) WithClassifier(c merchantintel.Classifier) *Service {
	if c != nil {
		s.classifier = c
	}
	return s
}

// WithRetrieveTimeout bounds each fact retrieval.
func (s *Service) WithRetrieveTimeout(d time.Duration) *Service {
	if d > 0 {
		s.retrieveTimeout = d
	}
	return s
}

func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// WithStrictChallenges rejects resolving a challenge that is no longer
// PENDING. By default a second resolution overwrites the first.
func (s *Service) WithStrictChallenges(strict bool) *Service {
	s.strict = strict
	return s
}

func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// log prefers the request-scoped logger carried on ctx.
func (s *Service) log(ctx context.Context) *slog.Logger {
	if logging.FromContext(ctx) != slog.Default() {
		return logging.L(ctx)
	}
	if id := logging.RequestID(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// CreateSession provisions an assistant and thread on the fact store and
// persists the new session.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	id := idgen.New()

	assistantID, err := s.facts.CreateAssistant(ctx, "TravelProof "+id)
	if err != nil {
		return nil, fmt.Errorf("%w: create assistant: %w", ErrUpstream, err)
	}
	threadID, err := s.facts.CreateThread(ctx, assistantID)
	if err != nil {
		return nil, fmt.Errorf("%w: create thread: %w", ErrUpstream, err)
	}

	sess := &Session{ID: id, AssistantID: assistantID, ThreadID: threadID, CreatedAt: s.now()}
	if err := s.store.UpsertSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	metrics.ActiveSessions.Inc()
	s.log(ctx).Info("session created", "session_id", id, "assistant_id", assistantID)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.store.GetSession(ctx, id)
}

// ChatReply is the assistant's answer to one chat message.
type ChatReply struct {
	AssistantText string          `json:"assistant_text"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
}

// Chat relays a cardholder message to the session's assistant. The message
// is sent without memory capture when the service allows it, so chat does
// not pollute the fact space. Every exchange is audit logged.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prompt := chatPreamble + message
	raw, err := s.facts.SendMessage(ctx, sess.Handle(), prompt, factstore.MemoryOff)
	if err != nil {
		s.log(ctx).Debug("memory-off message rejected, retrying with memory on", "session_id", sessionID, "error", err)
		raw, err = s.facts.SendMessage(ctx, sess.Handle(), prompt, factstore.MemoryAuto)
		if err != nil {
			return nil, fmt.Errorf("%w: send message: %w", ErrUpstream, err)
		}
	}

	text := factstore.ExtractAssistantText(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: no assistant text in response", ErrUpstream)
	}

	entry := &AuditEntry{
		ID:            idgen.WithPrefix("aud_"),
		SessionID:     sessionID,
		Timestamp:     s.now(),
		UserPrompt:    message,
		AssistantText: text,
		RawJSON:       json.RawMessage(raw),
	}
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.log(ctx).Error("failed to write audit entry", "session_id", sessionID, "error", err)
	}

	return &ChatReply{AssistantText: text, RawResponse: json.RawMessage(raw)}, nil
}

// TravelModeRequest declares the cardholder's travel context.
type TravelModeRequest struct {
	CurrentCountry        string   `json:"current_country"`
	TripCountries         []string `json:"trip_countries"`
	SMSAvailable          bool     `json:"sms_available"`
	PreferredVerification string   `json:"preferred_verification"`
	DailyBudget           *float64 `json:"daily_budget"`
}

// SetTravelMode validates req and stores it as a TP_PROFILE fact.
func (s *Service) SetTravelMode(ctx context.Context, sessionID string, req TravelModeRequest) (*personalization.TravelMode, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	current, err := risk.NormalizeCountry(req.CurrentCountry)
	if err != nil {
		return nil, fmt.Errorf("%w: current_country %q is not an ISO 3166 region", ErrInvalidInput, req.CurrentCountry)
	}
	trip := make([]string, 0, len(req.TripCountries))
	for _, c := range req.TripCountries {
		code, err := risk.NormalizeCountry(c)
		if err != nil {
			return nil, fmt.Errorf("%w: trip country %q is not an ISO 3166 region", ErrInvalidInput, c)
		}
		trip = append(trip, code)
	}

	pref := strings.ToUpper(strings.TrimSpace(req.PreferredVerification))
	switch pref {
	case "":
		pref = "PASSKEY"
	case "PASSKEY", "SMS":
	default:
		return nil, fmt.Errorf("%w: preferred_verification must be PASSKEY or SMS", ErrInvalidInput)
	}
	if req.DailyBudget != nil && *req.DailyBudget < 0 {
		return nil, fmt.Errorf("%w: daily_budget must not be negative", ErrInvalidInput)
	}

	mode := &personalization.TravelMode{
		CurrentCountry:        current,
		TripCountries:         trip,
		SMSAvailable:          req.SMSAvailable,
		PreferredVerification: pref,
		DailyBudget:           req.DailyBudget,
	}
	if err := s.facts.Add(ctx, sess.Handle(), mode.Record(), map[string]any{"tp": "travel_mode"}); err != nil {
		return nil, fmt.Errorf("%w: store travel mode: %w", ErrUpstream, err)
	}
	return mode, nil
}

// CardRequest adds a display-safe card to a session.
type CardRequest struct {
	Nickname       string `json:"nickname"`
	Network        string `json:"network"`
	Last4          string `json:"last4"`
	ExpMonth       *int   `json:"exp_month"`
	ExpYear        *int   `json:"exp_year"`
	BillingCountry string `json:"billing_country"`
}

func (s *Service) AddCard(ctx context.Context, sessionID string, req CardRequest) (*Card, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	card := &Card{
		ID:        idgen.WithPrefix("card_"),
		SessionID: sessionID,
		Nickname:  strings.TrimSpace(req.Nickname),
		Network:   strings.ToUpper(strings.TrimSpace(req.Network)),
		Last4:     strings.TrimSpace(req.Last4),
		ExpMonth:  req.ExpMonth,
		ExpYear:   req.ExpYear,
		CreatedAt: s.now(),
	}
	if card.Network == "" {
		return nil, fmt.Errorf("%w: network is required", ErrInvalidCard)
	}
	if !isLast4(card.Last4) {
		return nil, fmt.Errorf("%w: last4 must be exactly 4 digits", ErrInvalidCard)
	}
	if card.ExpMonth != nil && (*card.ExpMonth < 1 || *card.ExpMonth > 12) {
		return nil, fmt.Errorf("%w: exp_month must be 1..12", ErrInvalidCard)
	}
	if card.ExpYear != nil && (*card.ExpYear < 2000 || *card.ExpYear > 2100) {
		return nil, fmt.Errorf("%w: exp_year out of range", ErrInvalidCard)
	}
	if strings.TrimSpace(req.BillingCountry) != "" {
		bc, err := risk.NormalizeCountry(req.BillingCountry)
		if err != nil {
			return nil, fmt.Errorf("%w: billing_country %q is not an ISO 3166 region", ErrInvalidCard, req.BillingCountry)
		}
		card.BillingCountry = bc
	}

	if err := s.store.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to persist card: %w", err)
	}
	return card, nil
}

func isLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) ListCards(ctx context.Context, sessionID string) ([]*Card, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListCards(ctx, sessionID)
}

// PersonalizationView is the cardholder's extracted profile and the
// records it was built from.
type PersonalizationView struct {
	Personalization   personalization.View `json:"personalization"`
	RetrievedMemories []factstore.Record   `json:"retrieved_memories"`
	Degraded          bool                 `json:"degraded,omitempty"`
}

func (s *Service) Personalization(ctx context.Context, sessionID string) (*PersonalizationView, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prof, records, degraded, err := s.personalize(ctx, sess, queryUI)
	if err != nil {
		return nil, err
	}
	return &PersonalizationView{Personalization: prof.View(), RetrievedMemories: records, Degraded: degraded}, nil
}

// StoreRisk is one scored purchase in a preview.
type StoreRisk struct {
	risk.Purchase
	*risk.Result
}

// Preview is the result of scoring a batch of purchases without
// persisting anything.
type Preview struct {
	Personalization   personalization.View `json:"personalization"`
	StoreRisks        []StoreRisk          `json:"store_risks"`
	RetrievedMemories []factstore.Record   `json:"retrieved_memories"`
	Degraded          bool                 `json:"degraded,omitempty"`
}

// Preview scores every purchase against the session's current facts.
// Nothing is persisted and no challenge is issued.
func (s *Service) Preview(ctx context.Context, sessionID string, purchases []risk.Purchase) (*Preview, error) {
	valid := make([]risk.Purchase, len(purchases))
	for i, p := range purchases {
		v, err := p.Validate()
		if err != nil {
			return nil, fmt.Errorf("purchases[%d]: %w", i, err)
		}
		valid[i] = v
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prof, records, degraded, err := s.personalize(ctx, sess, queryUI)
	if err != nil {
		return nil, err
	}

	out := &Preview{
		Personalization:   prof.View(),
		StoreRisks:        make([]StoreRisk, 0, len(valid)),
		RetrievedMemories: records,
		Degraded:          degraded,
	}
	for _, p := range valid {
		out.StoreRisks = append(out.StoreRisks, StoreRisk{Purchase: p, Result: s.scorer.Score(p, prof)})
	}
	return out, nil
}

// Outcome is the result of an authorization.
type Outcome struct {
	Status      Status `json:"status"`
	ChallengeID string `json:"challenge_id,omitempty"`
	*risk.Result
	Card              CardSummary        `json:"card"`
	AttemptID         string             `json:"attempt_id"`
	RetrievedMemories []factstore.Record `json:"retrieved_memories"`
	Degraded          bool               `json:"degraded,omitempty"`
}

// Authorize scores a purchase on one of the session's cards and records
// the attempt. A challenged attempt gets a PENDING challenge, written
// before the attempt itself; if the attempt write then fails the challenge
// is left orphaned.
//
// Fact retrieval failures never fail the authorization: the attempt is
// scored on an empty profile and the outcome is marked degraded.
func (s *Service) Authorize(ctx context.Context, sessionID, cardID string, p risk.Purchase) (*Outcome, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Authorize",
		traces.SessionID(sessionID), traces.CardID(cardID))
	defer span.End()

	p, err := p.Validate()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.Purchase(p.Merchant, p.Amount, p.Currency, p.Country, string(p.Channel))...)

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	card, err := s.store.GetCard(ctx, sessionID, cardID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.cardLocks.LockContext(ctx, sessionID+"/"+cardID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prof, records, degraded, err := s.personalize(ctx, sess, queryAuthorize)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, sess, prof, p)

	result := s.scorer.Score(p, prof)
	span.SetAttributes(traces.Decision(string(result.Decision), result.RiskScore,
		string(result.RiskLevel), string(result.ChallengeMethod), string(result.MerchantTrustTier))...)

	status := StatusApproved
	var challengeID string
	if !result.Approved() {
		status = StatusChallengeRequired
		ch := &Challenge{
			ID:        idgen.New(),
			SessionID: sessionID,
			Method:    result.ChallengeMethod,
			Status:    ChallengePending,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateChallenge(ctx, ch); err != nil {
			traces.Fail(span, err, "failed to create challenge")
			return nil, fmt.Errorf("failed to create challenge: %w", err)
		}
		challengeID = ch.ID
	}

	attempt := &Attempt{
		ID:              idgen.WithPrefix("pay_"),
		SessionID:       sessionID,
		CardID:          card.ID,
		Merchant:        p.Merchant,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Country:         p.Country,
		Channel:         p.Channel,
		ItemDescription: p.ItemDescription,
		DCCOffered:      p.DCCOffered,
		Decision:        result.Decision,
		ChallengeMethod: result.ChallengeMethod,
		RiskScore:       result.RiskScore,
		Status:          status,
		ChallengeID:     challengeID,
		CreatedAt:       s.now(),
	}
	attempt.RawJSON = attemptRecord(card, p, result, status, challengeID)

	if err := s.store.InsertAttempt(ctx, attempt); err != nil {
		traces.Fail(span, err, "failed to record attempt")
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	metrics.DecisionsTotal.WithLabelValues(string(result.Decision), string(result.MerchantTrustTier)).Inc()
	metrics.RiskScore.Observe(float64(result.RiskScore))
	s.log(ctx).Info("payment authorized",
		"session_id", sessionID,
		"card_id", cardID,
		"attempt_id", attempt.ID,
		"decision", result.Decision,
		"risk_score", result.RiskScore,
		"tier", result.MerchantTrustTier,
		"challenge_id", challengeID,
		"degraded", degraded,
	)

	return &Outcome{
		Status:            status,
		ChallengeID:       challengeID,
		Result:            result,
		Card:              card.Summary(),
		AttemptID:         attempt.ID,
		RetrievedMemories: records,
		Degraded:          degraded,
	}, nil
}

// personalize retrieves and extracts the session's facts. Fact-store
// failures degrade to an empty profile; only cancellation of the caller's
// own context is returned as an error.
func (s *Service) personalize(ctx context.Context, sess *Session, query string) (*personalization.Profile, []factstore.Record, bool, error) {
	rctx, cancel := context.WithTimeout(ctx, s.retrieveTimeout)
	defer cancel()

	records, err := s.facts.Retrieve(rctx, sess.Handle(), query, s.topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, false, ctxErr
		}
		metrics.FactstoreDegradedTotal.Inc()
		s.log(ctx).Warn("fact retrieval failed, scoring without personalization",
			"session_id", sess.ID, "error", err)
		return personalization.New(), []factstore.Record{}, true, nil
	}
	if records == nil {
		records = []factstore.Record{}
	}
	return personalization.Extract(records), records, false, nil
}

// enrich classifies a merchant the cardholder has no facts for and writes
// the classification back so later attempts read it as a stored fact.
func (s *Service) enrich(ctx context.Context, sess *Session, prof *personalization.Profile, p risk.Purchase) {
	if _, ok := prof.FactsFor(p.Merchant); ok {
		return
	}
	cls, err := s.classifier.Classify(ctx, p.Merchant, p.Country, p.ItemDescription)
	if err != nil {
		s.log(ctx).Warn("merchant classification failed", "merchant", p.Merchant, "error", err)
		return
	}
	if cls == nil {
		return
	}
	// Facts are keyed by the merchant as presented, not as the model spelled it.
	cls.Merchant = p.Merchant
	prof.SetMerchantFacts(cls.Facts())

	if err := s.facts.Add(ctx, sess.Handle(), cls.Record(), map[string]any{"tp": "merchant_intel"}); err != nil {
		s.log(ctx).Warn("failed to store merchant facts", "session_id", sess.ID, "merchant", p.Merchant, "error", err)
	}
}

type attemptRisk struct {
	Decision        risk.Decision        `json:"decision"`
	ChallengeMethod risk.ChallengeMethod `json:"challenge_method"`
	RiskScore       int                  `json:"risk_score"`
	RiskLevel       risk.Level           `json:"risk_level"`
	Tier            personalization.Tier `json:"tier"`
	Reasons         []string             `json:"reasons"`
	UserMessage     string               `json:"user_message"`
	Explain         string               `json:"explain"`
}

type attemptRaw struct {
	Card        CardSummary   `json:"card"`
	Purchase    risk.Purchase `json:"purchase"`
	Risk        attemptRisk   `json:"risk"`
	Status      Status        `json:"status"`
	ChallengeID *string       `json:"challenge_id"`
}

// attemptRecord renders the self-contained audit record stored with each
// attempt.
func attemptRecord(card *Card, p risk.Purchase, r *risk.Result, status Status, challengeID string) json.RawMessage {
	raw := attemptRaw{
		Card:     card.Summary(),
		Purchase: p,
		Risk: attemptRisk{
			Decision:        r.Decision,
			ChallengeMethod: r.ChallengeMethod,
			RiskScore:       r.RiskScore,
			RiskLevel:       r.RiskLevel,
			Tier:            r.MerchantTrustTier,
			Reasons:         r.Reasons,
			UserMessage:     r.UserMessage,
			Explain:         r.Explain,
		},
		Status: status,
	}
	if challengeID != "" {
		raw.ChallengeID = &challengeID
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return data
}

// Verification is the result of resolving a challenge.
type Verification struct {
	Status      ChallengeStatus      `json:"status"`
	ChallengeID string               `json:"challenge_id"`
	Method      risk.ChallengeMethod `json:"method"`
	Message     string               `json:"message"`
}

// ResolveChallenge applies the cardholder's answer to a challenge. The
// challenge must belong to the session. Unless strict mode is on, a
// resolved challenge may be resolved again and the later answer wins.
func (s *Service) ResolveChallenge(ctx context.Context, sessionID, challengeID, action string) (*Verification, error) {
	ctx, span := traces.StartSpan(ctx, "payments.ResolveChallenge",
		traces.SessionID(sessionID), traces.ChallengeID(challengeID))
	defer span.End()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ch, err := s.store.GetChallenge(ctx, sessionID, challengeID)
	if err != nil {
		return nil, err
	}
	act, err := ParseAction(action)
	if err != nil {
		return nil, err
	}

	status, msg := ChallengeCompleted, msgCompleted
	if act == ActionDeny {
		status, msg = ChallengeDenied, msgDenied
	}

	if ch.Status.Terminal() && !s.strict {
		s.log(ctx).Warn("overwriting resolved challenge",
			"session_id", sessionID, "challenge_id", challengeID, "from", ch.Status, "to", status)
	}

	updated, err := s.store.ResolveChallenge(ctx, sessionID, challengeID, status, s.now(), s.strict)
	if err != nil {
		if !errors.Is(err, ErrChallengeResolved) && !errors.Is(err, ErrChallengeNotFound) {
			traces.Fail(span, err, "failed to resolve challenge")
			return nil, fmt.Errorf("failed to resolve challenge: %w", err)
		}
		return nil, err
	}

	metrics.ChallengesTotal.WithLabelValues(string(status)).Inc()
	s.log(ctx).Info("challenge resolved", "session_id", sessionID, "challenge_id", challengeID, "status", status)

	return &Verification{
		Status:      updated.Status,
		ChallengeID: updated.ID,
		Method:      updated.Method,
		Message:     msg,
	}, nil
}

// ListAttempts pages through the session's attempts, newest first.
func (s *Service) ListAttempts(ctx context.Context, sessionID, cursor string, limit int) ([]*Attempt, string, bool, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, "", false, err
	}
	c, err := pagination.Parse(cursor)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rows, err := s.store.ListAttempts(ctx, sessionID, c, limit+1)
	if err != nil {
		return nil, "", false, err
	}
	page := pagination.Paginate(rows, limit, func(a *Attempt) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page.Items, page.Next, page.HasMore, nil
}
