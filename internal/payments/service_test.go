package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/merchantintel"
	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *factstore.MemoryClient) {
	t.Helper()
	store := NewMemoryStore()
	facts := factstore.NewMemoryClient()
	svc := NewService(store, facts).WithClock(stepClock())
	return svc, store, facts
}

// seeded creates a session carrying the Sweden facts and its demo card.
func seeded(t *testing.T, svc *Service) (*Session, *Card) {
	t.Helper()
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SeedDemo(ctx, sess.ID))
	cards, err := svc.ListCards(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	return sess, cards[0]
}

var (
	ikea     = risk.Purchase{Merchant: "IKEA", Amount: 500, Currency: "SEK", Country: "SE", Channel: risk.ChannelCNP}
	giftCard = risk.Purchase{Merchant: "Unknown Shop", Amount: 1500, Currency: "EUR", Country: "FR", ItemDescription: "Steam Gift Card $100"}
)

func TestCreateSession(t *testing.T) {
	svc, store, _ := newTestService(t)

	sess, err := svc.CreateSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, strings.HasPrefix(sess.AssistantID, "asst_"))
	assert.True(t, strings.HasPrefix(sess.ThreadID, "thr_"))

	got, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.AssistantID, got.AssistantID)
}

func TestCreateSession_UpstreamFailure(t *testing.T) {
	svc, _, facts := newTestService(t)
	facts.SetFailure(factstore.ErrUnavailable)

	_, err := svc.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, factstore.ErrUnavailable)
}

func TestAuthorize_TrustedMerchantApproved(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, card := seeded(t, svc)

	out, err := svc.Authorize(context.Background(), sess.ID, card.ID, ikea)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, out.Status)
	assert.Empty(t, out.ChallengeID)
	assert.Equal(t, risk.DecisionApprove, out.Decision)
	assert.Equal(t, risk.MethodNone, out.ChallengeMethod)
	assert.Equal(t, 0, out.RiskScore)
	assert.Equal(t, risk.LevelLow, out.RiskLevel)
	assert.Equal(t, personalization.TierHigh, out.MerchantTrustTier)
	assert.Equal(t, "4242", out.Card.Last4)
	assert.False(t, out.Degraded)
	assert.NotEmpty(t, out.RetrievedMemories)

	attempts, err := store.ListAttempts(context.Background(), sess.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, out.AttemptID, attempts[0].ID)
	assert.Equal(t, StatusApproved, attempts[0].Status)
	assert.Empty(t, attempts[0].ChallengeID)
	assert.Equal(t, card.ID, attempts[0].CardID)
}

func TestAuthorize_GiftCardAbroadChallenged(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	out, err := svc.Authorize(ctx, sess.ID, card.ID, giftCard)
	require.NoError(t, err)

	assert.Equal(t, StatusChallengeRequired, out.Status)
	assert.Equal(t, risk.MethodPasskey, out.ChallengeMethod)
	assert.Equal(t, risk.LevelHigh, out.RiskLevel)
	assert.Contains(t, out.Reasons, "Item resembles a gift card / voucher (high scam risk)")
	assert.Contains(t, out.Reasons, "Country mismatch vs travel mode")
	require.NotEmpty(t, out.ChallengeID)

	ch, err := store.GetChallenge(ctx, sess.ID, out.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, ChallengePending, ch.Status)
	assert.Equal(t, risk.MethodPasskey, ch.Method)
	assert.Nil(t, ch.ResolvedAt)

	attempts, err := store.ListAttempts(ctx, sess.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, out.ChallengeID, attempts[0].ChallengeID)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(attempts[0].RawJSON, &raw))
	assert.Equal(t, out.ChallengeID, raw["challenge_id"])
	assert.Equal(t, "CHALLENGE_REQUIRED", raw["status"])
	assert.Equal(t, "HIGH", raw["risk"].(map[string]any)["risk_level"])
}

func TestResolveChallenge_SecondAnswerOverwrites(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	out, err := svc.Authorize(ctx, sess.ID, card.ID, giftCard)
	require.NoError(t, err)

	v, err := svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "APPROVE")
	require.NoError(t, err)
	assert.Equal(t, ChallengeCompleted, v.Status)
	assert.Equal(t, "Challenge approved. Payment completed.", v.Message)
	assert.Equal(t, risk.MethodPasskey, v.Method)

	first, err := store.GetChallenge(ctx, sess.ID, out.ChallengeID)
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)

	v, err = svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "deny")
	require.NoError(t, err)
	assert.Equal(t, ChallengeDenied, v.Status)
	assert.Equal(t, "User denied the challenge.", v.Message)

	second, err := store.GetChallenge(ctx, sess.ID, out.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, ChallengeDenied, second.Status)
	assert.True(t, second.ResolvedAt.After(*first.ResolvedAt))
}

func TestResolveChallenge_StrictRejectsReResolution(t *testing.T) {
	svc, store, _ := newTestService(t)
	svc.WithStrictChallenges(true)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	out, err := svc.Authorize(ctx, sess.ID, card.ID, giftCard)
	require.NoError(t, err)

	_, err = svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "APPROVE")
	require.NoError(t, err)

	_, err = svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "DENY")
	assert.ErrorIs(t, err, ErrChallengeResolved)

	ch, err := store.GetChallenge(ctx, sess.ID, out.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, ChallengeCompleted, ch.Status)
}

func TestResolveChallenge_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, card := seeded(t, svc)
	other, _ := seeded(t, svc)
	ctx := context.Background()

	out, err := svc.Authorize(ctx, sess.ID, card.ID, giftCard)
	require.NoError(t, err)

	_, err = svc.ResolveChallenge(ctx, "missing", out.ChallengeID, "APPROVE")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.ResolveChallenge(ctx, other.ID, out.ChallengeID, "APPROVE")
	assert.ErrorIs(t, err, ErrChallengeNotFound, "challenge of another session")

	_, err = svc.ResolveChallenge(ctx, sess.ID, "nope", "MAYBE")
	assert.ErrorIs(t, err, ErrChallengeNotFound, "lookup precedes action check")

	_, err = svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "MAYBE")
	assert.ErrorIs(t, err, ErrInvalidAction)

	v, err := svc.ResolveChallenge(ctx, sess.ID, out.ChallengeID, "  approve ")
	require.NoError(t, err)
	assert.Equal(t, ChallengeCompleted, v.Status)
}

func TestAuthorize_EmptyFactsUnknownMerchant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	card, err := svc.AddCard(ctx, sess.ID, CardRequest{Network: "visa", Last4: "1111"})
	require.NoError(t, err)

	out, err := svc.Authorize(ctx, sess.ID, card.ID, risk.Purchase{Merchant: "Never Seen", Amount: 42, Currency: "USD", Country: "US"})
	require.NoError(t, err)
	assert.Equal(t, StatusChallengeRequired, out.Status)
	assert.Equal(t, personalization.TierLow, out.MerchantTrustTier)
	assert.Contains(t, out.Reasons, "Low/unknown merchant")
	assert.Empty(t, out.RetrievedMemories)
	assert.NotNil(t, out.RetrievedMemories)
}

func TestAuthorize_LookupFailuresPersistNothing(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, card := seeded(t, svc)
	other, otherCard := seeded(t, svc)
	ctx := context.Background()

	_, err := svc.Authorize(ctx, "missing", card.ID, ikea)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Authorize(ctx, sess.ID, otherCard.ID, ikea)
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = svc.Authorize(ctx, sess.ID, card.ID, risk.Purchase{Merchant: "IKEA", Amount: 0, Currency: "SEK", Country: "SE"})
	assert.ErrorIs(t, err, risk.ErrInvalidPurchase)

	_, err = svc.Authorize(ctx, "missing", card.ID, risk.Purchase{Merchant: "IKEA", Amount: 10, Currency: "XXQ", Country: "SE"})
	assert.ErrorIs(t, err, risk.ErrInvalidPurchase, "validation precedes session lookup")

	for _, id := range []string{sess.ID, other.ID} {
		attempts, err := store.ListAttempts(ctx, id, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, attempts)
	}
}

func TestAuthorize_DegradesWhenFactStoreFails(t *testing.T) {
	svc, _, facts := newTestService(t)
	sess, card := seeded(t, svc)
	facts.SetFailure(errors.New("connection refused"))

	out, err := svc.Authorize(context.Background(), sess.ID, card.ID, ikea)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, personalization.TierLow, out.MerchantTrustTier, "no facts means no trust")
	assert.Equal(t, StatusChallengeRequired, out.Status)
	assert.Empty(t, out.RetrievedMemories)
}

func TestAuthorize_DegradesOnRetrievalTimeout(t *testing.T) {
	svc, _, facts := newTestService(t)
	sess, card := seeded(t, svc)
	svc.WithRetrieveTimeout(20 * time.Millisecond)
	facts.SetLatency(500 * time.Millisecond)

	start := time.Now()
	out, err := svc.Authorize(context.Background(), sess.ID, card.ID, ikea)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

type stubClassifier struct {
	calls atomic.Int32
	cls   *merchantintel.Classification
	err   error
}

func (s *stubClassifier) Classify(_ context.Context, merchant, _, _ string) (*merchantintel.Classification, error) {
	s.calls.Add(1)
	if s.cls == nil {
		return nil, s.err
	}
	cp := *s.cls
	return &cp, s.err
}

func TestAuthorize_ClassifiesUnknownMerchant(t *testing.T) {
	svc, _, facts := newTestService(t)
	cls := &stubClassifier{cls: &merchantintel.Classification{Merchant: "VINOTEKET AB", Category: "ALCOHOL", Restricted: true, HomeCountry: "SE", Confidence: 0.9}}
	svc.WithClassifier(cls)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	p := risk.Purchase{Merchant: "Vinoteket", Amount: 80, Currency: "SEK", Country: "SE", Channel: risk.ChannelCardPresent}
	out, err := svc.Authorize(ctx, sess.ID, card.ID, p)
	require.NoError(t, err)
	assert.Equal(t, StatusChallengeRequired, out.Status)
	assert.Equal(t, "Quick passkey approval required for this type of purchase while traveling.", out.UserMessage)
	assert.Equal(t, int32(1), cls.calls.Load())

	records, err := facts.List(ctx, sess.Handle())
	require.NoError(t, err)
	last := records[len(records)-1]
	assert.True(t, strings.HasPrefix(last.Memory, "TP_MERCHANT_FACTS "))
	assert.Contains(t, last.Memory, `"merchant":"Vinoteket"`)
	assert.Equal(t, map[string]any{"tp": "merchant_intel"}, last.Extra["metadata"])

	// Written-back facts are read on the next attempt; no second lookup.
	_, err = svc.Authorize(ctx, sess.ID, card.ID, p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), cls.calls.Load())

	// Known merchants are never classified.
	_, err = svc.Authorize(ctx, sess.ID, card.ID, ikea)
	require.NoError(t, err)
	assert.Equal(t, int32(1), cls.calls.Load())
}

func TestAuthorize_ClassifierFailureIgnored(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.WithClassifier(&stubClassifier{err: errors.New("rate limited")})
	sess, card := seeded(t, svc)

	out, err := svc.Authorize(context.Background(), sess.ID, card.ID, risk.Purchase{Merchant: "Corner Kiosk", Amount: 5, Currency: "SEK", Country: "SE"})
	require.NoError(t, err)
	assert.Equal(t, personalization.TierLow, out.MerchantTrustTier)
	assert.False(t, out.Degraded)
}

func TestAuthorize_ConcurrentSameCard(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := ikea
			if i%2 == 0 {
				p = giftCard
			}
			_, err := svc.Authorize(ctx, sess.ID, card.ID, p)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	attempts, err := store.ListAttempts(ctx, sess.ID, nil, 100)
	require.NoError(t, err)
	assert.Len(t, attempts, 20)
}

// offRejectingClient refuses memory-off messages, like older service versions.
type offRejectingClient struct {
	*factstore.MemoryClient
	modes []factstore.MemoryMode
}

func (c *offRejectingClient) SendMessage(ctx context.Context, h factstore.Handle, msg string, mode factstore.MemoryMode) ([]byte, error) {
	c.modes = append(c.modes, mode)
	if mode == factstore.MemoryOff {
		return nil, &factstore.StatusError{Code: 422, Body: "memory must be Auto"}
	}
	return c.MemoryClient.SendMessage(ctx, h, msg, mode)
}

func TestChat(t *testing.T) {
	svc, store, facts := newTestService(t)
	sess, _ := seeded(t, svc)
	ctx := context.Background()

	reply, err := svc.Chat(ctx, sess.ID, "Why was my IKEA purchase approved?")
	require.NoError(t, err)
	assert.Equal(t, "Noted. 12 fact(s) on file for this cardholder.", reply.AssistantText)
	assert.NotEmpty(t, reply.RawResponse)

	entries := store.AuditEntries(sess.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "Why was my IKEA purchase approved?", entries[0].UserPrompt)
	assert.Equal(t, reply.AssistantText, entries[0].AssistantText)

	records, err := facts.List(ctx, sess.Handle())
	require.NoError(t, err)
	assert.Len(t, records, 12, "memory-off chat stores nothing")

	_, err = svc.Chat(ctx, sess.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Chat(ctx, "missing", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChat_FallsBackToMemoryAuto(t *testing.T) {
	store := NewMemoryStore()
	client := &offRejectingClient{MemoryClient: factstore.NewMemoryClient()}
	svc := NewService(store, client)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	reply, err := svc.Chat(ctx, sess.ID, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.AssistantText)
	assert.Equal(t, []factstore.MemoryMode{factstore.MemoryOff, factstore.MemoryAuto}, client.modes)
}

func TestChat_UpstreamFailure(t *testing.T) {
	svc, store, facts := newTestService(t)
	sess, _ := seeded(t, svc)
	facts.SetFailure(factstore.ErrUnavailable)

	_, err := svc.Chat(context.Background(), sess.ID, "hello")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, store.AuditEntries(sess.ID))
}

func TestSetTravelMode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	budget := 250.0
	mode, err := svc.SetTravelMode(ctx, sess.ID, TravelModeRequest{
		CurrentCountry: "no",
		TripCountries:  []string{"NO", "dk"},
		SMSAvailable:   true,
		DailyBudget:    &budget,
	})
	require.NoError(t, err)
	assert.Equal(t, "NO", mode.CurrentCountry)
	assert.Equal(t, []string{"NO", "DK"}, mode.TripCountries)
	assert.Equal(t, "PASSKEY", mode.PreferredVerification)

	view, err := svc.Personalization(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Personalization.CurrentCountry)
	assert.Equal(t, "NO", *view.Personalization.CurrentCountry)
	assert.Equal(t, []string{"NO", "DK"}, view.Personalization.TripCountries)
	require.NotNil(t, view.Personalization.SMSAvailable)
	assert.True(t, *view.Personalization.SMSAvailable)

	_, err = svc.SetTravelMode(ctx, sess.ID, TravelModeRequest{CurrentCountry: "Narnia"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.SetTravelMode(ctx, sess.ID, TravelModeRequest{CurrentCountry: "SE", PreferredVerification: "EMAIL"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	neg := -1.0
	_, err = svc.SetTravelMode(ctx, sess.ID, TravelModeRequest{CurrentCountry: "SE", DailyBudget: &neg})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSeedDemo_AddsCardOnce(t *testing.T) {
	svc, _, facts := newTestService(t)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SeedDemo(ctx, sess.ID))
	cards, err := svc.ListCards(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, card.ID, cards[0].ID)
	assert.Equal(t, "Demo Visa", cards[0].Nickname)
	assert.Equal(t, "CA", cards[0].BillingCountry)

	records, err := facts.List(ctx, sess.Handle())
	require.NoError(t, err)
	assert.Len(t, records, 2*len(SwedenSeed()))
	assert.Equal(t, map[string]any{"tp": "seed_sweden"}, records[0].Extra["metadata"])

	assert.ErrorIs(t, svc.SeedDemo(ctx, "missing"), ErrSessionNotFound)
}

func TestAddCard_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	month := 13
	tests := []CardRequest{
		{Network: "", Last4: "4242"},
		{Network: "VISA", Last4: "42"},
		{Network: "VISA", Last4: "42a2"},
		{Network: "VISA", Last4: "4242", ExpMonth: &month},
		{Network: "VISA", Last4: "4242", BillingCountry: "Atlantis"},
	}
	for _, req := range tests {
		_, err := svc.AddCard(ctx, sess.ID, req)
		assert.ErrorIs(t, err, ErrInvalidCard, "%+v", req)
	}

	card, err := svc.AddCard(ctx, sess.ID, CardRequest{Network: " mastercard ", Last4: "5454", BillingCountry: "gb"})
	require.NoError(t, err)
	assert.Equal(t, "MASTERCARD", card.Network)
	assert.Equal(t, "GB", card.BillingCountry)
	assert.True(t, strings.HasPrefix(card.ID, "card_"))

	_, err = svc.AddCard(ctx, "missing", CardRequest{Network: "VISA", Last4: "4242"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPreview_ScoresWithoutPersisting(t *testing.T) {
	svc, store, _ := newTestService(t)
	sess, _ := seeded(t, svc)
	ctx := context.Background()

	preview, err := svc.Preview(ctx, sess.ID, []risk.Purchase{ikea, giftCard})
	require.NoError(t, err)
	require.Len(t, preview.StoreRisks, 2)
	assert.Equal(t, risk.DecisionApprove, preview.StoreRisks[0].Decision)
	assert.Equal(t, "IKEA", preview.StoreRisks[0].Merchant)
	assert.Equal(t, risk.DecisionChallenge, preview.StoreRisks[1].Decision)
	assert.Equal(t, []string{"ica", "ikea", "systembolaget"}, preview.Personalization.TrustedHigh)
	assert.Equal(t, []string{"h&m", "sj"}, preview.Personalization.TrustedMed)

	attempts, err := store.ListAttempts(ctx, sess.ID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	_, err = svc.Preview(ctx, sess.ID, []risk.Purchase{ikea, {Merchant: "", Amount: 1, Currency: "SEK", Country: "SE"}})
	assert.ErrorIs(t, err, risk.ErrInvalidPurchase)
	assert.Contains(t, err.Error(), "purchases[1]")
}

func TestListAttempts_Pages(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, card := seeded(t, svc)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		out, err := svc.Authorize(ctx, sess.ID, card.ID, ikea)
		require.NoError(t, err)
		ids = append(ids, out.AttemptID)
	}

	page, next, more, err := svc.ListAttempts(ctx, sess.ID, "", 2)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID, "newest first")
	assert.Equal(t, ids[3], page[1].ID)

	page, next, more, err = svc.ListAttempts(ctx, sess.ID, next, 2)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, ids[2], page[0].ID)

	page, _, more, err = svc.ListAttempts(ctx, sess.ID, next, 2)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	_, _, _, err = svc.ListAttempts(ctx, sess.ID, "%%%", 2)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
