package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
)

// DefaultTrustScore is the neutral cardholder trust score. Deriving it from
// payment history is not implemented yet, so every caller scores with it.
const DefaultTrustScore = 50

const maxReasons = 3

var giftCardKeywords = []string{"gift card", "giftcard", "voucher", "steam card", "apple gift", "google play"}

type categoryRule struct {
	points float64
	reason string
}

var categoryRules = map[string]categoryRule{
	"GROCERY":   {-5, "Grocery purchase (low fraud profile)"},
	"TRANSIT":   {-3, "Transit purchase (common while traveling)"},
	"APPAREL":   {2, "Retail apparel purchase"},
	"FURNITURE": {8, "Large-ticket retail category"},
	"ALCOHOL":   {5, "Restricted category purchase"},
}

const (
	msgRestricted = "Quick passkey approval required for this type of purchase while traveling."
	msgTrusted    = "Trusted merchant — approved with no extra steps."
	msgMedium     = "Quick passkey check to confirm it’s you."
	msgUnknown    = "Unrecognized merchant — approve with passkey or decline."
)

// Scorer scores purchases with a fixed cardholder trust score.
type Scorer struct {
	trust int
}

// NewScorer returns a scorer using DefaultTrustScore.
func NewScorer() *Scorer {
	return &Scorer{trust: DefaultTrustScore}
}

// WithTrustScore overrides the trust score, clamped to 0..100.
func (s *Scorer) WithTrustScore(trust int) *Scorer {
	s.trust = min(max(trust, 0), 100)
	return s
}

// TrustScore returns the trust score in use.
func (s *Scorer) TrustScore() int { return s.trust }

// Score scores p against prof.
func (s *Scorer) Score(p Purchase, prof *personalization.Profile) *Result {
	return Score(p, prof, s.trust)
}

type tally struct {
	score   float64
	factors []Factor
}

func (t *tally) add(rule string, points float64, reason string) {
	t.score += points
	t.factors = append(t.factors, Factor{Rule: rule, Points: points, Reason: reason})
}

// Score is the pure scoring function. A nil profile is treated as
// all-unknown. The purchase is read as given; callers validate first.
func Score(p Purchase, prof *personalization.Profile, trust int) *Result {
	if prof == nil {
		prof = personalization.New()
	}

	var t tally
	country := strings.ToUpper(strings.TrimSpace(p.Country))
	tier := prof.TierFor(p.Merchant)
	facts, _ := prof.FactsFor(p.Merchant)

	channel := Channel(strings.ToUpper(strings.TrimSpace(string(p.Channel))))
	if channel == "" || channel == ChannelCNP {
		t.add("channel", 12, "Online (card-not-present) purchase")
	}

	if prof.CurrentCountry != "" && country != "" && country != prof.CurrentCountry {
		t.add("country_mismatch", 30, "Country mismatch vs travel mode")
	}
	if len(prof.TripCountries) > 0 && prof.InTrip(country) {
		t.add("trip_country", -10, "Purchase is in your declared trip country")
	}

	if ship := strings.ToUpper(strings.TrimSpace(p.ShippingCountry)); ship != "" && prof.CurrentCountry != "" && ship != prof.CurrentCountry {
		t.add("shipping_mismatch", 12, "Shipping country differs from your current travel country")
	}

	if rule, ok := categoryRules[facts.Category]; ok {
		t.add("category", rule.points, rule.reason)
	}

	giftCard := looksLikeGiftCard(p.ItemDescription)
	if giftCard {
		t.add("gift_card", 40, "Item resembles a gift card / voucher (high scam risk)")
	}

	if maxAmt := prof.TypicalAmountMax; maxAmt != nil {
		switch {
		case p.Amount > 2*(*maxAmt):
			t.add("amount", 25, "Amount is much higher than your typical spending")
		case p.Amount > 1.2*(*maxAmt):
			t.add("amount", 10, "Amount is above your typical range")
		}
	}

	if p.DCCOffered {
		t.add("dcc", 5, "Merchant offered DCC (extra fee risk)")
	}

	switch tier {
	case personalization.TierHigh:
		t.add("merchant_tier", -25, "High-trust merchant")
	case personalization.TierMedium:
		t.add("merchant_tier", 5, "Medium-trust merchant")
	default:
		t.add("merchant_tier", 15, "Low/unknown merchant")
	}

	if adj := -float64(trust-DefaultTrustScore) * 0.4; adj != 0 {
		t.add("trust_score", adj, "")
	}

	score := clampScore(t.score)
	level := LevelFor(score)

	res := &Result{
		RiskScore:           score,
		RiskLevel:           level,
		MerchantTrustTier:   tier,
		PersonalizationUsed: prof.Summary(),
		Factors:             t.factors,
	}

	switch {
	case facts.Restricted || giftCard:
		res.Decision, res.ChallengeMethod, res.UserMessage = DecisionChallenge, MethodPasskey, msgRestricted
	case tier == personalization.TierHigh:
		res.Decision, res.ChallengeMethod, res.UserMessage = DecisionApprove, MethodNone, msgTrusted
	case tier == personalization.TierMedium:
		res.Decision, res.ChallengeMethod, res.UserMessage = DecisionChallenge, MethodPasskey, msgMedium
	default:
		res.Decision, res.ChallengeMethod, res.UserMessage = DecisionChallenge, MethodPasskey, msgUnknown
	}

	all := res.AllReasons()
	res.Reasons = all[:min(len(all), maxReasons)]

	verdict := "Verification required. "
	if res.Decision == DecisionApprove {
		verdict = "Approved. "
	}
	res.Explain = fmt.Sprintf("Risk score %d/100 (%s). %sKey factors: %s.",
		score, level, verdict, strings.Join(res.Reasons, "; "))
	return res
}

func looksLikeGiftCard(item string) bool {
	if item == "" {
		return false
	}
	s := strings.ToLower(item)
	for _, k := range giftCardKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// clampScore rounds half to even and clamps to 0..100.
func clampScore(x float64) int {
	return int(math.Max(0, math.Min(100, math.RoundToEven(x))))
}
