package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
)

func profileFrom(texts ...string) *personalization.Profile {
	recs := make([]factstore.Record, len(texts))
	for i, t := range texts {
		recs[i] = factstore.Record{Memory: t}
	}
	return personalization.Extract(recs)
}

func swedenProfile() *personalization.Profile {
	return profileFrom(
		`TP_PROFILE {"current_country":"SE","trip_countries":["SE"]}`,
		`TP_BASELINE {"typical_amount_max":600}`,
		"TP_TRUSTED_MERCHANT_HIGH IKEA",
		"TP_TRUSTED_MERCHANT_HIGH Systembolaget",
		"TP_TRUSTED_MERCHANT_MED SJ",
		`TP_MERCHANT_FACTS {"merchant":"IKEA","category":"FURNITURE","restricted":false}`,
		`TP_MERCHANT_FACTS {"merchant":"Systembolaget","category":"ALCOHOL","restricted":true}`,
		`TP_MERCHANT_FACTS {"merchant":"SJ","category":"TRANSIT"}`,
	)
}

func TestScenarioA_TrustedMerchantApproved(t *testing.T) {
	res := Score(Purchase{Merchant: "IKEA", Amount: 500, Currency: "SEK", Country: "SE", Channel: ChannelCNP}, swedenProfile(), DefaultTrustScore)

	assert.Equal(t, DecisionApprove, res.Decision)
	assert.Equal(t, MethodNone, res.ChallengeMethod)
	assert.Equal(t, 0, res.RiskScore, "net negative score clamps to 0")
	assert.Equal(t, LevelLow, res.RiskLevel)
	assert.Equal(t, personalization.TierHigh, res.MerchantTrustTier)
	assert.Equal(t, "Trusted merchant — approved with no extra steps.", res.UserMessage)
	assert.NotContains(t, res.AllReasons(), "Country mismatch vs travel mode")
	assert.NotContains(t, res.AllReasons(), "Amount is above your typical range")
	assert.Contains(t, res.AllReasons(), "Large-ticket retail category")
	assert.Equal(t,
		"Risk score 0/100 (LOW). Approved. Key factors: Online (card-not-present) purchase; "+
			"Purchase is in your declared trip country; Large-ticket retail category.",
		res.Explain)
}

func TestScenarioB_GiftCardAbroad(t *testing.T) {
	res := Score(Purchase{
		Merchant:        "Unknown Shop",
		Amount:          1500,
		Currency:        "EUR",
		Country:         "FR",
		ItemDescription: "Steam Gift Card $100",
		Channel:         ChannelCNP,
	}, swedenProfile(), DefaultTrustScore)

	assert.Equal(t, DecisionChallenge, res.Decision)
	assert.Equal(t, MethodPasskey, res.ChallengeMethod)
	assert.Equal(t, LevelHigh, res.RiskLevel)
	assert.Equal(t, 100, res.RiskScore)
	assert.Contains(t, res.Reasons, "Item resembles a gift card / voucher (high scam risk)")
	assert.Contains(t, res.Reasons, "Country mismatch vs travel mode")
	assert.Len(t, res.Reasons, 3)
	assert.Greater(t, len(res.AllReasons()), 3)
	assert.Equal(t, msgRestricted, res.UserMessage)
}

func TestScenarioD_EmptyProfile(t *testing.T) {
	for _, amount := range []float64{0.5, 42, 1e6} {
		res := Score(Purchase{Merchant: "Never Seen", Amount: amount, Currency: "USD", Country: "US"}, profileFrom(), DefaultTrustScore)
		assert.Equal(t, DecisionChallenge, res.Decision)
		assert.Equal(t, MethodPasskey, res.ChallengeMethod)
		assert.Equal(t, personalization.TierLow, res.MerchantTrustTier)
		assert.Contains(t, res.Reasons, "Low/unknown merchant")
		assert.Equal(t, 27, res.RiskScore, "only channel and unknown tier fire without facts")
		assert.Equal(t, msgUnknown, res.UserMessage)
	}
}

func TestNilProfileIsUnknown(t *testing.T) {
	res := Score(Purchase{Merchant: "x", Amount: 1, Country: "SE"}, nil, DefaultTrustScore)
	assert.Equal(t, 27, res.RiskScore)
	assert.Nil(t, res.PersonalizationUsed.CurrentCountry)
}

func TestRestrictedOverridesHighTrust(t *testing.T) {
	res := Score(Purchase{Merchant: "systembolaget", Amount: 200, Country: "SE", Channel: ChannelCardPresent}, swedenProfile(), DefaultTrustScore)
	assert.Equal(t, personalization.TierHigh, res.MerchantTrustTier)
	assert.Equal(t, DecisionChallenge, res.Decision)
	assert.Equal(t, MethodPasskey, res.ChallengeMethod)
	assert.Equal(t, LevelLow, res.RiskLevel, "decision is not driven by the score")
}

func TestMediumTierChallenged(t *testing.T) {
	res := Score(Purchase{Merchant: "SJ", Amount: 100, Country: "SE", Channel: ChannelCardPresent}, swedenProfile(), DefaultTrustScore)
	assert.Equal(t, personalization.TierMedium, res.MerchantTrustTier)
	assert.Equal(t, DecisionChallenge, res.Decision)
	// -10 trip, -3 transit, +5 medium
	assert.Equal(t, 0, res.RiskScore)
	assert.Equal(t, msgMedium, res.UserMessage)
}

// The score never feeds the decision: a HIGH-tier merchant is approved even
// when every other rule pushes the score to the top of the range.
func TestHighTierApprovedRegardlessOfScore(t *testing.T) {
	prof := swedenProfile()
	countries := []string{"SE", "FR", "US"}
	amounts := []float64{1, 600, 800, 5000}
	channels := []Channel{ChannelCNP, ChannelCardPresent, ""}
	for _, c := range countries {
		for _, a := range amounts {
			for _, ch := range channels {
				for _, dcc := range []bool{false, true} {
					p := Purchase{Merchant: " ikea ", Amount: a, Country: c, Channel: ch, DCCOffered: dcc, ShippingCountry: "DE"}
					res := Score(p, prof, 0)
					name := fmt.Sprintf("%s/%v/%s/%v", c, a, ch, dcc)
					assert.Equal(t, DecisionApprove, res.Decision, name)
					assert.Equal(t, MethodNone, res.ChallengeMethod, name)
				}
			}
		}
	}
}

func TestScoreBoundsAndLevels(t *testing.T) {
	assert.Equal(t, LevelLow, LevelFor(29))
	assert.Equal(t, LevelMedium, LevelFor(30))
	assert.Equal(t, LevelMedium, LevelFor(59))
	assert.Equal(t, LevelHigh, LevelFor(60))

	prof := swedenProfile()
	for trust := 0; trust <= 100; trust += 5 {
		for _, item := range []string{"", "voucher", "sofa"} {
			res := Score(Purchase{Merchant: "shop", Amount: 10000, Country: "BR", ItemDescription: item, DCCOffered: true, ShippingCountry: "US"}, prof, trust)
			assert.GreaterOrEqual(t, res.RiskScore, 0)
			assert.LessOrEqual(t, res.RiskScore, 100)
			assert.Equal(t, LevelFor(res.RiskScore), res.RiskLevel)
		}
	}
}

func TestTrustScoreAdjustment(t *testing.T) {
	p := Purchase{Merchant: "shop", Amount: 10, Country: "SE", Channel: ChannelCardPresent, DCCOffered: true}

	// 15 unknown tier + 5 DCC + (50-25)*0.4
	res := Score(p, profileFrom(), 25)
	assert.Equal(t, 30, res.RiskScore)
	assert.Equal(t, LevelMedium, res.RiskLevel)
	assert.Equal(t, "trust_score", res.Factors[len(res.Factors)-1].Rule)
	assert.Len(t, res.Reasons, 2, "the trust adjustment carries no cardholder-facing reason")

	res = NewScorer().WithTrustScore(100).Score(p, profileFrom())
	assert.Equal(t, 0, res.RiskScore)
	assert.Equal(t, 100, NewScorer().WithTrustScore(400).TrustScore())
}

func TestAmountBands(t *testing.T) {
	prof := profileFrom(`TP_BASELINE {"typical_amount_max":100}`)
	tests := []struct {
		amount float64
		reason string
	}{
		{119, ""},
		{121, "Amount is above your typical range"},
		{200, "Amount is above your typical range"},
		{201, "Amount is much higher than your typical spending"},
	}
	for _, tt := range tests {
		res := Score(Purchase{Merchant: "m", Amount: tt.amount, Country: "SE"}, prof, DefaultTrustScore)
		var got string
		for _, r := range res.AllReasons() {
			if strings.HasPrefix(r, "Amount") {
				got = r
			}
		}
		assert.Equal(t, tt.reason, got, "amount %v", tt.amount)
	}
}

func TestCategoryAndShipping(t *testing.T) {
	prof := profileFrom(
		`TP_PROFILE {"current_country":"SE"}`,
		`TP_MERCHANT_FACTS {"merchant":"ICA","category":"grocery"}`,
		`TP_MERCHANT_FACTS {"merchant":"Odd","category":"SPACESHIPS"}`,
	)
	res := Score(Purchase{Merchant: "ica", Amount: 5, Country: "SE", ShippingCountry: "NO"}, prof, DefaultTrustScore)
	assert.Contains(t, res.AllReasons(), "Grocery purchase (low fraud profile)")
	assert.Contains(t, res.AllReasons(), "Shipping country differs from your current travel country")
	// 12 CNP - 5 grocery + 12 shipping + 15 unknown tier
	assert.Equal(t, 34, res.RiskScore)

	res = Score(Purchase{Merchant: "odd", Amount: 5, Country: "SE"}, prof, DefaultTrustScore)
	assert.Equal(t, 27, res.RiskScore, "unrecognized category contributes nothing")
}

func TestGiftCardKeywords(t *testing.T) {
	for _, item := range []string{"Apple Gift 50", "GOOGLE PLAY code", "giftcard", "Steam Card", "hotel VOUCHER"} {
		assert.True(t, looksLikeGiftCard(item), item)
	}
	assert.False(t, looksLikeGiftCard("sofa"))
	assert.False(t, looksLikeGiftCard(""))
}

func TestClampScore_RoundsHalfToEven(t *testing.T) {
	assert.Equal(t, 0, clampScore(-12))
	assert.Equal(t, 100, clampScore(180))
	assert.Equal(t, 42, clampScore(42.5))
	assert.Equal(t, 44, clampScore(43.5))
	assert.Equal(t, 43, clampScore(42.6))
}

func TestPurchaseValidate(t *testing.T) {
	p, err := Purchase{Merchant: "  IKEA ", Amount: 10, Currency: "sek", Country: "se", Channel: "card_present", ShippingCountry: " "}.Validate()
	require.NoError(t, err)
	assert.Equal(t, "IKEA", p.Merchant)
	assert.Equal(t, "SEK", p.Currency)
	assert.Equal(t, "SE", p.Country)
	assert.Equal(t, ChannelCardPresent, p.Channel)
	assert.Empty(t, p.ShippingCountry)

	p, err = Purchase{Merchant: "x", Amount: 1, Currency: "EUR", Country: "FR"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, ChannelCNP, p.Channel)

	bad := []Purchase{
		{Merchant: " ", Amount: 1, Currency: "EUR", Country: "FR"},
		{Merchant: "x", Amount: 0, Currency: "EUR", Country: "FR"},
		{Merchant: "x", Amount: -3, Currency: "EUR", Country: "FR"},
		{Merchant: "x", Amount: math.NaN(), Currency: "EUR", Country: "FR"},
		{Merchant: "x", Amount: math.Inf(1), Currency: "EUR", Country: "FR"},
		{Merchant: "x", Amount: 1, Currency: "EURO", Country: "FR"},
		{Merchant: "x", Amount: 1, Currency: "EUR", Country: "F"},
		{Merchant: "x", Amount: 1, Currency: "EUR", Country: "France"},
		{Merchant: "x", Amount: 1, Currency: "EUR", Country: "FR", Channel: "ONLINE"},
		{Merchant: "x", Amount: 1, Currency: "EUR", Country: "FR", ShippingCountry: "nowhere"},
	}
	for i, b := range bad {
		_, err := b.Validate()
		assert.True(t, errors.Is(err, ErrInvalidPurchase), "case %d: %v", i, err)
	}
}

func TestAlpha3ProfileMatchesValidatedPurchase(t *testing.T) {
	prof := profileFrom(`TP_PROFILE {"current_country":"SWE","trip_countries":["SWE"]}`)
	p, err := Purchase{Merchant: "IKEA", Amount: 100, Currency: "sek", Country: "swe"}.Validate()
	require.NoError(t, err)
	require.Equal(t, "SE", p.Country)

	res := Score(p, prof, DefaultTrustScore)
	assert.NotContains(t, res.AllReasons(), "Country mismatch vs travel mode")
	assert.Contains(t, res.AllReasons(), "Purchase is in your declared trip country")
}
