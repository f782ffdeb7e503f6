// Package risk scores a purchase attempt against a cardholder's
// personalization profile.
//
// Scoring is an additive rule model clamped to 0..100. The approve or
// challenge decision is a separate discrete policy over merchant trust tier
// and hard flags (restricted merchant, gift-card-like item): the numeric
// score is reported for explanation and audit and never drives the decision.
package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"

	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
)

var ErrInvalidPurchase = errors.New("risk: invalid purchase")

// Decision is the scorer's verdict.
type Decision string

const (
	DecisionApprove   Decision = "APPROVE"
	DecisionChallenge Decision = "CHALLENGE"
)

// ChallengeMethod is the step-up method a challenge requires.
type ChallengeMethod string

const (
	MethodNone    ChallengeMethod = "NONE"
	MethodPasskey ChallengeMethod = "PASSKEY"
)

// Level buckets a risk score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// LevelFor maps a score to its level: <30 LOW, 30-59 MEDIUM, >=60 HIGH.
func LevelFor(score int) Level {
	switch {
	case score >= 60:
		return LevelHigh
	case score >= 30:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Channel is how the card was presented.
type Channel string

const (
	ChannelCNP         Channel = "CNP"
	ChannelCardPresent Channel = "CARD_PRESENT"
)

// Purchase is one purchase attempt.
type Purchase struct {
	Merchant        string  `json:"merchant" yaml:"merchant"`
	Amount          float64 `json:"amount" yaml:"amount"`
	Currency        string  `json:"currency" yaml:"currency"`
	Country         string  `json:"country" yaml:"country"`
	DCCOffered      bool    `json:"dcc_offered" yaml:"dcc_offered"`
	Channel         Channel `json:"channel" yaml:"channel"`
	ItemDescription string  `json:"item_description,omitempty" yaml:"item_description"`
	ShippingCountry string  `json:"shipping_country,omitempty" yaml:"shipping_country"`
}

// Validate checks p and returns it normalized: merchant trimmed, codes
// upper-cased and channel defaulted to CNP. Countries are ISO 3166 regions
// (alpha-3 codes are folded to alpha-2), currency an ISO 4217 code.
func (p Purchase) Validate() (Purchase, error) {
	p.Merchant = strings.TrimSpace(p.Merchant)
	p.ItemDescription = strings.TrimSpace(p.ItemDescription)

	if p.Merchant == "" {
		return p, fmt.Errorf("%w: merchant is required", ErrInvalidPurchase)
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount <= 0 {
		return p, fmt.Errorf("%w: amount must be a positive number", ErrInvalidPurchase)
	}

	cur, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(p.Currency)))
	if err != nil {
		return p, fmt.Errorf("%w: currency %q is not an ISO 4217 code", ErrInvalidPurchase, p.Currency)
	}
	p.Currency = cur.String()

	country, err := NormalizeCountry(p.Country)
	if err != nil {
		return p, fmt.Errorf("%w: country %q is not an ISO 3166 region", ErrInvalidPurchase, p.Country)
	}
	p.Country = country

	if strings.TrimSpace(p.ShippingCountry) != "" {
		ship, err := NormalizeCountry(p.ShippingCountry)
		if err != nil {
			return p, fmt.Errorf("%w: shipping_country %q is not an ISO 3166 region", ErrInvalidPurchase, p.ShippingCountry)
		}
		p.ShippingCountry = ship
	} else {
		p.ShippingCountry = ""
	}

	p.Channel = Channel(strings.ToUpper(strings.TrimSpace(string(p.Channel))))
	switch p.Channel {
	case "":
		p.Channel = ChannelCNP
	case ChannelCNP, ChannelCardPresent:
	default:
		return p, fmt.Errorf("%w: channel must be CNP or CARD_PRESENT", ErrInvalidPurchase)
	}
	return p, nil
}

// NormalizeCountry upper-cases s and checks it names an ISO 3166 region,
// returning the alpha-2 code.
func NormalizeCountry(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return "", fmt.Errorf("%w: country %q is too short", ErrInvalidPurchase, s)
	}
	return personalization.CanonicalCountry(s)
}

// Factor is one rule that fired, with its contribution to the score.
// Reason is empty for adjustments that are not shown to the cardholder.
type Factor struct {
	Rule   string  `json:"rule"`
	Points float64 `json:"points"`
	Reason string  `json:"reason,omitempty"`
}

// Result is the scorer's output.
type Result struct {
	Decision            Decision                `json:"decision"`
	ChallengeMethod     ChallengeMethod         `json:"challenge_method"`
	RiskScore           int                     `json:"risk_score"`
	RiskLevel           Level                   `json:"risk_level"`
	MerchantTrustTier   personalization.Tier    `json:"merchant_trust_tier"`
	Reasons             []string                `json:"reasons"`
	Explain             string                  `json:"explain"`
	UserMessage         string                  `json:"user_message"`
	PersonalizationUsed personalization.Summary `json:"personalization_used"`
	Factors             []Factor                `json:"factors"`
}

// AllReasons lists every cardholder-facing reason in evaluation order.
func (r *Result) AllReasons() []string {
	out := make([]string, 0, len(r.Factors))
	for _, f := range r.Factors {
		if f.Reason != "" {
			out = append(out, f.Reason)
		}
	}
	return out
}

// Approved reports whether no challenge is needed.
func (r *Result) Approved() bool {
	return r.Decision == DecisionApprove
}
