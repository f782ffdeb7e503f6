// Package personalization derives a cardholder's travel and merchant-trust
// profile from the free-text fact records kept in the fact store.
//
// Facts are prefix-tagged strings (TP_PROFILE, TP_BASELINE,
// TP_TRUSTED_MERCHANT_*, TP_MERCHANT_FACTS). Extraction is total: records
// that do not parse are skipped, and every field that could not be learned
// stays unknown (nil or empty) rather than zero.
package personalization

import (
	"sort"
	"strings"
)

// Tier is a merchant trust tier.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// NormalizeMerchant folds a merchant name into its lookup key.
func NormalizeMerchant(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MerchantFacts is what is known about one merchant.
type MerchantFacts struct {
	Merchant    string
	Category    string // upper-cased; "" when absent
	Restricted  bool
	HomeCountry string
	Source      string
	Raw         map[string]any // the record as stored
}

// Profile is the structured personalization context. It is recomputed per
// request and never persisted.
type Profile struct {
	CurrentCountry        string
	TripCountries         []string
	SMSAvailable          *bool
	PreferredVerification string
	DailyBudget           *float64
	TypicalAmountMin      *float64
	TypicalAmountMax      *float64

	TrustedHigh map[string]struct{}
	TrustedMed  map[string]struct{}
	TrustedLow  map[string]struct{}

	MerchantFacts map[string]MerchantFacts
}

// New returns an all-unknown profile.
func New() *Profile {
	return &Profile{
		TrustedHigh:   make(map[string]struct{}),
		TrustedMed:    make(map[string]struct{}),
		TrustedLow:    make(map[string]struct{}),
		MerchantFacts: make(map[string]MerchantFacts),
	}
}

// TierFor returns the merchant's trust tier. HIGH wins over MEDIUM over
// LOW when a merchant was tagged more than once; untagged merchants are LOW.
func (p *Profile) TierFor(merchant string) Tier {
	key := NormalizeMerchant(merchant)
	if _, ok := p.TrustedHigh[key]; ok {
		return TierHigh
	}
	if _, ok := p.TrustedMed[key]; ok {
		return TierMedium
	}
	return TierLow
}

// FactsFor looks up merchant facts case-insensitively.
func (p *Profile) FactsFor(merchant string) (MerchantFacts, bool) {
	f, ok := p.MerchantFacts[NormalizeMerchant(merchant)]
	return f, ok
}

// SetMerchantFacts records facts for f.Merchant, replacing any prior entry.
func (p *Profile) SetMerchantFacts(f MerchantFacts) {
	key := NormalizeMerchant(f.Merchant)
	if key == "" {
		return
	}
	if p.MerchantFacts == nil {
		p.MerchantFacts = make(map[string]MerchantFacts)
	}
	p.MerchantFacts[key] = f
}

// InTrip reports whether country is one of the declared trip countries.
func (p *Profile) InTrip(country string) bool {
	for _, c := range p.TripCountries {
		if c == country {
			return true
		}
	}
	return false
}

// Summary is the redacted view of a profile attached to every risk result.
type Summary struct {
	CurrentCountry        *string  `json:"current_country"`
	TripCountries         []string `json:"trip_countries"`
	SMSAvailable          *bool    `json:"sms_available"`
	PreferredVerification *string  `json:"preferred_verification"`
	TypicalAmountMax      *float64 `json:"typical_amount_max"`
	TrustedHighCount      int      `json:"trusted_high_count"`
	TrustedMedCount       int      `json:"trusted_med_count"`
	TrustedLowCount       int      `json:"trusted_low_count"`
}

// Summary returns the audit summary. Merchant names are reduced to counts.
func (p *Profile) Summary() Summary {
	return Summary{
		CurrentCountry:        optString(p.CurrentCountry),
		TripCountries:         nonNil(p.TripCountries),
		SMSAvailable:          p.SMSAvailable,
		PreferredVerification: optString(p.PreferredVerification),
		TypicalAmountMax:      p.TypicalAmountMax,
		TrustedHighCount:      len(p.TrustedHigh),
		TrustedMedCount:       len(p.TrustedMed),
		TrustedLowCount:       len(p.TrustedLow),
	}
}

// View is the full profile as shown to the cardholder.
type View struct {
	CurrentCountry        *string                   `json:"current_country"`
	TripCountries         []string                  `json:"trip_countries"`
	SMSAvailable          *bool                     `json:"sms_available"`
	PreferredVerification *string                   `json:"preferred_verification"`
	DailyBudget           *float64                  `json:"daily_budget"`
	TypicalAmountMin      *float64                  `json:"typical_amount_min"`
	TypicalAmountMax      *float64                  `json:"typical_amount_max"`
	TrustedHigh           []string                  `json:"trusted_high"`
	TrustedMed            []string                  `json:"trusted_med"`
	TrustedLow            []string                  `json:"trusted_low"`
	MerchantFacts         map[string]map[string]any `json:"merchant_facts,omitempty"`
}

// View returns the UI view with trust lists sorted.
func (p *Profile) View() View {
	v := View{
		CurrentCountry:        optString(p.CurrentCountry),
		TripCountries:         nonNil(p.TripCountries),
		SMSAvailable:          p.SMSAvailable,
		PreferredVerification: optString(p.PreferredVerification),
		DailyBudget:           p.DailyBudget,
		TypicalAmountMin:      p.TypicalAmountMin,
		TypicalAmountMax:      p.TypicalAmountMax,
		TrustedHigh:           sortedKeys(p.TrustedHigh),
		TrustedMed:            sortedKeys(p.TrustedMed),
		TrustedLow:            sortedKeys(p.TrustedLow),
	}
	if len(p.MerchantFacts) > 0 {
		v.MerchantFacts = make(map[string]map[string]any, len(p.MerchantFacts))
		for k, f := range p.MerchantFacts {
			v.MerchantFacts[k] = f.Raw
		}
	}
	return v
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
