package personalization

import (
	"encoding/json"
	"strings"
)

// TravelMode is the cardholder-declared travel context written as a
// TP_PROFILE record.
type TravelMode struct {
	CurrentCountry        string   `json:"current_country"`
	TripCountries         []string `json:"trip_countries"`
	SMSAvailable          bool     `json:"sms_available"`
	PreferredVerification string   `json:"preferred_verification"`
	DailyBudget           *float64 `json:"daily_budget,omitempty"`
}

// Record renders the TP_PROFILE record.
func (t TravelMode) Record() string {
	if t.TripCountries == nil {
		t.TripCountries = []string{}
	}
	return tagJSON("TP_PROFILE", t)
}

// Baseline is the cardholder's typical spending range.
type Baseline struct {
	TypicalAmountMin float64 `json:"typical_amount_min"`
	TypicalAmountMax float64 `json:"typical_amount_max"`
}

// Record renders the TP_BASELINE record.
func (b Baseline) Record() string {
	return tagJSON("TP_BASELINE", b)
}

var tierSuffix = map[Tier]string{
	TierHigh:   "HIGH",
	TierMedium: "MED",
	TierLow:    "LOW",
}

// TrustedMerchantRecord renders a TP_TRUSTED_MERCHANT_<tier> record.
func TrustedMerchantRecord(tier Tier, merchant string) string {
	suffix, ok := tierSuffix[tier]
	if !ok {
		suffix = "LOW"
	}
	return "TP_TRUSTED_MERCHANT_" + suffix + " " + strings.TrimSpace(merchant)
}

// MerchantFactsRecordText renders a TP_MERCHANT_FACTS record. fields must
// carry a "merchant" key for the record to be read back.
func MerchantFactsRecordText(fields map[string]any) string {
	return tagJSON("TP_MERCHANT_FACTS", fields)
}

func tagJSON(tag string, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return tag + " {}"
	}
	return tag + " " + string(data)
}
