package personalization

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/language"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
)

// Fact is one decoded record. The variants are ProfileFact, BaselineFact,
// TrustFact and MerchantFactsRecord.
type Fact interface {
	apply(p *Profile)
}

// ProfileFact carries the TP_PROFILE fields that were present.
// A non-nil TripCountries replaces the current list, even when empty.
type ProfileFact struct {
	CurrentCountry        string
	TripCountries         []string
	SMSAvailable          *bool
	PreferredVerification string
	DailyBudget           *float64
}

func (f ProfileFact) apply(p *Profile) {
	if f.CurrentCountry != "" {
		p.CurrentCountry = f.CurrentCountry
	}
	if f.TripCountries != nil {
		p.TripCountries = f.TripCountries
	}
	if f.SMSAvailable != nil {
		p.SMSAvailable = f.SMSAvailable
	}
	if f.PreferredVerification != "" {
		p.PreferredVerification = f.PreferredVerification
	}
	if f.DailyBudget != nil {
		p.DailyBudget = f.DailyBudget
	}
}

// BaselineFact carries the typical spending range.
type BaselineFact struct {
	Min *float64
	Max *float64
}

func (f BaselineFact) apply(p *Profile) {
	if f.Min != nil {
		p.TypicalAmountMin = f.Min
	}
	if f.Max != nil {
		p.TypicalAmountMax = f.Max
	}
}

// TrustFact tags a merchant with a trust tier. Tags accumulate.
type TrustFact struct {
	Tier     Tier
	Merchant string // normalized
}

func (f TrustFact) apply(p *Profile) {
	switch f.Tier {
	case TierHigh:
		p.TrustedHigh[f.Merchant] = struct{}{}
	case TierMedium:
		p.TrustedMed[f.Merchant] = struct{}{}
	case TierLow:
		p.TrustedLow[f.Merchant] = struct{}{}
	}
}

// MerchantFactsRecord replaces whatever was known about a merchant.
type MerchantFactsRecord struct {
	Facts MerchantFacts
}

func (f MerchantFactsRecord) apply(p *Profile) {
	p.SetMerchantFacts(f.Facts)
}

type decoder struct {
	prefix string
	decode func(payload string) (Fact, bool)
}

// decoders are tried in order and the first matching prefix owns the
// record, so the tiered trust tags must precede the legacy untiered one.
var decoders = []decoder{
	{"TP_PROFILE", decodeProfile},
	{"TP_BASELINE", decodeBaseline},
	{"TP_TRUSTED_MERCHANT_HIGH", decodeTrust(TierHigh)},
	{"TP_TRUSTED_MERCHANT_MED", decodeTrust(TierMedium)},
	{"TP_TRUSTED_MERCHANT_LOW", decodeTrust(TierLow)},
	{"TP_TRUSTED_MERCHANT", decodeTrust(TierHigh)},
	{"TP_MERCHANT_FACTS", decodeMerchantFacts},
}

// Decode parses one record's text. It returns false for untagged text and
// for tagged records whose payload does not parse.
func Decode(text string) (Fact, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	for _, d := range decoders {
		if strings.HasPrefix(text, d.prefix) {
			return d.decode(strings.TrimSpace(text[len(d.prefix):]))
		}
	}
	return nil, false
}

// Extract folds records, in order, into a profile.
func Extract(records []factstore.Record) *Profile {
	p := New()
	for _, r := range records {
		if f, ok := Decode(r.Memory); ok {
			f.apply(p)
		}
	}
	return p
}

func decodeProfile(payload string) (Fact, bool) {
	obj, ok := parseObject(payload)
	if !ok {
		return nil, false
	}
	var f ProfileFact
	if v := obj.Get("current_country"); truthy(v) {
		f.CurrentCountry = foldCountry(scalarString(v))
	}
	if v := obj.Get("trip_countries"); v.IsArray() {
		f.TripCountries = []string{}
		for _, c := range v.Array() {
			if s := strings.TrimSpace(scalarString(c)); s != "" {
				f.TripCountries = append(f.TripCountries, foldCountry(s))
			}
		}
	}
	if v := obj.Get("sms_available"); present(v) {
		b := truthy(v)
		f.SMSAvailable = &b
	}
	if v := obj.Get("preferred_verification"); truthy(v) {
		f.PreferredVerification = strings.ToUpper(strings.TrimSpace(scalarString(v)))
	}
	if v := obj.Get("daily_budget"); present(v) {
		if n, ok := number(v); ok {
			f.DailyBudget = &n
		}
	}
	return f, true
}

func decodeBaseline(payload string) (Fact, bool) {
	obj, ok := parseObject(payload)
	if !ok {
		return nil, false
	}
	var f BaselineFact
	if n, ok := number(obj.Get("typical_amount_min")); ok {
		f.Min = &n
	}
	if n, ok := number(obj.Get("typical_amount_max")); ok {
		f.Max = &n
	}
	return f, true
}

func decodeTrust(tier Tier) func(string) (Fact, bool) {
	return func(payload string) (Fact, bool) {
		name := NormalizeMerchant(payload)
		if name == "" {
			return nil, false
		}
		return TrustFact{Tier: tier, Merchant: name}, true
	}
}

func decodeMerchantFacts(payload string) (Fact, bool) {
	obj, ok := parseObject(payload)
	if !ok {
		return nil, false
	}
	m := obj.Get("merchant")
	if !truthy(m) {
		return nil, false
	}
	f := MerchantFacts{
		Merchant:    strings.TrimSpace(scalarString(m)),
		Category:    strings.ToUpper(strings.TrimSpace(stringField(obj, "category"))),
		Restricted:  truthy(obj.Get("restricted")),
		HomeCountry: strings.TrimSpace(stringField(obj, "home_country")),
		Source:      strings.TrimSpace(stringField(obj, "source_url", "source")),
	}
	if raw, ok := obj.Value().(map[string]any); ok {
		f.Raw = raw
	}
	return MerchantFactsRecord{Facts: f}, true
}

// parseObject accepts only a JSON object with at least one key.
func parseObject(payload string) (gjson.Result, bool) {
	if !gjson.Valid(payload) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(payload)
	if !obj.IsObject() || len(obj.Map()) == 0 {
		return gjson.Result{}, false
	}
	return obj, true
}

func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

// truthy follows loose JSON truthiness: false, null, 0, "" and empty
// containers are false.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		return len(v.Map()) > 0
	default:
		return false
	}
}

// number accepts JSON numbers, numeric strings and booleans. NaN and the
// infinities are not amounts and read as absent.
func number(v gjson.Result) (float64, bool) {
	var n float64
	switch v.Type {
	case gjson.Number:
		n = v.Num
	case gjson.String:
		var err error
		if n, err = strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err != nil {
			return 0, false
		}
	case gjson.True:
		n = 1
	case gjson.False:
		n = 0
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// CanonicalCountry maps an ISO 3166 alpha-2, alpha-3 or numeric code to
// its upper-case alpha-2 form.
func CanonicalCountry(s string) (string, error) {
	r, err := language.ParseRegion(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

// foldCountry canonicalizes a stored country code so profile fields compare
// equal to validated purchase countries. Unknown codes are kept upper-cased.
func foldCountry(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return s
	}
	if c, err := CanonicalCountry(s); err == nil {
		return c
	}
	return s
}

func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	case gjson.True:
		return "True"
	case gjson.False:
		return "False"
	default:
		return v.Raw
	}
}

func stringField(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := obj.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
