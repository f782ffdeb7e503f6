// Package merchantintel classifies unknown merchants so that category and
// restriction rules can apply to merchants the cardholder never tagged.
package merchantintel

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
)

var ErrUnparseable = errors.New("merchantintel: classifier output is not a usable classification")

// Categories the scorer understands. Anything else is folded to OTHER.
var Categories = []string{"GROCERY", "TRANSIT", "APPAREL", "FURNITURE", "ALCOHOL", "OTHER"}

// SourceClassifier marks merchant facts learned from the classifier.
const SourceClassifier = "classifier"

// Classification describes one merchant.
type Classification struct {
	Merchant    string  `json:"merchant"`
	Category    string  `json:"category"`
	Restricted  bool    `json:"restricted"`
	HomeCountry string  `json:"home_country,omitempty"`
	Confidence  float64 `json:"confidence"`
	Notes       string  `json:"notes,omitempty"`
}

// Classifier classifies a merchant. A nil result with a nil error means
// no classification is available.
type Classifier interface {
	Classify(ctx context.Context, merchant, country, item string) (*Classification, error)
}

// Disabled is the classifier used when no provider is configured.
type Disabled struct{}

func (Disabled) Classify(context.Context, string, string, string) (*Classification, error) {
	return nil, nil
}

// ParseClassification reads the model's JSON answer. A Markdown code fence
// around the object is tolerated; merchant and category are required.
func ParseClassification(text string) (*Classification, error) {
	text = stripFence(strings.TrimSpace(text))
	if !gjson.Valid(text) {
		return nil, ErrUnparseable
	}
	obj := gjson.Parse(text)
	if !obj.IsObject() {
		return nil, ErrUnparseable
	}

	c := &Classification{
		Merchant:    strings.TrimSpace(obj.Get("merchant").String()),
		Category:    normalizeCategory(obj.Get("category").String()),
		Restricted:  obj.Get("restricted").Bool(),
		HomeCountry: strings.ToUpper(strings.TrimSpace(obj.Get("home_country").String())),
		Confidence:  min(max(obj.Get("confidence").Float(), 0), 1),
		Notes:       strings.TrimSpace(obj.Get("notes").String()),
	}
	if c.Merchant == "" || strings.TrimSpace(obj.Get("category").String()) == "" {
		return nil, ErrUnparseable
	}
	return c, nil
}

// Facts converts the classification into profile merchant facts.
func (c *Classification) Facts() personalization.MerchantFacts {
	raw := c.fields()
	return personalization.MerchantFacts{
		Merchant:    c.Merchant,
		Category:    c.Category,
		Restricted:  c.Restricted,
		HomeCountry: c.HomeCountry,
		Source:      SourceClassifier,
		Raw:         raw,
	}
}

// Record renders the TP_MERCHANT_FACTS record persisted to the fact store.
func (c *Classification) Record() string {
	return personalization.MerchantFactsRecordText(c.fields())
}

func (c *Classification) fields() map[string]any {
	m := map[string]any{
		"merchant":   c.Merchant,
		"category":   c.Category,
		"restricted": c.Restricted,
		"confidence": c.Confidence,
		"source":     SourceClassifier,
	}
	if c.HomeCountry != "" {
		m["home_country"] = c.HomeCountry
	}
	if c.Notes != "" {
		m["notes"] = c.Notes
	}
	return m
}

func normalizeCategory(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, c := range Categories {
		if s == c {
			return s
		}
	}
	return "OTHER"
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
