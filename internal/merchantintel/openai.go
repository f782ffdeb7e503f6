package merchantintel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when OPENAI_MODEL is unset.
const DefaultModel = "gpt-4o-mini"

const promptTemplate = `You are a fraud-risk enrichment assistant for a DEMO issuer.
Given a merchant name and an item description, classify the merchant category and whether it's restricted.

Return ONLY valid JSON with keys:
merchant, category, restricted, home_country, confidence, notes

Merchant: %s
Country: %s
Item: %s

Category must be one of: GROCERY, TRANSIT, APPAREL, FURNITURE, ALCOHOL, OTHER
restricted: true if alcohol/age-restricted/regulatory purchase type
confidence: float 0..1`

// OpenAIClassifier classifies merchants with the OpenAI Responses API.
type OpenAIClassifier struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAI creates a classifier. Extra request options (base URL, HTTP
// client) are passed through to the SDK.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAIClassifier {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}, opts...)
	return &OpenAIClassifier{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: 20 * time.Second,
		logger:  slog.Default(),
	}
}

// WithTimeout bounds each classification call.
func (c *OpenAIClassifier) WithTimeout(d time.Duration) *OpenAIClassifier {
	c.timeout = d
	return c
}

// WithLogger sets the logger.
func (c *OpenAIClassifier) WithLogger(l *slog.Logger) *OpenAIClassifier {
	c.logger = l
	return c
}

// Classify asks the model for a classification. An answer that is not a
// usable classification yields (nil, nil), same as an absent classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, merchant, country, item string) (*Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate, strings.TrimSpace(merchant), strings.TrimSpace(country), strings.TrimSpace(item))
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	})
	if err != nil {
		return nil, fmt.Errorf("merchantintel: classify %q: %w", merchant, err)
	}

	cls, err := ParseClassification(resp.OutputText())
	if err != nil {
		c.logger.Debug("classifier returned unusable output", "merchant", merchant, "model", c.model)
		return nil, nil
	}
	return cls, nil
}

var (
	_ Classifier = (*OpenAIClassifier)(nil)
	_ Classifier = Disabled{}
)
