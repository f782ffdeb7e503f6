package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// purchaseFromArgs builds the purchase body shared by preview and
// authorize. Missing required fields are reported by name.
func purchaseFromArgs(req mcp.CallToolRequest) (map[string]any, error) {
	var missing []string
	merchant := strings.TrimSpace(req.GetString("merchant", ""))
	if merchant == "" {
		missing = append(missing, "merchant")
	}
	amount := req.GetFloat("amount", 0)
	if amount <= 0 {
		missing = append(missing, "amount")
	}
	currency := strings.TrimSpace(req.GetString("currency", ""))
	if currency == "" {
		missing = append(missing, "currency")
	}
	country := strings.TrimSpace(req.GetString("country", ""))
	if country == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing or invalid: %s", strings.Join(missing, ", "))
	}

	p := map[string]any{
		"merchant":    merchant,
		"amount":      amount,
		"currency":    strings.ToUpper(currency),
		"country":     strings.ToUpper(country),
		"channel":     req.GetString("channel", "CNP"),
		"dcc_offered": req.GetBool("dcc_offered", false),
	}
	if v := req.GetString("item_description", ""); v != "" {
		p["item_description"] = v
	}
	if v := req.GetString("shipping_country", ""); v != "" {
		p["shipping_country"] = strings.ToUpper(v)
	}
	return p, nil
}

// HandlePreviewPurchase scores one purchase without persisting it.
func (h *Handlers) HandlePreviewPurchase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := purchaseFromArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Preview(ctx, []map[string]any{p})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to preview purchase: %v", err)), nil
	}

	risks := gjson.GetBytes(raw, "store_risks")
	if !risks.IsArray() || len(risks.Array()) == 0 {
		return mcp.NewToolResultError("Preview returned no result"), nil
	}
	var sb strings.Builder
	sb.WriteString("Preview (nothing was charged):\n")
	writeDecision(&sb, risks.Array()[0])
	if gjson.GetBytes(raw, "degraded").Bool() {
		sb.WriteString("\nNote: traveller profile was unavailable, scored without it.\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleAuthorizePayment runs an authorization.
func (h *Handlers) HandleAuthorizePayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardID := strings.TrimSpace(req.GetString("card_id", ""))
	if cardID == "" {
		return mcp.NewToolResultError("card_id is required"), nil
	}
	p, err := purchaseFromArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Authorize(ctx, cardID, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Authorization failed: %v", err)), nil
	}

	out := gjson.ParseBytes(raw)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s\n", out.Get("status").String())
	if id := out.Get("challenge_id").String(); id != "" {
		fmt.Fprintf(&sb, "Challenge ID: %s (verify with %s)\n", id, out.Get("challenge_method").String())
	}
	card := out.Get("card")
	fmt.Fprintf(&sb, "Card: %s ending %s\n", card.Get("network").String(), card.Get("last4").String())
	writeDecision(&sb, out)
	fmt.Fprintf(&sb, "Attempt: %s\n", out.Get("attempt_id").String())
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleVerifyChallenge answers a challenge.
func (h *Handlers) HandleVerifyChallenge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	challengeID := strings.TrimSpace(req.GetString("challenge_id", ""))
	action := strings.ToUpper(strings.TrimSpace(req.GetString("action", "")))
	if challengeID == "" {
		return mcp.NewToolResultError("challenge_id is required"), nil
	}
	if action != "APPROVE" && action != "DENY" {
		return mcp.NewToolResultError("action must be APPROVE or DENY"), nil
	}

	raw, err := h.client.VerifyChallenge(ctx, challengeID, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Verification failed: %v", err)), nil
	}

	out := gjson.ParseBytes(raw)
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s\n", out.Get("status").String(), out.Get("message").String())), nil
}

// HandleListCards lists the session's cards.
func (h *Handlers) HandleListCards(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListCards(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list cards: %v", err)), nil
	}

	cards := gjson.GetBytes(raw, "cards").Array()
	if len(cards) == 0 {
		return mcp.NewToolResultText("No cards on file."), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d card(s):\n\n", len(cards))
	for i, c := range cards {
		fmt.Fprintf(&sb, "%d. %s %s ending %s (id: %s)",
			i+1, c.Get("nickname").String(), c.Get("network").String(), c.Get("last4").String(), c.Get("id").String())
		if m, y := c.Get("exp_month"), c.Get("exp_year"); m.Exists() && m.Type != gjson.Null && y.Type != gjson.Null {
			fmt.Fprintf(&sb, " exp %02d/%d", m.Int(), y.Int())
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetPersonalization summarises the traveller profile.
func (h *Handlers) HandleGetPersonalization(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.Personalization(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load personalization: %v", err)), nil
	}

	p := gjson.GetBytes(raw, "personalization")
	var sb strings.Builder
	sb.WriteString("Traveller profile:\n")
	fmt.Fprintf(&sb, "  Current country: %s\n", orUnknown(p.Get("current_country").String()))
	if trips := joinStrings(p.Get("trip_countries")); trips != "" {
		fmt.Fprintf(&sb, "  Trip countries: %s\n", trips)
	}
	if lo, hi := p.Get("typical_amount_min"), p.Get("typical_amount_max"); hi.Type == gjson.Number {
		fmt.Fprintf(&sb, "  Typical spend: %g-%g\n", lo.Float(), hi.Float())
	}
	if b := p.Get("daily_budget"); b.Type == gjson.Number {
		fmt.Fprintf(&sb, "  Daily budget: %g\n", b.Float())
	}
	fmt.Fprintf(&sb, "  Preferred verification: %s\n", orUnknown(p.Get("preferred_verification").String()))
	for _, tier := range []string{"high", "med", "low"} {
		if names := joinStrings(p.Get("trusted_" + tier)); names != "" {
			fmt.Fprintf(&sb, "  Trusted (%s): %s\n", strings.ToUpper(tier), names)
		}
	}
	if gjson.GetBytes(raw, "degraded").Bool() {
		sb.WriteString("\nNote: fact store unavailable, profile may be incomplete.\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListPayments lists recent attempts.
func (h *Handlers) HandleListPayments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	raw, err := h.client.ListPayments(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list payments: %v", err)), nil
	}

	payments := gjson.GetBytes(raw, "payments").Array()
	if len(payments) == 0 {
		return mcp.NewToolResultText("No payment attempts yet."), nil
	}
	var sb strings.Builder
	for i, p := range payments {
		fmt.Fprintf(&sb, "%d. %s %g %s at %s: %s (score %d)\n",
			i+1, p.Get("created_at").String(), p.Get("amount").Float(), p.Get("currency").String(),
			p.Get("merchant").String(), p.Get("status").String(), p.Get("risk_score").Int())
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func writeDecision(sb *strings.Builder, r gjson.Result) {
	fmt.Fprintf(sb, "Decision: %s (challenge: %s)\n", r.Get("decision").String(), r.Get("challenge_method").String())
	fmt.Fprintf(sb, "Risk: %d/100 %s, merchant tier %s\n",
		r.Get("risk_score").Int(), r.Get("risk_level").String(), r.Get("merchant_trust_tier").String())
	if reasons := r.Get("reasons").Array(); len(reasons) > 0 {
		sb.WriteString("Reasons:\n")
		for _, reason := range reasons {
			fmt.Fprintf(sb, "  - %s\n", reason.String())
		}
	}
	if msg := r.Get("user_message").String(); msg != "" {
		fmt.Fprintf(sb, "Message: %s\n", msg)
	}
}

func joinStrings(r gjson.Result) string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return strings.Join(out, ", ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
