package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the TravelProof MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

func purchaseParams(extra ...mcp.ToolOption) []mcp.ToolOption {
	return append(extra,
		mcp.WithString("merchant",
			mcp.Required(),
			mcp.Description("Merchant name as it appears on the terminal or checkout page (e.g. 'IKEA')")),
		mcp.WithNumber("amount",
			mcp.Required(),
			mcp.Description("Purchase amount in the transaction currency, must be positive")),
		mcp.WithString("currency",
			mcp.Required(),
			mcp.Description("ISO-4217 currency code (e.g. 'SEK', 'EUR')")),
		mcp.WithString("country",
			mcp.Required(),
			mcp.Description("Merchant country, ISO-3166 alpha-2 (e.g. 'SE')")),
		mcp.WithString("channel",
			mcp.Description("CNP for online/card-not-present, CARD_PRESENT for in-store. Defaults to CNP."),
			mcp.Enum("CNP", "CARD_PRESENT")),
		mcp.WithBoolean("dcc_offered",
			mcp.Description("Whether the merchant offered dynamic currency conversion")),
		mcp.WithString("item_description",
			mcp.Description("What is being bought. Gift cards and age-restricted items raise risk.")),
		mcp.WithString("shipping_country",
			mcp.Description("Shipping destination country for online orders, if any")),
	)
}

var ToolPreviewPurchase = mcp.NewTool("preview_purchase",
	purchaseParams(mcp.WithDescription(
		"Score a purchase against the cardholder's travel profile without charging anything. "+
			"Returns the decision (APPROVE or CHALLENGE), risk score 0-100, merchant trust tier and reasons. "+
			"Use this to warn the traveller before they pay."))...,
)

var ToolAuthorizePayment = mcp.NewTool("authorize_payment",
	purchaseParams(
		mcp.WithDescription(
			"Authorize a card payment. Returns APPROVED, or CHALLENGE_REQUIRED with a challenge_id "+
				"and the PASSKEY verification method. A challenge must be answered with verify_challenge."),
		mcp.WithString("card_id",
			mcp.Required(),
			mcp.Description("Card id from list_cards")),
	)...,
)

var ToolVerifyChallenge = mcp.NewTool("verify_challenge",
	mcp.WithDescription(
		"Answer a step-up challenge issued by authorize_payment. "+
			"APPROVE completes the payment, DENY declines it. Only use APPROVE when the cardholder confirmed."),
	mcp.WithString("challenge_id",
		mcp.Required(),
		mcp.Description("The challenge_id returned by authorize_payment")),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("APPROVE or DENY"),
		mcp.Enum("APPROVE", "DENY")),
)

var ToolListCards = mcp.NewTool("list_cards",
	mcp.WithDescription("List the cardholder's registered cards (display-safe: network and last four digits only)."),
)

var ToolGetPersonalization = mcp.NewTool("get_personalization",
	mcp.WithDescription(
		"Show what TravelProof has learned about the traveller: current country, trip countries, "+
			"typical spend, trusted merchants by tier and preferred verification method."),
)

var ToolListPayments = mcp.NewTool("list_payments",
	mcp.WithDescription("List recent payment attempts for the session, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of attempts to return (default 10)")),
)
