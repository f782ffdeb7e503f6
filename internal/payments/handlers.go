package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaineelmodi11/KingsHacks/internal/logging"
	"github.com/jaineelmodi11/KingsHacks/internal/pagination"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
	"github.com/jaineelmodi11/KingsHacks/internal/validation"
)

// Handler provides HTTP endpoints for sessions, cards and payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the session and payment routes on r.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.POST("/sessions/:id/chat", h.Chat)
	r.POST("/sessions/:id/travel-mode", h.SetTravelMode)
	r.POST("/sessions/:id/demo/seed-sweden", h.SeedDemo)
	r.GET("/sessions/:id/cards", h.ListCards)
	r.POST("/sessions/:id/cards", h.AddCard)
	r.GET("/sessions/:id/personalization", h.GetPersonalization)
	r.POST("/sessions/:id/purchase/preview", h.PreviewPurchases)
	r.POST("/sessions/:id/payment/authorize", h.Authorize)
	r.POST("/sessions/:id/payment/challenge/verify", h.VerifyChallenge)
	r.GET("/sessions/:id/payments", h.ListPayments)
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /v1/sessions/:id/chat
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("message", req.Message),
		validation.MaxLength("message", req.Message, validation.MaxMessageLength),
	); len(errs) > 0 {
		validationError(c, errs)
		return
	}

	reply, err := h.service.Chat(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// SetTravelMode handles POST /v1/sessions/:id/travel-mode
func (h *Handler) SetTravelMode(c *gin.Context) {
	var req TravelModeRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("current_country", req.CurrentCountry),
		validation.OneOf("preferred_verification", req.PreferredVerification, "PASSKEY", "SMS"),
	); len(errs) > 0 {
		validationError(c, errs)
		return
	}

	mode, err := h.service.SetTravelMode(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "travel_mode": mode})
}

// SeedDemo handles POST /v1/sessions/:id/demo/seed-sweden
func (h *Handler) SeedDemo(c *gin.Context) {
	if err := h.service.SeedDemo(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListCards handles GET /v1/sessions/:id/cards
func (h *Handler) ListCards(c *gin.Context) {
	cards, err := h.service.ListCards(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

// AddCard handles POST /v1/sessions/:id/cards
func (h *Handler) AddCard(c *gin.Context) {
	var req CardRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("network", req.Network),
		validation.Last4("last4", req.Last4),
		validation.IntRange("exp_month", req.ExpMonth, 1, 12),
		validation.MaxLength("nickname", req.Nickname, 200),
	); len(errs) > 0 {
		validationError(c, errs)
		return
	}
	req.Nickname = validation.SanitizeString(req.Nickname, 200)

	card, err := h.service.AddCard(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"card": card})
}

// GetPersonalization handles GET /v1/sessions/:id/personalization
func (h *Handler) GetPersonalization(c *gin.Context) {
	view, err := h.service.Personalization(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type previewRequest struct {
	Purchases []risk.Purchase `json:"purchases"`
}

// PreviewPurchases handles POST /v1/sessions/:id/purchase/preview
func (h *Handler) PreviewPurchases(c *gin.Context) {
	var req previewRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"), req.Purchases)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// cardRef accepts a card id as a JSON string or number.
type cardRef string

func (r *cardRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = cardRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = cardRef(n.String())
	return nil
}

type authorizeRequest struct {
	CardID cardRef `json:"card_id"`
	risk.Purchase
}

// Authorize handles POST /v1/sessions/:id/payment/authorize
func (h *Handler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("card_id", string(req.CardID)),
		validation.Required("merchant", req.Merchant),
		validation.MaxLength("item_description", req.ItemDescription, validation.MaxStringLength),
	); len(errs) > 0 {
		validationError(c, errs)
		return
	}

	out, err := h.service.Authorize(c.Request.Context(), c.Param("id"), string(req.CardID), req.Purchase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Action      string `json:"action"`
}

// VerifyChallenge handles POST /v1/sessions/:id/payment/challenge/verify
func (h *Handler) VerifyChallenge(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("challenge_id", req.ChallengeID),
		validation.Required("action", req.Action),
	); len(errs) > 0 {
		validationError(c, errs)
		return
	}

	v, err := h.service.ResolveChallenge(c.Request.Context(), c.Param("id"), req.ChallengeID, req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListPayments handles GET /v1/sessions/:id/payments
func (h *Handler) ListPayments(c *gin.Context) {
	limit := pagination.Limit(c.Query("limit"))
	attempts, next, more, err := h.service.ListAttempts(c.Request.Context(), c.Param("id"), c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if attempts == nil {
		attempts = []*Attempt{}
	}

	c.JSON(http.StatusOK, gin.H{
		"payments":    attempts,
		"count":       len(attempts),
		"next_cursor": next,
		"has_more":    more,
	})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return false
	}
	return true
}

func validationError(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Session " + c.Param("id") + " not found"})
	case errors.Is(err, ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Card not found for session"})
	case errors.Is(err, ErrChallengeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Challenge not found"})
	case errors.Is(err, risk.ErrInvalidPurchase),
		errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrInvalidCard),
		errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, ErrChallengeResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "Challenge already resolved"})
	case errors.Is(err, ErrUpstream):
		logging.L(c.Request.Context()).Warn("fact store request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "message": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timeout", "message": "Request timed out"})
	default:
		logging.L(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal server error"})
	}
}
