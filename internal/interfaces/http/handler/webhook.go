package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	appidentity "github.com/adamj-ops/everyday-properties/internal/application/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 20

// WebhookVerifier authenticates an identity provider delivery and returns
// its delivery id.
type WebhookVerifier interface {
	Verify(header http.Header, body []byte) (string, error)
}

// WebhookProcessor applies a verified delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, evt appidentity.WebhookEvent) (*appidentity.WebhookResult, error)
}

// WebhookHandler receives identity provider events. It is unauthenticated;
// the signature stands in for the session.
type WebhookHandler struct {
	BaseHandler
	verifier  WebhookVerifier
	processor WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(verifier WebhookVerifier, processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor}
}

// Receive verifies and processes one delivery. Processing failures other than
// malformed input answer 500 so the provider retries.
// POST /webhooks/identity
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		h.BadRequest(c, "Unable to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		h.Error(c, dto.ErrCodeRequestTooLarge, "Webhook payload too large")
		return
	}

	log := logger.GetGinLogger(c)

	deliveryID, err := h.verifier.Verify(c.Request.Header, body)
	if err != nil {
		log.Warn("Rejected webhook delivery", zap.Error(err))
		h.Error(c, dto.ErrCodeInvalidSignature, "Invalid webhook signature")
		return
	}

	var evt appidentity.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "Webhook payload is not valid JSON")
		return
	}
	evt.ID = deliveryID

	result, err := h.processor.Process(c.Request.Context(), evt)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			h.HandleError(c, err)
			return
		}
		log.Error("Webhook processing failed",
			zap.String("delivery_id", deliveryID),
			zap.String("event_type", evt.Type),
			zap.Error(err),
		)
		h.Error(c, dto.ErrCodeInternal, "Webhook processing failed")
		return
	}

	log.Info("Webhook processed",
		zap.String("delivery_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.Bool("processed", result.Processed),
	)
	h.Success(c, result)
}

// RegisterRoutes registers the webhook route
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/identity", h.Receive)
}
