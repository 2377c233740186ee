package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"shopmirror/internal/core/apperror"
	appctx "shopmirror/internal/core/context"
	"shopmirror/internal/sync/webhook"
)

// Platform delivery headers.
const (
	HeaderTopic      = "X-Platform-Topic"
	HeaderSignature  = "X-Platform-Hmac-SHA256"
	HeaderDeliveryID = "X-Platform-Delivery-ID"
)

// WebhookHandler receives platform change notifications.
type WebhookHandler struct {
	*BaseHandler
	gateway *webhook.Gateway
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(base *BaseHandler, gateway *webhook.Gateway) *WebhookHandler {
	return &WebhookHandler{BaseHandler: base, gateway: gateway}
}

// RegisterRoutes attaches the webhook endpoint to the group.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/platform", h.Receive)
}

// Receive handles POST /webhooks/platform. An invalid signature is the only
// non-2xx outcome; everything after verification is acknowledged so the
// platform stops redelivering.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Error(c, apperror.NewValidation("unreadable body"))
		return
	}

	// Audit entries for this delivery correlate on the platform's id.
	ctx := c.Request.Context()
	if deliveryID := c.GetHeader(HeaderDeliveryID); deliveryID != "" {
		ctx = appctx.WithRequestID(ctx, deliveryID)
	}

	ack, err := h.gateway.Receive(
		ctx,
		c.GetHeader(HeaderTopic),
		c.GetHeader(HeaderSignature),
		c.GetHeader(HeaderDeliveryID),
		body,
	)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ack)
}
