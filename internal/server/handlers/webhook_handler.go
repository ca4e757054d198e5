package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/service/outbound"
	"github.com/mamadbah2/chatrelay/internal/service/webhook"
)

// WebhookService verifies and stores provider callbacks.
type WebhookService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, raw []byte) (string, error)
}

// OutboundService dispatches messages to the provider.
type OutboundService interface {
	Send(ctx context.Context, msg models.OutboundMessage) (*outbound.Result, error)
}

// WebhookHandler handles inbound and outbound WhatsApp HTTP events.
type WebhookHandler struct {
	webhooks WebhookService
	outbound OutboundService
	logger   *zap.Logger
}

// NewWebhookHandler constructs the HTTP handler adapter.
func NewWebhookHandler(webhooks WebhookService, outbound OutboundService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{webhooks: webhooks, outbound: outbound, logger: logger}
}

// Verify responds to Meta's webhook verification challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	resp, err := h.webhooks.VerifyWebhookToken(mode, token, challenge)
	if err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, resp)
}

// Receive stores webhook POST callbacks from Meta in the event log.
func (h *WebhookHandler) Receive(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("failed reading webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	id, err := h.webhooks.HandleWebhook(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidPayload):
			h.logger.Warn("invalid webhook payload", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, webhook.ErrEmptyPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed storing webhook", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// SendMessage dispatches an outbound message on behalf of a chatbot.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid outbound payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.outbound.Send(c.Request.Context(), req)
	if err != nil {
		status, body := errorResponse(err)
		h.logger.Error("failed sending outbound", zap.Int("status", status), zap.Error(err))
		c.JSON(status, body)
		return
	}

	if !result.Dispatched {
		c.JSON(http.StatusNotFound, gin.H{"error": result.Reason})
		return
	}

	c.JSON(http.StatusAccepted, result.Response)
}

func errorResponse(err error) (int, gin.H) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError, gin.H{"error": "unable to send message"}
	}

	status := rich.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": err.Error(), "code": rich.TextCode}
	if fields := rich.AllValidationErrors(); len(fields) > 0 {
		body["fields"] = fields
	}
	return status, body
}
