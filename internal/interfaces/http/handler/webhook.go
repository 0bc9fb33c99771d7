package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"github.com/crm/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookProcessor applies one raw tracker delivery
type WebhookProcessor interface {
	HandleDelivery(ctx context.Context, body []byte, deliveryID string) (*appsync.WebhookResult, error)
}

// WebhookHandler receives issue tracker webhooks. The endpoint is unauthenticated.
type WebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Receive handles POST /webhook.
// Any handled event answers 200, no-ops included, so the tracker does not
// retry them. Malformed payloads answer 400 and everything else 500.
//
// Receive godoc
// @ID           receiveTrackerWebhook
// @Summary      Receive a tracker webhook
// @Description  Applies one Jira issue event to the linked CRM entities
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        X-Atlassian-Webhook-Identifier header string false "Delivery ID used for deduplication"
// @Param        event body object true "Jira webhook payload"
// @Success      200 {object} dto.Response{data=appsync.WebhookResult}
// @Failure      400 {object} dto.Response "Malformed webhook payload"
// @Failure      413 {object} dto.Response "Payload too large"
// @Failure      500 {object} dto.Response "Webhook could not be applied"
// @Router       /webhook [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Webhook payload too large")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}

	result, err := h.processor.HandleDelivery(c.Request.Context(), body, c.GetHeader(appsync.DeliveryIDHeader))
	if err != nil {
		if errors.Is(err, worksync.ErrMalformedEvent) {
			logger.GetGinLogger(c).Info("Rejected malformed webhook", zap.Error(err))
			h.Error(c, http.StatusBadRequest, dto.ErrCodeMalformedWebhook, "Malformed webhook payload")
			return
		}
		logger.GetGinLogger(c).Error("Webhook processing failed", zap.Error(err))
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Webhook could not be applied")
		return
	}
	h.Success(c, result)
}
