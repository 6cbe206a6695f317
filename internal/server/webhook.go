package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultMaxBodyBytes = 1 << 20

// @Summary      Payment webhook
// @Description  Receives signed payment provider events
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  paymentdomain.IngestResult
// @Failure      400
// @Router       /webhooks/payments [post]
func (s *Server) PaymentWebhook(c *gin.Context) {
	limit := s.cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if s.cfg.Webhook.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Webhook.Deadline)
		defer cancel()
	}

	result, err := s.paymentSvc.IngestWebhook(ctx, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
