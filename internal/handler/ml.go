package handler

import (
	"errors"
	"net/http"
	"strings"

	"autotrader-core/internal/ml/training"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type trainRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Kind   string `json:"kind" binding:"required,oneof=logreg gbm"`
}

// TriggerMLTraining godoc
// @Summary      Train a model voter
// @Description  Trains logistic regression or gradient boosting on the symbol's bar history and swaps it into the ensemble when it evaluates well enough
// @Tags         ml
// @Accept       json
// @Produce      json
// @Param        body  body  trainRequest  true  "Symbol and model kind"
// @Success      200  {object}  training.Result
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerMLTraining(c *gin.Context) {
	if h.mlTrainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml training service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-ml-training")
	defer span.End()

	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("kind", req.Kind))

	result, err := h.mlTrainer.Train(ctx, symbol, req.Kind)
	switch {
	case errors.Is(err, training.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, training.ErrNotEnoughSamples):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, result)
	}
}
