package handler

import (
	"errors"
	"net/http"

	"autotrader-core/internal/backtest"
	"autotrader-core/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RunBacktest godoc
// @Summary      Run a backtest
// @Description  Replays stored bars, or bars supplied in the request, through the technical-only pipeline (default) or the combined pipeline, which uses the live sentiment snapshot
// @Tags         backtest
// @Accept       json
// @Produce      json
// @Param        body  body  service.BacktestRequest  true  "Backtest request"
// @Success      200  {object}  domain.BacktestResult
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/backtest [post]
func (h *Handler) RunBacktest(c *gin.Context) {
	if h.backtests == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-backtest")
	defer span.End()

	req := h.backtests.NewRequest()
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("symbols", len(req.Symbols)))

	result, err := h.backtests.Run(ctx, req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, backtest.ErrNoHistoricalData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoBarSource):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, result)
	}
}
