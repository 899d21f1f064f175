package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxBatchSymbols = 100

type batchSignalRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1,max=100,dive,required"`
}

// GetSentiment godoc
// @Summary      Get sentiment for a symbol
// @Description  Returns the aggregated news and social sentiment and the action derived from it
// @Tags         sentiment
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., AAPL)"
// @Success      200  {object}  service.SentimentView
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/sentiment/{symbol} [get]
func (h *Handler) GetSentiment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-sentiment")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	span.SetAttributes(attribute.String("symbol", symbol))

	view, err := h.signals.GetSentiment(ctx, symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "insufficient sentiment data for " + symbol})
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetSignal godoc
// @Summary      Get the combined trading signal for a symbol
// @Description  Runs the technical ensemble and sentiment analysis and reconciles them into one signal
// @Tags         signals
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., AAPL)"
// @Success      200  {object}  domain.TradingSignal
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/signals/{symbol} [get]
func (h *Handler) GetSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signal")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	span.SetAttributes(attribute.String("symbol", symbol))

	sig, err := h.signals.GetSignal(ctx, symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal available for " + symbol})
		return
	}
	c.JSON(http.StatusOK, sig)
}

// GenerateSignals godoc
// @Summary      Generate signals for several symbols
// @Description  Produces combined signals per symbol; failures are reported per symbol without aborting the batch
// @Tags         signals
// @Accept       json
// @Produce      json
// @Param        body  body  batchSignalRequest  true  "Symbols (max 100)"
// @Success      200  {object}  service.SignalBatch
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/signals/batch [post]
func (h *Handler) GenerateSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.generate-signals")
	defer span.End()

	var req batchSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "max_symbols": maxBatchSymbols})
		return
	}
	span.SetAttributes(attribute.Int("symbols", len(req.Symbols)))

	c.JSON(http.StatusOK, h.signals.GenerateSignals(ctx, req.Symbols))
}
