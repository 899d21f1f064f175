package handler

import (
	"errors"
	"net/http"
	"strings"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type marketDataRequest struct {
	Bars []domain.MarketDataBar `json:"bars" binding:"required,min=1"`
}

type newsRequest struct {
	Items []domain.NewsItem `json:"items" binding:"required,min=1"`
}

type socialRequest struct {
	Posts []domain.SocialMediaPost `json:"posts" binding:"required,min=1"`
}

// IngestMarketData godoc
// @Summary      Ingest OHLCV bars
// @Description  Appends bars to the symbol's history in the ensemble and persists them when a bar store is configured
// @Tags         market-data
// @Accept       json
// @Produce      json
// @Param        symbol  path  string             true  "Ticker symbol (e.g., AAPL)"
// @Param        body    body  marketDataRequest  true  "Bars"
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/market-data/{symbol} [post]
func (h *Handler) IngestMarketData(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.ingest-market-data")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	span.SetAttributes(attribute.String("symbol", symbol))

	var req marketDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.signals.IngestBars(ctx, symbol, req.Bars)
	if errors.Is(err, service.ErrNoValidBars) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"symbol":   symbol,
		"accepted": accepted,
		"rejected": len(req.Bars) - accepted,
	})
}

// IngestNews godoc
// @Summary      Ingest news items
// @Description  Buffers news items for sentiment analysis of every symbol they reference
// @Tags         sentiment
// @Accept       json
// @Produce      json
// @Param        body  body  newsRequest  true  "News items"
// @Success      202  {object}  map[string]int
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/news [post]
func (h *Handler) IngestNews(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.ingest-news")
	defer span.End()

	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted := h.signals.IngestNews(req.Items)
	span.SetAttributes(attribute.Int("accepted", accepted))
	c.JSON(http.StatusAccepted, gin.H{"received": len(req.Items), "accepted": accepted})
}

// IngestSocial godoc
// @Summary      Ingest social media posts
// @Description  Buffers twitter, reddit and stocktwits posts for sentiment analysis
// @Tags         sentiment
// @Accept       json
// @Produce      json
// @Param        body  body  socialRequest  true  "Posts"
// @Success      202  {object}  map[string]int
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/social [post]
func (h *Handler) IngestSocial(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.ingest-social")
	defer span.End()

	var req socialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted := h.signals.IngestSocial(req.Posts)
	span.SetAttributes(attribute.Int("accepted", accepted))
	c.JSON(http.StatusAccepted, gin.H{"received": len(req.Posts), "accepted": accepted})
}
