package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}

// Health godoc
// @Summary      Health check
// @Description  Reports liveness and which optional runners are wired
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"backtest":    enabled(h.backtests != nil),
		"ml_training": enabled(h.mlTrainer != nil),
	})
}
