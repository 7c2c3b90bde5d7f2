package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type modelLister interface {
	Models() []string
}

// Health godoc
// @Summary      Health check
// @Description  Returns the service status and the forecast tiers in fallback order
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/health [get]
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if ml, ok := h.forecasts.(modelLister); ok {
		body["models"] = ml.Models()
	}
	c.JSON(http.StatusOK, body)
}
