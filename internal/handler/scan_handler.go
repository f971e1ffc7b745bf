package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Scan runs one reconciliation pass and returns its full result
func (h *Handlers) Scan(c *gin.Context) {
	res, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err, "scan payments")
		return
	}

	c.JSON(http.StatusOK, res)
}
