package scheduler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/service/reconcile"
)

// RunOnce runs a payment scan immediately and reports its counts
func RunOnce(s Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.RunOnce(c.Request.Context())
		if errors.Is(err, reconcile.ErrScanInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "scan_in_progress",
				Message: "A payment scan is already running",
				Code:    http.StatusConflict,
			})
			return
		}
		if err != nil {
			logrus.Errorf("Manual scan failed: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "scheduler_error",
				Message: "Failed to run payment scan",
				Code:    http.StatusInternalServerError,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Payment scan completed successfully",
			"result":  Summarize(res),
		})
	}
}
