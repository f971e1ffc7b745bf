package scheduler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ToggleResponse reports the scheduler state after an enable or disable.
type ToggleResponse struct {
	Running bool   `json:"running"`
	NextRun string `json:"next_run,omitempty"`
	Message string `json:"message"`
}

// Start enables periodic payment scans.
func Start(s Controller) gin.HandlerFunc {
	return toggle(s, s.Start, "Periodic payment scans enabled")
}

// Stop disables periodic payment scans. A scan already in flight is
// cancelled.
func Stop(s Controller) gin.HandlerFunc {
	return toggle(s, s.Stop, "Periodic payment scans disabled")
}

func toggle(s Controller, apply func() error, done string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := apply(); err != nil {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "scheduler_state_conflict",
				Message: err.Error(),
				Code:    http.StatusConflict,
			})
			return
		}

		resp := ToggleResponse{Running: s.IsRunning(), Message: done}
		if next := s.GetNextRun(); !next.IsZero() {
			resp.NextRun = next.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, resp)
	}
}
