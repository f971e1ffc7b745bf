package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status returns the current scheduler status and the last scan outcome
func Status(s Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := "stopped"
		if s.IsRunning() {
			state = "running"
		}

		resp := gin.H{
			"status":   state,
			"next_run": s.GetNextRun(),
			"last_run": s.GetLastRun(),
		}
		res, err := s.LastResult()
		if res != nil {
			resp["last_result"] = Summarize(res)
		}
		if err != nil {
			resp["last_error"] = err.Error()
		}

		c.JSON(http.StatusOK, resp)
	}
}
