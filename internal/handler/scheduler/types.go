package scheduler

import (
	"context"
	"time"

	"payment-mail-reconciler-go/internal/service/reconcile"
)

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (*reconcile.ScanResult, error)
	GetNextRun() time.Time
	GetLastRun() time.Time
	LastResult() (*reconcile.ScanResult, error)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Summary is the count portion of a scan result.
type Summary struct {
	RunID          string `json:"runId"`
	EmailsScanned  int    `json:"emailsScanned"`
	PaymentsParsed int    `json:"paymentsParsed"`
	Created        int    `json:"created"`
	Duplicates     int    `json:"duplicates"`
	Unmatched      int    `json:"unmatched"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
}

// Summarize drops the per-email detail from res.
func Summarize(res *reconcile.ScanResult) *Summary {
	if res == nil {
		return nil
	}
	return &Summary{
		RunID:          res.RunID,
		EmailsScanned:  res.EmailsScanned,
		PaymentsParsed: res.PaymentsParsed,
		Created:        res.Created,
		Duplicates:     res.Duplicates,
		Unmatched:      res.Unmatched,
		Skipped:        res.Skipped,
		Failed:         res.Failed,
	}
}
