package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/service/reconcile"
)

// Scanner runs one reconciliation pass.
type Scanner interface {
	ScanAndCreatePayments(ctx context.Context) (*reconcile.ScanResult, error)
}

// Scheduler triggers payment scans on a fixed interval
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	interval  int
	scanner   Scanner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	lastResult *reconcile.ScanResult
	lastErr    error
	lastRun    time.Time
}

// NewScheduler creates a scheduler running every intervalMinutes.
func NewScheduler(intervalMinutes int, scanner Scanner) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	return &Scheduler{interval: intervalMinutes, scanner: scanner}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithSeconds())

	// Any minute count, including an hour or more.
	schedule := fmt.Sprintf("@every %dm", s.interval)
	entryID, err := s.cron.AddFunc(schedule, s.scheduledScan)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.interval)
	return nil
}

// Stop stops the scheduler and cancels an in-flight scan
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, c := s.cancel, s.cron
	s.mu.Unlock()

	cancel()
	ctx := c.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) scheduledScan() {
	s.mu.RLock()
	ctx := s.ctx
	running := s.isRunning
	s.mu.RUnlock()
	if !running {
		logrus.Info("Scheduler not running, skipping scan")
		return
	}

	if _, err := s.scan(ctx); err != nil && !errors.Is(err, reconcile.ErrScanInProgress) {
		logrus.Errorf("Scheduled scan failed: %v", err)
	}
}

func (s *Scheduler) scan(ctx context.Context) (*reconcile.ScanResult, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	res, err := s.scanner.ScanAndCreatePayments(ctx)
	if errors.Is(err, reconcile.ErrScanInProgress) {
		logrus.Info("Scan already in progress, skipping")
		return nil, err
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult, s.lastErr = res, err
	s.mu.Unlock()
	return res, err
}

// RunOnce runs a scan immediately (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) (*reconcile.ScanResult, error) {
	logrus.Info("Running payment scan once")
	return s.scan(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns when the last scan finished
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// LastResult returns the most recent scan result and error.
func (s *Scheduler) LastResult() (*reconcile.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastErr
}

// Wait waits for in-flight scans to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
