package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	schedulerHandler "payment-mail-reconciler-go/internal/handler/scheduler"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
	"payment-mail-reconciler-go/internal/service/ledger"
	"payment-mail-reconciler-go/internal/service/notice"
	"payment-mail-reconciler-go/internal/service/reconcile"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	store     repository.Store
	ledger    *ledger.Service
	resolver  *notice.Resolver
	scheduler schedulerHandler.Controller
	gatherer  prometheus.Gatherer
	now       func() time.Time
}

// Deps groups the collaborators of Handlers.
type Deps struct {
	Store     repository.Store
	Ledger    *ledger.Service
	Resolver  *notice.Resolver
	Scheduler schedulerHandler.Controller
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewHandlers creates new HTTP handlers
func NewHandlers(d Deps) *Handlers {
	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Handlers{
		store:     d.Store,
		ledger:    d.Ledger,
		resolver:  d.Resolver,
		scheduler: d.Scheduler,
		gatherer:  g,
		now:       time.Now,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/scan", h.Scan)

		tenants := api.Group("/tenants/:id")
		tenants.POST("/notices/resolve", h.ResolveNotices)
		tenants.POST("/charges", h.PostCharge)
		tenants.POST("/payments", h.RecordPayment)
		tenants.GET("/ledger", h.GetLedger)
		tenants.GET("/ledger/export", h.ExportLedger)

		api.POST("/payer-aliases", h.CreatePayerAlias)
		api.GET("/audit-events", h.GetAuditEvents)

		api.POST("/scheduler/start", schedulerHandler.Start(h.scheduler))
		api.POST("/scheduler/stop", schedulerHandler.Stop(h.scheduler))
		api.POST("/scheduler/run-once", schedulerHandler.RunOnce(h.scheduler))
		api.GET("/scheduler/status", schedulerHandler.Status(h.scheduler))
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: h.now(),
		Database:  "ok",
		Scheduler: "stopped",
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil && h.scheduler.IsRunning() {
		response.Scheduler = "running"
		next := h.scheduler.GetNextRun()
		response.NextRun = &next
	}
	if h.scheduler != nil {
		if last := h.scheduler.GetLastRun(); !last.IsZero() {
			response.LastRun = &last
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func tenantID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		abort(c, http.StatusBadRequest, "invalid_id", "Invalid tenant ID")
		return 0, false
	}
	return uint(id), true
}

func abort(c *gin.Context, code int, kind, message string) {
	c.JSON(code, ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    code,
	})
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		abort(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrInvalidAmount), errors.Is(err, model.ErrInvalidPeriod):
		abort(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, model.ErrDuplicatePayment), errors.Is(err, model.ErrDuplicateAlias):
		abort(c, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, reconcile.ErrScanInProgress):
		abort(c, http.StatusConflict, "scan_in_progress", "A payment scan is already running")
	default:
		logrus.Errorf("Failed to %s: %v", what, err)
		abort(c, http.StatusInternalServerError, "internal_error", "Failed to "+what)
	}
}
