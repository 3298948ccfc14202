package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/metrics"
	"github.com/watzon/gensched/internal/scheduler"
)

type HealthHandlers struct {
	db       *database.DB
	launcher *scheduler.Launcher
	bus      *events.EventBus
	version  string
}

func NewHealthHandlers(db *database.DB, launcher *scheduler.Launcher, bus *events.EventBus, version string) *HealthHandlers {
	return &HealthHandlers{
		db:       db,
		launcher: launcher,
		bus:      bus,
		version:  version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

const healthCheckTimeout = 5 * time.Second

// Health reports the database and scheduler state. A scheduler that is not
// running degrades the service; an unreachable database makes it unhealthy.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]ComponentHealth)
	overallStatus := HealthStatusHealthy

	dbHealth := h.checkDatabase(ctx)
	components["database"] = dbHealth
	if dbHealth.Status != HealthStatusHealthy {
		overallStatus = HealthStatusUnhealthy
	}

	schedHealth := h.checkScheduler()
	components["scheduler"] = schedHealth
	if schedHealth.Status != HealthStatusHealthy && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	resp := HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	status := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, resp)
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start)

	stats := h.db.Stats()
	metrics.UpdateDBStats(stats.OpenConnections, stats.InUse)

	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: latency.String(),
	}
}

func (h *HealthHandlers) checkScheduler() ComponentHealth {
	if h.launcher == nil || !h.launcher.Running() {
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: "scheduler is not running",
		}
	}
	return ComponentHealth{Status: HealthStatusHealthy}
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]any{
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     m.Alloc,
			MemSys:       m.Sys,
			NumGC:        m.NumGC,
		},
		"uptime": time.Since(startTime).Round(time.Second).String(),
	}

	dbStats := h.db.Stats()
	resp["database"] = map[string]any{
		"open_connections": dbStats.OpenConnections,
		"in_use":           dbStats.InUse,
		"idle":             dbStats.Idle,
		"max_open":         dbStats.MaxOpenConnections,
	}

	if h.launcher != nil {
		resp["scheduler"] = map[string]any{
			"running":     h.launcher.Running(),
			"job_types":   h.launcher.Jobs().Names(),
			"queue_depth": h.launcher.QueueDepth(),
		}
	}

	if h.bus != nil {
		resp["event_streams"] = h.bus.StreamCount()
	}

	JSON(w, http.StatusOK, resp)
}
