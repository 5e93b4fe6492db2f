package health

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	maxGoroutines  = 10000
	maxDBLatency   = 100 * time.Millisecond
	probeTimeout   = 2 * time.Second
)

// HealthStatus represents the overall health of the application
type HealthStatus struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Version   string                     `json:"version"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Duration  int64                      `json:"duration_ms"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool        `json:"healthy"`
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SystemMetrics captures current system metrics
type SystemMetrics struct {
	MemoryUsageMB  uint64 `json:"memory_usage_mb"`
	GoroutineCount int    `json:"goroutine_count"`
	CPUNumCores    int    `json:"cpu_num_cores"`
	Uptime         int64  `json:"uptime_seconds"`
}

// Probe reports the health of one named component.
type Probe func(ctx context.Context) ComponentHealth

// HealthChecker provides health check functionality
type HealthChecker struct {
	db        *gorm.DB
	version   string
	startTime time.Time

	mu              sync.RWMutex
	probes          map[string]Probe
	lastCheckStatus string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *gorm.DB, version string) *HealthChecker {
	return &HealthChecker{
		db:        db,
		version:   version,
		startTime: time.Now(),
		probes:    make(map[string]Probe),
	}
}

// AddProbe registers an extra component check.
func (hc *HealthChecker) AddProbe(name string, p Probe) {
	hc.mu.Lock()
	hc.probes[name] = p
	hc.mu.Unlock()
}

// Check performs a complete health check
func (hc *HealthChecker) Check(ctx context.Context) HealthStatus {
	start := time.Now()
	status := HealthStatus{
		Timestamp: start,
		Version:   hc.version,
		Checks:    make(map[string]ComponentHealth),
	}

	status.Checks["database"] = hc.checkDatabase(ctx)

	goroutines := runtime.NumGoroutine()
	status.Checks["goroutines"] = ComponentHealth{
		Healthy: goroutines < maxGoroutines,
		Details: map[string]int{"count": goroutines},
	}

	hc.mu.RLock()
	names := make([]string, 0, len(hc.probes))
	for name := range hc.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(hc.probes))
	for k, v := range hc.probes {
		probes[k] = v
	}
	hc.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		status.Checks[name] = probes[name](pctx)
		cancel()
	}

	status.Status = StatusHealthy
	for _, c := range status.Checks {
		if !c.Healthy {
			status.Status = StatusDegraded
			break
		}
	}
	status.Duration = time.Since(start).Milliseconds()

	hc.mu.Lock()
	hc.lastCheckStatus = status.Status
	hc.mu.Unlock()

	return status
}

// checkDatabase verifies database connectivity and latency
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentHealth {
	if hc.db == nil {
		return ComponentHealth{Healthy: false, Error: "database not initialized"}
	}

	sqlDB, err := hc.db.DB()
	if err != nil {
		return ComponentHealth{Healthy: false, Error: fmt.Sprintf("failed to get database connection: %v", err)}
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pctx); err != nil {
		return ComponentHealth{Healthy: false, Error: fmt.Sprintf("database ping failed: %v", err)}
	}
	latency := time.Since(start)

	return ComponentHealth{
		Healthy: true,
		Details: map[string]interface{}{
			"latency_ms": latency.Milliseconds(),
			"latency_ok": latency < maxDBLatency,
		},
	}
}

// IsHealthy returns true if the last check was healthy
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.lastCheckStatus == StatusHealthy
}

// IsReady returns true if system is ready to serve traffic
func (hc *HealthChecker) IsReady(ctx context.Context) bool {
	return hc.checkDatabase(ctx).Healthy
}

// IsAlive returns true if system is running
func (hc *HealthChecker) IsAlive() bool {
	return true
}

// GetMetrics returns current system metrics
func (hc *HealthChecker) GetMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsageMB:  m.Alloc / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
		CPUNumCores:    runtime.NumCPU(),
		Uptime:         int64(time.Since(hc.startTime).Seconds()),
	}
}
