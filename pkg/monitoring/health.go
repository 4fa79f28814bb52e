package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check result
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Service   string        `json:"service"`
	Checks    []HealthCheck `json:"checks"`
}

// HealthChecker interface for health check implementations
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthManager manages health checks
type HealthManager struct {
	serviceName string
	mu          sync.RWMutex
	checkers    []HealthChecker
}

// NewHealthManager creates a new health manager
func NewHealthManager(serviceName string) *HealthManager {
	return &HealthManager{serviceName: serviceName}
}

// Register adds a health checker
func (hm *HealthManager) Register(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers = append(hm.checkers, checker)
}

// Report runs all registered checks
func (hm *HealthManager) Report(ctx context.Context) HealthReport {
	hm.mu.RLock()
	checkers := append([]HealthChecker(nil), hm.checkers...)
	hm.mu.RUnlock()

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Service:   hm.serviceName,
	}

	for _, checker := range checkers {
		start := time.Now()
		err := checker.Check(ctx)
		check := HealthCheck{
			Name:        checker.Name(),
			Status:      HealthStatusHealthy,
			LastChecked: time.Now(),
			Duration:    time.Since(start),
		}
		if err != nil {
			check.Status = HealthStatusUnhealthy
			check.Message = err.Error()
			report.Status = HealthStatusUnhealthy
		}
		report.Checks = append(report.Checks, check)
	}

	return report
}

// Handler returns an HTTP handler serving the health report
func (hm *HealthManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := hm.Report(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status != HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}

// CheckFunc adapts a function to the HealthChecker interface
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name returns the check name
func (c CheckFunc) Name() string { return c.CheckName }

// Check runs the check function
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
