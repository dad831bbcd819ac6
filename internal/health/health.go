// Package health runs named checks against the managed proxy host and
// reports an aggregate status. It backs the doctor command and the
// /healthz endpoint served next to /metrics.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"grimm.is/portgate/internal/clock"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check is the result of a single health check.
type Check struct {
	Name        string        `json:"name" yaml:"name"`
	Status      Status        `json:"status" yaml:"status"`
	Message     string        `json:"message,omitempty" yaml:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked" yaml:"last_checked"`
	Duration    time.Duration `json:"duration_ms" yaml:"duration_ms"`
}

// Report is the overall health report. Checks are sorted by name.
type Report struct {
	Status    Status    `json:"status" yaml:"status"`
	Checks    []Check   `json:"checks" yaml:"checks"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// CheckFunc performs one check. Name, LastChecked and Duration are filled
// in by the Checker.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks concurrently and caches the report.
type Checker struct {
	mu     sync.Mutex
	checks map[string]CheckFunc
	cache  *Report
	ttl    time.Duration
}

// NewChecker creates a checker whose reports stay fresh for ttl. A zero ttl
// disables caching.
func NewChecker(ttl time.Duration) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		ttl:    ttl,
	}
}

// Register adds a health check, replacing any check with the same name.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Run executes all checks and returns a report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	if c.cache != nil && c.ttl > 0 && clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.Unlock()
		return report
	}
	funcs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		funcs[name] = fn
	}
	c.mu.Unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]Check, 0, len(funcs))
	)
	for name, fn := range funcs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			start := clock.Now()
			check := fn(ctx)
			check.Name = name
			check.LastChecked = start
			check.Duration = clock.Since(start)

			mu.Lock()
			results = append(results, check)
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	overall := StatusHealthy
	for _, check := range results {
		if check.Status.rank() > overall.rank() {
			overall = check.Status
		}
	}

	report := Report{
		Status:    overall,
		Checks:    results,
		Timestamp: clock.Now(),
	}

	c.mu.Lock()
	c.cache = &report
	c.mu.Unlock()
	return report
}

// Handler returns an HTTP handler serving the report as JSON. Unhealthy
// reports answer 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := c.Run(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

func healthy(msg string) Check   { return Check{Status: StatusHealthy, Message: msg} }
func degraded(msg string) Check  { return Check{Status: StatusDegraded, Message: msg} }
func unhealthy(msg string) Check { return Check{Status: StatusUnhealthy, Message: msg} }
