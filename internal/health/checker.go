// Package health probes the stores boltd depends on.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a system component that can be health-checked.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"`
	CheckResult
}

// Pinger is anything with a connectivity check, e.g. a ledger store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type probe struct {
	name     string
	kind     string
	critical bool
	pinger   Pinger
}

// Checker performs health checks on registered components.
type Checker struct {
	timeout    time.Duration
	maxLatency time.Duration

	mu         sync.RWMutex
	probes     []probe
	components []Component
}

// Config holds health checker configuration.
type Config struct {
	Timeout    time.Duration // per probe, default 2s
	MaxLatency time.Duration // slower probes report degraded, default 100ms
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = 100 * time.Millisecond
	}
	return &Checker{timeout: cfg.Timeout, maxLatency: cfg.MaxLatency}
}

// AddDatabase registers a database probe. A failing database makes the
// overall status unhealthy.
func (c *Checker) AddDatabase(name string, p Pinger) {
	c.add(probe{name: name, kind: "database", critical: true, pinger: p})
}

// Add registers a non-critical probe of the given type.
func (c *Checker) Add(name, kind string, p Pinger) {
	c.add(probe{name: name, kind: kind, pinger: p})
}

func (c *Checker) add(p probe) {
	if p.pinger == nil {
		return
	}
	c.mu.Lock()
	c.probes = append(c.probes, p)
	c.mu.Unlock()
}

// Check runs every probe concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	if c == nil {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	c.mu.RUnlock()

	components := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			components[i] = c.run(ctx, p)
		}(i, p)
	}
	wg.Wait()

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return c.calculateOverallStatus(probes, components)
}

func (c *Checker) run(ctx context.Context, p probe) Component {
	comp := Component{
		Name:        p.name,
		Type:        p.kind,
		CheckResult: CheckResult{Timestamp: time.Now()},
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := p.pinger.Ping(pctx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "unreachable"
	case comp.Latency > c.maxLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("high latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "connected"
	}
	return comp
}

func (c *Checker) calculateOverallStatus(probes []probe, components []Component) HealthStatus {
	overall := StatusHealthy
	criticalUnhealthy := false
	for i, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if probes[i].critical {
				criticalUnhealthy = true
			}
			overall = StatusDegraded
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	if criticalUnhealthy {
		overall = StatusUnhealthy
	}
	return HealthStatus{
		Status:     overall,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// GetLastStatus returns the last health check result without probing.
func (c *Checker) GetLastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.components) == 0 {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return c.calculateOverallStatus(c.probes[:len(c.components)], c.components)
}
