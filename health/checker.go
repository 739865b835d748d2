package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/metric"
)

const (
	defaultProbeTimeout   = 5 * time.Second
	defaultUnhealthyAfter = 3
)

// Resource is one pinged dependency: the fast store, the document store,
// or the broker connection. Ping must honor its context deadline.
type Resource struct {
	Name string
	Ping func(ctx context.Context) error
}

// Checker pings every registered resource on a fixed interval and records
// the outcome in a Monitor. One failed probe degrades a resource; probes
// failing consecutively past the threshold mark it unhealthy. A single
// success restores it.
type Checker struct {
	monitor        *Monitor
	interval       time.Duration
	probeTimeout   time.Duration
	unhealthyAfter int
	resources      []Resource
	metrics        *metric.Metrics
	logger         *slog.Logger

	mu          sync.Mutex
	failures    map[string]int
	lastSuccess map[string]time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// CheckerOption configures optional checker collaborators.
type CheckerOption func(*Checker)

// WithMetrics publishes per-resource health gauges.
func WithMetrics(m *metric.Metrics) CheckerOption {
	return func(c *Checker) { c.metrics = m }
}

// WithLogger sets the checker's logger.
func WithLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) { c.logger = logger }
}

// WithProbeTimeout bounds each individual ping.
func WithProbeTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) { c.probeTimeout = timeout }
}

// WithUnhealthyAfter sets how many consecutive failures turn a degraded
// resource unhealthy.
func WithUnhealthyAfter(n int) CheckerOption {
	return func(c *Checker) { c.unhealthyAfter = n }
}

// NewChecker builds a checker probing the given resources every interval.
func NewChecker(monitor *Monitor, interval time.Duration, resources []Resource, opts ...CheckerOption) *Checker {
	c := &Checker{
		monitor:        monitor,
		interval:       interval,
		probeTimeout:   defaultProbeTimeout,
		unhealthyAfter: defaultUnhealthyAfter,
		resources:      resources,
		logger:         slog.Default(),
		failures:       make(map[string]int),
		lastSuccess:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.probeTimeout > c.interval && c.interval > 0 {
		c.probeTimeout = c.interval
	}
	c.logger = c.logger.With("component", "healthchecker")
	return c
}

// Start sweeps every resource once, then keeps sweeping on the interval
// until the context is canceled or Stop is called.
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.WrapValidation(errors.ErrAlreadyStarted, "Checker", "Start", "check state")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)

		c.Sweep(runCtx)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.Sweep(runCtx)
			}
		}
	}()

	c.logger.Info("health checker started",
		"interval", c.interval, "resources", len(c.resources))
	return nil
}

// Stop halts probing and waits for the in-flight sweep to finish. Safe to
// call more than once.
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep probes every resource once and records the results.
func (c *Checker) Sweep(ctx context.Context) {
	for _, resource := range c.resources {
		c.probe(ctx, resource)
	}
}

func (c *Checker) probe(ctx context.Context, resource Resource) {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	start := time.Now()
	err := resource.Ping(probeCtx)
	latency := time.Since(start)

	c.mu.Lock()
	if err != nil {
		c.failures[resource.Name]++
	} else {
		c.failures[resource.Name] = 0
		c.lastSuccess[resource.Name] = time.Now()
	}
	failures := c.failures[resource.Name]
	lastSuccess := c.lastSuccess[resource.Name]
	c.mu.Unlock()

	var status Status
	switch {
	case err == nil:
		status = NewHealthy(resource.Name,
			fmt.Sprintf("ping ok in %s", latency.Round(time.Millisecond)))
	case failures < c.unhealthyAfter:
		status = NewDegraded(resource.Name, sanitizeErrorMessage(err.Error()))
	default:
		status = NewUnhealthy(resource.Name, sanitizeErrorMessage(err.Error()))
	}
	status = status.WithProbe(&Probe{
		Latency:     latency,
		Failures:    failures,
		LastSuccess: lastSuccess,
	})
	c.monitor.Update(resource.Name, status)

	if c.metrics != nil {
		c.metrics.RecordHealthStatus(resource.Name, status.Healthy)
	}
	if err != nil {
		c.logger.Warn("resource probe failed",
			"resource", resource.Name, "failures", failures, "error", err)
	}
}
