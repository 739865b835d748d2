package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/merchstream/writeback/metric"
)

// Logger interface for client logging
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger routes client logging through the process-wide slog
// logger.
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "natsclient")
}

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithLogger sets a custom logger
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts.
// Use -1 for unlimited.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		if max < -1 {
			return fmt.Errorf("max reconnects must be >= -1, got %d", max)
		}
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait duration between reconnection attempts
func WithReconnectWait(wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait cannot be negative")
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithPingInterval sets the keepalive ping interval
func WithPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval <= 0 {
			return fmt.Errorf("ping interval must be positive")
		}
		c.pingInterval = interval
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets the drain timeout applied during Close
func WithDrainTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("drain timeout must be positive")
		}
		c.drainTimeout = timeout
		return nil
	}
}

// WithCredentials sets username/password authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" || password == "" {
			return fmt.Errorf("username and password must both be set")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}
		c.token = token
		return nil
	}
}

// WithClientName sets the connection name reported to the server
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithCompression enables connection compression
func WithCompression(enabled bool) ClientOption {
	return func(c *Client) error {
		c.compression = enabled
		return nil
	}
}

// WithCircuitBreakerThreshold sets the number of consecutive failures
// before the circuit opens
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1")
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff sets the maximum circuit breaker backoff duration
func WithMaxBackoff(max time.Duration) ClientOption {
	return func(c *Client) error {
		if max <= 0 {
			return fmt.Errorf("max backoff must be positive")
		}
		c.maxBackoff = max
		return nil
	}
}

// WithHealthCheckInterval sets the interval for connection health probes.
// Zero disables monitoring.
func WithHealthCheckInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval < 0 {
			return fmt.Errorf("health check interval cannot be negative")
		}
		c.healthInterval = interval
		return nil
	}
}

// WithMetrics wires the client to a metrics registry so connection state
// and JetStream statistics are exported.
func WithMetrics(registry *metric.Registry) ClientOption {
	return func(c *Client) error {
		metrics, err := newBrokerMetrics(registry)
		if err != nil {
			return fmt.Errorf("initialize broker metrics: %w", err)
		}
		c.metrics = metrics
		return nil
	}
}

// WithMetricsInterval sets the poll interval for JetStream statistics
func WithMetricsInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval < 0 {
			return fmt.Errorf("metrics interval cannot be negative")
		}
		c.metricsInterval = interval
		return nil
	}
}
