package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8765" or "localhost:3000").
	// Default: ":8765".
	Address string

	// Route is the WebSocket path.
	// Default: "/trials".
	Route string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 64KB.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: allows all origins. Experiment rigs connect from scripts
	// without an Origin header and authentication is out of scope.
	CheckOrigin func(r *http.Request) bool

	// Timeouts

	// ReadTimeout is the maximum time to wait for a frame or pong.
	// Heartbeat pongs extend it. 0 disables the deadline.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a reply.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between pings. 0 disables pings.
	// Default: 20 seconds.
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming frame. Binary
	// array frames are the largest messages.
	// Default: 64MB.
	MaxMessageSize int64

	// Metrics

	// EnableMetrics exposes Prometheus metrics on MetricsPath.
	// Default: true.
	EnableMetrics bool

	// MetricsPath is the path of the Prometheus endpoint.
	// Default: "/metrics".
	MetricsPath string

	// Registry receives the server's collectors.
	// Default: a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8765",
		Route:             "/trials",
		ReadBufferSize:    64 * 1024,
		WriteBufferSize:   4096,
		CheckOrigin:       AllowAllOrigins,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxMessageSize:    64 << 20,
		EnableMetrics:     true,
		MetricsPath:       "/metrics",
	}
}

// AllowAllOrigins accepts every WebSocket origin.
func AllowAllOrigins(*http.Request) bool {
	return true
}

// applyDefaults fills unset fields from DefaultServerConfig. EnableMetrics
// is left as given.
func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.Route == "" {
		c.Route = defaults.Route
	}
	if !strings.HasPrefix(c.Route, "/") {
		c.Route = "/" + c.Route
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.MetricsPath == "" {
		c.MetricsPath = defaults.MetricsPath
	}
}

// Validate reports configuration that cannot work.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("server: MaxMessageSize must not be negative"))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("server: timeouts must not be negative"))
	}
	if c.ReadTimeout > 0 && c.HeartbeatInterval >= c.ReadTimeout {
		errs = append(errs, errors.New("server: HeartbeatInterval must be shorter than ReadTimeout"))
	}
	if c.EnableMetrics && c.MetricsPath == c.Route {
		errs = append(errs, errors.New("server: MetricsPath and Route must differ"))
	}
	return errors.Join(errs...)
}
