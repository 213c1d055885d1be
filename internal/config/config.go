package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/trialstream/internal/errors"
	"github.com/vango-dev/trialstream/internal/logging"
	"github.com/vango-dev/trialstream/pkg/server"
	"github.com/vango-dev/trialstream/pkg/store"
)

const (
	// ConfigFileName is the JSON configuration file looked up by Find.
	ConfigFileName = "trialstream.json"

	// TOMLFileName is the TOML alternative to ConfigFileName.
	TOMLFileName = "trialstream.toml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TRIALSTREAM_"

	// DefaultDataDir is where records and arrays go when nothing is set.
	DefaultDataDir = "data"

	// DefaultS3Region is used when the s3 backend has no region.
	DefaultS3Region = "us-east-1"
)

// Storage backends for array artifacts.
const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

// Duration is a time.Duration written as a string ("20s", "1m") in
// config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete trialstream configuration.
type Config struct {
	Server  ServerConfig   `json:"server" toml:"server"`
	Storage StorageConfig  `json:"storage" toml:"storage"`
	Redis   RedisConfig    `json:"redis" toml:"redis"`
	Log     logging.Config `json:"log" toml:"log"`
	Metrics MetricsConfig  `json:"metrics" toml:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig holds the listener and WebSocket session settings.
type ServerConfig struct {
	// Address is the listen address. Default: ":8765".
	Address string `json:"address,omitempty" toml:"address"`

	// Route is the WebSocket path. Default: "/trials".
	Route string `json:"route,omitempty" toml:"route"`

	ReadTimeout       Duration `json:"readTimeout,omitempty" toml:"read_timeout"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty" toml:"write_timeout"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" toml:"heartbeat_interval"`
	ShutdownTimeout   Duration `json:"shutdownTimeout,omitempty" toml:"shutdown_timeout"`

	// MaxMessageSize bounds a single frame in bytes. Default: 64MB.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty" toml:"max_message_size"`

	ReadBufferSize  int `json:"readBufferSize,omitempty" toml:"read_buffer_size"`
	WriteBufferSize int `json:"writeBufferSize,omitempty" toml:"write_buffer_size"`
}

// StorageConfig selects where records and array artifacts are written.
type StorageConfig struct {
	// DataDir holds the JSON lines logs and, for the disk backend, arrays.
	DataDir string `json:"dataDir,omitempty" toml:"data_dir"`

	EventsFile  string `json:"eventsFile,omitempty" toml:"events_file"`
	HeadersFile string `json:"headersFile,omitempty" toml:"headers_file"`

	// Backend is "disk" or "s3". Default: disk.
	Backend string `json:"backend,omitempty" toml:"backend"`

	S3 S3Config `json:"s3" toml:"s3"`
}

// S3Config configures the s3 artifact backend.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" toml:"bucket"`
	Prefix    string `json:"prefix,omitempty" toml:"prefix"`
	Region    string `json:"region,omitempty" toml:"region"`
	Endpoint  string `json:"endpoint,omitempty" toml:"endpoint"`
	PathStyle bool   `json:"pathStyle,omitempty" toml:"path_style"`
}

// RedisConfig configures the optional record mirror. The mirror is off
// unless Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" toml:"addr"`
	Password string `json:"password,omitempty" toml:"password"`
	DB       int    `json:"db,omitempty" toml:"db"`
	Stream   string `json:"stream,omitempty" toml:"stream"`
	MaxLen   int64  `json:"maxLen,omitempty" toml:"max_len"`
}

// Enabled reports whether the mirror should be dialed.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Path    string `json:"path,omitempty" toml:"path"`
}

// New creates a new Config with default values.
func New() *Config {
	sc := server.DefaultServerConfig()
	return &Config{
		Server: ServerConfig{
			Address:           sc.Address,
			Route:             sc.Route,
			ReadTimeout:       Duration(sc.ReadTimeout),
			WriteTimeout:      Duration(sc.WriteTimeout),
			HeartbeatInterval: Duration(sc.HeartbeatInterval),
			ShutdownTimeout:   Duration(sc.ShutdownTimeout),
			MaxMessageSize:    sc.MaxMessageSize,
			ReadBufferSize:    sc.ReadBufferSize,
			WriteBufferSize:   sc.WriteBufferSize,
		},
		Storage: StorageConfig{
			DataDir:     DefaultDataDir,
			EventsFile:  store.DefaultEventsFile,
			HeadersFile: store.DefaultHeadersFile,
			Backend:     BackendDisk,
		},
		Redis: RedisConfig{
			Stream: store.DefaultRedisStream,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: sc.EnableMetrics,
			Path:    sc.MetricsPath,
		},
	}
}

// Find returns the config file in dir, preferring ConfigFileName over
// TOMLFileName, or "" when neither exists.
func Find(dir string) string {
	for _, name := range []string{ConfigFileName, TOMLFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds the effective configuration: defaults, then the file at
// path (if path is not empty), then TRIALSTREAM_* overrides. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := New()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
		cfg.configPath = path
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		if te, ok := err.(*errors.TrialError); ok && path != "" {
			te.WithLocation(path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path on top of the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := cfg.decodeFile(path); err != nil {
		return nil, err
	}
	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return c.decodeJSON(path)
	case ".toml":
		return c.decodeTOML(path)
	}
	return errors.New(errors.CodeConfigFormat).
		WithLocation(path).
		WithSuggestion("Rename the file to trialstream.json or trialstream.toml")
}

func (c *Config) decodeJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.CodeConfigRead).WithLocation(path).Wrap(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return errors.New(errors.CodeConfigUnknownKey).WithLocation(path).Wrap(err)
		}
		return errors.New(errors.CodeConfigParse).
			WithLocation(path).
			WithSuggestion("Check that the file is valid JSON").
			Wrap(err)
	}
	return nil
}

func (c *Config) decodeTOML(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		var perr toml.ParseError
		if stderrors.As(err, &perr) {
			return errors.New(errors.CodeConfigParse).
				WithLocation(path).
				WithSuggestion("Check that the file is valid TOML").
				Wrap(err)
		}
		if os.IsNotExist(err) || stderrors.Is(err, os.ErrPermission) {
			return errors.New(errors.CodeConfigRead).WithLocation(path).Wrap(err)
		}
		return errors.New(errors.CodeConfigParse).WithLocation(path).Wrap(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.CodeConfigUnknownKey).
			WithLocation(path).
			WithKey(undecoded[0].String())
	}
	return nil
}

// ApplyEnv overlays TRIALSTREAM_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, envError(name, v, err))
			return
		}
		*dst = b
	}
	integer := func(name string, dst *int64) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, envError(name, v, err))
			return
		}
		*dst = n
	}

	str("ADDR", &c.Server.Address)
	str("ROUTE", &c.Server.Route)
	integer("MAX_MESSAGE_SIZE", &c.Server.MaxMessageSize)

	str("DATA_DIR", &c.Storage.DataDir)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_PREFIX", &c.Storage.S3.Prefix)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	boolean("S3_PATH_STYLE", &c.Storage.S3.PathStyle)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_STREAM", &c.Redis.Stream)
	db := int64(c.Redis.DB)
	integer("REDIS_DB", &db)
	c.Redis.DB = int(db)
	integer("REDIS_MAX_LEN", &c.Redis.MaxLen)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_PATH", &c.Metrics.Path)

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func envError(name, value string, err error) *errors.TrialError {
	return errors.New(errors.CodeConfigEnv).
		WithKey(EnvPrefix + name).
		WithDetail(fmt.Sprintf("%s%s=%q cannot be parsed.", EnvPrefix, name, value)).
		Wrap(err)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.Route == "" {
		c.Server.Route = d.Server.Route
	}
	if !strings.HasPrefix(c.Server.Route, "/") {
		c.Server.Route = "/" + c.Server.Route
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = d.Storage.DataDir
	}
	if c.Storage.EventsFile == "" {
		c.Storage.EventsFile = d.Storage.EventsFile
	}
	if c.Storage.HeadersFile == "" {
		c.Storage.HeadersFile = d.Storage.HeadersFile
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendDisk
	}
	if c.Storage.Backend == BackendS3 && c.Storage.S3.Region == "" {
		c.Storage.S3.Region = DefaultS3Region
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = d.Redis.Stream
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(key, detail string) *errors.TrialError {
		return errors.New(errors.CodeConfigInvalid).WithKey(key).WithDetail(detail)
	}

	s := c.Server
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.HeartbeatInterval < 0 || s.ShutdownTimeout < 0 {
		return invalid("server", "Timeouts must not be negative.")
	}
	if s.ReadTimeout > 0 && s.HeartbeatInterval >= s.ReadTimeout {
		return invalid("server.heartbeat_interval", "The heartbeat interval must be shorter than the read timeout.").
			WithSuggestion(fmt.Sprintf("Set heartbeat_interval below %s", s.ReadTimeout.Std()))
	}
	if s.MaxMessageSize < 0 || s.ReadBufferSize < 0 || s.WriteBufferSize < 0 {
		return invalid("server", "Sizes must not be negative.")
	}
	if c.Metrics.Enabled && c.Metrics.Path == s.Route {
		return invalid("metrics.path", "The metrics path and the WebSocket route must differ.")
	}

	switch c.Storage.Backend {
	case BackendDisk:
	case BackendS3:
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return errors.New(errors.CodeS3Setup).
				WithKey("storage.s3.bucket").
				WithSuggestion("Set storage.s3.bucket or TRIALSTREAM_S3_BUCKET")
		}
	default:
		return invalid("storage.backend", fmt.Sprintf("Unknown artifact backend %q; use disk or s3.", c.Storage.Backend))
	}
	if c.Storage.EventsFile == c.Storage.HeadersFile {
		return invalid("storage.headers_file", "Events and headers must go to different files.")
	}

	if c.Redis.DB < 0 || c.Redis.MaxLen < 0 {
		return invalid("redis", "Redis db and max_len must not be negative.")
	}

	if err := c.Log.Validate(); err != nil {
		return errors.New(errors.CodeConfigInvalid).WithKey("log").Wrap(err)
	}
	return nil
}

// ServerConfig converts the server and metrics sections to the options
// pkg/server expects.
func (c *Config) ServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig()
	sc.Address = c.Server.Address
	sc.Route = c.Server.Route
	sc.ReadTimeout = c.Server.ReadTimeout.Std()
	sc.WriteTimeout = c.Server.WriteTimeout.Std()
	sc.HeartbeatInterval = c.Server.HeartbeatInterval.Std()
	sc.ShutdownTimeout = c.Server.ShutdownTimeout.Std()
	if c.Server.MaxMessageSize > 0 {
		sc.MaxMessageSize = c.Server.MaxMessageSize
	}
	if c.Server.ReadBufferSize > 0 {
		sc.ReadBufferSize = c.Server.ReadBufferSize
	}
	if c.Server.WriteBufferSize > 0 {
		sc.WriteBufferSize = c.Server.WriteBufferSize
	}
	sc.EnableMetrics = c.Metrics.Enabled
	sc.MetricsPath = c.Metrics.Path
	return sc
}

// SaveTo writes the configuration as indented JSON.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.CodeConfigRead).WithLocation(path).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}
