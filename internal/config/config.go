// Package config loads the launchr TOML configuration through viper.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/launchr/internal/bus"
	"github.com/loykin/launchr/internal/env"
	"github.com/loykin/launchr/internal/health"
	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/orchestrator"
)

// EnvPrefix namespaces environment overrides: LAUNCHR_MQTT_HOST sets mqtt.host.
const EnvPrefix = "LAUNCHR"

// Error reports a configuration or manifest that cannot be used. Startup
// treats it as fatal.
type Error struct {
	Path string
	Op   string // read, decode, validate, env_file, manifest
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	// Path is the file the config was read from, empty for defaults only.
	Path string `mapstructure:"-"`

	Manifest     string        `mapstructure:"manifest"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	Env          []string      `mapstructure:"env"`
	EnvFiles     []string      `mapstructure:"env_files"`
	UseOSEnv     bool          `mapstructure:"use_os_env"`

	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Topics      TopicsConfig      `mapstructure:"topics"`
	HealthCheck HealthCheckConfig `mapstructure:"healthcheck"`
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

type MQTTConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
}

type TopicsConfig struct {
	Intent string `mapstructure:"intent"`
	State  string `mapstructure:"state"`
}

type HealthCheckConfig struct {
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ResourceInterval time.Duration `mapstructure:"resource_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	Timestamps bool   `mapstructure:"timestamps"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manifest", "manifest.json")
	v.SetDefault("poll_interval", "500ms")
	v.SetDefault("stop_timeout", "3s")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("use_os_env", true)

	v.SetDefault("mqtt.host", "127.0.0.1")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "orchestrator")

	v.SetDefault("topics.intent", bus.DefaultIntentTopic)
	v.SetDefault("topics.state", bus.DefaultStateTopic)

	v.SetDefault("healthcheck.default_timeout", "5s")
	v.SetDefault("healthcheck.default_interval", "200ms")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8090")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.resource_interval", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Load reads path (TOML) over the built-in defaults, then applies
// LAUNCHR_* environment overrides. An empty path loads defaults only.
// Relative manifest and env_files paths resolve against the config's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Path: path, Op: "read", Err: err}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &Error{Path: path, Op: "decode", Err: err}
	}
	c.Path = path

	if path != "" {
		dir := filepath.Dir(path)
		c.Manifest = resolve(dir, c.Manifest)
		for i, f := range c.EnvFiles {
			c.EnvFiles[i] = resolve(dir, f)
		}
	}
	if err := c.validate(); err != nil {
		return nil, &Error{Path: path, Op: "validate", Err: err}
	}
	return &c, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (c *Config) validate() error {
	var errs []error
	if c.Manifest == "" {
		errs = append(errs, errors.New("manifest path is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout))
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port))
	}
	if c.Topics.Intent == "" || c.Topics.State == "" {
		errs = append(errs, errors.New("topics.intent and topics.state are required"))
	}
	if c.HealthCheck.DefaultTimeout <= 0 || c.HealthCheck.DefaultInterval <= 0 {
		errs = append(errs, errors.New("healthcheck defaults must be positive"))
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required when the server is enabled"))
	}
	switch logger.Level(strings.ToLower(c.Log.Level)) {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, "warning", logger.LevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch logger.Format(strings.ToLower(c.Log.Format)) {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoggerConfig layers the [log] section over logger.DefaultConfig. Empty
// level and format keep the defaults.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	if c.Log.Level != "" {
		lc.Slog.Level = logger.ParseLevel(c.Log.Level)
	}
	if c.Log.Format != "" {
		lc.Slog.Format = logger.Format(strings.ToLower(c.Log.Format))
	}
	lc.Slog.Color = c.Log.Color
	lc.Slog.TimeStamps = c.Log.Timestamps
	lc.File = logger.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
	return lc
}

func (c *Config) HealthDefaults() health.Defaults {
	return health.Defaults{Timeout: c.HealthCheck.DefaultTimeout, Interval: c.HealthCheck.DefaultInterval}
}

func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{PollInterval: c.PollInterval, StopTimeout: c.StopTimeout}
}

func (c *Config) BusConfig() bus.MQTTConfig {
	return bus.MQTTConfig{
		Host:     c.MQTT.Host,
		Port:     c.MQTT.Port,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		ClientID: c.MQTT.ClientID,
	}
}

// GlobalEnv returns the variables shared by every game: env_files in order,
// then the top-level env list. Later entries win.
func (c *Config) GlobalEnv() ([]string, error) {
	var out []string
	for _, f := range c.EnvFiles {
		pairs, err := LoadEnvFile(f)
		if err != nil {
			return nil, &Error{Path: f, Op: "env_file", Err: err}
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// NewEnv builds the environment composer for spawned games.
func (c *Config) NewEnv() (*env.Env, error) {
	globals, err := c.GlobalEnv()
	if err != nil {
		return nil, err
	}
	e := env.New()
	if c.UseOSEnv {
		e.FromOS()
	} else {
		e.SetBase(nil)
	}
	e.SetGlobal(globals)
	return e, nil
}

// LoadManifest reads the configured manifest. Failures are *Error.
func (c *Config) LoadManifest() (*manifest.Manifest, error) {
	m, err := manifest.Load(c.Manifest)
	if err != nil {
		return nil, &Error{Path: c.Manifest, Op: "manifest", Err: err}
	}
	return m, nil
}

// LoadEnvFile parses a .env file of KEY=VALUE lines, keeping file order.
// Blank lines, # comments and a leading "export " are ignored.
func LoadEnvFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		out = append(out, k+"="+v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
