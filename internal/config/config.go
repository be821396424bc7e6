// Package config loads linecheck settings from a JSON file, environment
// overrides and built-in defaults.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	bolt "go.etcd.io/bbolt"
)

// EnvPrefix prefixes every environment override, e.g. LINECHECK_PORT.
const EnvPrefix = "LINECHECK"

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = EnvPrefix + "_CONFIG"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "config.json"

// Match modes accepted in the "match" key.
const (
	MatchExact     = "exact"
	MatchSubstring = "substring"
	MatchContains  = "contains"
	MatchIndexed   = "indexed"
)

// Matches lists every accepted match mode.
var Matches = []string{MatchExact, MatchSubstring, MatchContains, MatchIndexed}

// Config is the complete server configuration.
type Config struct {
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	SSLEnabled bool   `mapstructure:"ssl_enabled" json:"ssl_enabled"`
	CertFile   string `mapstructure:"cert_file" json:"cert_file"`
	KeyFile    string `mapstructure:"key_file" json:"key_file"`

	FilePath      string `mapstructure:"file_path" json:"file_path"`
	MaxPayload    int    `mapstructure:"max_payload" json:"max_payload"`
	RereadOnQuery bool   `mapstructure:"reread_on_query" json:"reread_on_query"`
	Match         string `mapstructure:"match" json:"match"`
	IndexPath     string `mapstructure:"index_path" json:"index_path"`
	WatchTarget   bool   `mapstructure:"watch_target" json:"watch_target"`

	MaxConnections int           `mapstructure:"max_connections" json:"max_connections"`
	PollInterval   time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace" json:"shutdown_grace"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout"`

	StatusPort int `mapstructure:"status_port" json:"status_port"`

	Log LogConfig `mapstructure:"log" json:"log"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           12345,
		CertFile:       "cert.pem",
		KeyFile:        "key.pem",
		FilePath:       "data.txt",
		MaxPayload:     1024,
		Match:          MatchExact,
		MaxConnections: 256,
		PollInterval:   time.Second,
		ShutdownGrace:  5 * time.Second,
		Log:            LogConfig{Level: "info", Format: "human"},
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("ssl_enabled", d.SSLEnabled)
	v.SetDefault("cert_file", d.CertFile)
	v.SetDefault("key_file", d.KeyFile)
	v.SetDefault("file_path", d.FilePath)
	v.SetDefault("max_payload", d.MaxPayload)
	v.SetDefault("reread_on_query", d.RereadOnQuery)
	v.SetDefault("match", d.Match)
	v.SetDefault("index_path", d.IndexPath)
	v.SetDefault("watch_target", d.WatchTarget)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("shutdown_grace", d.ShutdownGrace)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("status_port", d.StatusPort)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration. An explicit path must exist; with an empty
// path config.json is looked up in the working directory and its absence
// yields defaults. Environment overrides apply in both cases. The result is
// validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".json"))
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Match = strings.ToLower(strings.TrimSpace(cfg.Match))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and combinations.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &Error{Field: "port", Message: "must be between 0 and 65535"}
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return &Error{Field: "status_port", Message: "must be between 0 and 65535"}
	}
	if c.FilePath == "" {
		return &Error{Field: "file_path", Message: "must not be empty"}
	}
	if c.MaxPayload <= 0 {
		return &Error{Field: "max_payload", Message: "must be positive"}
	}
	if c.MaxConnections < 0 {
		return &Error{Field: "max_connections", Message: "must not be negative"}
	}
	for field, d := range map[string]time.Duration{
		"poll_interval":  c.PollInterval,
		"shutdown_grace": c.ShutdownGrace,
		"read_timeout":   c.ReadTimeout,
	} {
		if d < 0 {
			return &Error{Field: field, Message: "must not be negative"}
		}
	}

	known := false
	for _, m := range Matches {
		if c.Match == m {
			known = true
			break
		}
	}
	if !known {
		return &Error{Field: "match", Message: fmt.Sprintf("unknown mode %q (want one of %s)", c.Match, strings.Join(Matches, ", "))}
	}
	if c.Match == MatchIndexed && c.RereadOnQuery {
		return &Error{Field: "reread_on_query", Message: "indexed matching always serves a snapshot"}
	}
	if c.Match == MatchIndexed && c.MaxPayload > bolt.MaxKeySize {
		return &Error{Field: "max_payload", Message: fmt.Sprintf("indexed matching stores lines up to %d bytes", bolt.MaxKeySize)}
	}

	if c.SSLEnabled && (c.CertFile == "" || c.KeyFile == "") {
		return &Error{Field: "cert_file", Message: "cert_file and key_file are required when ssl_enabled is set"}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StatusAddr returns the status endpoint address, or "" when disabled.
func (c *Config) StatusAddr() string {
	if c.StatusPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.StatusPort))
}

// ResolvedIndexPath returns where the indexed strategy keeps its database.
func (c *Config) ResolvedIndexPath() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return c.FilePath + ".idx.db"
}

// TLSConfig loads the certificate pair when TLS is enabled. It returns nil
// for plain TCP.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if !c.SSLEnabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate %s: %w", c.CertFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Error represents a configuration error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}
