// Package config loads the canonsig service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Defaults applied by Parse.
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config is the top-level service configuration.
type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Keys    Keys    `yaml:"keys"`
	Signing Signing `yaml:"signing"`
	Log     Log     `yaml:"log"`
}

// HTTP configures the HTTP listener.
type HTTP struct {
	Addr            string        `yaml:"addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxConnections  int           `yaml:"max_connections"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	AllowRotate     bool          `yaml:"allow_rotate"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPC configures the gRPC listener. An empty Addr disables it.
type GRPC struct {
	Addr        string `yaml:"addr"`
	MaxMsgBytes int    `yaml:"max_msg_bytes"`
}

// Keys selects where the signing key lives. An empty Dir keeps the key in
// memory only, so a new key is generated on every start.
type Keys struct {
	Dir  string `yaml:"dir"`
	Bits int    `yaml:"bits"`
}

// Signing selects the algorithms used for new envelopes.
type Signing struct {
	HashAlgorithm   string `yaml:"hash_algorithm"`
	SignatureScheme string `yaml:"signature_scheme"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result. Unknown
// keys are rejected. Empty input yields the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}

	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Keys.Bits == 0 {
		c.Keys.Bits = keys.DefaultKeyBits
	}

	if c.Signing.HashAlgorithm == "" {
		c.Signing.HashAlgorithm = string(hashing.Default)
	}

	if c.Signing.SignatureScheme == "" {
		c.Signing.SignatureScheme = string(signature.Default)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := validateAddr("http.addr", c.HTTP.Addr); err != nil {
		return err
	}

	if c.GRPC.Addr != "" {
		if err := validateAddr("grpc.addr", c.GRPC.Addr); err != nil {
			return err
		}
	}

	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: http.max_body_bytes must not be negative", ErrInvalidConfig)
	}

	if c.HTTP.MaxConnections < 0 {
		return fmt.Errorf("%w: http.max_connections must not be negative", ErrInvalidConfig)
	}

	if c.HTTP.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: http.shutdown_timeout must not be negative", ErrInvalidConfig)
	}

	if c.GRPC.MaxMsgBytes < 0 {
		return fmt.Errorf("%w: grpc.max_msg_bytes must not be negative", ErrInvalidConfig)
	}

	if c.Keys.Bits < keys.MinKeyBits || c.Keys.Bits > keys.MaxKeyBits || c.Keys.Bits%8 != 0 {
		return fmt.Errorf("%w: keys.bits must be a multiple of 8 between %d and %d",
			ErrInvalidConfig, keys.MinKeyBits, keys.MaxKeyBits)
	}

	if _, err := hashing.Parse(c.Signing.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: signing.hash_algorithm: %w", ErrInvalidConfig, err)
	}

	if _, err := signature.ParseScheme(c.Signing.SignatureScheme); err != nil {
		return fmt.Errorf("%w: signing.signature_scheme: %w", ErrInvalidConfig, err)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

func validateAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field, err)
	}

	return nil
}

// Store returns the key store selected by Dir.
func (k Keys) Store() (keys.Store, error) {
	if k.Dir == "" {
		return keys.NewMemoryStore(), nil
	}

	return keys.NewFileStore(k.Dir)
}
