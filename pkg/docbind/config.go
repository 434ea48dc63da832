package docbind

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all configuration options for the docbind engine
type Config struct {
	// CacheMaxSize is the maximum number of templates to cache. 0 disables caching.
	CacheMaxSize int `env:"DOCBIND_CACHE_MAX_SIZE" envDefault:"100"`
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration `env:"DOCBIND_CACHE_TTL" envDefault:"0s"`
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `env:"DOCBIND_LOG_LEVEL" envDefault:"info"`
	// CompanyName is substituted for {{company_name}} before resolution. Empty skips it.
	CompanyName string `env:"DOCBIND_COMPANY_NAME"`
	// PayloadMember is the archive member holding the document body.
	PayloadMember string `env:"DOCBIND_PAYLOAD_MEMBER" envDefault:"word/document.xml"`
	// RenderHeadersFooters also resolves word/headerN.xml and word/footerN.xml.
	RenderHeadersFooters bool `env:"DOCBIND_RENDER_HEADERS_FOOTERS" envDefault:"true"`
	// StrictMode makes Render fail with a *ValidationError on malformed templates
	StrictMode bool `env:"DOCBIND_STRICT_MODE" envDefault:"false"`
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func loadGlobalConfig() {
	configOnce.Do(func() {
		globalConfigMutex.Lock()
		defer globalConfigMutex.Unlock()
		if globalConfig == nil {
			globalConfig = ConfigFromEnvironment()
		}
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:         100,
		CacheTTL:             0,
		LogLevel:             "info",
		PayloadMember:        "word/document.xml",
		RenderHeadersFooters: true,
		StrictMode:           false,
	}
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// LoadConfigFrom reads the configuration from the given variables instead of the
// process environment.
func LoadConfigFrom(environ map[string]string) (*Config, error) {
	config := &Config{}
	if err := env.ParseWithOptions(config, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// ConfigFromEnvironment creates a configuration from environment variables. Invalid
// values fall back to the defaults.
func ConfigFromEnvironment() *Config {
	config, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return config
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.PayloadMember == "" {
		config.PayloadMember = defaults.PayloadMember
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if strings.TrimSpace(c.PayloadMember) == "" {
		return errors.New("payload member cannot be empty")
	}

	return nil
}

// GetGlobalConfig returns a copy of the global configuration
func GetGlobalConfig() *Config {
	loadGlobalConfig()

	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	loadGlobalConfig()

	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Update logger based on new config (outside the lock to avoid deadlock)
	UpdateLoggerFromConfig()
}
