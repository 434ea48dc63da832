package docbind

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/benjaminschreck/go-docbind/pkg/docbind/render"
)

// Engine provides the main API for working with templates.
// Use New() or NewWithOptions() to create a new engine instance.
type Engine struct {
	config *Config
	cache  *TemplateCache
	logger *Logger
}

// New creates a new template engine with the global configuration.
func New() *Engine {
	return NewWithOptions()
}

// NewWithConfig creates a new template engine with custom configuration.
func NewWithConfig(config *Config) *Engine {
	return NewWithOptions(WithConfig(config))
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// WithConfig returns an option that sets the engine configuration. Unset fields take
// their defaults.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		e.config = NewConfigWithDefaults(config)
	}
}

// WithCache returns an option that sets the cache size (0 disables caching).
func WithCache(maxSize int) Option {
	return func(e *Engine) {
		e.config.CacheMaxSize = maxSize
	}
}

// WithCompanyName returns an option that fills {{company_name}} before resolution.
func WithCompanyName(name string) Option {
	return func(e *Engine) {
		e.config.CompanyName = name
	}
}

// WithStrictMode returns an option that makes Render reject malformed templates.
func WithStrictMode(strict bool) Option {
	return func(e *Engine) {
		e.config.StrictMode = strict
	}
}

// WithLogger returns an option that sets the engine logger.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewWithOptions creates a new engine with the specified options.
func NewWithOptions(opts ...Option) *Engine {
	engine := &Engine{
		config: GetGlobalConfig(),
		logger: GetLogger(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.cache = NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: engine.config.CacheMaxSize,
		TTL:     engine.config.CacheTTL,
	})
	return engine
}

// PrepareFile loads a template from a file path.
// The template is cached if caching is enabled in the configuration; cached templates
// are owned by the engine and must not be closed by the caller.
func (e *Engine) PrepareFile(path string) (*PreparedTemplate, error) {
	if tmpl, ok := e.cache.Get(path); ok {
		e.logger.Debug("Template cache hit for %s", path)
		return tmpl, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, NewDocumentError("open", path, err)
	}
	defer file.Close()

	tmpl, err := e.Prepare(file)
	if err != nil {
		return nil, err
	}

	e.cache.Set(path, tmpl)
	return tmpl, nil
}

// Prepare loads a template from an io.Reader. The archive is read into memory.
func (e *Engine) Prepare(r io.Reader) (*PreparedTemplate, error) {
	config := *e.config
	return prepare(r, &config, e.logger)
}

// RenderFile renders the template at templatePath with data and writes the result
// to outputPath atomically.
func (e *Engine) RenderFile(ctx context.Context, templatePath string, data TemplateData, outputPath string) error {
	tmpl, err := e.PrepareFile(templatePath)
	if err != nil {
		return err
	}
	if !e.cache.Enabled() {
		defer tmpl.Close()
	}

	output, err := tmpl.RenderContext(ctx, data)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(outputPath, output); err != nil {
		return NewDocumentError("write", outputPath, err)
	}

	e.logger.Info("Rendered %s to %s", templatePath, outputPath)
	return nil
}

// ProcessString resolves a plain-text template against data with the engine's
// company name.
func (e *Engine) ProcessString(text string, data TemplateData) string {
	return NewResolver(e.logger).Resolve(text, data, e.config.CompanyName)
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// SetConfig updates the engine's configuration.
// Templates prepared before the call keep the configuration they were prepared with.
func (e *Engine) SetConfig(config *Config) {
	e.config = NewConfigWithDefaults(config)
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *Logger {
	return e.logger
}

// Invalidate drops the cached template for path so the next PrepareFile reloads it.
func (e *Engine) Invalidate(path string) {
	e.cache.Remove(path)
}

// ClearCache removes all templates from the cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Close releases the cached templates.
func (e *Engine) Close() error {
	return e.cache.Close()
}

// DefaultEngine is the global default engine instance.
// It uses the global configuration.
var DefaultEngine = New()

// Module-level convenience functions that use the default engine.

// PrepareFile loads a template from a file path using the default engine.
func PrepareFile(path string) (*PreparedTemplate, error) {
	return DefaultEngine.PrepareFile(path)
}

// Prepare loads a template from an io.Reader using the default engine.
func Prepare(r io.Reader) (*PreparedTemplate, error) {
	return DefaultEngine.Prepare(r)
}

// ClearCache clears the default engine's template cache.
func ClearCache() {
	DefaultEngine.ClearCache()
}

// RenderDocx renders one DOCX archive with data.
func RenderDocx(input io.Reader, data TemplateData, opts ...Option) (io.Reader, error) {
	engine := NewWithOptions(opts...)
	defer engine.Close()

	tmpl, err := engine.Prepare(input)
	if err != nil {
		return nil, err
	}
	defer tmpl.Close()

	output, err := tmpl.Render(data)
	if err != nil {
		return nil, fmt.Errorf("render docx: %w", err)
	}
	return output, nil
}

// ProcessTemplateString resolves a plain-text template: the company-name pre-pass when
// one is configured, then repeaters, conditionals and placeholders.
func ProcessTemplateString(template string, data TemplateData, opts ...Option) string {
	return NewWithOptions(opts...).ProcessString(template, data)
}

// RepairFragments rejoins template tokens split across runs of WordprocessingML markup.
func RepairFragments(markup string) string {
	return render.RepairFragments(markup)
}
