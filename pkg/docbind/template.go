package docbind

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminschreck/go-docbind/pkg/docbind/render"
)

// TemplateData represents the data context for rendering templates.
// It's a map of key-value pairs where values can be strings, numbers,
// booleans, nil, nested maps, slices or time.Time values.
//
// Example:
//
//	data := TemplateData{
//	    "name": "John Doe",
//	    "active": true,
//	    "items": []map[string]interface{}{
//	        {"name": "Item 1", "price": 19.99},
//	        {"name": "Item 2", "price": 29.99},
//	    },
//	}
type TemplateData map[string]interface{}

var errTemplateClosed = errors.New("template is closed")

// PreparedTemplate represents a loaded template ready for rendering.
// Use Prepare() or PrepareFile() to create an instance. Render may be called
// concurrently.
type PreparedTemplate struct {
	docx   *DocxReader
	config *Config
	logger *Logger
	closed bool
	mu     sync.RWMutex
}

// prepare is the internal implementation of template preparation
func prepare(r io.Reader, config *Config, logger *Logger) (*PreparedTemplate, error) {
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(r)
	if err != nil {
		return nil, NewDocumentError("read", "", err)
	}

	docxReader, err := NewDocxReader(bytes.NewReader(buf.Bytes()), size, config.PayloadMember)
	if err != nil {
		return nil, NewDocumentError("parse", "DOCX", err)
	}

	return &PreparedTemplate{
		docx:   docxReader,
		config: config,
		logger: logger,
	}, nil
}

// Render executes the template with the given data and returns a reader
// containing the rendered DOCX file.
//
// Paths that the data does not define render empty. Example:
//
//	reader, err := tmpl.Render(TemplateData{"name": "John Doe"})
//	if err != nil {
//	    log.Fatal(err)
//	}
func (pt *PreparedTemplate) Render(data TemplateData) (io.Reader, error) {
	return pt.RenderContext(context.Background(), data)
}

// RenderContext is Render with a context. Template members are resolved concurrently;
// cancelling ctx abandons the render.
func (pt *PreparedTemplate) RenderContext(ctx context.Context, data TemplateData) (io.Reader, error) {
	if pt == nil {
		return nil, NewTemplateError("invalid or nil template", 0, 0)
	}

	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.closed {
		return nil, NewDocumentError("render", "", errTemplateClosed)
	}

	logger := pt.logger.WithField("render_id", uuid.NewString())
	parts := pt.docx.TemplateParts(pt.config.PayloadMember, pt.config.RenderHeadersFooters)
	logger.Debug("Rendering %d template members", len(parts))

	repaired, err := pt.repairParts(ctx, parts, logger)
	if err != nil {
		return nil, err
	}

	if pt.config.StrictMode {
		var issues []ValidationIssue
		for i, part := range parts {
			issues = append(issues, validatePartText(part, repaired[i])...)
		}
		if err := NewValidationError(issues); err != nil {
			return nil, err
		}
	}

	resolver := NewResolver(logger)
	rendered := make(map[string][]byte, len(parts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = RecoverError(r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			out := resolver.Resolve(repaired[i], data, pt.config.CompanyName)
			mu.Lock()
			rendered[part] = []byte(out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, WithContext(err, "rendering document", map[string]interface{}{"members": len(parts)})
	}

	var buf bytes.Buffer
	if err := pt.docx.WriteTo(&buf, rendered); err != nil {
		return nil, NewDocumentError("write", "DOCX", err)
	}

	logger.Debug("Rendered document (%d bytes)", buf.Len())
	return &buf, nil
}

// repairParts reads each member and rejoins split template tokens. Members the
// scanner cannot read are used as they are.
func (pt *PreparedTemplate) repairParts(ctx context.Context, parts []string, logger *Logger) ([]string, error) {
	repaired := make([]string, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := pt.docx.GetPart(part)
			if err != nil {
				return NewDocumentError("extract", part, err)
			}

			text, err := render.RepairFragmentsWith(string(content), render.DefaultOptions())
			if err != nil {
				logger.Warn("Fragment repair skipped for %s: %v", part, err)
			}
			repaired[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repaired, nil
}

// Validate repairs the template members and reports malformed template syntax.
func (pt *PreparedTemplate) Validate() ([]ValidationIssue, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.closed {
		return nil, NewDocumentError("validate", "", errTemplateClosed)
	}

	parts := pt.docx.TemplateParts(pt.config.PayloadMember, pt.config.RenderHeadersFooters)
	repaired, err := pt.repairParts(context.Background(), parts, pt.logger)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	for i, part := range parts {
		issues = append(issues, validatePartText(part, repaired[i])...)
	}
	numberIssues(issues)
	return issues, nil
}

// References lists the data paths the template members refer to, in document order.
func (pt *PreparedTemplate) References() ([]Reference, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.closed {
		return nil, NewDocumentError("references", "", errTemplateClosed)
	}

	parts := pt.docx.TemplateParts(pt.config.PayloadMember, pt.config.RenderHeadersFooters)
	repaired, err := pt.repairParts(context.Background(), parts, pt.logger)
	if err != nil {
		return nil, err
	}

	var refs []Reference
	for i, part := range parts {
		refs = append(refs, partReferences(part, repaired[i])...)
	}
	return refs, nil
}

// Close releases the template. Further calls to Render fail.
func (pt *PreparedTemplate) Close() error {
	if pt == nil {
		return nil
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.closed {
		return nil
	}
	pt.closed = true
	pt.docx = nil
	return nil
}
