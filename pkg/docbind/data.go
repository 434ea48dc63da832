package docbind

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataFormat names the encoding of a data-context file.
type DataFormat string

const (
	FormatJSON DataFormat = "json"
	FormatYAML DataFormat = "yaml"
)

// FormatForPath picks the data format from a file extension. Unknown extensions are
// read as JSON.
func FormatForPath(path string) DataFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadData reads a data context from a JSON or YAML file.
func LoadData(path string) (TemplateData, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("read", path, err)
	}

	data, err := DecodeData(bytes.NewReader(content), FormatForPath(path))
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Source = path
		}
		return nil, err
	}
	return data, nil
}

// DecodeData decodes one document into a data context. The top level must be an
// object; an empty document is an empty context.
func DecodeData(r io.Reader, format DataFormat) (TemplateData, error) {
	data := TemplateData{}

	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			return nil, NewParseError("invalid YAML data", "", 0, err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			position := 0
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				position = int(syntaxErr.Offset)
			}
			return nil, NewParseError("invalid JSON data", "", position, err)
		}
	default:
		return nil, NewParseError(fmt.Sprintf("unsupported data format %q", format), "", 0, nil)
	}

	return data, nil
}
