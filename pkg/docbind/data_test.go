package docbind

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForPath(t *testing.T) {
	tests := map[string]DataFormat{
		"data.json":       FormatJSON,
		"data.yaml":       FormatYAML,
		"DATA.YML":        FormatYAML,
		"data.txt":        FormatJSON,
		"no-extension":    FormatJSON,
		"dir.yaml/x.json": FormatJSON,
	}
	for path, want := range tests {
		assert.Equal(t, want, FormatForPath(path), path)
	}
}

func TestDecodeData(t *testing.T) {
	tests := []struct {
		name   string
		format DataFormat
		input  string
		want   TemplateData
	}{
		{
			name:   "JSON object",
			format: FormatJSON,
			input:  `{"name": "Jane", "items": [{"price": 1.5}], "vip": true}`,
			want: TemplateData{
				"name":  "Jane",
				"items": []interface{}{map[string]interface{}{"price": 1.5}},
				"vip":   true,
			},
		},
		{
			name:   "YAML mapping",
			format: FormatYAML,
			input:  "name: Jane\ncount: 2\ncustomer:\n  city: Berlin\ntags:\n  - a\n  - b\n",
			want: TemplateData{
				"name":     "Jane",
				"count":    2,
				"customer": map[string]interface{}{"city": "Berlin"},
				"tags":     []interface{}{"a", "b"},
			},
		},
		{
			name:   "empty JSON",
			format: FormatJSON,
			input:  "",
			want:   TemplateData{},
		},
		{
			name:   "empty YAML",
			format: FormatYAML,
			input:  "",
			want:   TemplateData{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeData(strings.NewReader(tt.input), tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeDataErrors(t *testing.T) {
	_, err := DecodeData(strings.NewReader(`{"a": }`), FormatJSON)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "invalid JSON data", parseErr.Message)
	assert.Greater(t, parseErr.Position, 0)

	_, err = DecodeData(strings.NewReader(`[1, 2]`), FormatJSON)
	assert.True(t, IsParseError(err))

	_, err = DecodeData(strings.NewReader("name: [unclosed"), FormatYAML)
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "invalid YAML data", parseErr.Message)

	_, err = DecodeData(strings.NewReader("a = 1"), DataFormat("toml"))
	assert.ErrorContains(t, err, `unsupported data format "toml"`)
}

func TestLoadData(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "Jane"}`), 0o644))
	data, err := LoadData(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, TemplateData{"name": "Jane"}, data)

	yamlPath := filepath.Join(dir, "data.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: Jane\n"), 0o644))
	data, err = LoadData(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, TemplateData{"name": "Jane"}, data)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("name: [unclosed"), 0o644))
	_, err = LoadData(badPath)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, badPath, parseErr.Source)
	assert.Contains(t, err.Error(), badPath)

	_, err = LoadData(filepath.Join(dir, "missing.json"))
	assert.True(t, IsDocumentError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
