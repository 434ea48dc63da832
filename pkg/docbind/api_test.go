package docbind

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplateFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, createTestDocx(t, content), 0o644))
	return path
}

func TestEngineOptions(t *testing.T) {
	logger := newTestLogger()
	engine := NewWithOptions(
		WithConfig(&Config{CacheMaxSize: 5}),
		WithCompanyName("Acme"),
		WithStrictMode(true),
		WithLogger(logger),
	)
	defer engine.Close()

	config := engine.Config()
	assert.Equal(t, 5, config.CacheMaxSize)
	assert.Equal(t, "Acme", config.CompanyName)
	assert.True(t, config.StrictMode)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, DefaultPayloadMember, config.PayloadMember)
	assert.Same(t, logger, engine.Logger())
	assert.True(t, engine.cache.Enabled())

	engine.SetConfig(&Config{CompanyName: "Initech"})
	assert.Equal(t, "Initech", engine.Config().CompanyName)
	assert.Equal(t, DefaultPayloadMember, engine.Config().PayloadMember)

	disabled := NewWithOptions(WithCache(0), WithLogger(logger))
	assert.False(t, disabled.cache.Enabled())

	withConfig := NewWithConfig(&Config{CacheMaxSize: 1, CompanyName: "Globex"})
	assert.Equal(t, "Globex", withConfig.Config().CompanyName)
	assert.NotNil(t, New().Logger())
}

func TestEnginePrepareFileCaching(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplateFile(t, dir, "offer.docx", "{{name}}")

	engine := NewWithOptions(WithConfig(&Config{CacheMaxSize: 10}), WithLogger(newTestLogger()))
	defer engine.Close()

	first, err := engine.PrepareFile(path)
	require.NoError(t, err)
	second, err := engine.PrepareFile(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	engine.Invalidate(path)
	_, err = first.Render(TemplateData{})
	assert.ErrorIs(t, err, errTemplateClosed)

	third, err := engine.PrepareFile(path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	engine.ClearCache()
	assert.Equal(t, 0, engine.cache.Size())

	_, err = engine.PrepareFile(filepath.Join(dir, "missing.docx"))
	assert.True(t, IsDocumentError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEngineRenderFile(t *testing.T) {
	dir := t.TempDir()
	templatePath := writeTemplateFile(t, dir, "letter.docx", "Hello {{uc.name}} from {{company_name}}")
	outputPath := filepath.Join(dir, "out", "letter-jane.docx")
	require.NoError(t, os.MkdirAll(filepath.Dir(outputPath), 0o755))

	for _, cacheSize := range []int{0, 4} {
		engine := NewWithOptions(
			WithConfig(&Config{CacheMaxSize: cacheSize, CompanyName: "Acme"}),
			WithLogger(newTestLogger()),
		)

		err := engine.RenderFile(context.Background(), templatePath, TemplateData{"name": "jane"}, outputPath)
		require.NoError(t, err, "cache size %d", cacheSize)

		file, err := os.Open(outputPath)
		require.NoError(t, err)
		_, contents, _ := readMembers(t, file)
		file.Close()
		assert.Contains(t, contents["word/document.xml"], "<w:t>Hello JANE from Acme</w:t>")

		require.NoError(t, engine.Close())
	}

	engine := NewWithOptions(WithLogger(newTestLogger()))
	err := engine.RenderFile(context.Background(), templatePath, TemplateData{}, filepath.Join(dir, "no-such-dir", "x.docx"))
	assert.True(t, IsDocumentError(err))
}

func TestProcessTemplateString(t *testing.T) {
	got := ProcessTemplateString(
		"{{company_name}}: [[vip]]Dear {{fc.name}}[[end:vip]]",
		TemplateData{"vip": true, "name": "jANE"},
		WithCompanyName("Acme"),
		WithLogger(newTestLogger()),
	)
	assert.Equal(t, "Acme: Dear Jane", got)

	engine := NewWithOptions(WithLogger(newTestLogger()))
	assert.Equal(t, "", engine.ProcessString("{{company_name}}", TemplateData{}))
}

func TestRenderDocx(t *testing.T) {
	output, err := RenderDocx(bytes.NewReader(createTestDocx(t, "{{a}}+{{b}}")), TemplateData{"a": 1, "b": 2.5}, WithLogger(newTestLogger()))
	require.NoError(t, err)

	_, contents, _ := readMembers(t, output)
	assert.Contains(t, contents["word/document.xml"], "<w:t>1+2.5</w:t>")

	_, err = RenderDocx(bytes.NewReader([]byte("x")), TemplateData{}, WithLogger(newTestLogger()))
	assert.True(t, IsDocumentError(err))

	strict := createTestDocx(t, "{{open")
	_, err = RenderDocx(bytes.NewReader(strict), TemplateData{}, WithStrictMode(true), WithLogger(newTestLogger()))
	assert.True(t, IsValidationError(err))
	assert.ErrorContains(t, err, "render docx")
}

func TestPackageLevelAPI(t *testing.T) {
	tmpl, err := Prepare(bytes.NewReader(createTestDocx(t, "{{x}}")))
	require.NoError(t, err)
	defer tmpl.Close()

	_, contents, _ := readMembers(t, mustRender(t, tmpl, TemplateData{"x": "y"}))
	assert.Contains(t, contents["word/document.xml"], "<w:t>y</w:t>")

	path := writeTemplateFile(t, t.TempDir(), "t.docx", "{{x}}")
	_, err = PrepareFile(path)
	require.NoError(t, err)
	ClearCache()

	markup := paragraph(textRun("{{x"), textRun("}}"))
	assert.Equal(t, paragraph("<w:r><w:t>{{x}}</w:t></w:r>"), RepairFragments(markup))
}

func mustRender(t *testing.T, tmpl *PreparedTemplate, data TemplateData) *bytes.Buffer {
	t.Helper()
	output, err := tmpl.Render(data)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(output)
	require.NoError(t, err)
	return &buf
}
