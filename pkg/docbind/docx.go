package docbind

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
)

// DefaultPayloadMember is the archive member holding the document body.
const DefaultPayloadMember = "word/document.xml"

var (
	headerPartPattern = regexp.MustCompile(`^word/header(\d+)\.xml$`)
	footerPartPattern = regexp.MustCompile(`^word/footer(\d+)\.xml$`)
)

// DocxReader handles reading the members of a DOCX package
type DocxReader struct {
	reader *zip.Reader
	Parts  map[string]*zip.File
}

// NewDocxReader opens a DOCX package and checks that it contains payload. An empty
// payload means DefaultPayloadMember.
func NewDocxReader(r io.ReaderAt, size int64, payload string) (*DocxReader, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip file: %w", err)
	}

	dr := &DocxReader{
		reader: zipReader,
		Parts:  make(map[string]*zip.File),
	}

	// Index all parts by name
	for _, file := range zipReader.File {
		dr.Parts[file.Name] = file
	}

	if payload == "" {
		payload = DefaultPayloadMember
	}
	if _, ok := dr.Parts[payload]; !ok {
		return nil, fmt.Errorf("not a valid DOCX file: missing %s", payload)
	}

	return dr, nil
}

// DocxReaderFromFile creates a DocxReader from a file path
func DocxReaderFromFile(path, payload string) (*DocxReader, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return NewDocxReader(bytes.NewReader(content), int64(len(content)), payload)
}

// GetPart retrieves the content of a specific part
func (dr *DocxReader) GetPart(partName string) ([]byte, error) {
	file, ok := dr.Parts[partName]
	if !ok {
		return nil, fmt.Errorf("part %s not found", partName)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", partName, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", partName, err)
	}

	return content, nil
}

// ListParts returns the names of all members in archive order
func (dr *DocxReader) ListParts() []string {
	parts := make([]string, 0, len(dr.reader.File))
	for _, file := range dr.reader.File {
		parts = append(parts, file.Name)
	}
	return parts
}

// TemplateParts returns the members that carry template text: payload first, then
// headers and footers by number when headersFooters is set.
func (dr *DocxReader) TemplateParts(payload string, headersFooters bool) []string {
	if payload == "" {
		payload = DefaultPayloadMember
	}
	ordered := []string{payload}
	if !headersFooters {
		return ordered
	}
	return append(ordered, numberedParts(dr.ListParts(), headerPartPattern, footerPartPattern)...)
}

type orderedPart struct {
	Name  string
	Index int
}

// numberedParts collects the parts matching each pattern, sorted by their number, with
// all matches of the first pattern before those of the second.
func numberedParts(names []string, patterns ...*regexp.Regexp) []string {
	var ordered []string
	for _, pattern := range patterns {
		var group []orderedPart
		for _, name := range names {
			matches := pattern.FindStringSubmatch(name)
			if len(matches) != 2 {
				continue
			}
			if idx, err := strconv.Atoi(matches[1]); err == nil {
				group = append(group, orderedPart{Name: name, Index: idx})
			}
		}

		sort.Slice(group, func(i, j int) bool {
			if group[i].Index == group[j].Index {
				return group[i].Name < group[j].Name
			}
			return group[i].Index < group[j].Index
		})
		for _, p := range group {
			ordered = append(ordered, p.Name)
		}
	}
	return ordered
}

// WriteTo writes a new package to w: members named in replaced get the new content,
// every other member is copied as stored. Member order and compression methods are
// kept.
func (dr *DocxReader) WriteTo(w io.Writer, replaced map[string][]byte) error {
	zw := zip.NewWriter(w)

	for _, file := range dr.reader.File {
		if content, ok := replaced[file.Name]; ok {
			if err := writeMember(zw, file, content); err != nil {
				return err
			}
			continue
		}
		if err := copyMember(zw, file); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func writeMember(zw *zip.Writer, file *zip.File, content []byte) error {
	header := file.FileHeader
	header.CRC32 = 0
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0

	fw, err := zw.CreateHeader(&header)
	if err != nil {
		return fmt.Errorf("failed to create member %s: %w", file.Name, err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("failed to write member %s: %w", file.Name, err)
	}
	return nil
}

func copyMember(zw *zip.Writer, file *zip.File) error {
	raw, err := file.OpenRaw()
	if err != nil {
		return fmt.Errorf("failed to open member %s: %w", file.Name, err)
	}

	header := file.FileHeader
	fw, err := zw.CreateRaw(&header)
	if err != nil {
		return fmt.Errorf("failed to create member %s: %w", file.Name, err)
	}
	if _, err := io.Copy(fw, raw); err != nil {
		return fmt.Errorf("failed to copy member %s: %w", file.Name, err)
	}
	return nil
}
