package xml

import "encoding/xml"

// Vocabulary names the elements of a text-bearing markup dialect.
// Elements are matched on the namespace prefix as written in the markup, since
// payloads are scanned without namespace resolution.
type Vocabulary struct {
	Prefix     string
	Paragraph  string
	Run        string
	Text       string
	Properties string
}

var (
	// WordML is the WordprocessingML vocabulary (w:p, w:r, w:t, w:rPr).
	WordML = Vocabulary{Prefix: "w", Paragraph: "p", Run: "r", Text: "t", Properties: "rPr"}

	// DrawingML is the DrawingML text-body vocabulary (a:p, a:r, a:t, a:rPr).
	DrawingML = Vocabulary{Prefix: "a", Paragraph: "p", Run: "r", Text: "t", Properties: "rPr"}
)

// Span is a half-open byte range [Start, End) within the scanned markup.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Paragraph is a paragraph element and the runs directly or indirectly inside it.
// Runs that belong to a nested paragraph (text boxes) are listed on that paragraph only.
type Paragraph struct {
	Span
	Runs []Run
}

// Run represents a run element.
type Run struct {
	Span
	// Parent is the start offset of the element that directly contains the run.
	// Runs with different parents (a hyperlink and its surrounding paragraph) are
	// never siblings.
	Parent int
	// Name is the qualified element name as written, e.g. "w:r".
	Name string
	// StartTag is the raw opening tag, attributes included.
	StartTag string
	// Properties is the raw properties element, or "" when the run has none.
	Properties string
	// Text is the run's text leaf, nil when the run has none.
	Text *Text

	extra bool
}

// IsText reports whether the run holds nothing but optional properties and one text leaf.
func (r Run) IsText() bool {
	return r.Text != nil && !r.extra
}

// Text represents a text leaf.
type Text struct {
	Span
	// Content is the byte range of the leaf's character data.
	Content Span
	// Name is the qualified element name as written, e.g. "w:t".
	Name string
	// Value is the raw character data; entities are left escaped.
	Value string
	// Preserve reports whether the leaf carries xml:space="preserve".
	Preserve bool
}

func (v Vocabulary) is(name xml.Name, local string) bool {
	return name.Local == local && name.Space == v.Prefix
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
