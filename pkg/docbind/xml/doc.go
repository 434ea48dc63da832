// Package xml locates paragraphs, runs and text leaves inside raw document markup.
//
// DOCX payloads are large XML documents in which only a handful of elements matter to
// docbind: paragraphs, the runs they contain, and the text leaves inside those runs.
// Rather than unmarshalling the whole document into structs (and marshalling it back,
// which loses namespace declarations and unknown elements), this package records the
// byte offsets of the interesting elements so that callers can splice replacements into
// the original markup and copy everything else byte-for-byte.
//
// # Structure Organization
//
//   - types.go: Vocabulary, Span, Paragraph, Run and Text
//   - scanner.go: Scan, the offset-recording token scanner
//
// # Key Concepts
//
// Vocabulary: the element names that make up paragraphs, runs, text leaves and run
// properties. WordML covers word/document.xml and headers/footers, DrawingML covers
// text bodies inside drawings and slides.
//
// Run: a contiguous sequence of text with consistent formatting. A run is text-only when
// its children are at most one properties element and exactly one text leaf.
//
// # Usage
//
//	paragraphs, err := xml.Scan(markup, xml.WordML)
//	if err != nil {
//	    return err
//	}
//	for _, p := range paragraphs {
//	    for _, r := range p.Runs {
//	        if r.IsText() {
//	            fmt.Println(r.Text.Value)
//	        }
//	    }
//	}
package xml
