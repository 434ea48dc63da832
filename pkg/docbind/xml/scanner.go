package xml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type elementKind int

const (
	kindOther elementKind = iota
	kindParagraph
	kindRun
	kindProperties
	kindText
)

type frame struct {
	name      xml.Name
	kind      elementKind
	start     int
	tagEnd    int
	paragraph int
	run       *Run
	preserve  bool
}

// Scan tokenizes markup and returns every paragraph of the vocabulary in document order,
// each with the byte spans of its runs. Unknown entities and undeclared prefixes are
// tolerated; markup that cannot be tokenized at all yields an error.
func Scan(markup string, v Vocabulary) ([]Paragraph, error) {
	decoder := xml.NewDecoder(strings.NewReader(markup))
	decoder.Strict = false

	var (
		paragraphs []Paragraph
		stack      []frame
		open       []int
	)

	for {
		start := int(decoder.InputOffset())
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan markup at offset %d: %w", start, err)
		}
		end := int(decoder.InputOffset())

		switch t := token.(type) {
		case xml.StartElement:
			f := frame{name: t.Name, start: start, tagEnd: end, paragraph: -1}
			var parent *frame
			if len(stack) > 0 {
				parent = &stack[len(stack)-1]
			}

			switch {
			case v.is(t.Name, v.Paragraph):
				f.kind = kindParagraph
				paragraphs = append(paragraphs, Paragraph{Span: Span{Start: start}})
				f.paragraph = len(paragraphs) - 1
				open = append(open, f.paragraph)
			case v.is(t.Name, v.Run) && len(open) > 0:
				f.kind = kindRun
				f.paragraph = open[len(open)-1]
				parentStart := 0
				if parent != nil {
					parentStart = parent.start
					if parent.kind == kindRun {
						parent.run.extra = true
					}
				}
				f.run = &Run{
					Span:     Span{Start: start},
					Parent:   parentStart,
					Name:     qualified(t.Name),
					StartTag: markup[start:end],
				}
			case parent != nil && parent.kind == kindRun:
				f.run = parent.run
				switch {
				case v.is(t.Name, v.Properties) && f.run.Properties == "":
					f.kind = kindProperties
				case v.is(t.Name, v.Text) && f.run.Text == nil:
					f.kind = kindText
					f.preserve = hasPreserve(t.Attr)
				default:
					f.run.extra = true
				}
			}
			stack = append(stack, f)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("scan markup at offset %d: unexpected end element </%s>", start, qualified(t.Name))
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.name != t.Name {
				return nil, fmt.Errorf("scan markup at offset %d: element <%s> closed by </%s>", start, qualified(f.name), qualified(t.Name))
			}

			switch f.kind {
			case kindParagraph:
				paragraphs[f.paragraph].End = end
				open = open[:len(open)-1]
			case kindRun:
				f.run.End = end
				paragraphs[f.paragraph].Runs = append(paragraphs[f.paragraph].Runs, *f.run)
			case kindProperties:
				f.run.Properties = markup[f.start:end]
			case kindText:
				f.run.Text = &Text{
					Span:     Span{Start: f.start, End: end},
					Content:  Span{Start: f.tagEnd, End: start},
					Name:     qualified(f.name),
					Value:    markup[f.tagEnd:start],
					Preserve: f.preserve,
				}
			}
		}
	}

	if len(stack) > 0 {
		f := stack[len(stack)-1]
		return nil, fmt.Errorf("scan markup: element <%s> at offset %d is never closed", qualified(f.name), f.start)
	}

	return paragraphs, nil
}

func hasPreserve(attrs []xml.Attr) bool {
	for _, attr := range attrs {
		if attr.Name.Space == "xml" && attr.Name.Local == "space" && attr.Value == "preserve" {
			return true
		}
	}
	return false
}
