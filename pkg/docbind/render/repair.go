package render

import (
	"sort"
	"strings"

	"github.com/benjaminschreck/go-docbind/pkg/docbind/xml"
)

// Delimiter is an open/close marker pair whose balance decides when a split token is
// complete.
type Delimiter struct {
	Open  string
	Close string
}

// DefaultDelimiters are the markers docbind templates use. Repeater markers appear
// escaped inside document markup.
var DefaultDelimiters = []Delimiter{
	{Open: "{{", Close: "}}"},
	{Open: "[[", Close: "]]"},
	{Open: "&lt;&lt;", Close: "&gt;&gt;"},
}

// Options controls fragment repair.
type Options struct {
	Vocabulary xml.Vocabulary
	Delimiters []Delimiter
}

// DefaultOptions returns WordML repair with the default delimiters.
func DefaultOptions() Options {
	return Options{
		Vocabulary: xml.WordML,
		Delimiters: DefaultDelimiters,
	}
}

type edit struct {
	start       int
	end         int
	replacement string
}

// RepairFragments rejoins template tokens that a word processor split across several
// runs of one paragraph. Markup that cannot be scanned is returned unchanged.
func RepairFragments(markup string) string {
	repaired, err := RepairFragmentsWith(markup, DefaultOptions())
	if err != nil {
		return markup
	}
	return repaired
}

// RepairFragmentsWith is RepairFragments with explicit options. On a scan error the
// input is returned unchanged together with the error.
func RepairFragmentsWith(markup string, opts Options) (string, error) {
	if len(opts.Delimiters) == 0 {
		opts.Delimiters = DefaultDelimiters
	}
	if opts.Vocabulary == (xml.Vocabulary{}) {
		opts.Vocabulary = xml.WordML
	}

	paragraphs, err := xml.Scan(markup, opts.Vocabulary)
	if err != nil {
		return markup, err
	}

	var edits []edit
	for _, paragraph := range paragraphs {
		edits = append(edits, mergeTemplateExpressionRuns(paragraph.Runs, opts.Delimiters)...)
	}
	if len(edits) == 0 {
		return markup, nil
	}

	return applyEdits(markup, edits), nil
}

// mergeTemplateExpressionRuns walks the runs of one paragraph and returns the edits that
// collapse every split token into its first run. Absorption stops, leaving the runs
// untouched, at a non-text run or when the next run lives under a different parent.
func mergeTemplateExpressionRuns(runs []xml.Run, delimiters []Delimiter) []edit {
	var (
		edits   []edit
		pending []xml.Run
		merged  strings.Builder
	)

	for _, run := range runs {
		if len(pending) > 0 && (!run.IsText() || run.Parent != pending[0].Parent) {
			pending = pending[:0]
			merged.Reset()
		}
		if !run.IsText() {
			continue
		}

		if len(pending) == 0 {
			if hasUnclosedTemplateMarker(run.Text.Value, delimiters) {
				pending = append(pending, run)
				merged.WriteString(run.Text.Value)
			}
			continue
		}

		pending = append(pending, run)
		merged.WriteString(run.Text.Value)
		if hasUnclosedTemplateMarker(merged.String(), delimiters) {
			continue
		}

		edits = append(edits, edit{
			start:       pending[0].Start,
			end:         pending[0].End,
			replacement: combinedRun(pending, merged.String()),
		})
		for _, absorbed := range pending[1:] {
			edits = append(edits, edit{start: absorbed.Start, end: absorbed.End})
		}
		pending = pending[:0]
		merged.Reset()
	}

	return edits
}

// combinedRun renders the merged run: the first run's start tag, the first non-empty
// properties among the absorbed runs, and one text leaf.
func combinedRun(runs []xml.Run, text string) string {
	first := runs[0]

	properties := ""
	preserve := strings.TrimSpace(text) != text
	for _, run := range runs {
		if properties == "" && run.Properties != "" {
			properties = run.Properties
		}
		preserve = preserve || run.Text.Preserve
	}

	var b strings.Builder
	b.WriteString(first.StartTag)
	b.WriteString(properties)
	b.WriteString("<")
	b.WriteString(first.Text.Name)
	if preserve {
		b.WriteString(` xml:space="preserve"`)
	}
	b.WriteString(">")
	b.WriteString(text)
	b.WriteString("</")
	b.WriteString(first.Text.Name)
	b.WriteString("></")
	b.WriteString(first.Name)
	b.WriteString(">")
	return b.String()
}

// hasUnclosedTemplateMarker reports whether any delimiter pair in s is left open. A close
// delimiter with nothing open is ignored.
func hasUnclosedTemplateMarker(s string, delimiters []Delimiter) bool {
	for _, d := range delimiters {
		depth := 0
		for i := 0; i < len(s); {
			switch {
			case strings.HasPrefix(s[i:], d.Open):
				depth++
				i += len(d.Open)
			case strings.HasPrefix(s[i:], d.Close):
				if depth > 0 {
					depth--
				}
				i += len(d.Close)
			default:
				i++
			}
		}
		if depth > 0 {
			return true
		}
	}
	return false
}

func applyEdits(markup string, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(markup))
	last := 0
	for _, e := range edits {
		b.WriteString(markup[last:e.start])
		b.WriteString(e.replacement)
		last = e.end
	}
	b.WriteString(markup[last:])
	return b.String()
}
