package docbind

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/benjaminschreck/go-docbind/pkg/docbind/render"
	docxml "github.com/benjaminschreck/go-docbind/pkg/docbind/xml"
)

const validationParserVersion = "v1"

// IssueSeverity indicates parser issue severity.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "error"
	IssueSeverityWarning IssueSeverity = "warning"
)

// IssueCode classifies template syntax issues.
type IssueCode string

const (
	IssueCodeUnterminatedPlaceholder IssueCode = "UNTERMINATED_PLACEHOLDER"
	IssueCodeEmptyToken              IssueCode = "EMPTY_TOKEN"
	IssueCodeConditionMismatch       IssueCode = "CONDITION_MISMATCH"
	IssueCodeRepeaterMismatch        IssueCode = "REPEATER_MISMATCH"
	IssueCodeMarkupUnreadable        IssueCode = "MARKUP_UNREADABLE"
)

// TemplateLocation identifies a token location. In document members Line is the
// paragraph number; in plain text it is the line number. Both start at 1, as does
// Column, which counts characters.
type TemplateLocation struct {
	Part     string `json:"part,omitempty"`
	Offset   int    `json:"offset"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	AnchorID string `json:"anchorId,omitempty"`
}

func (l TemplateLocation) String() string {
	if l.Part != "" {
		return fmt.Sprintf("%s:%d:%d", l.Part, l.Line, l.Column)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// ValidationIssue is one template syntax problem.
type ValidationIssue struct {
	ID       string           `json:"id,omitempty"`
	Severity IssueSeverity    `json:"severity"`
	Code     IssueCode        `json:"code"`
	Message  string           `json:"message"`
	Raw      string           `json:"raw"`
	Location TemplateLocation `json:"location"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Location, i.Message)
}

// ReferenceKind identifies what a reference was found in.
type ReferenceKind string

const (
	ReferenceVariable  ReferenceKind = "variable"
	ReferenceCondition ReferenceKind = "condition"
	ReferenceRepeater  ReferenceKind = "repeater"
)

// Reference is a data path a template token refers to.
type Reference struct {
	Kind     ReferenceKind    `json:"kind"`
	Path     string           `json:"path"`
	Raw      string           `json:"raw"`
	Location TemplateLocation `json:"location"`
}

// Validate reports malformed template syntax in text: placeholders that never close,
// empty tokens, conditional markers without their counterpart and unbalanced repeater
// markers. Issues are ordered by offset.
func Validate(text string) []ValidationIssue {
	lines := newLineIndex(text)
	var issues []ValidationIssue

	appendIssue := func(code IssueCode, start, end int, message string) {
		issues = append(issues, ValidationIssue{
			Severity: IssueSeverityError,
			Code:     code,
			Message:  message,
			Raw:      text[start:end],
			Location: lines.locate(start),
		})
	}

	for from := 0; ; {
		i := strings.Index(text[from:], variableOpen)
		if i < 0 {
			break
		}
		start := from + i
		if token, ok := matchVariableAt(text, start); ok {
			if strings.TrimFunc(token.Value, isScriptSpace) == "" {
				appendIssue(IssueCodeEmptyToken, token.Start, token.End, "empty placeholder")
			}
			from = token.End
			continue
		}
		appendIssue(IssueCodeUnterminatedPlaceholder, start, lineEnd(text, start),
			"placeholder is not closed with }} on the same line")
		from = start + len(variableOpen)
	}

	var opens, ends []Token
	var repeaters []Token
	for _, token := range Tokenize(text) {
		switch token.Type {
		case TokenCondition:
			if strings.TrimFunc(token.Value, isScriptSpace) == "" {
				appendIssue(IssueCodeEmptyToken, token.Start, token.End, "empty condition")
				continue
			}
			opens = append(opens, token)
		case TokenConditionEnd:
			ends = append(ends, token)
		case TokenRepeater:
			if cleanRepeaterPath(token.Value) == "" {
				appendIssue(IssueCodeEmptyToken, token.Start, token.End, "repeater without a path")
			}
			repeaters = append(repeaters, token)
		case TokenRepeaterEnd:
			repeaters = append(repeaters, token)
		}
	}

	used := make([]bool, len(ends))
	for _, open := range opens {
		matched := false
		for k, end := range ends {
			if !used[k] && end.Start >= open.End && end.Value == open.Value {
				used[k] = true
				matched = true
				break
			}
		}
		if !matched {
			appendIssue(IssueCodeConditionMismatch, open.Start, open.End,
				fmt.Sprintf("missing [[end:%s]] for condition", open.Value))
		}
	}
	for k, end := range ends {
		if !used[k] {
			appendIssue(IssueCodeConditionMismatch, end.Start, end.End,
				fmt.Sprintf("[[end:%s]] has no matching [[%s]]", end.Value, end.Value))
		}
	}

	var stack []Token
	for _, token := range repeaters {
		if token.Type == TokenRepeater {
			stack = append(stack, token)
			continue
		}
		if len(stack) == 0 {
			appendIssue(IssueCodeRepeaterMismatch, token.Start, token.End,
				"end:add_more has no matching add_more")
			continue
		}
		stack = stack[:len(stack)-1]
	}
	for _, open := range stack {
		appendIssue(IssueCodeRepeaterMismatch, open.Start, open.End,
			"missing end:add_more for repeater")
	}

	sortValidationIssues(issues)
	return issues
}

// ExtractReferences lists the data paths referenced by the tokens in text, in order.
// Condition sentinels and numeric literals are not references.
func ExtractReferences(text string) []Reference {
	lines := newLineIndex(text)
	var refs []Reference

	appendRef := func(kind ReferenceKind, path string, token Token) {
		if path == "" {
			return
		}
		refs = append(refs, Reference{
			Kind:     kind,
			Path:     path,
			Raw:      text[token.Start:token.End],
			Location: lines.locate(token.Start),
		})
	}

	for _, token := range Tokenize(text) {
		switch token.Type {
		case TokenVariable:
			appendRef(ReferenceVariable, ParsePlaceholder(token.Value).Path, token)
		case TokenCondition:
			for _, term := range conditionTerms(unescapeMarkup(strings.TrimFunc(token.Value, isScriptSpace))) {
				appendRef(ReferenceCondition, term, token)
			}
		case TokenRepeater:
			appendRef(ReferenceRepeater, cleanRepeaterPath(token.Value), token)
		}
	}

	return refs
}

// conditionTerms splits a condition the way it is evaluated and keeps the paths.
func conditionTerms(cond string) []string {
	var parts []string
	and := strings.Index(cond, " and ")
	or := strings.Index(cond, " or ")
	switch {
	case and >= 0 && (or < 0 || and < or):
		parts = strings.Split(cond, " and ")
	case or >= 0:
		parts = strings.Split(cond, " or ")
	default:
		parts = []string{cond}
	}

	var terms []string
	for _, part := range parts {
		part = strings.TrimFunc(part, isScriptSpace)
		switch part {
		case "", "count1", "count2", "common":
			continue
		}
		if strings.Contains(part, " > ") {
			for _, operand := range strings.Split(part, " > ") {
				operand = strings.TrimFunc(operand, isScriptSpace)
				if operand != "" && !numericLiteralRegex.MatchString(operand) {
					terms = append(terms, operand)
				}
			}
			continue
		}
		terms = append(terms, part)
	}
	return terms
}

// ValidateDocumentInput controls document validation.
type ValidateDocumentInput struct {
	DocxBytes          []byte `json:"-"`
	TemplateRevisionID string `json:"templateRevisionId,omitempty"`
	MaxIssues          int    `json:"maxIssues,omitempty"` // 0 = unlimited
	PayloadMember      string `json:"payloadMember,omitempty"`
}

// ValidationSummary contains validation counters.
type ValidationSummary struct {
	CheckedParts       int `json:"checkedParts"`
	ErrorCount         int `json:"errorCount"`
	WarningCount       int `json:"warningCount"`
	ReturnedIssueCount int `json:"returnedIssueCount"`
}

// ValidationMetadata identifies the validated document and the validator version.
type ValidationMetadata struct {
	DocumentHash       string `json:"documentHash"`
	TemplateRevisionID string `json:"templateRevisionId,omitempty"`
	ParserVersion      string `json:"parserVersion"`
}

// ValidateDocumentResult contains document validation output.
type ValidateDocumentResult struct {
	Valid           bool               `json:"valid"`
	Summary         ValidationSummary  `json:"summary"`
	Issues          []ValidationIssue  `json:"issues"`
	IssuesTruncated bool               `json:"issuesTruncated"`
	Metadata        ValidationMetadata `json:"metadata"`
}

// ValidateDocument validates the template syntax of a DOCX archive: the payload member,
// then headers and footers.
func ValidateDocument(input ValidateDocumentInput) (ValidateDocumentResult, error) {
	if len(input.DocxBytes) == 0 {
		return ValidateDocumentResult{}, fmt.Errorf("docx bytes are required")
	}
	if input.MaxIssues < 0 {
		return ValidateDocumentResult{}, fmt.Errorf("maxIssues must be >= 0")
	}

	docxReader, err := NewDocxReader(bytes.NewReader(input.DocxBytes), int64(len(input.DocxBytes)), input.PayloadMember)
	if err != nil {
		return ValidateDocumentResult{}, NewDocumentError("parse", "DOCX", err)
	}

	parts := docxReader.TemplateParts(input.PayloadMember, true)
	issues := make([]ValidationIssue, 0)
	for _, part := range parts {
		content, err := docxReader.GetPart(part)
		if err != nil {
			return ValidateDocumentResult{}, NewDocumentError("extract", part, err)
		}
		issues = append(issues, validatePartText(part, render.RepairFragments(string(content)))...)
	}
	numberIssues(issues)

	returnedIssues := issues
	issuesTruncated := false
	if input.MaxIssues > 0 && len(issues) > input.MaxIssues {
		returnedIssues = issues[:input.MaxIssues]
		issuesTruncated = true
	}

	errorCount, warningCount := 0, 0
	for _, issue := range issues {
		if issue.Severity == IssueSeverityWarning {
			warningCount++
		} else {
			errorCount++
		}
	}

	return ValidateDocumentResult{
		Valid: errorCount == 0,
		Summary: ValidationSummary{
			CheckedParts:       len(parts),
			ErrorCount:         errorCount,
			WarningCount:       warningCount,
			ReturnedIssueCount: len(returnedIssues),
		},
		Issues:          returnedIssues,
		IssuesTruncated: issuesTruncated,
		Metadata:        newValidationMetadata(input.DocxBytes, input.TemplateRevisionID),
	}, nil
}

// validatePartText validates the visible text of one document member. Paragraphs
// become lines, so placeholders may not span paragraphs while conditionals and
// repeaters may.
func validatePartText(part, markup string) []ValidationIssue {
	text, err := paragraphText(markup)
	if err != nil {
		return []ValidationIssue{{
			Severity: IssueSeverityWarning,
			Code:     IssueCodeMarkupUnreadable,
			Message:  fmt.Sprintf("markup could not be scanned: %v", err),
			Location: TemplateLocation{Part: part, Line: 1, Column: 1},
		}}
	}

	issues := Validate(text)
	for i := range issues {
		issues[i].Location.Part = part
		issues[i].Location.AnchorID = buildAnchorID(issues[i])
	}
	return issues
}

// partReferences extracts references from the visible text of one document member.
func partReferences(part, markup string) []Reference {
	text, err := paragraphText(markup)
	if err != nil {
		return nil
	}

	refs := ExtractReferences(text)
	for i := range refs {
		refs[i].Location.Part = part
	}
	return refs
}

// paragraphText joins the run texts of every paragraph, one paragraph per line.
func paragraphText(markup string) (string, error) {
	paragraphs, err := docxml.Scan(markup, docxml.WordML)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, paragraph := range paragraphs {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, run := range paragraph.Runs {
			if run.Text != nil {
				b.WriteString(run.Text.Value)
			}
		}
	}
	return b.String(), nil
}

type lineIndex struct {
	text   string
	starts []int
}

func newLineIndex(text string) lineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{text: text, starts: starts}
}

func (li lineIndex) locate(offset int) TemplateLocation {
	line := sort.SearchInts(li.starts, offset+1) - 1
	return TemplateLocation{
		Offset: offset,
		Line:   line + 1,
		Column: utf8.RuneCountInString(li.text[li.starts[line]:offset]) + 1,
	}
}

func lineEnd(text string, from int) int {
	if i := strings.IndexFunc(text[from:], isLineTerminator); i >= 0 {
		return from + i
	}
	return len(text)
}

func numberIssues(issues []ValidationIssue) {
	for i := range issues {
		issues[i].ID = fmt.Sprintf("iss_%03d", i+1)
	}
}

func buildAnchorID(issue ValidationIssue) string {
	seed := strings.Join([]string{
		issue.Location.Part,
		strconv.Itoa(issue.Location.Line),
		strconv.Itoa(issue.Location.Offset),
		issue.Raw,
	}, "|")

	sum := sha256.Sum256([]byte(seed))
	return "anchor_" + hex.EncodeToString(sum[:8])
}

func newValidationMetadata(docxBytes []byte, templateRevisionID string) ValidationMetadata {
	sum := sha256.Sum256(docxBytes)
	return ValidationMetadata{
		DocumentHash:       "sha256:" + hex.EncodeToString(sum[:]),
		TemplateRevisionID: templateRevisionID,
		ParserVersion:      validationParserVersion,
	}
}

func sortValidationIssues(issues []ValidationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		left := issues[i]
		right := issues[j]

		if left.Location.Offset != right.Location.Offset {
			return left.Location.Offset < right.Location.Offset
		}
		if left.Code != right.Code {
			return left.Code < right.Code
		}
		return left.Message < right.Message
	})
}
