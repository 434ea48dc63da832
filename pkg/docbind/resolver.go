package docbind

import (
	"maps"
	"math"
	"regexp"
	"strings"
)

// CompanyNameKey is the placeholder filled from the company-name preset.
const CompanyNameKey = "company_name"

// Resolver evaluates repeaters, conditionals and placeholders against a data scope.
// A Resolver holds no per-call state and may be shared between goroutines.
type Resolver struct {
	logger *Logger
}

// NewResolver returns a resolver logging to logger, or to the global logger when nil.
func NewResolver(logger *Logger) *Resolver {
	if logger == nil {
		logger = GetLogger()
	}
	return &Resolver{logger: logger}
}

// Resolve runs the full pipeline on text: the company-name pre-pass when companyName is
// not empty, then repeaters, conditionals and placeholders on the root scope.
func (r *Resolver) Resolve(text string, data TemplateData, companyName string) string {
	r.logger.DebugTemplate(text, data)
	if companyName != "" {
		text = ReplaceSimplePlaceholder(text, CompanyNameKey, companyName)
	}
	text = r.ResolveRepeaters(text, data)
	text = r.ResolveConditionals(text, data)
	return r.ResolveVariables(text, data)
}

// ResolveRepeaters expands every <<add_more path>>...<<end:add_more>> block once per
// element of the array at path. A block whose path is not an array renders empty.
func (r *Resolver) ResolveRepeaters(text string, scope TemplateData) string {
	var tokens []Token
	for from := 0; ; {
		token, ok := nextRepeaterToken(text, from)
		if !ok {
			break
		}
		tokens = append(tokens, token)
		from = token.End
	}
	if len(tokens) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for i := 0; i < len(tokens); {
		open := tokens[i]
		if open.Type != TokenRepeater {
			i++
			continue
		}
		j := matchingRepeaterEnd(tokens, i)
		if j < 0 {
			i++
			continue
		}

		b.WriteString(text[last:open.Start])
		b.WriteString(r.expandRepeater(cleanRepeaterPath(open.Value), text[open.End:tokens[j].Start], scope))
		last = tokens[j].End
		i = j + 1
	}
	b.WriteString(text[last:])
	return b.String()
}

// matchingRepeaterEnd pairs the open token at i with its depth-balanced end token. When
// the opens after i outnumber the ends, the last end token is used instead.
func matchingRepeaterEnd(tokens []Token, i int) int {
	depth := 0
	lastEnd := -1
	for k := i + 1; k < len(tokens); k++ {
		switch tokens[k].Type {
		case TokenRepeater:
			depth++
		case TokenRepeaterEnd:
			if depth == 0 {
				return k
			}
			depth--
			lastEnd = k
		}
	}
	return lastEnd
}

func (r *Resolver) expandRepeater(path, body string, scope TemplateData) string {
	value, _ := lookupPath(scope, path)
	items, ok := asSlice(value)
	if !ok {
		r.logger.Debug("Repeater path %q does not resolve to an array", path)
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		child := childScope(scope, item, i, len(items))
		inner := r.ResolveRepeaters(body, child)
		inner = r.ResolveConditionals(inner, child)
		inner = r.ResolveVariables(inner, child)
		b.WriteString(inner)
	}
	return b.String()
}

// childScope copies parent and overlays one repeater element: map entries are spread,
// other values are bound to "value".
func childScope(parent TemplateData, item interface{}, index, length int) TemplateData {
	child := maps.Clone(parent)
	if child == nil {
		child = make(TemplateData)
	}

	if entries, ok := asMap(item); ok {
		for k, v := range entries {
			child[k] = v
		}
	} else if elements, ok := asSlice(item); ok {
		for k, v := range elements {
			child[FormatValue(k)] = v
		}
	} else {
		child["value"] = item
	}

	child["_index"] = index
	child["_length"] = length
	return child
}

// cleanRepeaterPath strips the decorations authors put around repeater paths:
// leading "=", ">", quotes and whitespace, trailing quotes. Escaped forms count too.
func cleanRepeaterPath(raw string) string {
	path := strings.TrimFunc(raw, isScriptSpace)

	for {
		trimmed := strings.TrimLeftFunc(path, func(c rune) bool {
			return c == '=' || c == '>' || c == '"' || isScriptSpace(c)
		})
		trimmed = strings.TrimPrefix(trimmed, "&quot;")
		trimmed = strings.TrimPrefix(trimmed, "&gt;")
		if trimmed == path {
			break
		}
		path = trimmed
	}

	for {
		trimmed := strings.TrimRight(path, `"`)
		trimmed = strings.TrimSuffix(trimmed, "&quot;")
		if trimmed == path {
			break
		}
		path = trimmed
	}

	return strings.TrimFunc(path, isScriptSpace)
}

// ResolveConditionals renders every [[cond]]...[[end:cond]] block whose condition holds
// and removes the others. The close marker must repeat the open marker's text exactly;
// whitespace right before it is dropped. Conditions taken from document markup are
// unescaped before evaluation, so [[n &gt; 1]] compares.
func (r *Resolver) ResolveConditionals(text string, scope TemplateData) string {
	var b strings.Builder
	last, from := 0, 0

	for {
		open, ok := nextCondition(text, from)
		if !ok {
			break
		}

		endMarker := conditionOpen + conditionEnd + open.Value + conditionClose
		k := strings.Index(text[open.End:], endMarker)
		if k < 0 {
			from = open.Start + 1
			continue
		}
		endStart := open.End + k

		b.WriteString(text[last:open.Start])
		cond := unescapeMarkup(strings.TrimFunc(open.Value, isScriptSpace))
		if r.EvaluateCondition(cond, scope) {
			body := strings.TrimRightFunc(text[open.End:endStart], isScriptSpace)
			body = r.ResolveRepeaters(body, scope)
			body = r.ResolveConditionals(body, scope)
			body = r.ResolveVariables(body, scope)
			b.WriteString(body)
		}

		last = endStart + len(endMarker)
		from = last
	}

	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// ResolveVariables replaces every {{expr}} with its formatted value. Paths that do not
// resolve, or resolve to nil, render empty; collections render as escaped JSON.
func (r *Resolver) ResolveVariables(text string, scope TemplateData) string {
	var b strings.Builder
	last, from := 0, 0

	for {
		token, ok := nextVariable(text, from)
		if !ok {
			break
		}
		b.WriteString(text[last:token.Start])
		b.WriteString(r.renderPlaceholder(token.Value, scope))
		last, from = token.End, token.End
	}

	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *Resolver) renderPlaceholder(expr string, scope TemplateData) string {
	placeholder := ParsePlaceholder(expr)

	path := strings.ReplaceAll(placeholder.Path, "[]", "[0]")
	value, found := lookupPath(scope, path)
	if r.logger.IsDebugMode() {
		r.logger.DebugExpression(expr, value)
	}
	if !found || isNil(value) {
		return ""
	}
	if isCollection(value) {
		return EscapeMarkup(toJSON(value))
	}

	formatted := r.formatWithRule(value, placeholder.Rule)
	for i := len(placeholder.Prefixes) - 1; i >= 0; i-- {
		formatted = applyPrefix(placeholder.Prefixes[i], formatted)
	}
	return formatted
}

// EvaluateCondition evaluates a condition expression against scope.
//
// A condition is one of the repeater sentinels (count1: the array has one element,
// count2: always, common: first element), a path tested for truthiness, a path ending
// in ".no" (its own value when it exists, otherwise the negated value of the path
// without the suffix), a numeric "left > right" comparison, or terms joined by " and "
// or " or ". Whichever keyword occurs first in the expression decides how it is split;
// mixing both in one expression is not supported.
func (r *Resolver) EvaluateCondition(cond string, scope TemplateData) bool {
	and := strings.Index(cond, " and ")
	or := strings.Index(cond, " or ")

	switch {
	case and >= 0 && (or < 0 || and < or):
		for _, part := range strings.Split(cond, " and ") {
			if !r.evaluateSingleCondition(strings.TrimFunc(part, isScriptSpace), scope) {
				return false
			}
		}
		return true
	case or >= 0:
		for _, part := range strings.Split(cond, " or ") {
			if r.evaluateSingleCondition(strings.TrimFunc(part, isScriptSpace), scope) {
				return true
			}
		}
		return false
	default:
		return r.evaluateSingleCondition(cond, scope)
	}
}

func (r *Resolver) evaluateSingleCondition(cond string, scope TemplateData) bool {
	switch cond {
	case "count1":
		return isExactNumber(scope["_length"], 1)
	case "count2":
		return true
	case "common":
		return isExactNumber(scope["_index"], 0)
	}

	if strings.HasSuffix(cond, ".no") {
		if v, ok := lookupPath(scope, cond); ok {
			return isTruthy(v)
		}
		v, _ := lookupPath(scope, strings.TrimSuffix(cond, ".no"))
		return !isTruthy(v)
	}

	if strings.Contains(cond, " > ") {
		parts := strings.Split(cond, " > ")
		left := r.operand(strings.TrimFunc(parts[0], isScriptSpace), scope)
		right := r.operand(strings.TrimFunc(parts[1], isScriptSpace), scope)
		return left > right
	}

	v, _ := lookupPath(scope, cond)
	return isTruthy(v)
}

// operand resolves one side of a comparison. Undefined paths that read as numbers are
// taken literally, so [[count > 1]] compares against the number 1.
func (r *Resolver) operand(expr string, scope TemplateData) float64 {
	if v, ok := lookupPath(scope, expr); ok {
		return toNumber(v)
	}
	if numericLiteralRegex.MatchString(expr) {
		return parseNumber(expr)
	}
	return math.NaN()
}

var numericLiteralRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// isExactNumber reports whether value is a number equal to n. Numeric strings do not
// count.
func isExactNumber(value interface{}, n float64) bool {
	f, ok := numericValue(value)
	return ok && f == n
}

// ReplaceSimplePlaceholder replaces every {{ key }} in text with the escaped value.
// Whitespace inside the braces is ignored.
func ReplaceSimplePlaceholder(text, key, value string) string {
	if key == "" || !strings.Contains(text, variableOpen) {
		return text
	}
	pattern := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(key) + `\s*\}\}`)
	return pattern.ReplaceAllLiteralString(text, EscapeMarkup(value))
}

func packageResolver() *Resolver {
	return &Resolver{logger: GetLogger()}
}

// ResolveRepeaters expands repeater blocks using the global logger.
func ResolveRepeaters(text string, scope TemplateData) string {
	return packageResolver().ResolveRepeaters(text, scope)
}

// ResolveConditionals renders conditional blocks using the global logger.
func ResolveConditionals(text string, scope TemplateData) string {
	return packageResolver().ResolveConditionals(text, scope)
}

// ResolveVariables replaces placeholders using the global logger.
func ResolveVariables(text string, scope TemplateData) string {
	return packageResolver().ResolveVariables(text, scope)
}
