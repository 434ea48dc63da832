package docbind

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Prefix names a formatting prefix of a placeholder.
type Prefix string

const (
	PrefixLeadingSpace  Prefix = "ls"
	PrefixTrailingSpace Prefix = "rs"
	PrefixBothSpaces    Prefix = "bs"
	PrefixComma         Prefix = "comma"
	PrefixUpper         Prefix = "uc"
	PrefixLower         Prefix = "lc"
	PrefixTitle         Prefix = "tc"
	PrefixFirstCap      Prefix = "fc"
)

// prefixMarkers is checked in order on every iteration; the marker text is stripped
// from the path and its prefix recorded.
var prefixMarkers = []struct {
	marker string
	prefix Prefix
}{
	{"ls.", PrefixLeadingSpace},
	{"rs.", PrefixTrailingSpace},
	{"bs.", PrefixBothSpaces},
	{",", PrefixComma},
	{"uc.", PrefixUpper},
	{"lc.", PrefixLower},
	{"tc.", PrefixTitle},
	{"fc.", PrefixFirstCap},
}

// Placeholder is a parsed variable expression.
type Placeholder struct {
	Path     string
	Prefixes []Prefix
	Rule     string
}

// ParsePlaceholder splits an expression into its prefixes, path and optional rule.
// The expression "ls.uc.name|date:yyyy" has prefixes [ls uc], path "name" and rule
// "date:yyyy".
func ParsePlaceholder(expr string) Placeholder {
	parts := strings.Split(expr, "|")
	path := strings.TrimSpace(parts[0])
	rule := ""
	if len(parts) > 1 {
		rule = strings.TrimSpace(parts[1])
	}

	var prefixes []Prefix
	for {
		matched := false
		for _, pm := range prefixMarkers {
			if strings.HasPrefix(path, pm.marker) {
				prefixes = append(prefixes, pm.prefix)
				path = path[len(pm.marker):]
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}

	return Placeholder{Path: path, Prefixes: prefixes, Rule: rule}
}

// formatWithRule renders a scalar through rule and returns markup-escaped text. Rule
// failures degrade to the escaped raw text.
func (r *Resolver) formatWithRule(value interface{}, rule string) string {
	raw := FormatValue(value)

	name, pattern, _ := strings.Cut(rule, ":")
	switch strings.TrimSpace(name) {
	case "uppercase":
		return EscapeMarkup(strings.ToUpper(raw))
	case "lowercase":
		return EscapeMarkup(strings.ToLower(raw))
	case "ucfirst":
		return EscapeMarkup(upperFirst(raw))
	case "ucwords":
		return EscapeMarkup(titleWords(raw))
	case "number_format":
		f := parseNumber(raw)
		if math.IsNaN(f) {
			return EscapeMarkup(raw)
		}
		return EscapeMarkup(formatNumber(f))
	case "date":
		formatted, err := FormatDateRule(value, pattern)
		if err != nil {
			r.logger.Debug("%v", NewEvaluationError(rule, err))
			return EscapeMarkup(raw)
		}
		return EscapeMarkup(formatted)
	}

	return EscapeMarkup(raw)
}

var (
	numberPrinterOnce sync.Once
	numberPrinter     *message.Printer
)

// formatNumber groups thousands the en-US way with at most three fraction digits.
func formatNumber(f float64) string {
	numberPrinterOnce.Do(func() {
		numberPrinter = message.NewPrinter(language.English)
	})
	if math.IsInf(f, 0) {
		if f > 0 {
			return "∞"
		}
		return "-∞"
	}
	return numberPrinter.Sprint(number.Decimal(f, number.MaxFractionDigits(3)))
}

// applyPrefix applies one prefix to already escaped text.
func applyPrefix(prefix Prefix, s string) string {
	switch prefix {
	case PrefixLeadingSpace:
		return " " + s
	case PrefixTrailingSpace:
		return s + " "
	case PrefixBothSpaces:
		return " " + s + " "
	case PrefixComma:
		return "," + s
	case PrefixUpper:
		return mapOutsideEntities(s, strings.ToUpper)
	case PrefixLower:
		return mapOutsideEntities(s, strings.ToLower)
	case PrefixTitle:
		return mapOutsideEntities(s, titleWords)
	case PrefixFirstCap:
		return firstCapital(s)
	}
	return s
}

var entityRegex = regexp.MustCompile(`&(?:[A-Za-z][A-Za-z0-9]*|#[0-9]+|#[xX][0-9A-Fa-f]+);`)

// mapOutsideEntities applies f to the text between markup entities.
func mapOutsideEntities(s string, f func(string) string) string {
	locs := entityRegex.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return f(s)
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(f(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(f(s[last:]))
	return b.String()
}

// firstCapital upper-cases the first character and lower-cases the rest, leaving
// entities intact.
func firstCapital(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == '&' {
		if loc := entityRegex.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return s[:loc[1]] + mapOutsideEntities(s[loc[1]:], strings.ToLower)
		}
	}
	return string(unicode.ToUpper(r)) + mapOutsideEntities(s[size:], strings.ToLower)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// titleWords upper-cases every ASCII word character that starts a word.
func titleWords(s string) string {
	b := []byte(s)
	for i := range b {
		if isWordByte(b[i]) && (i == 0 || !isWordByte(b[i-1])) && b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var (
	markupEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	markupUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")
)

// EscapeMarkup escapes &, < and > for insertion into markup text.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// unescapeMarkup reverses EscapeMarkup.
func unescapeMarkup(s string) string {
	return markupUnescaper.Replace(s)
}

// toJSON serializes collections the way they are embedded in output text.
func toJSON(value interface{}) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return fmt.Sprintf("%v", value)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
