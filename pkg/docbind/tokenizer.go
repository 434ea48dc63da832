package docbind

import (
	"strings"
	"unicode/utf8"
)

// TokenType represents the type of a template token
type TokenType int

const (
	TokenText TokenType = iota
	TokenVariable
	TokenCondition
	TokenConditionEnd
	TokenRepeater
	TokenRepeaterEnd
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "text"
	case TokenVariable:
		return "variable"
	case TokenCondition:
		return "condition"
	case TokenConditionEnd:
		return "condition_end"
	case TokenRepeater:
		return "repeater"
	case TokenRepeaterEnd:
		return "repeater_end"
	default:
		return "unknown"
	}
}

// Token represents a template token. Start and End are byte offsets into the scanned
// text; Value is the placeholder expression, the raw condition name or the raw
// repeater path.
type Token struct {
	Type  TokenType
	Value string
	Start int
	End   int
}

const (
	variableOpen  = "{{"
	variableClose = "}}"

	conditionOpen  = "[["
	conditionClose = "]]"
	conditionEnd   = "end:"

	repeaterKeyword = "add_more"
	repeaterEnd     = "end:add_more"
)

// Repeater markers appear literally in plain text and escaped in document markup.
var (
	repeaterOpeners = []string{"<<", "&lt;&lt;"}
	repeaterClosers = []string{">>", "&gt;&gt;"}
)

// Tokenize splits input into text, placeholder, conditional and repeater tokens in
// document order. Markers that never close stay part of the surrounding text.
func Tokenize(input string) []Token {
	var tokens []Token
	lastEnd := 0

	logger := GetLogger()
	if logger.IsDebugMode() {
		logger.WithField("input_length", len(input)).Debug("Starting tokenization")
	}

	for i := 0; i < len(input); {
		token, ok := matchTokenAt(input, i)
		if !ok {
			i++
			continue
		}

		if token.Start > lastEnd {
			tokens = append(tokens, Token{
				Type:  TokenText,
				Value: input[lastEnd:token.Start],
				Start: lastEnd,
				End:   token.Start,
			})
		}
		tokens = append(tokens, token)
		lastEnd = token.End
		i = token.End
	}

	if lastEnd < len(input) {
		tokens = append(tokens, Token{
			Type:  TokenText,
			Value: input[lastEnd:],
			Start: lastEnd,
			End:   len(input),
		})
	}

	if logger.IsDebugMode() {
		logger.WithField("token_count", len(tokens)).Debug("Tokenization complete")
	}

	return tokens
}

// FindTemplateTokens returns the raw text of every template token in input.
// This is a utility function for debugging and analysis
func FindTemplateTokens(input string) []string {
	found := []string{}
	for _, token := range Tokenize(input) {
		if token.Type != TokenText {
			found = append(found, input[token.Start:token.End])
		}
	}
	return found
}

func matchTokenAt(text string, i int) (Token, bool) {
	switch {
	case strings.HasPrefix(text[i:], variableOpen):
		return matchVariableAt(text, i)
	case strings.HasPrefix(text[i:], conditionOpen):
		token, ok := matchConditionAt(text, i)
		if ok && strings.HasPrefix(token.Value, conditionEnd) {
			token.Type = TokenConditionEnd
			token.Value = token.Value[len(conditionEnd):]
		}
		return token, ok
	default:
		return matchRepeaterAt(text, i)
	}
}

// nextVariable finds the first placeholder starting at or after from.
func nextVariable(text string, from int) (Token, bool) {
	for from < len(text) {
		i := strings.Index(text[from:], variableOpen)
		if i < 0 {
			break
		}
		if token, ok := matchVariableAt(text, from+i); ok {
			return token, true
		}
		from += i + 1
	}
	return Token{}, false
}

// matchVariableAt matches "{{ expr }}" at start. Whitespace around expr may span lines;
// expr itself may not.
func matchVariableAt(text string, start int) (Token, bool) {
	if !strings.HasPrefix(text[start:], variableOpen) {
		return Token{}, false
	}

	exprStart := skipScriptSpace(text, start+len(variableOpen))
	for p := exprStart; ; {
		q := skipScriptSpace(text, p)
		if strings.HasPrefix(text[q:], variableClose) {
			return Token{
				Type:  TokenVariable,
				Value: text[exprStart:p],
				Start: start,
				End:   q + len(variableClose),
			}, true
		}
		if p >= len(text) {
			return Token{}, false
		}
		r, size := utf8.DecodeRuneInString(text[p:])
		if isLineTerminator(r) {
			return Token{}, false
		}
		p += size
	}
}

// nextCondition finds the first "[[name]]" marker starting at or after from.
func nextCondition(text string, from int) (Token, bool) {
	for from < len(text) {
		i := strings.Index(text[from:], conditionOpen)
		if i < 0 {
			break
		}
		if token, ok := matchConditionAt(text, from+i); ok {
			return token, true
		}
		from += i + 1
	}
	return Token{}, false
}

// matchConditionAt matches "[[name]]" at start. The name is everything up to the first
// "]]" and may not contain a line break.
func matchConditionAt(text string, start int) (Token, bool) {
	if !strings.HasPrefix(text[start:], conditionOpen) {
		return Token{}, false
	}
	nameStart := start + len(conditionOpen)
	k := strings.Index(text[nameStart:], conditionClose)
	if k < 0 {
		return Token{}, false
	}
	name := text[nameStart : nameStart+k]
	if strings.IndexFunc(name, isLineTerminator) >= 0 {
		return Token{}, false
	}
	return Token{
		Type:  TokenCondition,
		Value: name,
		Start: start,
		End:   nameStart + k + len(conditionClose),
	}, true
}

// nextRepeaterToken finds the first repeater open or end marker at or after from.
func nextRepeaterToken(text string, from int) (Token, bool) {
	for from < len(text) {
		i := -1
		for _, opener := range repeaterOpeners {
			if j := strings.Index(text[from:], opener); j >= 0 && (i < 0 || j < i) {
				i = j
			}
		}
		if i < 0 {
			break
		}
		if token, ok := matchRepeaterAt(text, from+i); ok {
			return token, true
		}
		from += i + 1
	}
	return Token{}, false
}

// matchRepeaterAt matches "<<add_more path>>" or "<<end:add_more>>" at start, in plain
// or escaped form.
func matchRepeaterAt(text string, start int) (Token, bool) {
	rest := text[start:]
	for _, opener := range repeaterOpeners {
		if !strings.HasPrefix(rest, opener) {
			continue
		}
		body := start + len(opener)

		if strings.HasPrefix(text[body:], repeaterEnd) {
			after := body + len(repeaterEnd)
			for _, closer := range repeaterClosers {
				if strings.HasPrefix(text[after:], closer) {
					return Token{Type: TokenRepeaterEnd, Start: start, End: after + len(closer)}, true
				}
			}
		}

		if strings.HasPrefix(text[body:], repeaterKeyword) {
			pathStart := body + len(repeaterKeyword)
			closeAt, closeLen := -1, 0
			for _, closer := range repeaterClosers {
				if k := strings.Index(text[pathStart:], closer); k >= 0 && (closeAt < 0 || k < closeAt) {
					closeAt, closeLen = k, len(closer)
				}
			}
			if closeAt < 0 {
				return Token{}, false
			}
			path := text[pathStart : pathStart+closeAt]
			if strings.IndexFunc(path, isLineTerminator) >= 0 {
				return Token{}, false
			}
			return Token{
				Type:  TokenRepeater,
				Value: path,
				Start: start,
				End:   pathStart + closeAt + closeLen,
			}, true
		}
	}
	return Token{}, false
}

func skipScriptSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isScriptSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}
