package docbind

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDatePattern is used by the date rule when no pattern is given.
const DefaultDatePattern = "yyyy-MM-dd"

// Common date format patterns that we'll try to parse
var commonDateFormats = []string{
	// ISO and RFC formats
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"20060102",

	// Common formats
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"02.01.2006",
	"2006.01.02",

	// Other formats
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05",
	"Monday, 02 January 2006",
}

// parseDate attempts to parse a date from various input types
func parseDate(value interface{}) (time.Time, error) {
	if isNil(value) {
		return time.Time{}, fmt.Errorf("cannot parse nil as date")
	}

	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		return *v, nil
	case int64:
		// Unix seconds, or milliseconds for large values
		if v > 1e10 || v < -1e10 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	case int:
		return parseDate(int64(v))
	case float64:
		return parseDate(int64(v))
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return time.Time{}, fmt.Errorf("cannot parse empty string as date")
		}

		for _, format := range commonDateFormats {
			if parsed, err := time.Parse(format, v); err == nil {
				return parsed, nil
			}
		}

		return time.Time{}, fmt.Errorf("could not parse date string: %s", v)
	default:
		return parseDate(FormatValue(v))
	}
}

// FormatDateRule parses value as a date and formats it with a date-fns style pattern.
// An empty pattern means DefaultDatePattern.
func FormatDateRule(value interface{}, pattern string) (string, error) {
	t, err := parseDate(value)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultDatePattern
	}
	return formatDatePattern(t, pattern)
}

// formatDatePattern renders t using date-fns tokens. Runs of the same letter form one
// token; text inside single quotes is literal and a doubled quote is a quote. Unknown letters are
// an error, as in date-fns.
func formatDatePattern(t time.Time, pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		c := runes[i]

		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						b.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				b.WriteRune(runes[j])
				j++
			}
			i = j + 1
			continue
		}

		if !isASCIILetter(c) {
			b.WriteRune(c)
			i++
			continue
		}

		j := i
		for j < len(runes) && runes[j] == c {
			j++
		}
		token := string(runes[i:j])
		formatted, err := formatDateToken(t, c, j-i)
		if err != nil {
			return "", fmt.Errorf("format pattern %q: token %q: %w", pattern, token, err)
		}
		b.WriteString(formatted)
		i = j
	}

	return b.String(), nil
}

func formatDateToken(t time.Time, letter rune, width int) (string, error) {
	switch letter {
	case 'y':
		switch width {
		case 1:
			return strconv.Itoa(t.Year()), nil
		case 2:
			return pad(t.Year()%100, 2), nil
		default:
			return pad(t.Year(), width), nil
		}
	case 'M':
		switch width {
		case 1:
			return strconv.Itoa(int(t.Month())), nil
		case 2:
			return pad(int(t.Month()), 2), nil
		case 3:
			return t.Format("Jan"), nil
		case 4:
			return t.Format("January"), nil
		default:
			return t.Format("January")[:1], nil
		}
	case 'd':
		switch width {
		case 1:
			return strconv.Itoa(t.Day()), nil
		case 2:
			return pad(t.Day(), 2), nil
		}
	case 'E':
		switch {
		case width <= 3:
			return t.Format("Mon"), nil
		case width == 4:
			return t.Format("Monday"), nil
		case width == 5:
			return t.Format("Monday")[:1], nil
		default:
			return t.Format("Monday")[:2], nil
		}
	case 'H':
		return pad(t.Hour(), width), nil
	case 'h':
		hour := t.Hour() % 12
		if hour == 0 {
			hour = 12
		}
		return pad(hour, width), nil
	case 'm':
		return pad(t.Minute(), width), nil
	case 's':
		return pad(t.Second(), width), nil
	case 'S':
		fraction := fmt.Sprintf("%09d", t.Nanosecond())
		if width > 9 {
			return fraction + strings.Repeat("0", width-9), nil
		}
		return fraction[:width], nil
	case 'a':
		if width <= 3 {
			return t.Format("PM"), nil
		}
		return strings.ToLower(t.Format("PM")), nil
	}

	return "", fmt.Errorf("unsupported date token")
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return s
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
