package docbind

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"
)

// Regular expressions for path segments. Compiled patterns carry no match state, so
// they are safe to share between concurrent resolutions.
var (
	// Matches indexed access like items[2]
	indexSegmentRegex = regexp.MustCompile(`^(\w+)\[(\d+)\]$`)
	// Matches whole-collection access like items[]
	collectionSegmentRegex = regexp.MustCompile(`^(\w+)\[\]$`)
)

// EvaluateVariable resolves a dotted path against data. found is false when the path
// does not exist; a path that exists with a nil value is found.
func EvaluateVariable(path string, data TemplateData) (value interface{}, found bool) {
	value, found = lookupPath(data, path)

	logger := GetLogger()
	if logger.IsDebugMode() {
		logger.DebugExpression(path, value)
	}

	return value, found
}

// lookupPath tries path as a literal key of scope first, then walks its dot-separated
// segments.
func lookupPath(scope interface{}, path string) (interface{}, bool) {
	if path == "" || scope == nil {
		return nil, false
	}

	if v, ok := accessMapField(scope, path); ok {
		return v, true
	}

	current := scope
	for _, part := range strings.Split(path, ".") {
		if isNil(current) {
			return nil, false
		}

		if m := indexSegmentRegex.FindStringSubmatch(part); m != nil {
			collection, ok := accessMapField(current, m[1])
			if !ok {
				return nil, false
			}
			items, ok := asSlice(collection)
			if !ok {
				return nil, false
			}
			index, err := strconv.Atoi(m[2])
			if err != nil || index >= len(items) {
				return nil, false
			}
			current = items[index]
			continue
		}

		if m := collectionSegmentRegex.FindStringSubmatch(part); m != nil {
			v, ok := accessMapField(current, m[1])
			if !ok {
				return nil, false
			}
			current = v
			continue
		}

		v, ok := accessField(current, part)
		if !ok {
			return nil, false
		}
		current = v
	}

	return current, true
}

// accessField reads key from a map, an index or "length" from a slice, or "length"
// from a string.
func accessField(current interface{}, key string) (interface{}, bool) {
	if v, ok := accessMapField(current, key); ok {
		return v, true
	}

	if items, ok := asSlice(current); ok {
		if key == "length" {
			return len(items), true
		}
		if index, ok := canonicalIndex(key); ok && index < len(items) {
			return items[index], true
		}
		return nil, false
	}

	if s, ok := current.(string); ok && key == "length" {
		return len(utf16.Encode([]rune(s))), true
	}

	return nil, false
}

// accessMapField accesses a field in a map-like structure
func accessMapField(current interface{}, field string) (interface{}, bool) {
	switch v := current.(type) {
	case nil:
		return nil, false
	case TemplateData:
		val, ok := v[field]
		return val, ok
	case map[string]interface{}:
		val, ok := v[field]
		return val, ok
	case map[string]string:
		val, ok := v[field]
		return val, ok
	case map[string]int:
		val, ok := v[field]
		return val, ok
	case map[string]float64:
		val, ok := v[field]
		return val, ok
	case map[string]bool:
		val, ok := v[field]
		return val, ok
	}

	rv := reflect.ValueOf(current)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	val := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
	if !val.IsValid() {
		return nil, false
	}
	return val.Interface(), true
}

// asMap returns the entries of a map with string keys.
func asMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case TemplateData:
		return v, true
	case map[string]interface{}:
		return v, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	entries := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries[iter.Key().String()] = iter.Value().Interface()
	}
	return entries, true
}

// asSlice returns the elements of a slice or array value.
func asSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []interface{}:
		return v, true
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, true
	case []string:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func canonicalIndex(key string) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return index, true
}

// isNil reports whether value is nil or a nil pointer. Nil maps and slices count as
// empty collections.
func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// isCollection reports whether value renders as JSON: maps, slices, arrays and structs
// other than time.Time.
func isCollection(value interface{}) bool {
	if _, ok := value.(time.Time); ok {
		return false
	}
	rv := reflect.Indirect(reflect.ValueOf(value))
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

// isTruthy applies the usual scripting truthiness: nil, false, zero, NaN and the empty
// string are false; everything else, empty collections included, is true.
func isTruthy(value interface{}) bool {
	if isNil(value) {
		return false
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	}

	if f, ok := numericValue(value); ok {
		return f != 0 && !math.IsNaN(f)
	}

	return true
}

// numericValue converts Go numeric types to float64.
func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// toNumber converts a resolved value to a number: nil is 0, booleans are 0 or 1,
// strings are parsed after trimming, single-element collections convert through their
// element, anything else is NaN.
func toNumber(value interface{}) float64 {
	if isNil(value) {
		return 0
	}

	if f, ok := numericValue(value); ok {
		return f
	}

	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseNumber(v)
	case time.Time:
		return float64(v.UnixMilli())
	}

	if items, ok := asSlice(value); ok {
		switch len(items) {
		case 0:
			return 0
		case 1:
			if _, nested := asSlice(items[0]); nested {
				return toNumber(items[0])
			}
			return parseNumber(FormatValue(items[0]))
		}
	}

	return math.NaN()
}

// parseNumber parses numeric text: surrounding whitespace is ignored, the empty string
// is 0, 0x/0o/0b prefixes and Infinity are accepted, anything else is NaN.
func parseNumber(s string) float64 {
	s = strings.TrimFunc(s, isScriptSpace)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return math.NaN()
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// FormatValue converts a value to its string representation
func FormatValue(value interface{}) string {
	if isNil(value) {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(v).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(v).Uint(), 10)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	}

	if isCollection(value) {
		return toJSON(value)
	}

	return fmt.Sprintf("%v", value)
}

// formatFloat renders the shortest round-trip form, switching to exponent notation
// outside [1e-7, 1e21).
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-7 {
		s := strconv.FormatFloat(f, 'e', -1, bitSize)
		mantissa, exp, _ := strings.Cut(s, "e")
		exp = strings.TrimLeft(exp, "+")
		sign := "+"
		if strings.HasPrefix(exp, "-") {
			sign = "-"
			exp = exp[1:]
		}
		exp = strings.TrimLeft(exp, "0")
		return mantissa + "e" + sign + exp
	}

	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

// isScriptSpace matches the whitespace set of template expressions: Unicode white
// space plus the byte order mark, without NEL.
func isScriptSpace(r rune) bool {
	return r == '\uFEFF' || (r != '\u0085' && unicode.IsSpace(r))
}
