package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SentinelID replaces parameter tokens that have no value.
const SentinelID = "00000000-0000-0000-0000-000000000000"

// Trim removes trailing statement terminators and whitespace.
func Trim(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}

// Substitute replaces :name tokens with literal values from params.
//
// Tokens inside single-quoted literals or double-quoted identifiers are left
// alone, as are :: casts. Strings are single-quoted with embedded quotes
// doubled; numbers and booleans are written bare; nil becomes NULL. Tokens
// without a parameter become the quoted SentinelID and are returned in
// missing, in order of appearance.
func Substitute(sql string, params map[string]any) (out string, missing []string) {
	var b strings.Builder
	b.Grow(len(sql))

	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == ':' && i+1 < len(sql) && sql[i+1] == ':':
			b.WriteString("::")
			i++
		case c == ':' && i+1 < len(sql) && isIdentStart(sql[i+1]):
			j := i + 1
			for j < len(sql) && isIdentPart(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			if v, ok := params[name]; ok {
				b.WriteString(Literal(v))
			} else {
				b.WriteString(quoteString(SentinelID))
				missing = append(missing, name)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), missing
}

// Literal renders v as a SQL literal.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case *string:
		if val == nil {
			return "NULL"
		}
		return quoteString(*val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return quoteString(val.UTC().Format(time.RFC3339Nano))
	case []string:
		items := make([]string, len(val))
		for i, s := range val {
			items[i] = quoteString(s)
		}
		return strings.Join(items, ", ")
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = Literal(item)
		}
		return strings.Join(items, ", ")
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
