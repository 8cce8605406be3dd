package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jackzampolin/promptctx/internal/store"
)

// fallbackPattern recognizes the query shapes that can be re-expressed as a
// structured fetch:
//
//	SELECT <cols|*> FROM <collection> WHERE <col> = <literal>
//	SELECT <cols|*> FROM <collection> WHERE <col> IN (<list>)
//
// each optionally followed by ORDER BY <col> [ASC|DESC] and LIMIT <n>.
var fallbackPattern = regexp.MustCompile(`(?is)^SELECT\s+(\*|[\w"]+(?:\s*,\s*[\w"]+)*)` +
	`\s+FROM\s+("?\w+"?)` +
	`\s+WHERE\s+("?\w+"?)\s*(?:=\s*('(?:[^']|'')*'|[-\w.]+)|IN\s*\(((?:'(?:[^']|'')*'|[^)'])*)\))` +
	`(?:\s+ORDER\s+BY\s+("?\w+"?)(?:\s+(ASC|DESC))?)?` +
	`(?:\s+LIMIT\s+(\d+))?$`)

var quotedLiteral = regexp.MustCompile(`'((?:[^']|'')*)'`)

// fallbackQuery is a recognized query shape.
type fallbackQuery struct {
	Collection string
	Query      store.Query
}

// parseFallback matches sql against the recognized shapes.
func parseFallback(sql string) (*fallbackQuery, bool) {
	m := fallbackPattern.FindStringSubmatch(strings.TrimSpace(sql))
	if m == nil {
		return nil, false
	}

	fq := &fallbackQuery{Collection: unquoteIdent(m[2])}
	if m[1] != "*" {
		for _, col := range strings.Split(m[1], ",") {
			fq.Query.Columns = append(fq.Query.Columns, unquoteIdent(strings.TrimSpace(col)))
		}
	}

	field := unquoteIdent(m[3])
	if m[4] != "" {
		fq.Query.Filters = []store.Filter{store.Eq(field, parseLiteral(m[4]))}
	} else {
		fq.Query.Filters = []store.Filter{{Field: field, Op: store.OpIn, Value: parseList(m[5])}}
	}

	if m[6] != "" {
		fq.Query.Order = []store.Order{{Field: unquoteIdent(m[6]), Desc: strings.EqualFold(m[7], "DESC")}}
	}
	if m[8] != "" {
		n, err := strconv.Atoi(m[8])
		if err != nil {
			return nil, false
		}
		fq.Query.Limit = n
	}
	return fq, true
}

// parseList reads an IN list. Quoted literals are collected when present;
// otherwise the list is split on commas.
func parseList(list string) []any {
	if quoted := quotedLiteral.FindAllStringSubmatch(list, -1); len(quoted) > 0 {
		out := make([]any, len(quoted))
		for i, q := range quoted {
			out[i] = strings.ReplaceAll(q[1], "''", "'")
		}
		return out
	}
	var out []any
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, parseLiteral(item))
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}

// parseLiteral converts a SQL literal to a Go value.
func parseLiteral(lit string) any {
	lit = strings.TrimSpace(lit)
	if len(lit) >= 2 && lit[0] == '\'' && lit[len(lit)-1] == '\'' {
		return strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
	}
	if strings.EqualFold(lit, "NULL") {
		return nil
	}
	if strings.EqualFold(lit, "TRUE") || strings.EqualFold(lit, "FALSE") {
		return strings.EqualFold(lit, "TRUE")
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return f
	}
	return lit
}

func unquoteIdent(s string) string {
	return strings.Trim(s, `"`)
}
