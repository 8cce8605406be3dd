package defra

import (
	"fmt"
	"regexp"
	"strings"
)

// IDPattern matches identifiers that are safe to interpolate into GraphQL
// documents (type names, field names, bae-<uuid> document IDs).
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks if a string is safe to use as an identifier in GraphQL documents.
// Returns an error if it contains characters that could be used for injection.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder constructs parameterized GraphQL requests against one
// collection type. Filter values always travel as variables.
type QueryBuilder struct {
	typeName string
	filters  []filterDef
	fields   []string
	orders   []string
	limit    int
	varIndex int
}

type filterDef struct {
	field   string
	op      string
	varName string
	varType string
	value   any
}

// NewQuery creates a new QueryBuilder for the given DefraDB type.
func NewQuery(typeName string) *QueryBuilder {
	return &QueryBuilder{
		typeName: typeName,
		fields:   []string{"_docID"},
	}
}

// Filter adds an equality filter. A nil value matches null fields.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.add(field, "_eq", inferGraphQLType(value), value)
}

// FilterIn adds an _in filter for matching any of the values.
func (q *QueryBuilder) FilterIn(field string, values []any) *QueryBuilder {
	elem := "String"
	if len(values) > 0 {
		elem = inferGraphQLType(values[0])
	}
	return q.add(field, "_in", "["+elem+"]", values)
}

// FilterILike adds a case-insensitive LIKE filter.
func (q *QueryBuilder) FilterILike(field, pattern string) *QueryBuilder {
	return q.add(field, "_ilike", "String", pattern)
}

// Fields sets the fields to return (replaces default of just _docID).
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy appends an ordering term. Direction is ASC or DESC.
func (q *QueryBuilder) OrderBy(field string, direction string) *QueryBuilder {
	q.orders = append(q.orders, fmt.Sprintf("{%s: %s}", field, direction))
	return q
}

// Limit sets the maximum number of results.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Build returns the read query string and variables map.
func (q *QueryBuilder) Build() (string, map[string]any) {
	varDefs, vars := q.variables()

	var args []string
	if f := q.filterClause(); f != "" {
		args = append(args, f)
	}
	switch len(q.orders) {
	case 0:
	case 1:
		args = append(args, "order: "+q.orders[0])
	default:
		args = append(args, "order: ["+strings.Join(q.orders, ", ")+"]")
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}

	var b strings.Builder
	if varDefs != "" {
		b.WriteString("query(" + varDefs + ") ")
	}
	b.WriteString("{ " + q.typeName)
	if len(args) > 0 {
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	b.WriteString(" { " + strings.Join(q.fields, " ") + " } }")
	return b.String(), vars
}

// BuildUpdate returns an update mutation applying input to every match.
func (q *QueryBuilder) BuildUpdate(input map[string]any) (string, map[string]any, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build input: %w", err)
	}
	return q.mutation("update", "input: "+inputGQL), q.varsOnly(), nil
}

// BuildDelete returns a delete mutation removing every match.
func (q *QueryBuilder) BuildDelete() (string, map[string]any) {
	return q.mutation("delete", ""), q.varsOnly()
}

// BuildCreate returns a create mutation for one document.
func BuildCreate(typeName string, input map[string]any, fields ...string) (string, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return "", fmt.Errorf("failed to build input: %w", err)
	}
	if len(fields) == 0 {
		fields = []string{"_docID"}
	}
	return fmt.Sprintf(`mutation { create_%s(input: %s) { %s } }`, typeName, inputGQL, strings.Join(fields, " ")), nil
}

func (q *QueryBuilder) mutation(verb, extra string) string {
	varDefs, _ := q.variables()
	var args []string
	if f := q.filterClause(); f != "" {
		args = append(args, f)
	}
	if extra != "" {
		args = append(args, extra)
	}
	header := "mutation"
	if varDefs != "" {
		header += "(" + varDefs + ")"
	}
	return fmt.Sprintf("%s { %s_%s(%s) { _docID } }", header, verb, q.typeName, strings.Join(args, ", "))
}

func (q *QueryBuilder) add(field, op, varType string, value any) *QueryBuilder {
	q.filters = append(q.filters, filterDef{
		field:   field,
		op:      op,
		varName: q.nextVarName(),
		varType: varType,
		value:   value,
	})
	return q
}

func (q *QueryBuilder) variables() (string, map[string]any) {
	var defs []string
	vars := make(map[string]any, len(q.filters))
	for _, f := range q.filters {
		defs = append(defs, fmt.Sprintf("$%s: %s", f.varName, f.varType))
		vars[f.varName] = f.value
	}
	return strings.Join(defs, ", "), vars
}

func (q *QueryBuilder) varsOnly() map[string]any {
	_, vars := q.variables()
	return vars
}

func (q *QueryBuilder) filterClause() string {
	if len(q.filters) == 0 {
		return ""
	}
	parts := make([]string, len(q.filters))
	for i, f := range q.filters {
		parts[i] = fmt.Sprintf("{%s: {%s: $%s}}", f.field, f.op, f.varName)
	}
	if len(parts) == 1 {
		return "filter: " + parts[0]
	}
	return "filter: {_and: [" + strings.Join(parts, ", ") + "]}"
}

// nextVarName generates the next variable name.
func (q *QueryBuilder) nextVarName() string {
	name := fmt.Sprintf("v%d", q.varIndex)
	q.varIndex++
	return name
}

// inferGraphQLType infers the GraphQL type from a Go value.
func inferGraphQLType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
