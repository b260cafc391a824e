package sprest

import "strings"

// Conditions is an insertion-ordered mapping of field name to a condition
// expression such as "eq 5" or "gt '2020-01-01'". The zero value is empty and
// ready to use. Conditions are sent as written: a literal '&' or '%' must be
// pre-escaped as %26 or %25, which QuoteLiteral does.
type Conditions struct {
	fields []string
	conds  map[string]string
}

// NewConditions builds Conditions from alternating field/condition strings.
// A trailing field without a condition is ignored.
//
//	sprest.NewConditions("Status", "eq 1", "Type", "eq 2")
func NewConditions(pairs ...string) Conditions {
	var c Conditions
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Set(pairs[i], pairs[i+1])
	}
	return c
}

// Set assigns cond to field. Existing fields keep their position.
func (c *Conditions) Set(field, cond string) {
	if c.conds == nil {
		c.conds = make(map[string]string)
	}
	if _, ok := c.conds[field]; !ok {
		c.fields = append(c.fields, field)
	}
	c.conds[field] = cond
}

// Get returns the condition registered for field.
func (c Conditions) Get(field string) (string, bool) {
	cond, ok := c.conds[field]
	return cond, ok
}

// Len returns the number of fields.
func (c Conditions) Len() int {
	return len(c.fields)
}

// Fields returns the field names in insertion order.
func (c Conditions) Fields() []string {
	out := make([]string, len(c.fields))
	copy(out, c.fields)
	return out
}

// terms renders each entry as "(<field> <condition>)".
func (c Conditions) terms() []string {
	out := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		out = append(out, "("+f+" "+c.conds[f]+")")
	}
	return out
}

// QuerySpec describes the OData query options for a single request.
// All fields are optional. Field names and conditions are passed through
// verbatim: no escaping or validation is performed.
type QuerySpec struct {
	// Expand lists related entities (lookup fields) to expand.
	Expand []string
	// Select lists the fields to return.
	Select []string
	// And conditions are joined with " and ".
	And Conditions
	// Or conditions are joined with " or " and ANDed with the And group.
	Or Conditions
}

// String renders the query fragment. Segments appear in the order
// $select, $expand, $filter and are joined with '&'. An empty spec renders
// as the empty string.
func (q QuerySpec) String() string {
	segments := make([]string, 0, 3)

	if len(q.Select) > 0 {
		segments = append(segments, "$select="+strings.Join(q.Select, ","))
	}
	if len(q.Expand) > 0 {
		segments = append(segments, "$expand="+strings.Join(q.Expand, ","))
	}

	and := q.And.terms()
	or := q.Or.terms()
	switch {
	case len(and) > 0 && len(or) > 0:
		segments = append(segments, "$filter=("+strings.Join(and, " and ")+" and ("+strings.Join(or, " or ")+"))")
	case len(and) > 0:
		segments = append(segments, "$filter=("+strings.Join(and, " and ")+")")
	case len(or) > 0:
		segments = append(segments, "$filter=("+strings.Join(or, " or ")+")")
	}

	return strings.Join(segments, "&")
}

// IsEmpty reports whether the spec renders to the empty string.
func (q QuerySpec) IsEmpty() bool {
	return len(q.Select) == 0 && len(q.Expand) == 0 && q.And.Len() == 0 && q.Or.Len() == 0
}

// BuildQuery renders a query fragment from its four optional parts.
func BuildQuery(expand, selectFields []string, and, or Conditions) string {
	return QuerySpec{Expand: expand, Select: selectFields, And: and, Or: or}.String()
}

// literalEscaper doubles single quotes and percent-encodes the characters
// the request encoder would otherwise treat as query syntax.
var literalEscaper = strings.NewReplacer("'", "''", "%", "%25", "&", "%26")

// QuoteLiteral renders s as an OData string literal for a condition,
// doubling embedded single quotes and escaping '%' and '&' so the value
// stays inside a single query parameter. The builder never applies it;
// callers quote values they do not control.
func QuoteLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}
