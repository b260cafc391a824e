package sprest

import (
	"strings"
	"sync"
	"testing"
)

func TestQuerySpecString(t *testing.T) {
	tests := []struct {
		name string
		spec QuerySpec
		want string
	}{
		{
			name: "empty",
			spec: QuerySpec{},
			want: "",
		},
		{
			name: "empty slices",
			spec: QuerySpec{Select: []string{}, Expand: []string{}},
			want: "",
		},
		{
			name: "select only",
			spec: QuerySpec{Select: []string{"A", "B"}},
			want: "$select=A,B",
		},
		{
			name: "expand only",
			spec: QuerySpec{Expand: []string{"X"}},
			want: "$expand=X",
		},
		{
			name: "select and expand",
			spec: QuerySpec{Select: []string{"A"}, Expand: []string{"X"}},
			want: "$select=A&$expand=X",
		},
		{
			name: "and only",
			spec: QuerySpec{And: NewConditions("Status", "eq 1")},
			want: "$filter=((Status eq 1))",
		},
		{
			name: "and with two entries",
			spec: QuerySpec{And: NewConditions("Status", "eq 1", "Type", "eq 2")},
			want: "$filter=((Status eq 1) and (Type eq 2))",
		},
		{
			name: "or only",
			spec: QuerySpec{Or: NewConditions("Type", "eq 2", "Type2", "eq 3")},
			want: "$filter=((Type eq 2) or (Type2 eq 3))",
		},
		{
			name: "and with or",
			spec: QuerySpec{
				And: NewConditions("Status", "eq 1"),
				Or:  NewConditions("Type", "eq 2", "Type2", "eq 3"),
			},
			want: "$filter=((Status eq 1) and ((Type eq 2) or (Type2 eq 3)))",
		},
		{
			name: "all four",
			spec: QuerySpec{
				Expand: []string{"Author", "Editor"},
				Select: []string{"Id", "Author/Title"},
				And:    NewConditions("Status", "eq 'Open'"),
				Or:     NewConditions("Priority", "eq 1"),
			},
			want: "$select=Id,Author/Title&$expand=Author,Editor&$filter=((Status eq 'Open') and ((Priority eq 1)))",
		},
		{
			name: "expand with filter",
			spec: QuerySpec{Expand: []string{"X"}, Or: NewConditions("A", "ne null")},
			want: "$expand=X&$filter=((A ne null))",
		},
		{
			name: "conditions passed through verbatim",
			spec: QuerySpec{And: NewConditions("Title", "eq 'a&b'")},
			want: "$filter=((Title eq 'a&b'))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.spec.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if strings.HasPrefix(got, "&") || strings.HasSuffix(got, "&") || strings.Contains(got, "&&") {
				t.Errorf("String() = %q has a stray '&'", got)
			}
			if tt.spec.IsEmpty() != (got == "") {
				t.Errorf("IsEmpty() = %v for %q", tt.spec.IsEmpty(), got)
			}
		})
	}
}

func TestBuildQueryMatchesString(t *testing.T) {
	expand := []string{"Author"}
	sel := []string{"Title"}
	and := NewConditions("Status", "eq 1")
	or := NewConditions("Type", "eq 2")

	got := BuildQuery(expand, sel, and, or)
	want := QuerySpec{Expand: expand, Select: sel, And: and, Or: or}.String()
	if got != want {
		t.Errorf("BuildQuery() = %q, want %q", got, want)
	}
	if BuildQuery(nil, nil, Conditions{}, Conditions{}) != "" {
		t.Error("BuildQuery with no input should be empty")
	}
}

func TestQuerySpecIdempotent(t *testing.T) {
	spec := QuerySpec{
		Expand: []string{"Author"},
		Select: []string{"Id", "Title"},
		And:    NewConditions("A", "eq 1", "B", "eq 2"),
		Or:     NewConditions("C", "eq 3"),
	}
	first := spec.String()

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = spec.String()
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != first {
			t.Errorf("call %d = %q, want %q", i, r, first)
		}
	}
}

func TestConditionsSetKeepsOrder(t *testing.T) {
	var c Conditions
	c.Set("B", "eq 1")
	c.Set("A", "eq 2")
	c.Set("B", "eq 3")

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	fields := c.Fields()
	if fields[0] != "B" || fields[1] != "A" {
		t.Errorf("Fields() = %v, want [B A]", fields)
	}
	if cond, ok := c.Get("B"); !ok || cond != "eq 3" {
		t.Errorf("Get(B) = %q, %v, want eq 3", cond, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}

	got := QuerySpec{And: c}.String()
	if got != "$filter=((B eq 3) and (A eq 2))" {
		t.Errorf("String() = %q", got)
	}
}

func TestConditionsFieldsIsCopy(t *testing.T) {
	c := NewConditions("A", "eq 1")
	fields := c.Fields()
	fields[0] = "Z"
	if c.Fields()[0] != "A" {
		t.Error("mutating Fields() result changed the conditions")
	}
}

func TestNewConditionsIgnoresTrailingField(t *testing.T) {
	c := NewConditions("A", "eq 1", "B")
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := map[string]string{
		"":        "''",
		"Open":    "'Open'",
		"O'Brien": "'O''Brien'",
		"''":      "''''''",
		"a and b": "'a and b'",
		"a&b":     "'a%26b'",
		"100%":    "'100%25'",
		"%26":     "'%2526'",
	}
	for in, want := range tests {
		if got := QuoteLiteral(in); got != want {
			t.Errorf("QuoteLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}
