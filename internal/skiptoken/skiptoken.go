// Package skiptoken reads the paging tokens SharePoint puts in the __next
// link of a collection, e.g. $skiptoken=Paged=TRUE&p_ID=42.
package skiptoken

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Token is a decoded $skiptoken. Fields holds the position of the last row
// of the previous page keyed by column (p_ID, p_Modified, ...).
type Token struct {
	Paged  bool
	Fields map[string]string
}

// Parse decodes a raw $skiptoken value such as "Paged=TRUE&p_ID=2".
func Parse(raw string) (Token, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Token{}, fmt.Errorf("skiptoken %q: %w", raw, err)
	}
	tok := Token{Fields: make(map[string]string, len(values))}
	for key, v := range values {
		if len(v) == 0 {
			continue
		}
		if strings.EqualFold(key, "Paged") {
			tok.Paged = strings.EqualFold(v[0], "TRUE")
			continue
		}
		tok.Fields[key] = v[0]
	}
	return tok, nil
}

// FromURL extracts the token from a __next link. ok is false when the link
// carries no $skiptoken.
func FromURL(link string) (tok Token, ok bool, err error) {
	u, err := url.Parse(link)
	if err != nil {
		return Token{}, false, fmt.Errorf("next link %q: %w", link, err)
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Token{}, false, fmt.Errorf("next link %q: %w", link, err)
	}
	raw := query.Get("$skiptoken")
	if raw == "" {
		return Token{}, false, nil
	}
	tok, err = Parse(raw)
	if err != nil {
		return Token{}, false, err
	}
	return tok, true, nil
}

// LastID returns the p_ID the next page starts after.
func (t Token) LastID() (int, bool) {
	v, ok := t.Fields["p_ID"]
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// String encodes the token in a stable form, Paged first and the remaining
// fields sorted by name.
func (t Token) String() string {
	keys := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if t.Paged {
		parts = append(parts, "Paged=TRUE")
	}
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(t.Fields[k]))
	}
	return strings.Join(parts, "&")
}
