// Package etag handles the entity tags SharePoint attaches to list items
// (__metadata.etag, usually a quoted version number such as "3").
package etag

import "strings"

// Any is the If-Match value that matches every version of an entry.
const Any = "*"

// Parse strips the weak prefix and the quotes from an entity tag.
// Parse(`W/"3"`) and Parse(`"3"`) both return 3.
func Parse(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		return tag[1 : len(tag)-1]
	}
	return tag
}

// IfMatch returns the If-Match header value for tag. An empty tag matches any
// version. Bare values are quoted, so callers may pass either the raw item
// version or the tag exactly as SharePoint returned it.
func IfMatch(tag string) string {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "" || tag == Any:
		return Any
	case strings.HasPrefix(tag, `"`), strings.HasPrefix(tag, `W/"`):
		return tag
	default:
		return `"` + tag + `"`
	}
}

// Match reports whether two entity tags name the same version, ignoring
// weakness and quoting. "*" matches any non-empty tag.
func Match(a, b string) bool {
	if a == Any {
		return b != ""
	}
	if b == Any {
		return a != ""
	}
	return Parse(a) == Parse(b)
}
