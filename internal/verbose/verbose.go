// Package verbose decodes SharePoint's odata=verbose JSON envelopes.
//
// Every verbose payload wraps its value in a "d" member. Collections carry
// their entries in d.results and an optional d.__next continuation link;
// entries carry a __metadata block and __deferred links for navigation
// properties that were not expanded.
package verbose

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoEnvelope is returned when a body has no "d" member.
var ErrNoEnvelope = errors.New("verbose: missing d envelope")

// Metadata is the __metadata block of an entry.
type Metadata struct {
	ID   string `json:"id"`
	URI  string `json:"uri"`
	ETag string `json:"etag"`
	Type string `json:"type"`
}

// Collection is a decoded page of entries.
type Collection struct {
	Results []json.RawMessage
	Next    string
}

type envelope struct {
	D json.RawMessage `json:"d"`
}

type collection struct {
	Results []json.RawMessage `json:"results"`
	Next    string            `json:"__next"`
}

type deferred struct {
	Deferred struct {
		URI string `json:"uri"`
	} `json:"__deferred"`
}

// Unwrap returns the value inside the "d" member of body.
func Unwrap(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("verbose: decode envelope: %w", err)
	}
	if len(env.D) == 0 || bytes.Equal(env.D, []byte("null")) {
		return nil, ErrNoEnvelope
	}
	return env.D, nil
}

// DecodeCollection decodes the entries of d. Both the {"results": [...]}
// form and a bare array are accepted.
func DecodeCollection(d json.RawMessage) (Collection, error) {
	trimmed := bytes.TrimSpace(d)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []json.RawMessage
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return Collection{}, fmt.Errorf("verbose: decode results: %w", err)
		}
		return Collection{Results: results}, nil
	}

	var c collection
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return Collection{}, fmt.Errorf("verbose: decode collection: %w", err)
	}
	if c.Results == nil {
		return Collection{}, fmt.Errorf("verbose: value is not a collection")
	}
	return Collection{Results: c.Results, Next: c.Next}, nil
}

// DeferredURI returns the __deferred.uri of a navigation property value.
func DeferredURI(value json.RawMessage) (string, error) {
	var d deferred
	if err := json.Unmarshal(value, &d); err != nil {
		return "", fmt.Errorf("verbose: decode deferred link: %w", err)
	}
	if d.Deferred.URI == "" {
		return "", fmt.Errorf("verbose: value is not a deferred link")
	}
	return d.Deferred.URI, nil
}

// Scalar extracts a single named property from d. SharePoint wraps scalar
// function results this way, e.g. {"d":{"ItemCount":12}}.
func Scalar(d json.RawMessage, name string, v any) error {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(d, &props); err != nil {
		return fmt.Errorf("verbose: decode object: %w", err)
	}
	raw, ok := props[name]
	if !ok {
		return fmt.Errorf("verbose: property %q not present", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("verbose: decode property %q: %w", name, err)
	}
	return nil
}
