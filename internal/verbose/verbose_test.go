package verbose

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUnwrap(t *testing.T) {
	d, err := Unwrap([]byte(`{"d":{"Id":"abc"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(d) != `{"Id":"abc"}` {
		t.Errorf("got %s", d)
	}
}

func TestUnwrap_Missing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no d", `{"value":[]}`},
		{"null d", `{"d":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unwrap([]byte(tt.body))
			if !errors.Is(err, ErrNoEnvelope) {
				t.Errorf("expected ErrNoEnvelope, got %v", err)
			}
		})
	}
}

func TestUnwrap_InvalidJSON(t *testing.T) {
	if _, err := Unwrap([]byte(`<html>`)); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestDecodeCollection(t *testing.T) {
	c, err := DecodeCollection(json.RawMessage(`{"results":[{"Id":1},{"Id":2}],"__next":"https://x/_api/web/lists?$skiptoken=2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(c.Results))
	}
	if c.Next != "https://x/_api/web/lists?$skiptoken=2" {
		t.Errorf("Next = %q", c.Next)
	}
}

func TestDecodeCollection_BareArray(t *testing.T) {
	c, err := DecodeCollection(json.RawMessage(` [{"Id":1}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Results) != 1 || c.Next != "" {
		t.Errorf("unexpected collection: %+v", c)
	}
}

func TestDecodeCollection_EmptyResults(t *testing.T) {
	c, err := DecodeCollection(json.RawMessage(`{"results":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Results) != 0 {
		t.Errorf("expected no results, got %d", len(c.Results))
	}
}

func TestDecodeCollection_NotACollection(t *testing.T) {
	if _, err := DecodeCollection(json.RawMessage(`{"Id":1}`)); err == nil {
		t.Fatal("expected error for single entity")
	}
}

func TestDeferredURI(t *testing.T) {
	uri, err := DeferredURI(json.RawMessage(`{"__deferred":{"uri":"https://x/_api/Web/Lists(guid'1')/Items(4)"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uri != "https://x/_api/Web/Lists(guid'1')/Items(4)" {
		t.Errorf("uri = %q", uri)
	}

	if _, err := DeferredURI(json.RawMessage(`{"results":[]}`)); err == nil {
		t.Error("expected error for expanded value")
	}
}

func TestScalar(t *testing.T) {
	var n int
	if err := Scalar(json.RawMessage(`{"ItemCount":12}`), "ItemCount", &n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("n = %d", n)
	}

	if err := Scalar(json.RawMessage(`{"ItemCount":12}`), "Other", &n); err == nil {
		t.Error("expected error for missing property")
	}
}
