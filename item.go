package sprest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nlstn/go-sprest/internal/etag"
	"github.com/nlstn/go-sprest/internal/verbose"
	"github.com/shopspring/decimal"
)

// Item is a single verbose entry returned by SharePoint: a list, list item,
// field, folder, file or user. Properties are kept as raw JSON and decoded
// on access.
type Item map[string]json.RawMessage

// ItemMetadata is the __metadata block of an entry.
type ItemMetadata = verbose.Metadata

func decodeItem(raw json.RawMessage) (Item, error) {
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return item, nil
}

func decodeItems(raws []json.RawMessage) ([]Item, error) {
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Has reports whether the property is present.
func (it Item) Has(field string) bool {
	_, ok := it[field]
	return ok
}

// IsNull reports whether the property is absent or JSON null.
func (it Item) IsNull(field string) bool {
	raw, ok := it[field]
	return !ok || string(raw) == "null"
}

// Decode unmarshals a single property into v.
func (it Item) Decode(field string, v any) error {
	raw, ok := it[field]
	if !ok {
		return fmt.Errorf("sprest: property %q not present", field)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("sprest: decode property %q: %w", field, err)
	}
	return nil
}

// Into unmarshals the whole entry into v, typically a struct with json tags.
func (it Item) Into(v any) error {
	data, err := json.Marshal(it)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// String returns a text property. Null or missing properties yield "".
func (it Item) String(field string) string {
	if it.IsNull(field) {
		return ""
	}
	var s string
	if err := json.Unmarshal(it[field], &s); err != nil {
		// numbers and booleans are returned in their JSON form
		return string(it[field])
	}
	return s
}

// Int returns an integer property. SharePoint renders some counters as
// strings, so quoted integers are accepted too.
func (it Item) Int(field string) (int, error) {
	if it.IsNull(field) {
		return 0, fmt.Errorf("sprest: property %q is null", field)
	}
	var n int
	if err := json.Unmarshal(it[field], &n); err == nil {
		return n, nil
	}
	n, err := strconv.Atoi(it.String(field))
	if err != nil {
		return 0, fmt.Errorf("sprest: property %q is not an integer: %w", field, err)
	}
	return n, nil
}

// Bool returns a boolean property.
func (it Item) Bool(field string) (bool, error) {
	var b bool
	err := it.Decode(field, &b)
	return b, err
}

// Decimal returns a numeric property with arbitrary precision. Currency and
// number columns are returned as JSON numbers; Edm.Decimal values as strings.
func (it Item) Decimal(field string) (decimal.Decimal, error) {
	if it.IsNull(field) {
		return decimal.Zero, fmt.Errorf("sprest: property %q is null", field)
	}
	d, err := decimal.NewFromString(it.String(field))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sprest: property %q is not a number: %w", field, err)
	}
	return d, nil
}

// Time returns a date/time property in the ISO 8601 form SharePoint uses.
func (it Item) Time(field string) (time.Time, error) {
	s := it.String(field)
	if s == "" {
		return time.Time{}, fmt.Errorf("sprest: property %q is empty", field)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sprest: property %q is not a timestamp: %w", field, err)
	}
	return t, nil
}

// ID returns the numeric Id of a list item, file item or user.
func (it Item) ID() int {
	n, _ := it.Int("Id")
	return n
}

// Title returns the Title property.
func (it Item) Title() string {
	return it.String("Title")
}

// Metadata returns the __metadata block. Missing metadata yields the zero value.
func (it Item) Metadata() ItemMetadata {
	var md ItemMetadata
	_ = it.Decode("__metadata", &md)
	return md
}

// ETag returns the entry's ETag, or "" when SharePoint did not send one.
func (it Item) ETag() string {
	return it.Metadata().ETag
}

// Version returns the ETag without quotes, e.g. "3" for "\"3\"".
func (it Item) Version() string {
	return etag.Parse(it.ETag())
}

// DeferredURI returns the link of a navigation property that was not expanded.
func (it Item) DeferredURI(field string) (string, error) {
	raw, ok := it[field]
	if !ok {
		return "", fmt.Errorf("sprest: property %q not present", field)
	}
	return verbose.DeferredURI(raw)
}

// Expanded returns the entries of an expanded collection navigation property
// such as Folders or Files after $expand=Folders,Files.
func (it Item) Expanded(field string) ([]Item, error) {
	raw, ok := it[field]
	if !ok {
		return nil, fmt.Errorf("sprest: property %q not present", field)
	}
	c, err := verbose.DecodeCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("sprest: property %q: %w", field, err)
	}
	return decodeItems(c.Results)
}
