package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Field names of the catalog item schema as they appear in source records
// and in persisted metadata.
const (
	FieldID          = "id"
	FieldStoreID     = "_id" // identity assigned by the document store
	FieldName        = "name"
	FieldDescription = "description"
	FieldColor       = "color"
	FieldSize        = "size"
	FieldPrice       = "price"
	FieldCreatedDate = "created_date"
)

// RawItem is a source record exactly as a document source yields it.
type RawItem map[string]any

// Metadata is the field mapping persisted next to a vector.
type Metadata map[string]any

// Item is a catalog record after decoding and date normalization.
type Item struct {
	ID          string
	Name        string
	Description string
	Color       string
	Size        string
	Price       *float64
	CreatedDate *int64 // canonical epoch-ms; nil when absent or unparseable

	// raw holds the source fields so metadata can carry fields outside the
	// fixed schema.
	raw RawItem
}

// Metadata returns every source field except the store-assigned identity,
// with id set to the stringified identity and created_date replaced by its
// canonical epoch-ms value (or nil).
func (it *Item) Metadata() Metadata {
	md := make(Metadata, len(it.raw)+1)
	for k, v := range it.raw {
		if k == FieldStoreID {
			continue
		}
		md[k] = v
	}
	if it.ID != "" {
		md[FieldID] = it.ID
	}
	if it.CreatedDate != nil {
		md[FieldCreatedDate] = *it.CreatedDate
	} else {
		md[FieldCreatedDate] = nil
	}
	return md
}

// EmbeddingRecord is the unit written to a vector index.
type EmbeddingRecord struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// DecodeItem converts a raw source record into an Item. Text fields must be
// strings (or numbers, which are rendered as text), price must be numeric.
// The created_date field is normalized; a date that cannot be parsed yields a
// nil CreatedDate together with a *DateParseError, while schema violations
// return a *SchemaError and no item.
//
// DecodeItem does not require an identity; use ValidateItem for records
// that are going to be stored.
func DecodeItem(raw RawItem) (*Item, error) {
	item := &Item{raw: maps.Clone(raw)}
	if item.raw == nil {
		item.raw = RawItem{}
	}

	id, err := identity(raw)
	if err != nil {
		return nil, err
	}
	item.ID = id

	textFields := []struct {
		name string
		dst  *string
	}{
		{FieldName, &item.Name},
		{FieldDescription, &item.Description},
		{FieldColor, &item.Color},
		{FieldSize, &item.Size},
	}
	for _, f := range textFields {
		s, err := textValue(f.name, raw[f.name])
		if err != nil {
			return nil, err
		}
		*f.dst = s
	}

	price, err := priceValue(raw[FieldPrice])
	if err != nil {
		return nil, err
	}
	item.Price = price

	created, dateErr := NormalizeDate(raw[FieldCreatedDate])
	item.CreatedDate = created
	if dateErr != nil {
		return item, dateErr
	}
	return item, nil
}

// identity returns the stringified item identity, preferring the catalog id
// over the store-assigned one.
func identity(raw RawItem) (string, error) {
	for _, key := range []string{FieldID, FieldStoreID} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		s, err := stringify(v)
		if err != nil {
			return "", &SchemaError{Field: key, Reason: err.Error()}
		}
		if s != "" {
			return s, nil
		}
	}
	return "", nil
}

func textValue(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, err := stringify(v)
	if err != nil {
		return "", &SchemaError{Field: field, Reason: err.Error()}
	}
	return s, nil
}

func priceValue(v any) (*float64, error) {
	var f float64
	switch p := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(p) == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &SchemaError{Field: FieldPrice, Reason: fmt.Sprintf("not a number: %q", p)}
		}
		f = parsed
	default:
		n, ok := asFloat(v)
		if !ok {
			return nil, &SchemaError{Field: FieldPrice, Reason: fmt.Sprintf("unsupported type %T", v)}
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &SchemaError{Field: FieldPrice, Reason: "not a finite number"}
	}
	return &f, nil
}

// stringify renders scalar identity and text values. Composite values are
// rejected.
func stringify(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	if n, ok := asInt64(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if n, ok := v.(uint64); ok {
		return strconv.FormatUint(n, 10), nil
	}
	if n, ok := v.(uint); ok {
		return strconv.FormatUint(uint64(n), 10), nil
	}
	if f, ok := asFloat(v); ok {
		return formatNumber(f), nil
	}
	return "", fmt.Errorf("unsupported type %T", v)
}

// asInt64 converts signed integers and the unsigned types that fit in an
// int64 without loss.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// asFloat converts any Go numeric type (and json.Number) to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatNumber renders a number with the shortest exact decimal
// representation: 49.99 -> "49.99", 50 -> "50".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
