package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestDecodeItem(t *testing.T) {
	raw := RawItem{
		"_id":          "664f1c",
		"id":           json.Number("42"),
		"name":         "Jacket",
		"description":  "Warm",
		"color":        "red",
		"size":         "M",
		"price":        json.Number("49.99"),
		"created_date": map[string]any{"$date": "2023-05-01T00:00:00Z"},
		"stock":        7,
	}

	item, err := DecodeItem(raw)
	if err != nil {
		t.Fatalf("DecodeItem() error = %v", err)
	}
	if item.ID != "42" {
		t.Errorf("ID = %q, want 42", item.ID)
	}
	if item.Price == nil || *item.Price != 49.99 {
		t.Errorf("Price = %v, want 49.99", item.Price)
	}
	if item.CreatedDate == nil || *item.CreatedDate != may2023 {
		t.Errorf("CreatedDate = %v, want %d", item.CreatedDate, may2023)
	}

	md := item.Metadata()
	if _, ok := md["_id"]; ok {
		t.Error("metadata must not carry _id")
	}
	if md["created_date"] != may2023 {
		t.Errorf("metadata created_date = %v, want %d", md["created_date"], may2023)
	}
	if md["id"] != "42" {
		t.Errorf("metadata id = %#v, want the stringified identity", md["id"])
	}
	if md["stock"] != 7 {
		t.Errorf("metadata lost extra field: %v", md["stock"])
	}
}

func TestDecodeItem_IdentityFallback(t *testing.T) {
	item, err := DecodeItem(RawItem{"_id": "abc", "name": "x"})
	if err != nil {
		t.Fatalf("DecodeItem() error = %v", err)
	}
	if item.ID != "abc" {
		t.Errorf("ID = %q, want abc", item.ID)
	}
	if got := item.Metadata()["id"]; got != "abc" {
		t.Errorf("metadata id = %v, want abc", got)
	}
}

func TestDecodeItem_LargeIntegerIdentity(t *testing.T) {
	tests := []struct {
		id   any
		want string
	}{
		{int64(9007199254740993), "9007199254740993"},
		{int64(9007199254740992), "9007199254740992"},
		{int64(-7), "-7"},
		{uint64(math.MaxUint64), "18446744073709551615"},
		{uint32(42), "42"},
		{json.Number("9007199254740993"), "9007199254740993"},
		{float64(12), "12"},
	}
	for _, tt := range tests {
		item, err := DecodeItem(RawItem{"id": tt.id})
		if err != nil {
			t.Fatalf("DecodeItem(%v) error = %v", tt.id, err)
		}
		if item.ID != tt.want {
			t.Errorf("DecodeItem(%T %v).ID = %q, want %q", tt.id, tt.id, item.ID, tt.want)
		}
	}
}

func TestDecodeItem_BadDateKeepsItem(t *testing.T) {
	item, err := DecodeItem(RawItem{"id": "1", "created_date": "garbage"})
	if !errors.Is(err, ErrDateParse) {
		t.Fatalf("expected ErrDateParse, got %v", err)
	}
	if item == nil {
		t.Fatal("expected item alongside date error")
	}
	if item.CreatedDate != nil {
		t.Errorf("CreatedDate = %v, want nil", *item.CreatedDate)
	}
	md := item.Metadata()
	if v, ok := md["created_date"]; !ok || v != nil {
		t.Errorf("metadata created_date = %v (present %v), want explicit nil", v, ok)
	}
}

func TestDecodeItem_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawItem
		field string
	}{
		{"non numeric price", RawItem{"id": "1", "price": "cheap"}, "price"},
		{"composite price", RawItem{"id": "1", "price": []int{1}}, "price"},
		{"composite name", RawItem{"id": "1", "name": map[string]any{"a": 1}}, "name"},
		{"composite id", RawItem{"id": []string{"x"}}, "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := DecodeItem(tt.raw)
			if item != nil {
				t.Errorf("expected no item, got %+v", item)
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if se.Field != tt.field {
				t.Errorf("Field = %q, want %q", se.Field, tt.field)
			}
			if !errors.Is(err, ErrSchema) {
				t.Error("SchemaError should match ErrSchema")
			}
		})
	}
}

func TestDecodeItem_NumericStringPrice(t *testing.T) {
	item, err := DecodeItem(RawItem{"id": 7, "price": " 12.5 "})
	if err != nil {
		t.Fatalf("DecodeItem() error = %v", err)
	}
	if item.ID != "7" {
		t.Errorf("ID = %q, want 7", item.ID)
	}
	if item.Price == nil || *item.Price != 12.5 {
		t.Errorf("Price = %v, want 12.5", item.Price)
	}
}
