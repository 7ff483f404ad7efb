package core

import "testing"

func TestEmbeddingText(t *testing.T) {
	price := 49.99
	whole := 50.0

	tests := []struct {
		name string
		item *Item
		want string
	}{
		{
			name: "all fields",
			item: &Item{Name: "Jacket", Description: "Warm", Color: "red", Size: "M", Price: &price},
			want: "Jacket Warm color:red size:M price:49.99",
		},
		{
			name: "whole price",
			item: &Item{Name: "Jacket", Description: "Warm", Color: "red", Size: "M", Price: &whole},
			want: "Jacket Warm color:red size:M price:50",
		},
		{
			name: "integer and float sources agree",
			item: mustDecode(t, RawItem{"name": "Jacket", "description": "Warm", "color": "red", "size": "M", "price": 50}),
			want: "Jacket Warm color:red size:M price:50",
		},
		{
			name: "missing fields",
			item: &Item{Name: "Jacket"},
			want: "Jacket  color: size: price:",
		},
		{
			name: "nil item",
			item: nil,
			want: "  color: size: price:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmbeddingText(tt.item); got != tt.want {
				t.Errorf("EmbeddingText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmbeddingText_IgnoresDateAndExtras(t *testing.T) {
	a, err := DecodeItem(RawItem{"id": 1, "name": "Jacket", "price": 10, "created_date": 1})
	if err != nil {
		t.Fatalf("DecodeItem: %v", err)
	}
	b, err := DecodeItem(RawItem{"id": 2, "name": "Jacket", "price": 10.0, "created_date": "2020-01-01", "stock": 3})
	if err != nil {
		t.Fatalf("DecodeItem: %v", err)
	}
	if EmbeddingText(a) != EmbeddingText(b) {
		t.Errorf("expected identical text, got %q and %q", EmbeddingText(a), EmbeddingText(b))
	}
}

func TestEmbeddingTextFor(t *testing.T) {
	got, err := EmbeddingTextFor(RawItem{"name": "Jacket", "description": "Warm", "color": "red", "size": "M", "price": 49.99})
	if err != nil {
		t.Fatalf("EmbeddingTextFor: %v", err)
	}
	if want := "Jacket Warm color:red size:M price:49.99"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := EmbeddingTextFor(RawItem{"name": []int{1}}); err == nil {
		t.Error("expected schema error for non-scalar name")
	}
}

func mustDecode(t *testing.T, raw RawItem) *Item {
	t.Helper()
	item, err := DecodeItem(raw)
	if err != nil {
		t.Fatalf("DecodeItem: %v", err)
	}
	return item
}
