package core

import "strings"

// EmbeddingText renders the fixed embedding template for an item:
//
//	{name} {description} color:{color} size:{size} price:{price}
//
// Missing fields render as empty strings. The same function is used at
// ingestion, re-embedding and query time so that vectors stay comparable.
func EmbeddingText(item *Item) string {
	if item == nil {
		item = &Item{}
	}
	price := ""
	if item.Price != nil {
		price = formatNumber(*item.Price)
	}

	var b strings.Builder
	b.Grow(len(item.Name) + len(item.Description) + len(item.Color) + len(item.Size) + len(price) + 22)
	b.WriteString(item.Name)
	b.WriteByte(' ')
	b.WriteString(item.Description)
	b.WriteString(" color:")
	b.WriteString(item.Color)
	b.WriteString(" size:")
	b.WriteString(item.Size)
	b.WriteString(" price:")
	b.WriteString(price)
	return b.String()
}

// EmbeddingTextFor decodes a raw record and renders its embedding text.
// Date errors are ignored since created_date is not part of the template.
func EmbeddingTextFor(raw RawItem) (string, error) {
	item, err := DecodeItem(raw)
	if item == nil {
		return "", err
	}
	return EmbeddingText(item), nil
}
