package core

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// ContentID derives a 64-bit identity from an item's embedding text and
// canonical created_date, rendered as 16 hex digits. Items with identical
// content share an identity, so re-ingesting them overwrites rather than
// duplicates.
func ContentID(item *Item) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(EmbeddingText(item)))
	if item != nil && item.CreatedDate != nil {
		h.Write([]byte{0})
		h.Write(strconv.AppendInt(nil, *item.CreatedDate, 10))
	}
	return fmt.Sprintf("%016x", binary.BigEndian.Uint64(h.Sum(nil)))
}
