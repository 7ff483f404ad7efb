package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID(t *testing.T) {
	decode := func(raw RawItem) *Item {
		item, err := DecodeItem(raw)
		require.NoError(t, err)
		return item
	}

	base := RawItem{"name": "Shirt", "description": "cotton tee", "color": "blue", "size": "M", "price": 19.5}
	a := decode(base)

	id := ContentID(a)
	assert.Len(t, id, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", id)
	assert.Equal(t, id, ContentID(decode(base)), "same content must hash identically")

	t.Run("date participates", func(t *testing.T) {
		dated := RawItem{"name": "Shirt", "description": "cotton tee", "color": "blue", "size": "M", "price": 19.5,
			"created_date": "2024-07-12T00:00:00Z"}
		assert.NotEqual(t, id, ContentID(decode(dated)))
	})

	t.Run("equivalent dates agree", func(t *testing.T) {
		iso := RawItem{"name": "Shirt", "created_date": "2024-07-12"}
		epoch := RawItem{"name": "Shirt", "created_date": int64(1720742400000)}
		assert.Equal(t, ContentID(decode(iso)), ContentID(decode(epoch)))
	})

	t.Run("text participates", func(t *testing.T) {
		other := RawItem{"name": "Shirt", "description": "linen tee", "color": "blue", "size": "M", "price": 19.5}
		assert.NotEqual(t, id, ContentID(decode(other)))
	})

	t.Run("nil item", func(t *testing.T) {
		assert.Equal(t, ContentID(&Item{}), ContentID(nil))
	})
}
