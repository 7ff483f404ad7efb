package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/itemvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Source) ([]core.RawItem, []error) {
	t.Helper()
	var items []core.RawItem
	var errs []error
	for raw, err := range s.Items(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, raw)
	}
	return items, errs
}

func TestFileSource_JSONArray(t *testing.T) {
	src := NewReaderSource(strings.NewReader(`
[
  {"id": 1, "name": "Shirt", "created_date": 1682899200000},
  {"id": "2", "name": "Hat", "created_date": {"$date": "2023-05-01T00:00:00Z"}}
]`), "test")

	items, errs := collect(t, src)
	require.Empty(t, errs)
	require.Len(t, items, 2)

	assert.Equal(t, json.Number("1"), items[0]["id"])
	assert.Equal(t, json.Number("1682899200000"), items[0]["created_date"])
	assert.Equal(t, map[string]any{"$date": "2023-05-01T00:00:00Z"}, items[1]["created_date"])
}

func TestFileSource_ArrayWithBadElement(t *testing.T) {
	src := NewReaderSource(strings.NewReader(`[{"id": 1}, 42, null, {"id": 3}]`), "test")

	items, errs := collect(t, src)
	require.Len(t, items, 2)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, core.ErrSchema)
	}
}

func TestFileSource_NDJSON(t *testing.T) {
	src := NewReaderSource(strings.NewReader(
		"{\"id\": 1, \"name\": \"Shirt\"}\n\n{\"id\": 2, \"name\": \"Hat\"}\r\n{broken\n{\"id\": 4}\n"), "items.ndjson")

	items, errs := collect(t, src)
	require.Len(t, items, 3)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], core.ErrSchema)
	assert.Contains(t, errs[0].Error(), "items.ndjson line 4")
	assert.Equal(t, json.Number("4"), items[2]["id"])
}

func TestFileSource_NDJSONRejectsTrailingData(t *testing.T) {
	src := NewReaderSource(strings.NewReader(`{"id": 1} {"id": 2}`+"\n"), "test")

	items, errs := collect(t, src)
	assert.Empty(t, items)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], core.ErrSchema)
}

func TestFileSource_TruncatedArrayIsFatal(t *testing.T) {
	src := NewReaderSource(strings.NewReader(`[{"id": 1}, {"id": 2`), "test")

	items, errs := collect(t, src)
	assert.Len(t, items, 1)
	require.Len(t, errs, 1)
	assert.NotErrorIs(t, errs[0], core.ErrSchema)
}

func TestFileSource_EmptyAndBOM(t *testing.T) {
	items, errs := collect(t, NewReaderSource(strings.NewReader("  \n "), "empty"))
	assert.Empty(t, items)
	assert.Empty(t, errs)

	items, errs = collect(t, NewReaderSource(strings.NewReader("\xEF\xBB\xBF[{\"id\": 1}]"), "bom"))
	assert.Empty(t, errs)
	assert.Len(t, items, 1)
}

func TestFileSource_StopsWhenConsumerStops(t *testing.T) {
	src := NewReaderSource(strings.NewReader("{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n"), "test")

	n := 0
	for range src.Items(context.Background()) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "a"}]`), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	items, errs := collect(t, src)
	assert.Empty(t, errs)
	assert.Equal(t, []core.RawItem{{"id": "a"}}, items)

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
