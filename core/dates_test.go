package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const may2023 int64 = 1682899200000

func TestNormalizeDate_Equivalence(t *testing.T) {
	inputs := []struct {
		name string
		raw  any
	}{
		{"int64 epoch", int64(may2023)},
		{"int epoch", int(may2023)},
		{"float epoch", float64(may2023)},
		{"float epoch with fraction", float64(may2023) + 0.9},
		{"json number", json.Number("1682899200000")},
		{"iso with Z", "2023-05-01T00:00:00Z"},
		{"iso with offset", "2023-05-01T02:00:00+02:00"},
		{"iso compact offset", "2023-05-01T02:00:00+0200"},
		{"iso hour offset", "2023-05-01T05:00:00+05"},
		{"iso negative hour offset", "2023-04-30T21:00:00-03"},
		{"iso without zone", "2023-05-01T00:00:00"},
		{"iso with millis", "2023-05-01T00:00:00.000Z"},
		{"space separator", "2023-05-01 00:00:00"},
		{"date only", "2023-05-01"},
		{"basic date", "20230501"},
		{"basic date-time", "20230501T020000+0200"},
		{"basic date-time Z", "20230501T000000Z"},
		{"wrapped iso", map[string]any{"$date": "2023-05-01T00:00:00Z"}},
		{"wrapped number long", map[string]any{"$date": map[string]any{"$numberLong": "1682899200000"}}},
		{"wrapped number", map[string]any{"$date": float64(may2023)}},
		{"native instant", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"native instant other zone", time.Date(2023, 4, 30, 20, 0, 0, 0, time.FixedZone("EDT", -4*3600))},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, may2023, *got)
		})
	}
}

func TestNormalizeDate_Missing(t *testing.T) {
	for _, raw := range []any{nil, "", "   ", (*time.Time)(nil)} {
		got, err := NormalizeDate(raw)
		assert.NoError(t, err)
		assert.Nil(t, got, "input %#v", raw)
	}
}

func TestNormalizeDate_Errors(t *testing.T) {
	inputs := []struct {
		name string
		raw  any
	}{
		{"garbage string", "not-a-date"},
		{"slash date", "05/01/2023"},
		{"negative epoch", int64(-1)},
		{"nan", math.NaN()},
		{"infinity", math.Inf(1)},
		{"bool", true},
		{"slice", []any{1, 2}},
		{"multi-key mapping", map[string]any{"$date": "2023-05-01", "x": 1}},
		{"empty wrapped", map[string]any{"$date": ""}},
		{"wrapped garbage", map[string]any{"$date": "soon"}},
		{"wrapped bad number long", map[string]any{"$date": map[string]any{"$numberLong": "abc"}}},
		{"instant before epoch", time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDateParse))

			var dpe *DateParseError
			require.True(t, errors.As(err, &dpe))
		})
	}
}

func TestNormalizeDate_NoRescale(t *testing.T) {
	// Seconds-looking values are taken at face value as milliseconds.
	got, err := NormalizeDate(1700000000)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), *got)
}

func TestClassifyDate(t *testing.T) {
	tests := []struct {
		raw  any
		want DateKind
	}{
		{nil, DateMissing},
		{"", DateMissing},
		{int64(1), DateEpoch},
		{2.5, DateEpoch},
		{"2023-05-01", DateISO},
		{map[string]any{"$date": "2023-05-01"}, DateWrapped},
		{RawItem{"$date": "2023-05-01"}, DateWrapped},
		{time.Now(), DateInstant},
		{[]string{"x"}, DateInvalid},
		{map[string]any{}, DateInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDate(tt.raw).Kind, "input %#v", tt.raw)
	}
}

func TestParseISODate_DateOnlyIsMidnightUTC(t *testing.T) {
	got, err := ParseISODate("2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, int64(1735689600000), got.UnixMilli())
}

func TestDateFromMillis(t *testing.T) {
	assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), DateFromMillis(may2023))
}
