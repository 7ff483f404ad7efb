package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateKind identifies the shape a raw created_date value arrived in.
type DateKind int

const (
	DateMissing DateKind = iota
	DateEpoch
	DateISO
	DateWrapped
	DateInstant
	DateInvalid
)

func (k DateKind) String() string {
	switch k {
	case DateMissing:
		return "missing"
	case DateEpoch:
		return "epoch"
	case DateISO:
		return "iso"
	case DateWrapped:
		return "wrapped"
	case DateInstant:
		return "instant"
	default:
		return "invalid"
	}
}

// CreatedDate is a classified created_date value. Exactly one of the
// payload fields is meaningful, selected by Kind.
type CreatedDate struct {
	Kind    DateKind
	Epoch   float64   // DateEpoch
	Text    string    // DateISO
	Inner   any       // DateWrapped: the wrapped value
	Instant time.Time // DateInstant
	Raw     any       // original value, kept for error reporting
}

// ClassifyDate decides the shape of a raw created_date value.
func ClassifyDate(raw any) CreatedDate {
	switch v := raw.(type) {
	case nil:
		return CreatedDate{Kind: DateMissing}
	case string:
		if strings.TrimSpace(v) == "" {
			return CreatedDate{Kind: DateMissing, Raw: raw}
		}
		return CreatedDate{Kind: DateISO, Text: strings.TrimSpace(v), Raw: raw}
	case time.Time:
		return CreatedDate{Kind: DateInstant, Instant: v, Raw: raw}
	case *time.Time:
		if v == nil {
			return CreatedDate{Kind: DateMissing}
		}
		return CreatedDate{Kind: DateInstant, Instant: *v, Raw: raw}
	case map[string]any:
		return classifyWrapped(v, raw)
	case RawItem:
		return classifyWrapped(v, raw)
	case Metadata:
		return classifyWrapped(v, raw)
	}
	if f, ok := asFloat(raw); ok {
		return CreatedDate{Kind: DateEpoch, Epoch: f, Raw: raw}
	}
	return CreatedDate{Kind: DateInvalid, Raw: raw}
}

// classifyWrapped accepts a single-field mapping. The field is canonically
// "$date" but the key itself is not checked.
func classifyWrapped(m map[string]any, raw any) CreatedDate {
	if len(m) != 1 {
		return CreatedDate{Kind: DateInvalid, Raw: raw}
	}
	for _, inner := range m {
		return CreatedDate{Kind: DateWrapped, Inner: inner, Raw: raw}
	}
	return CreatedDate{Kind: DateInvalid, Raw: raw}
}

// NormalizeDate converts a raw created_date value into canonical
// milliseconds since the Unix epoch (UTC).
//
// Accepted forms are integer or floating epoch milliseconds (truncated, never
// rescaled), ISO-8601 strings with or without a zone (no zone means UTC),
// single-field wrapped dates such as {"$date": "..."} and native time.Time
// instants. Nil and empty strings normalize to nil without error. Anything
// else returns a *DateParseError.
func NormalizeDate(raw any) (*int64, error) {
	return ClassifyDate(raw).Normalize()
}

// Normalize canonicalizes a classified date.
func (d CreatedDate) Normalize() (*int64, error) {
	switch d.Kind {
	case DateMissing:
		return nil, nil
	case DateEpoch:
		return epochMillis(d.Epoch, d.Raw)
	case DateISO:
		t, err := ParseISODate(d.Text)
		if err != nil {
			return nil, &DateParseError{Value: d.Raw, Err: err}
		}
		return instantMillis(t, d.Raw)
	case DateWrapped:
		return normalizeWrapped(d.Inner, d.Raw)
	case DateInstant:
		return instantMillis(d.Instant, d.Raw)
	default:
		return nil, &DateParseError{Value: d.Raw, Err: errors.New("unsupported representation")}
	}
}

func normalizeWrapped(inner, raw any) (*int64, error) {
	switch v := inner.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, &DateParseError{Value: raw, Err: errors.New("empty wrapped date")}
		}
		t, err := ParseISODate(strings.TrimSpace(v))
		if err != nil {
			return nil, &DateParseError{Value: raw, Err: err}
		}
		return instantMillis(t, raw)
	case map[string]any:
		// {"$date": {"$numberLong": "1700000000000"}}
		if len(v) != 1 {
			break
		}
		if n, ok := v["$numberLong"]; ok {
			s, ok := n.(string)
			if !ok {
				if f, ok := asFloat(n); ok {
					return epochMillis(f, raw)
				}
				break
			}
			ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, &DateParseError{Value: raw, Err: err}
			}
			return epochMillis(float64(ms), raw)
		}
	case time.Time:
		return instantMillis(v, raw)
	default:
		if f, ok := asFloat(inner); ok {
			return epochMillis(f, raw)
		}
	}
	return nil, &DateParseError{Value: raw, Err: errors.New("unsupported wrapped date")}
}

func epochMillis(f float64, raw any) (*int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &DateParseError{Value: raw, Err: errors.New("not a finite number")}
	}
	if f < 0 {
		return nil, &DateParseError{Value: raw, Err: errors.New("negative epoch")}
	}
	if f >= math.MaxInt64 {
		return nil, &DateParseError{Value: raw, Err: errors.New("epoch out of range")}
	}
	ms := int64(f)
	return &ms, nil
}

func instantMillis(t time.Time, raw any) (*int64, error) {
	ms := t.UnixMilli()
	if ms < 0 {
		return nil, &DateParseError{Value: raw, Err: errors.New("instant before epoch")}
	}
	return &ms, nil
}

// isoLayouts are tried in order. Layouts without a zone are parsed as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	// basic format
	"20060102T150405.999999999Z07:00",
	"20060102T150405.999999999Z0700",
	"20060102T150405.999999999",
	"20060102",
}

// ParseISODate parses an ISO-8601 date or date-time. A value without a zone
// designator is interpreted as UTC; a date without a time is midnight UTC.
func ParseISODate(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 date: %q", s)
}

// DateFromMillis is the inverse of NormalizeDate for display purposes.
func DateFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
