package storage

import (
	"github.com/poiesic/itemvec/core"
)

// Matches reports whether md passes the filter. The date field is read
// with core.NormalizeDate, so epoch numbers, ISO strings and wrapped dates
// all compare by instant. A missing or unparseable date never matches.
func (f *RecencyFilter) Matches(md core.Metadata) bool {
	if f == nil {
		return true
	}
	field := f.Field
	if field == "" {
		field = core.FieldCreatedDate
	}
	ms, err := core.NormalizeDate(md[field])
	if err != nil || ms == nil {
		return false
	}
	return *ms >= f.Min
}
