// Package source reads raw catalog records from files and document stores.
package source

import (
	"context"
	"iter"

	"github.com/poiesic/itemvec/core"
)

// Source yields raw records for ingestion. A yielded error matching
// core.ErrSchema concerns one record only; any other error ends the
// sequence.
type Source interface {
	Items(ctx context.Context) iter.Seq2[core.RawItem, error]
	Close() error
}

// Counter is implemented by sources that know their size up front.
type Counter interface {
	Count(ctx context.Context) (int, error)
}
