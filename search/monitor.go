package search

import (
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(text string)
	AfterEmbedding(dimension int)
	AfterQuery(matches []storage.Match, serverFiltered bool)
	AfterFilter(kept []storage.Match, dropped int)
	Finish(results []core.Metadata)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) AfterEmbedding(_ int)                 {}
func (n *noopMonitor) AfterQuery(_ []storage.Match, _ bool) {}
func (n *noopMonitor) AfterFilter(_ []storage.Match, _ int) {}
func (n *noopMonitor) Finish(_ []core.Metadata)             {}
