package ingestion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage names the pipeline step at which an item failed.
type Stage string

const (
	StageRead      Stage = "read"
	StageNormalize Stage = "normalize"
	StageEmbed     Stage = "embed"
	StageUpsert    Stage = "upsert"
)

// ReasonCanceled is the failure reason of work that was never dispatched
// because the run was canceled.
const ReasonCanceled = "canceled"

// Failure records one item excluded from the run.
type Failure struct {
	ID     string `json:"id"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// RunReport accounts for every item of one pipeline run. It is safe for
// concurrent updates while the run is in progress; read it after Run
// returns.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Read      int `json:"read"`
	NullDates int `json:"null_dates"`
	Embedded  int `json:"embedded"`
	Upserted  int `json:"upserted"`
	Failed    int `json:"failed"`

	Failures []Failure `json:"failures"`

	mu sync.Mutex
}

func newRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Failures:  []Failure{},
	}
}

func (r *RunReport) addRead() {
	r.mu.Lock()
	r.Read++
	r.mu.Unlock()
}

func (r *RunReport) addNullDate() {
	r.mu.Lock()
	r.NullDates++
	r.mu.Unlock()
}

func (r *RunReport) addEmbedded(n int) {
	r.mu.Lock()
	r.Embedded += n
	r.mu.Unlock()
}

func (r *RunReport) addUpserted(n int) {
	r.mu.Lock()
	r.Upserted += n
	r.mu.Unlock()
}

func (r *RunReport) fail(id string, stage Stage, reason string) {
	r.mu.Lock()
	r.Failed++
	r.Failures = append(r.Failures, Failure{ID: id, Stage: stage, Reason: reason})
	r.mu.Unlock()
}

func (r *RunReport) finish() {
	r.mu.Lock()
	r.FinishedAt = time.Now().UTC()
	r.mu.Unlock()
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedIDs returns the ids of failed items in the order they failed.
// Items that failed before an id was known are omitted.
func (r *RunReport) FailedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		if f.ID != "" {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (r *RunReport) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("run %s: read=%d null_dates=%d embedded=%d upserted=%d failed=%d",
		r.RunID, r.Read, r.NullDates, r.Embedded, r.Upserted, r.Failed)
}

// ChunkFailure describes an upsert chunk that was not written.
type ChunkFailure struct {
	Chunk    int
	IDs      []string
	Attempts int
	Reason   string
	Err      error
}

// UpsertReport is the outcome of Writer.Upsert.
type UpsertReport struct {
	Chunks  int
	Written int
	Failed  []ChunkFailure
}

// OK reports whether every chunk was written.
func (r *UpsertReport) OK() bool {
	return len(r.Failed) == 0
}

// FailedCount is the number of records in failed chunks.
func (r *UpsertReport) FailedCount() int {
	n := 0
	for _, f := range r.Failed {
		n += len(f.IDs)
	}
	return n
}
