// Package pgvector implements storage.VectorIndex on PostgreSQL with the
// pgvector extension. Each index is a table holding the vector, the
// metadata as jsonb and the normalized created_date as a bigint column so
// the recency filter can be evaluated in SQL.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

const registryTable = "itemvec_indexes"

// Index implements storage.VectorIndex backed by Postgres + pgvector.
type Index struct {
	db     *sql.DB
	ownsDB bool
	logger *slog.Logger

	mu    sync.RWMutex
	specs map[string]storage.IndexSpec
}

var _ storage.VectorIndex = (*Index)(nil)

// Open connects to Postgres and ensures the extension and the index
// registry exist.
func Open(ctx context.Context, dsn string) (storage.VectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	idx, err := newIndex(ctx, db, true)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// NewIndexFromDB reuses an existing *sql.DB. The caller keeps ownership.
func NewIndexFromDB(ctx context.Context, db *sql.DB) (storage.VectorIndex, error) {
	return newIndex(ctx, db, false)
}

func newIndex(ctx context.Context, db *sql.DB, owns bool) (*Index, error) {
	if db == nil {
		return nil, errors.New("pgvector index: db is required")
	}
	idx := &Index{
		db:     db,
		ownsDB: owns,
		logger: slog.Default().With("component", "pgvector-index"),
		specs:  make(map[string]storage.IndexSpec),
	}
	if err := idx.ensureRegistry(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *Index) ensureRegistry(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %s (
  name       text PRIMARY KEY,
  dimension  integer NOT NULL,
  metric     text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
`, pq.QuoteIdentifier(registryTable))
	_, err := x.db.ExecContext(ctx, ddl)
	return err
}

// tableName maps an index name to its table. Index names are validated to
// lowercase alphanumerics and hyphens.
// Names are quoted, so hyphens are kept and items-v2 never shares a table
// with items_v2.
func tableName(index string) string {
	return pq.QuoteIdentifier("itemvec_" + index)
}

// opsClass is the pgvector operator class used by the HNSW index.
func opsClass(m storage.Metric) string {
	switch m {
	case storage.MetricDotProduct:
		return "vector_ip_ops"
	case storage.MetricEuclidean:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

// distanceOperator is the pgvector operator ordering rows by distance.
func distanceOperator(m storage.Metric) string {
	switch m {
	case storage.MetricDotProduct:
		return "<#>"
	case storage.MetricEuclidean:
		return "<->"
	default:
		return "<=>"
	}
}

// scoreExpr converts a pgvector distance into a higher-is-better score
// matching storage.Metric.Score.
func scoreExpr(m storage.Metric, distance string) string {
	switch m {
	case storage.MetricDotProduct:
		// <#> returns the negative inner product
		return "-(" + distance + ")"
	case storage.MetricEuclidean:
		return "-(" + distance + ")"
	default:
		return "1 - (" + distance + ")"
	}
}

func createTableSQL(spec storage.IndexSpec) string {
	table := tableName(spec.Name)
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id           text PRIMARY KEY,
  embedding    vector(%[2]d) NOT NULL,
  metadata     jsonb NOT NULL,
  created_date bigint,
  updated_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (created_date);
CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s USING hnsw (embedding %[5]s);
`, table, spec.Dimension,
		pq.QuoteIdentifier("itemvec_"+spec.Name+"_date_idx"),
		pq.QuoteIdentifier("itemvec_"+spec.Name+"_vec_idx"),
		opsClass(spec.Metric))
}

// EnsureIndex registers the index and creates its table if absent.
func (x *Index) EnsureIndex(ctx context.Context, spec storage.IndexSpec) (bool, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return false, err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
			pq.QuoteIdentifier(registryTable)),
		spec.Name, spec.Dimension, string(spec.Metric))
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if inserted == 0 {
		existing, err := describe(ctx, tx, spec.Name)
		if err != nil {
			return false, err
		}
		if err := existing.Compatible(spec); err != nil {
			return false, err
		}
	} else if _, err := tx.ExecContext(ctx, createTableSQL(spec)); err != nil {
		return false, fmt.Errorf("creating table for %q: %w", spec.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrTransactionFailed, err)
	}

	x.mu.Lock()
	x.specs[spec.Name] = spec
	x.mu.Unlock()

	if inserted > 0 {
		x.logger.Info("created index", "index", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
	}
	return inserted > 0, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func describe(ctx context.Context, q queryer, name string) (storage.IndexSpec, error) {
	spec := storage.IndexSpec{Name: name}
	var metric string
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT dimension, metric FROM %s WHERE name = $1`, pq.QuoteIdentifier(registryTable)),
		name).Scan(&spec.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.IndexSpec{}, fmt.Errorf("%w: %q", storage.ErrIndexNotFound, name)
	}
	if err != nil {
		return storage.IndexSpec{}, err
	}
	spec.Metric = storage.Metric(metric)
	return spec, nil
}

// DescribeIndex returns the registered spec for name.
func (x *Index) DescribeIndex(ctx context.Context, name string) (storage.IndexSpec, error) {
	x.mu.RLock()
	spec, ok := x.specs[name]
	x.mu.RUnlock()
	if ok {
		return spec, nil
	}

	spec, err := describe(ctx, x.db, name)
	if err != nil {
		return storage.IndexSpec{}, err
	}
	x.mu.Lock()
	x.specs[name] = spec
	x.mu.Unlock()
	return spec, nil
}

func upsertSQL(index string) string {
	return fmt.Sprintf(`
INSERT INTO %s (id, embedding, metadata, created_date, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
  embedding=EXCLUDED.embedding,
  metadata=EXCLUDED.metadata,
  created_date=EXCLUDED.created_date,
  updated_at=now();
`, tableName(index))
}

// dateColumn extracts the normalized created_date for the filter column.
func dateColumn(md core.Metadata) sql.NullInt64 {
	ms, err := core.NormalizeDate(md[core.FieldCreatedDate])
	if err != nil || ms == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ms, Valid: true}
}

// Upsert writes all records in one transaction.
func (x *Index) Upsert(ctx context.Context, index string, records ...*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	spec, err := x.DescribeIndex(ctx, index)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			return fmt.Errorf("%w: record without id", storage.ErrInvalidQuery)
		}
		if err := storage.CheckDimension(rec.Vector, spec.Dimension); err != nil {
			return fmt.Errorf("record %q: %w", rec.ID, err)
		}
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(index))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		meta, err := json.Marshal(storage.PlainMetadata(rec.Metadata))
		if err != nil {
			return fmt.Errorf("%w: metadata of %q: %v", storage.ErrSerializationFailed, rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, pgvector.NewVector(rec.Vector), meta, dateColumn(rec.Metadata)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransactionFailed, err)
	}
	x.logger.Debug("upserted records", "index", index, "count", len(records))
	return nil
}

// buildQuerySQL renders the similarity query. Argument $1 is the query
// vector; the filter threshold and the limit follow.
func buildQuerySQL(index string, metric storage.Metric, filter *storage.RecencyFilter, topK int) (string, []any) {
	distance := "embedding " + distanceOperator(metric) + " $1"
	args := []any{nil}

	where := ""
	if filter != nil && (filter.Field == "" || filter.Field == core.FieldCreatedDate) {
		args = append(args, filter.Min)
		where = fmt.Sprintf("WHERE created_date >= $%d", len(args))
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
SELECT id, %s AS score, metadata
FROM %s
%s
ORDER BY %s
LIMIT $%d;
`, scoreExpr(metric, distance), tableName(index), where, distance, len(args))
	return query, args
}

// Query runs an ordered similarity search. A filter on created_date is
// evaluated in SQL against the normalized column.
func (x *Index) Query(ctx context.Context, index string, q storage.Query) ([]storage.Match, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", storage.ErrInvalidQuery, q.TopK)
	}
	spec, err := x.DescribeIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckDimension(q.Vector, spec.Dimension); err != nil {
		return nil, err
	}

	query, args := buildQuerySQL(index, spec.Metric, q.Filter, q.TopK)
	args[0] = pgvector.NewVector(q.Vector)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []storage.Match
	for rows.Next() {
		var m storage.Match
		var score float64
		var meta []byte
		if err := rows.Scan(&m.ID, &score, &meta); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		if m.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func decodeMetadata(data []byte) (core.Metadata, error) {
	md := core.Metadata{}
	if len(data) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	storage.RestoreDate(md)
	return md, nil
}

func scanRecords(rows *sql.Rows) ([]*core.EmbeddingRecord, error) {
	defer rows.Close()
	var out []*core.EmbeddingRecord
	for rows.Next() {
		var rec core.EmbeddingRecord
		var vec pgvector.Vector
		var meta []byte
		if err := rows.Scan(&rec.ID, &vec, &meta); err != nil {
			return nil, err
		}
		rec.Vector = vec.Slice()
		md, err := decodeMetadata(meta)
		if err != nil {
			return nil, err
		}
		rec.Metadata = md
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Fetch returns the records stored under ids.
func (x *Index) Fetch(ctx context.Context, index string, ids ...string) ([]*core.EmbeddingRecord, error) {
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := x.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, embedding, metadata FROM %s WHERE id = ANY($1) ORDER BY id`, tableName(index)),
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Scan pages through the table by id.
func (x *Index) Scan(ctx context.Context, index string, batchSize int, fn func([]*core.EmbeddingRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT id, embedding, metadata FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, tableName(index))
	after := ""
	for {
		rows, err := x.db.QueryContext(ctx, query, after, batchSize)
		if err != nil {
			return err
		}
		batch, err := scanRecords(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

// Count returns the number of rows in the index table.
func (x *Index) Count(ctx context.Context, index string) (int, error) {
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return 0, err
	}
	var n int
	err := x.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, tableName(index))).Scan(&n)
	return n, err
}

// SupportsFilter reports true: created_date filters run in SQL.
func (x *Index) SupportsFilter() bool {
	return true
}

// Close closes the connection pool if the index opened it.
func (x *Index) Close() error {
	if x.ownsDB && x.db != nil {
		return x.db.Close()
	}
	return nil
}
