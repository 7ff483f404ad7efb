package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/itemvec/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig selects the documents read by a MongoSource.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string

	// Filter is an optional extended-JSON query document.
	Filter string

	// Limit caps the number of documents read. Zero means no limit.
	Limit int64

	// BatchSize is the cursor batch size. Zero uses the server default.
	BatchSize int32

	ConnectTimeout time.Duration
}

// Validate checks that the collection is fully addressed.
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" || c.Collection == "" {
		return errors.New("mongo database and collection are required")
	}
	if c.Limit < 0 {
		return errors.New("mongo limit must not be negative")
	}
	return nil
}

func (c MongoConfig) filter() (bson.M, error) {
	if c.Filter == "" {
		return bson.M{}, nil
	}
	var f bson.M
	if err := bson.UnmarshalExtJSON([]byte(c.Filter), false, &f); err != nil {
		return nil, fmt.Errorf("parsing mongo filter: %w", err)
	}
	return f, nil
}

// MongoSource reads catalog documents from a MongoDB collection. BSON
// types are converted to plain Go values: ObjectIDs become hex strings and
// dates become time.Time.
type MongoSource struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    MongoConfig
	filter bson.M
	logger *slog.Logger
}

var (
	_ Source  = (*MongoSource)(nil)
	_ Counter = (*MongoSource)(nil)
)

// NewMongoSource connects to MongoDB and verifies the connection.
func NewMongoSource(ctx context.Context, cfg MongoConfig) (*MongoSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	filter, err := cfg.filter()
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &MongoSource{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:    cfg,
		filter: filter,
		logger: slog.Default().With("component", "mongo-source", "collection", cfg.Collection),
	}, nil
}

// Count returns the number of documents the source will yield.
func (m *MongoSource) Count(ctx context.Context) (int, error) {
	opts := options.Count()
	if m.cfg.Limit > 0 {
		opts.SetLimit(m.cfg.Limit)
	}
	n, err := m.coll.CountDocuments(ctx, m.filter, opts)
	return int(n), err
}

// Items streams the matching documents.
func (m *MongoSource) Items(ctx context.Context) iter.Seq2[core.RawItem, error] {
	return func(yield func(core.RawItem, error) bool) {
		opts := options.Find()
		if m.cfg.Limit > 0 {
			opts.SetLimit(m.cfg.Limit)
		}
		if m.cfg.BatchSize > 0 {
			opts.SetBatchSize(m.cfg.BatchSize)
		}

		cursor, err := m.coll.Find(ctx, m.filter, opts)
		if err != nil {
			yield(nil, fmt.Errorf("querying %s: %w", m.cfg.Collection, err))
			return
		}
		defer cursor.Close(context.Background())

		n := 0
		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				if !yield(nil, fmt.Errorf("%w: document %d: %v", core.ErrSchema, n, err)) {
					return
				}
				n++
				continue
			}
			n++
			if !yield(fromBSON(doc), nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, fmt.Errorf("reading %s: %w", m.cfg.Collection, err))
			return
		}
		m.logger.Debug("collection read", "documents", n)
	}
}

// Close disconnects the client.
func (m *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func fromBSON(doc bson.M) core.RawItem {
	raw := make(core.RawItem, len(doc))
	for k, v := range doc {
		raw[k] = plainBSON(v)
	}
	return raw
}

// plainBSON converts driver types into the values the item decoder
// understands.
func plainBSON(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
			return f
		}
		return x.String()
	case primitive.M:
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = plainBSON(inner)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i, inner := range x {
			out[i] = plainBSON(inner)
		}
		return out
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}
