// Package ingestion loads catalog items into a vector index.
//
// A Pipeline decodes raw source records, normalizes their created_date,
// builds the embedding text, embeds in batches and hands the resulting
// records to a Writer, which upserts them in fixed-size chunks. Embedding
// batches and upsert chunks run on a bounded worker pool and are retried
// with exponential backoff.
//
// Failures are isolated: an unparseable date becomes a null date, a record
// that does not fit the schema is skipped, and an embedding batch or upsert
// chunk that exhausts its retries fails only its own items. Everything is
// accounted for in the RunReport returned by Pipeline.Run.
package ingestion
