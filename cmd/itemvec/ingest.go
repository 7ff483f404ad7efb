package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/itemvec"
	"github.com/poiesic/itemvec/config"
	"github.com/poiesic/itemvec/ingestion"
	"github.com/poiesic/itemvec/progress"
	"github.com/poiesic/itemvec/source"
	"github.com/urfave/cli/v2"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:   "ingest",
		Usage:  "Embed catalog items from a file or MongoDB into the index",
		Action: ingestAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "JSON array or NDJSON file of items (\"-\" for stdin)",
			},
			&cli.BoolFlag{
				Name:  "mongo",
				Usage: "Read items from the configured MongoDB collection",
			},
			&cli.StringFlag{
				Name:  "mongo-filter",
				Usage: "Extended JSON filter for MongoDB documents",
			},
			&cli.Int64Flag{
				Name:  "limit",
				Usage: "Maximum number of MongoDB documents to read",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Records per upsert call",
			},
			&cli.IntFlag{
				Name:  "embed-batch-size",
				Usage: "Texts per embedding request",
			},
			&cli.IntFlag{
				Name:  "pool-size",
				Usage: "Concurrent embedding batches and upsert chunks",
			},
			&cli.BoolFlag{
				Name:  "content-ids",
				Usage: "Derive ids from item content for records without id or _id",
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N items",
				Value: 500,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not print progress",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the run report as JSON to this path",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit with status 2 when any item failed",
			},
		},
	}
}

func ingestAction(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)

	if c.IsSet("chunk-size") {
		cfg.Ingestion.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("embed-batch-size") {
		cfg.Ingestion.EmbedBatchSize = c.Int("embed-batch-size")
	}
	if c.IsSet("pool-size") {
		cfg.Ingestion.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("content-ids") {
		cfg.Ingestion.ContentIDs = c.Bool("content-ids")
	}

	src, err := openSource(c, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	engine, err := itemvec.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []ingestion.Option
	var tracker *progress.Tracker
	if !c.Bool("quiet") {
		total := 0
		if counter, ok := src.(source.Counter); ok {
			if total, err = counter.Count(ctx); err != nil {
				slog.Warn("could not count source records", "err", err)
				total = 0
			}
		}
		tracker = progress.NewTracker(os.Stderr, total, c.Int("report-interval")).WithUnit("items")
		opts = append(opts, ingestion.WithProgress(tracker))
	}

	pipeline, err := engine.NewIngestionPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	if tracker != nil {
		tracker.Start()
	}
	report, runErr := pipeline.Run(ctx, src.Items(ctx))
	if tracker != nil {
		tracker.Finish()
	}
	if report == nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}

	fmt.Fprintln(os.Stderr, report.String())
	for _, f := range report.Failures {
		slog.Debug("item failed", "id", f.ID, "stage", f.Stage, "reason", f.Reason)
	}
	if path := c.String("report"); path != "" {
		if err := writeReport(path, report); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}
	if report.Failed > 0 && c.Bool("strict") {
		return cli.Exit(fmt.Sprintf("%d items failed", report.Failed), 2)
	}
	return nil
}

// openSource opens the item source selected by the ingest flags.
func openSource(c *cli.Context, cfg *config.Config) (source.Source, error) {
	file := c.String("file")
	useMongo := c.Bool("mongo")
	switch {
	case file != "" && useMongo:
		return nil, errors.New("--file and --mongo are mutually exclusive")
	case file != "":
		return source.OpenFile(file)
	case useMongo:
		mc := mongoConfig(c, cfg)
		return source.NewMongoSource(c.Context, mc)
	default:
		return nil, errors.New("one of --file or --mongo is required")
	}
}

func mongoConfig(c *cli.Context, cfg *config.Config) source.MongoConfig {
	mc := cfg.Mongo.Source()
	if c.IsSet("mongo-filter") {
		mc.Filter = c.String("mongo-filter")
	}
	if c.IsSet("limit") {
		mc.Limit = c.Int64("limit")
	}
	return mc
}

func writeReport(path string, report *ingestion.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
