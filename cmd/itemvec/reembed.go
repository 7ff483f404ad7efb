package main

import (
	"fmt"
	"os"
	"time"

	"github.com/poiesic/itemvec"
	"github.com/poiesic/itemvec/config"
	"github.com/poiesic/itemvec/reembed"
	"github.com/poiesic/itemvec/retry"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Reembed every item of the index with a new embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (defaults to ai.host)",
			},
			&cli.StringFlag{
				Name:     "embedding-model",
				Usage:    "Embedding model name",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "dimensions",
				Usage: "Vector length of the new model (probed when 0)",
			},
			&cli.StringFlag{
				Name:  "target-index",
				Usage: "Index to write the new vectors to (defaults to reembedding in place)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of records to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N records",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum retry attempts for failed operations",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Policy: retry.Policy{
			MaxAttempts: c.Int("max-retries"),
			BaseDelay:   c.Duration("retry-delay"),
			MaxDelay:    cfg.Ingestion.MaxDelay,
			Timeout:     cfg.Ingestion.Timeout,
		},
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.Policy.MaxAttempts <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	targetAI := targetAIConfig(c, cfg.AI)
	target, err := itemvec.NewProvider(targetAI)
	if err != nil {
		return err
	}
	defer target.Close()

	engine, err := itemvec.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(ctx, target, c.String("target-index"), reembedConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Index: %s (%s)\n", engine.Spec().Name, cfg.Index.Backend)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", targetAI.Host)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", targetAI.Model)
	fmt.Fprintln(os.Stderr)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

// targetAIConfig derives the new model's settings from the configured ones.
func targetAIConfig(c *cli.Context, base config.AIConfig) config.AIConfig {
	target := base
	target.Model = c.String("embedding-model")
	target.Dimensions = c.Int("dimensions")
	if c.IsSet("embedding-host") {
		target.Host = c.String("embedding-host")
	}
	return target
}
