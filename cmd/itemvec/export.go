package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/source"
	"github.com/urfave/cli/v2"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Export items from the configured MongoDB collection as NDJSON",
		Action: exportAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mongo-filter",
				Usage: "Extended JSON filter for MongoDB documents",
			},
			&cli.Int64Flag{
				Name:  "limit",
				Usage: "Maximum number of documents to export",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (\"-\" for stdout)",
				Value:   "-",
			},
		},
	}
}

func exportAction(c *cli.Context) error {
	ctx := c.Context
	src, err := source.NewMongoSource(ctx, mongoConfig(c, configFrom(c)))
	if err != nil {
		return err
	}
	defer src.Close()

	out := c.App.Writer
	if path := c.String("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)
	exported, skipped := 0, 0
	for item, err := range src.Items(ctx) {
		if err != nil {
			if !errors.Is(err, core.ErrSchema) {
				return err
			}
			slog.Warn("skipping document", "err", err)
			skipped++
			continue
		}
		if err := enc.Encode(item); err != nil {
			return err
		}
		exported++
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Exported %d items (%d skipped)\n", exported, skipped)
	return nil
}
