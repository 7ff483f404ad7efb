package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/poiesic/itemvec"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/search"
	"github.com/poiesic/itemvec/storage"
	"github.com/urfave/cli/v2"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find recent items similar to a query item",
		ArgsUsage: "[query item as JSON]",
		Action:    searchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Query item name"},
			&cli.StringFlag{Name: "description", Usage: "Query item description"},
			&cli.StringFlag{Name: "color", Usage: "Query item color"},
			&cli.StringFlag{Name: "size", Usage: "Query item size"},
			&cli.Float64Flag{Name: "price", Usage: "Query item price"},
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of nearest neighbours to retrieve before filtering",
			},
			&cli.TimestampFlag{
				Name:   "since",
				Usage:  "Only return items created at or after this date",
				Layout: "2006-01-02",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print each search stage to stderr",
			},
		},
	}
}

func searchAction(c *cli.Context) error {
	ctx := c.Context

	query, err := queryFromArgs(c)
	if err != nil {
		return err
	}

	engine, err := itemvec.NewEngine(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []search.Option
	if c.IsSet("top-k") {
		opts = append(opts, search.WithTopK(c.Int("top-k")))
	}
	if c.IsSet("since") {
		opts = append(opts, search.WithThreshold(c.Timestamp("since").UTC()))
	}
	searcher, err := engine.NewSearcher(opts...)
	if err != nil {
		return err
	}

	var results []core.Metadata
	if c.Bool("verbose") {
		results, err = searcher.SearchWithMonitor(ctx, query, &stageMonitor{w: os.Stderr, started: time.Now()})
	} else {
		results, err = searcher.Search(ctx, query)
	}
	if err != nil {
		return err
	}
	if results == nil {
		results = []core.Metadata{}
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"similar_items": results})
}

// queryFromArgs builds the query item from a JSON argument, with the field
// flags layered on top.
func queryFromArgs(c *cli.Context) (core.RawItem, error) {
	query := core.RawItem{}
	if arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " ")); arg != "" {
		if err := json.Unmarshal([]byte(arg), &query); err != nil {
			return nil, fmt.Errorf("query must be a JSON object: %w", err)
		}
	}
	for _, field := range []string{core.FieldName, core.FieldDescription, core.FieldColor, core.FieldSize} {
		if c.IsSet(field) {
			query[field] = c.String(field)
		}
	}
	if c.IsSet(core.FieldPrice) {
		query[core.FieldPrice] = c.Float64(core.FieldPrice)
	}
	if len(query) == 0 {
		return nil, errors.New("a query item is required: pass JSON or use --name, --description, --color, --size, --price")
	}
	return query, nil
}

// stageMonitor prints search stages as they happen.
type stageMonitor struct {
	w       io.Writer
	started time.Time
}

var _ search.SearchMonitor = (*stageMonitor)(nil)

func (m *stageMonitor) Start(text string) {
	fmt.Fprintf(m.w, "query text: %q\n", text)
}

func (m *stageMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.w, "embedded: %d dimensions (%v)\n", dimension, time.Since(m.started).Round(time.Millisecond))
}

func (m *stageMonitor) AfterQuery(matches []storage.Match, serverFiltered bool) {
	fmt.Fprintf(m.w, "index returned %d matches (server-side filter: %t)\n", len(matches), serverFiltered)
	for i, match := range matches {
		fmt.Fprintf(m.w, "  %d: %s [%0.3f]\n", i, match.ID, match.Score)
	}
}

func (m *stageMonitor) AfterFilter(kept []storage.Match, dropped int) {
	fmt.Fprintf(m.w, "recency filter kept %d, dropped %d\n", len(kept), dropped)
}

func (m *stageMonitor) Finish(results []core.Metadata) {
	fmt.Fprintf(m.w, "found %d hits in %v\n", len(results), time.Since(m.started).Round(time.Millisecond))
}
