package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	colors       = []string{"red", "blue", "green", "black", "white", "yellow", "purple", "orange", "pink", "gray", "brown", "navy"}
	sizes        = []string{"XS", "S", "M", "L", "XL", "XXL"}
	productTypes = []string{"T-shirt", "Sweater", "Jeans", "Jacket", "Sneakers", "Boots", "Dress", "Skirt", "Cap", "Backpack", "Watch", "Sunglasses"}
	adjectives   = []string{"Classic", "Modern", "Vintage", "Stylish", "Elegant", "Sporty", "Casual", "Premium", "Lightweight", "Durable", "Comfort", "Soft"}
	materials    = []string{"cotton", "leather", "polyester", "wool", "denim", "silk", "synthetic", "canvas", "nylon"}
	words        = []string{
		"comfortable", "breathable", "waterproof", "lightweight", "stretch", "durable", "soft", "classic", "modern",
		"design", "perfect", "everyday", "travel", "outdoor", "urban", "minimal", "luxury", "affordable", "easy-care",
		"machine-washable", "handmade", "eco-friendly", "limited", "edition", "adjustable", "secure", "stylish", "versatile",
	}
)

// Date formats written by the generator.
const (
	dateISO   = "iso"
	dateEpoch = "epoch"
	dateMixed = "mixed"
)

// generatedItem keeps the catalog field order in the output.
type generatedItem struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Description string  `json:"description"`
	Size        string  `json:"size"`
	Price       float64 `json:"price"`
	CreatedDate any     `json:"created_date"`
}

type generator struct {
	rng        *rand.Rand
	start      time.Time
	end        time.Time
	dateFormat string
	vocabulary []string
}

func newGenerator(seed uint64, start, end time.Time, dateFormat string) (*generator, error) {
	switch dateFormat {
	case dateISO, dateEpoch, dateMixed:
	default:
		return nil, fmt.Errorf("unknown date format %q", dateFormat)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end date %s is not after start date %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	vocabulary := make([]string, 0, len(words)+len(materials)+len(adjectives))
	vocabulary = append(vocabulary, words...)
	vocabulary = append(vocabulary, materials...)
	vocabulary = append(vocabulary, adjectives...)
	return &generator{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start:      start,
		end:        end,
		dateFormat: dateFormat,
		vocabulary: vocabulary,
	}, nil
}

func (g *generator) pick(values []string) string {
	return values[g.rng.IntN(len(values))]
}

func (g *generator) description() string {
	sentences := make([]string, 1+g.rng.IntN(3))
	for i := range sentences {
		n := 8 + g.rng.IntN(9)
		ws := make([]string, n)
		for j := range ws {
			ws[j] = g.pick(g.vocabulary)
		}
		s := strings.ToLower(strings.Join(ws, " "))
		sentences[i] = strings.ToUpper(s[:1]) + s[1:] + "."
	}
	return strings.Join(sentences, " ")
}

func (g *generator) createdDate(id int) any {
	days := int(g.end.Sub(g.start).Hours() / 24)
	t := g.start.AddDate(0, 0, g.rng.IntN(days+1)).Add(time.Duration(g.rng.IntN(86400)) * time.Second)

	format := g.dateFormat
	if format == dateMixed {
		format = []string{dateISO, dateEpoch, "wrapped"}[id%3]
	}
	switch format {
	case dateEpoch:
		return t.UnixMilli()
	case "wrapped":
		return map[string]string{"$date": t.Format(time.RFC3339)}
	default:
		return t.Format("2006-01-02T15:04:05")
	}
}

func (g *generator) item(id int) generatedItem {
	price := 5.0 + g.rng.Float64()*(999.99-5.0)
	return generatedItem{
		ID:          id,
		Name:        g.pick(adjectives) + " " + g.pick(productTypes),
		Color:       g.pick(colors),
		Description: g.description(),
		Size:        g.pick(sizes),
		Price:       math.Round(price*100) / 100,
		CreatedDate: g.createdDate(id),
	}
}

// write emits n items as NDJSON with ids 1..n.
func (g *generator) write(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for id := 1; id <= n; id++ {
		if err := enc.Encode(g.item(id)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:   "generate",
		Usage:  "Write synthetic catalog items as NDJSON",
		Action: generateAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of items",
				Value:   10000,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (\"-\" for stdout)",
				Value:   "-",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "Random seed; 0 picks one from the clock",
			},
			&cli.TimestampFlag{
				Name:   "start",
				Usage:  "Earliest created_date",
				Layout: time.DateOnly,
				Value:  cli.NewTimestamp(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)),
			},
			&cli.TimestampFlag{
				Name:   "end",
				Usage:  "Latest created_date",
				Layout: time.DateOnly,
				Value:  cli.NewTimestamp(time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC)),
			},
			&cli.StringFlag{
				Name:  "date-format",
				Usage: "created_date representation: iso, epoch or mixed",
				Value: dateISO,
			},
		},
	}
}

func generateAction(c *cli.Context) error {
	if c.Int("count") < 0 {
		return fmt.Errorf("count must not be negative")
	}
	seed := c.Uint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	g, err := newGenerator(seed, c.Timestamp("start").UTC(), c.Timestamp("end").UTC(), c.String("date-format"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if path := c.String("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return g.write(out, c.Int("count"))
}
