// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/poiesic/itemvec/config"
	"github.com/urfave/cli/v2"
)

const (
	metaConfig    = "config"
	metaLogCloser = "log-closer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "itemvec",
		Usage:    "Embed catalog items and search for recent similar items",
		Metadata: map[string]any{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML configuration file",
				EnvVars: []string{"ITEMVEC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to a size-rotated file instead of stderr",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			ingestCommand(),
			searchCommand(),
			serveCommand(),
			reembedCommand(),
			ensureIndexCommand(),
			generateCommand(),
			exportCommand(),
		},
	}
}

// setup loads the configuration, applies the global flag overrides and
// installs the default logger.
func setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	logger, closer, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.App.Metadata[metaConfig] = cfg
	if closer != nil {
		c.App.Metadata[metaLogCloser] = closer
	}
	return nil
}

func teardown(c *cli.Context) error {
	if closer, ok := c.App.Metadata[metaLogCloser].(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// configFrom returns the configuration installed by setup.
func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
