package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/itemvec"
	"github.com/poiesic/itemvec/server"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve similar-item search over HTTP",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen address, overriding server.addr",
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}

	engine, err := itemvec.NewEngine(c.Context, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	searcher, err := engine.NewSearcher()
	if err != nil {
		return err
	}

	if !slog.Default().Enabled(c.Context, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := server.New(searcher, cfg.Server, server.WithIndexName(engine.Spec().Name))
	if err != nil {
		return err
	}
	return srv.Run(c.Context)
}
