package main

import (
	"fmt"

	"github.com/poiesic/itemvec"
	"github.com/urfave/cli/v2"
)

func ensureIndexCommand() *cli.Command {
	return &cli.Command{
		Name:   "ensure-index",
		Usage:  "Create the configured index if it does not exist and print its spec",
		Action: ensureIndexAction,
	}
}

func ensureIndexAction(c *cli.Context) error {
	engine, err := itemvec.NewEngine(c.Context, configFrom(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	spec := engine.Spec()
	count, err := engine.Index().Count(c.Context, spec.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "index=%s dimension=%d metric=%s records=%d\n", spec.Name, spec.Dimension, spec.Metric, count)
	return nil
}
