package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/scott-cotton/cli"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
)

func diff(cfg *DiffConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Diff.Parse(cc, args)
	if err != nil {
		cfg.Diff.Usage(cc, err)
		return cli.ExitCodeErr(1)
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: diff requires 2 args, got %v", cli.ErrUsage, args)
	}
	from, err := readNode(args[0])
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", args[0], err)
	}
	to, err := readNode(args[1])
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", args[1], err)
	}
	var keys []string
	if cfg.Keys != "" {
		keys = strings.Split(cfg.Keys, ",")
	}
	ops := libdiff.Diff(from, to, libdiff.WithKeys(keys...))
	if len(ops) == 0 {
		return nil
	}
	cfg.opPrinter(cc.Out).ops(ops)
	return cli.ExitCodeErr(1)
}

// readNode reads a json or yaml file, "-" being stdin.
func readNode(path string) (*ir.Node, error) {
	var (
		d   []byte
		err error
	)
	if path == "-" {
		d, err = io.ReadAll(os.Stdin)
	} else {
		d, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(d, &v); err != nil {
		return nil, err
	}
	return ir.FromAny(v)
}
