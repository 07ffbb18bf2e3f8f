package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/scott-cotton/cli"
)

type MainConfig struct {
	Color   bool `cli:"name=color desc='color output'"`
	NoColor bool `cli:"name=nocolor desc='never color output'"`

	Main *cli.Command
}

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "syncd").
		WithSynopsis("syncd [opts] command [opts]").
		WithDescription("syncd publishes live workflows as streams of snapshots and patches.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return syncdMain(cfg, cc, args)
		}).
		WithSubs(
			ServeCommand(cfg),
			DiffCommand(cfg),
			WatchCommand(cfg))
}

func syncdMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	if cfg.Color && cfg.NoColor {
		return fmt.Errorf("%w: -color and -nocolor are exclusive", cli.ErrUsage)
	}
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	sub := cfg.Main.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err = sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}

type ServeConfig struct {
	*MainConfig
	ConfigFile string `cli:"name=config desc='configuration file (yaml)'"`
	TCP        string `cli:"name=tcp desc='JSON-RPC listen address' default=localhost:9130"`
	HTTP       string `cli:"name=http desc='HTTP listen address, empty to disable' default=localhost:9131"`
	Dir        string `cli:"name=dir desc='directory of workflow files'"`
	Simulate   time.Duration

	Serve *cli.Command
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg, TCP: "localhost:9130", HTTP: "localhost:9131"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	opts = append(opts, &cli.Opt{
		Name:        "simulate",
		Description: "advance a random node's execution state at this interval",
		Type:        cli.NamedFuncOpt(cli.FuncOpt(durationOpt(&cfg.Simulate)), "(duration)"),
	})
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve -dir <dir> [-config <file>] [-tcp <addr>] [-http <addr>] [-simulate <dur>]").
		WithDescription("serve the workflows in a directory").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

type DiffConfig struct {
	*MainConfig
	Keys string `cli:"name=keys desc='comma separated fields identifying array elements' default=id"`

	Diff *cli.Command
}

func DiffCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DiffConfig{MainConfig: mainCfg, Keys: "id"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Diff, "diff").
		WithSynopsis("diff [-keys id,name] <from> <to>").
		WithDescription("print the patch ops between two json or yaml files. Exits 1 if they differ.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return diff(cfg, cc, args)
		})
}

type WatchConfig struct {
	*MainConfig
	Addr   string `cli:"name=addr desc='syncd JSON-RPC address' default=localhost:9130"`
	Doc    bool   `cli:"name=doc desc='print the whole document after each patch'"`
	Buffer int    `cli:"name=buffer desc='notification buffer size' default=64"`

	Watch *cli.Command
}

func WatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &WatchConfig{MainConfig: mainCfg, Addr: "localhost:9130", Buffer: 64}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Watch, "watch").
		WithSynopsis("watch [-addr <addr>] [-doc] <project> [path]").
		WithDescription("subscribe to a stream and print the patches it pushes").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return watch(cfg, cc, args)
		})
}

func durationOpt(dst *time.Duration) func(*cli.Context, string) (any, error) {
	return func(_ *cli.Context, a string) (any, error) {
		d, err := time.ParseDuration(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		*dst = d
		return d, nil
	}
}
