package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"
	"golang.org/x/sync/errgroup"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/derive"
	"github.com/signadot/docsync/system/syncd/server"
	"github.com/signadot/docsync/system/syncd/track"
	"github.com/signadot/docsync/workflow"
)

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}
	if cfg.Dir == "" {
		return fmt.Errorf("%w: -dir is required", cli.ErrUsage)
	}

	// Start gops agent for debugging
	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
	}
	defer agent.Close()

	serverConfig := server.DefaultConfig()
	if cfg.ConfigFile != "" {
		serverConfig, err = server.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	programs, err := compileDerived(serverConfig)
	if err != nil {
		return err
	}
	workflows, err := workflow.LoadDir(cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	srv, err := server.New(&server.Spec{Config: serverConfig})
	if err != nil {
		return err
	}
	defer srv.Close()
	log := srv.Spec.Log
	for name, w := range workflows {
		if err := openWorkflow(srv.Registry, name, w, programs, log); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.StartTCP(cfg.TCP); err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	fmt.Fprintf(cc.Out, "syncd listening on %s (%d workflows)\n", srv.TCPAddr(), len(workflows))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.HTTP != "" {
		hs := &http.Server{Addr: cfg.HTTP, Handler: srv.Handler()}
		g.Go(func() error {
			fmt.Fprintf(cc.Out, "syncd serving http on %s\n", cfg.HTTP)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	if cfg.Simulate > 0 {
		g.Go(func() error {
			simulate(ctx, workflows, cfg.Simulate, log)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		fmt.Fprintf(cc.Out, "\nShutting down...\n")
		return nil
	})
	return g.Wait()
}

func compileDerived(cfg *server.Config) ([]*derive.Program, error) {
	var res []*derive.Program
	for i := range cfg.Derived {
		d := &cfg.Derived[i]
		on, err := d.Categories()
		if err != nil {
			return nil, err
		}
		p, err := derive.Compile(d.Name, d.Expr, on)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// openWorkflow opens a stream for w and one for each nested workflow, all
// under project.
func openWorkflow(reg *server.Registry, project string, w *workflow.Workflow, programs []*derive.Program, log *slog.Logger) error {
	return w.Walk(func(path string, sub *workflow.Workflow) error {
		key := api.StreamKey{Project: project, Path: path}
		set := derive.NewSet()
		for _, p := range programs {
			if err := set.Add(derive.FromProgram(sub, p, (*workflow.Workflow).Env)); err != nil {
				return err
			}
		}
		klog := log.With("stream", key.String())
		return reg.Open(key, server.Binding{
			Source: sub,
			Build: func() (ir.Doc, error) {
				vals, err := set.Values()
				if err != nil {
					// stale values are published until the next success
					klog.Warn("derived values failed", "error", err)
				}
				if len(vals) == 0 {
					vals = nil
				}
				return sub.RepresentationWith(vals)
			},
			On:        track.All,
			OnDispose: set.Dispose,
		})
	})
}

// simulate advances the execution state of random nodes until ctx is done.
func simulate(ctx context.Context, workflows map[string]*workflow.Workflow, every time.Duration, log *slog.Logger) {
	var all []*workflow.Workflow
	for _, w := range workflows {
		w.Walk(func(_ string, sub *workflow.Workflow) error {
			all = append(all, sub)
			return nil
		})
	}
	if len(all) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		w := all[rand.IntN(len(all))]
		ids := w.NodeIDs()
		if len(ids) == 0 {
			continue
		}
		id := ids[rand.IntN(len(ids))]
		st, err := w.Advance(id)
		if err != nil {
			log.Warn("simulation step failed", "workflow", w.Name(), "node", id, "error", err)
			continue
		}
		log.Debug("simulated", "workflow", w.Name(), "node", id, "state", st)
	}
}
