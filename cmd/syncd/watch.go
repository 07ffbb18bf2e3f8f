package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scott-cotton/cli"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/client"
)

// watcher keeps a local copy of a stream's document up to date.
type watcher struct {
	cfg *WatchConfig
	c   *client.Client
	key api.StreamKey
	out *opPrinter
	cc  *cli.Context

	sub    string
	anchor api.SnapshotID
	doc    ir.Doc
}

func watch(cfg *WatchConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Watch.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: watch requires a project and an optional path, got %v", cli.ErrUsage, args)
	}
	key := api.StreamKey{Project: args[0]}
	if len(args) == 2 {
		key.Path = args[1]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg.Addr, cfg.Buffer)
	if err != nil {
		return err
	}
	defer c.Close()
	w := &watcher{cfg: cfg, c: c, key: key, out: cfg.opPrinter(cc.Out), cc: cc}
	if err := w.resync(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.Events:
			if !ok {
				return errors.New("connection closed")
			}
			if err := w.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// resync fetches a full snapshot and subscribes from it.
func (w *watcher) resync(ctx context.Context) error {
	if w.sub != "" {
		w.c.Unsubscribe(ctx, w.key, w.sub)
		w.sub = ""
	}
	snap, err := w.c.Snapshot(ctx, w.key)
	if err != nil {
		return err
	}
	w.doc = snap.Doc
	w.anchor = snap.ID
	w.out.comment("snapshot %s", snap.ID)
	w.printDoc()
	w.sub, err = w.c.Subscribe(ctx, w.key, snap.ID)
	return err
}

func (w *watcher) handle(ctx context.Context, ev client.Event) error {
	switch {
	case ev.Closed != nil:
		if ev.Closed.Subscription != w.sub {
			return nil
		}
		w.sub = ""
		if errors.Is(ev.Closed.Error, api.ErrUnknownAnchor) || errors.Is(ev.Closed.Error, api.ErrTypeMismatch) {
			w.out.comment("%v, refetching", ev.Closed.Error)
			return w.resync(ctx)
		}
		return fmt.Errorf("subscription closed: %w", ev.Closed.Error)
	case ev.Patch != nil:
		if ev.Patch.Subscription != w.sub {
			return nil
		}
		p := ev.Patch.Patch
		if p.From != w.anchor {
			w.out.comment("missed patches before %s, refetching", p.To)
			return w.resync(ctx)
		}
		doc, err := p.ApplyTo(w.doc)
		if err != nil {
			w.out.comment("%v, refetching", err)
			return w.resync(ctx)
		}
		w.doc = doc
		w.anchor = p.To
		w.out.comment("%s -> %s", p.From, p.To)
		w.out.ops(p.Ops)
		w.printDoc()
	}
	return nil
}

func (w *watcher) printDoc() {
	if !w.cfg.Doc || w.doc.Root == nil {
		return
	}
	fmt.Fprintln(w.cc.Out, w.doc.Root.JSONString())
}
