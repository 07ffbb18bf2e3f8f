package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/signadot/docsync/libdiff"
)

type opPrinter struct {
	w      io.Writer
	colors map[libdiff.OpKind]*color.Color
	faint  *color.Color
}

func (cfg *MainConfig) useColor(w io.Writer) bool {
	switch {
	case cfg.Color:
		return true
	case cfg.NoColor:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cfg *MainConfig) opPrinter(w io.Writer) *opPrinter {
	p := &opPrinter{w: w}
	if !cfg.useColor(w) {
		return p
	}
	p.colors = map[libdiff.OpKind]*color.Color{
		libdiff.OpAdd:     color.New(color.FgGreen),
		libdiff.OpRemove:  color.New(color.FgRed),
		libdiff.OpReplace: color.New(color.FgYellow),
	}
	p.faint = color.New(color.Faint)
	for _, c := range p.colors {
		c.EnableColor()
	}
	p.faint.EnableColor()
	return p
}

func (p *opPrinter) ops(ops []libdiff.Op) {
	for i := range ops {
		s := ops[i].String()
		if c, ok := p.colors[ops[i].Kind]; ok {
			s = c.Sprint(s)
		}
		fmt.Fprintln(p.w, s)
	}
}

func (p *opPrinter) comment(format string, args ...any) {
	s := fmt.Sprintf("# "+format, args...)
	if p.faint != nil {
		s = p.faint.Sprint(s)
	}
	fmt.Fprintln(p.w, s)
}
