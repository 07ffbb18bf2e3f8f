package derive

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/signadot/docsync/system/syncd/track"
)

// Program is a compiled derived-value expression.
type Program struct {
	Name   string
	On     track.Category
	Source string

	prog *vm.Program
}

// Compile compiles src, an expr-lang expression evaluated against a model
// environment, into a derived value invalidated by on.
func Compile(name, src string, on track.Category, opts ...expr.Option) (*Program, error) {
	prog, err := expr.Compile(src, append(exprOpts(), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("derived value %s: %w", name, err)
	}
	return &Program{Name: name, On: on, Source: src, prog: prog}, nil
}

// Run evaluates p against env.
func (p *Program) Run(env any) (any, error) {
	return vm.Run(p.prog, env)
}

// FromProgram returns a cache of p evaluated against env(model).
func FromProgram[M track.Source](model M, p *Program, env func(M) map[string]any) *Cache[any] {
	return New(p.Name, model, p.On, func(m M) (any, error) {
		return p.Run(env(m))
	})
}

func exprOpts() []expr.Option {
	return []expr.Option{
		expr.Function("getenv", func(params ...any) (any, error) {
			return os.Getenv(params[0].(string)), nil
		},
			new(func(string) string)),
	}
}
