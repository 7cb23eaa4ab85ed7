package scheduler

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/origin"
)

// Filter is a compiled admission expression over an origin's footprint. The
// zero Filter admits every origin.
//
// Variables: origin, count, size, pages, ready_pages (all int).
type Filter struct {
	expr    string
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression disables filtering.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("origin", cel.IntType),
		cel.Variable("count", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("pages", cel.IntType),
		cel.Variable("ready_pages", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{expr: expr, prog: prog, enabled: true}, nil
}

// Expr returns the source expression, or "" when disabled.
func (f Filter) Expr() string { return f.expr }

// Admit evaluates the expression. Evaluation errors and non-bool results
// reject the origin.
func (f Filter) Admit(o origin.ID, fp footprint.Footprint) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"origin":      int64(o),
		"count":       int64(fp.Count),
		"size":        int64(fp.Size),
		"pages":       int64(fp.Pages),
		"ready_pages": int64(fp.ReadyPages),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
