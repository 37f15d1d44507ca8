// Package formula implements the custom-metric expression language: numbers,
// named variables, the four arithmetic operators with parentheses, and a fixed
// set of functions (sqrt, log10, abs, prev).
//
// A formula is compiled once and may then be evaluated any number of times,
// concurrently, against different scopes.
package formula

import (
	"strings"
)

// Scope supplies variable bindings and price lookback for a single evaluation.
type Scope interface {
	// Lookup returns the value bound to name.
	Lookup(name string) (float64, bool)
	// Prev returns the current symbol's price steps rows before the current one,
	// or 0 when that row does not exist or has no price.
	Prev(steps int) float64
}

// Expr is a compiled formula. It is immutable.
type Expr struct {
	src  string
	root node
	vars []string
}

// Compile parses src into an Expr.
func Compile(src string) (*Expr, error) {
	p := &parser{lex: lexer{src: src}, seen: make(map[string]struct{})}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.errorf(0, "empty formula")
	}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf(p.tok.pos, "unexpected %q", p.tok.text)
	}
	return &Expr{src: src, root: root, vars: p.vars}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the formula against s. Non-finite results are returned as is.
func (e *Expr) Eval(s Scope) (float64, error) {
	return e.root.eval(s)
}

// Variables lists the variable names the formula references, in order of first use.
func (e *Expr) Variables() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

// Source returns the text the formula was compiled from.
func (e *Expr) Source() string { return e.src }

// String renders the parsed tree with explicit grouping.
func (e *Expr) String() string {
	var b strings.Builder
	e.root.write(&b)
	return b.String()
}
