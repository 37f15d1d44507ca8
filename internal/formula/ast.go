package formula

import (
	"math"
	"strconv"
	"strings"
)

type node interface {
	eval(s Scope) (float64, error)
	write(b *strings.Builder)
}

type numberNode float64

func (n numberNode) eval(Scope) (float64, error) { return float64(n), nil }

func (n numberNode) write(b *strings.Builder) {
	b.WriteString(strconv.FormatFloat(float64(n), 'g', -1, 64))
}

type varNode string

func (n varNode) eval(s Scope) (float64, error) {
	v, ok := s.Lookup(string(n))
	if !ok {
		return 0, &EvalError{Name: string(n), Err: ErrUnboundVariable}
	}
	return v, nil
}

func (n varNode) write(b *strings.Builder) { b.WriteString(string(n)) }

type unaryNode struct {
	op byte
	x  node
}

func (n *unaryNode) eval(s Scope) (float64, error) {
	v, err := n.x.eval(s)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

func (n *unaryNode) write(b *strings.Builder) {
	b.WriteByte(n.op)
	n.x.write(b)
}

type binaryNode struct {
	op   byte
	l, r node
}

func (n *binaryNode) eval(s Scope) (float64, error) {
	l, err := n.l.eval(s)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(s)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		// IEEE division: x/0 is ±Inf, 0/0 is NaN.
		return l / r, nil
	}
}

func (n *binaryNode) write(b *strings.Builder) {
	b.WriteByte('(')
	n.l.write(b)
	b.WriteByte(' ')
	b.WriteByte(n.op)
	b.WriteByte(' ')
	n.r.write(b)
	b.WriteByte(')')
}

type callNode struct {
	name string
	fn   function
	args []node
}

func (n *callNode) eval(s Scope) (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(s)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return n.fn.call(s, args), nil
}

func (n *callNode) write(b *strings.Builder) {
	b.WriteString(n.name)
	b.WriteByte('(')
	for i, a := range n.args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b)
	}
	b.WriteByte(')')
}

type function struct {
	minArgs, maxArgs int
	call             func(s Scope, args []float64) float64
}

var functions = map[string]function{
	"sqrt":  {1, 1, func(_ Scope, a []float64) float64 { return math.Sqrt(a[0]) }},
	"log10": {1, 1, func(_ Scope, a []float64) float64 { return math.Log10(a[0]) }},
	"abs":   {1, 1, func(_ Scope, a []float64) float64 { return math.Abs(a[0]) }},
	"prev": {0, 1, func(s Scope, a []float64) float64 {
		steps := 1.0
		if len(a) == 1 {
			steps = a[0]
		}
		// Only whole steps address a row.
		if math.IsNaN(steps) || math.IsInf(steps, 0) || steps != math.Trunc(steps) {
			return 0
		}
		return s.Prev(int(steps))
	}},
}

// Functions returns the names callable from a formula.
func Functions() []string {
	return []string{"abs", "log10", "prev", "sqrt"}
}
