package evaluator

import (
	"errors"
	"fmt"

	"CoinDash/internal/domain/models"
	"CoinDash/internal/formula"
)

var ErrCycle = errors.New("metric depends on itself")

type step struct {
	name     string
	variable string
	bind     bool
	expr     *formula.Expr
	deps     []int
	err      error
}

// Plan is a batch of metrics compiled once and ordered so that every metric
// runs after the metrics it references through their custom_ variables.
type Plan struct {
	steps []step
	order []int
}

// NewPlan compiles metrics and resolves their evaluation order. Formulas that
// fail to compile and metrics on (or depending on) a reference cycle are kept
// in the plan with an error; their cells evaluate to null. A repeated name is
// skipped, and when two names slug to the same variable only the first is bound.
func NewPlan(metrics []models.MetricDefinition) *Plan {
	p := &Plan{steps: make([]step, 0, len(metrics))}

	names := make(map[string]struct{}, len(metrics))
	vars := make(map[string]int, len(metrics))
	for _, m := range metrics {
		if _, dup := names[m.Name]; dup {
			continue
		}
		names[m.Name] = struct{}{}

		st := step{name: m.Name, variable: m.Variable()}
		if _, taken := vars[st.variable]; !taken {
			vars[st.variable] = len(p.steps)
			st.bind = true
		}
		st.expr, st.err = formula.Compile(m.Formula)
		p.steps = append(p.steps, st)
	}

	for i := range p.steps {
		st := &p.steps[i]
		if st.expr == nil {
			continue
		}
		for _, v := range st.expr.Variables() {
			if j, ok := vars[v]; ok {
				st.deps = append(st.deps, j)
			}
		}
	}

	p.order = p.resolve()
	return p
}

// resolve orders steps so dependencies come first. Among steps that are ready
// at the same time, input order is kept. Steps left over sit on a cycle or
// depend on one.
func (p *Plan) resolve() []int {
	placed := make([]bool, len(p.steps))
	order := make([]int, 0, len(p.steps))

	for progress := true; progress; {
		progress = false
		for i, st := range p.steps {
			if placed[i] {
				continue
			}
			ready := true
			for _, d := range st.deps {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				placed[i] = true
				order = append(order, i)
				progress = true
			}
		}
	}

	for i := range p.steps {
		if !placed[i] {
			if p.steps[i].err == nil {
				p.steps[i].err = fmt.Errorf("%w: %s", ErrCycle, p.steps[i].name)
			}
			order = append(order, i)
		}
	}
	return order
}

// Names returns the metric names in the plan, in input order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.steps))
	for i, st := range p.steps {
		out[i] = st.name
	}
	return out
}

// Errors returns the metrics that cannot be evaluated at all, keyed by name.
func (p *Plan) Errors() map[string]error {
	out := make(map[string]error)
	for _, st := range p.steps {
		if st.err != nil {
			out[st.name] = st.err
		}
	}
	return out
}
