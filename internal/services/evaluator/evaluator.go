// Package evaluator runs custom-metric formulas over shaped rows, one cell per
// (row, symbol, metric), and reshapes the results into chart rows.
//
// A cell that fails to evaluate, or whose result is NaN or infinite, is null.
// Failures never leave the cell they happened in.
package evaluator

import (
	"math"

	"CoinDash/internal/domain/models"
)

// Evaluate compiles metrics and evaluates them over rows for every symbol.
func Evaluate(rows []models.ShapedRow, metrics []models.MetricDefinition, symbols []string) models.MetricSeries {
	return NewPlan(metrics).Evaluate(rows, symbols)
}

// Evaluate runs the plan over rows for every symbol. The result has one column
// of len(rows) values for every (metric, symbol) pair.
func (p *Plan) Evaluate(rows []models.ShapedRow, symbols []string) models.MetricSeries {
	if len(rows) == 0 || len(p.steps) == 0 || len(symbols) == 0 {
		return models.MetricSeries{Dates: []string{}, Values: map[string]map[string][]*float64{}}
	}

	out := models.MetricSeries{
		Dates:  make([]string, len(rows)),
		Values: make(map[string]map[string][]*float64, len(p.steps)),
	}
	for i, r := range rows {
		out.Dates[i] = r.Date
	}
	for _, st := range p.steps {
		cols := make(map[string][]*float64, len(symbols))
		for _, sym := range symbols {
			cols[sym] = make([]*float64, len(rows))
		}
		out.Values[st.name] = cols
	}

	dates := parseDates(rows)
	for i := range rows {
		for _, sym := range symbols {
			sc := &scope{
				rows:   rows,
				index:  i,
				symbol: sym,
				date:   dates[i],
				custom: make(map[string]float64, len(p.steps)),
			}
			for _, idx := range p.order {
				st := p.steps[idx]
				if st.err != nil {
					continue
				}
				v, err := st.expr.Eval(sc)
				if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				out.Values[st.name][sym][i] = models.Float(v)
				if st.bind {
					sc.custom[st.variable] = v
				}
			}
		}
	}
	return out
}

// Reshape turns one metric of series into chart rows: one row per date and one
// key per symbol, null where no value was produced. Every symbol key is present
// on every row, including for a metric that is not in series.
func Reshape(series models.MetricSeries, metricName string, symbols []string) []models.ChartRow {
	if len(series.Dates) == 0 || len(symbols) == 0 {
		return []models.ChartRow{}
	}

	syms := make([]string, len(symbols))
	copy(syms, symbols)

	out := make([]models.ChartRow, len(series.Dates))
	for i, d := range series.Dates {
		row := models.ChartRow{
			Date:    d,
			Symbols: syms,
			Values:  make(map[string]*float64, len(syms)),
		}
		for _, sym := range syms {
			row.Values[sym] = series.Cell(metricName, sym, i)
		}
		out[i] = row
	}
	return out
}

// Failures counts the null cells of each metric in series.
func Failures(series models.MetricSeries) map[string]int {
	out := make(map[string]int, len(series.Values))
	for name, cols := range series.Values {
		n := 0
		for _, col := range cols {
			for _, v := range col {
				if v == nil {
					n++
				}
			}
		}
		out[name] = n
	}
	return out
}
