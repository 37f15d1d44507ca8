package models

import (
	"bytes"
	"encoding/json"
)

// ChartRow is one date of chart data: {"date": ..., "<SYM>": number|null, ...}.
//
// Keys are written in Symbols order. A symbol present in Values with a nil
// value is written as null; a symbol absent from Values is omitted.
type ChartRow struct {
	Date    string
	Symbols []string
	Values  map[string]*float64
}

// Value returns the value for symbol and whether the key is present.
func (r ChartRow) Value(symbol string) (*float64, bool) {
	v, ok := r.Values[symbol]
	return v, ok
}

func (r ChartRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"date":`)
	d, err := json.Marshal(r.Date)
	if err != nil {
		return nil, err
	}
	buf.Write(d)

	for _, sym := range r.Symbols {
		v, ok := r.Values[sym]
		if !ok {
			continue
		}
		k, err := json.Marshal(sym)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		if v == nil {
			buf.WriteString("null")
			continue
		}
		n, err := json.Marshal(*v)
		if err != nil {
			return nil, err
		}
		buf.Write(n)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the flattened form produced by MarshalJSON.
// Symbols are recovered in key order of appearance.
func (r *ChartRow) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.Values = make(map[string]*float64)
	r.Symbols = r.Symbols[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if key == "date" {
			if err := dec.Decode(&r.Date); err != nil {
				return err
			}
			continue
		}
		var v *float64
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Symbols = append(r.Symbols, key)
		r.Values[key] = v
	}
	_, err := dec.Token()
	return err
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// MetricSeries holds evaluated cells: metric name -> symbol -> one value per date.
// A nil value is a cell that failed to evaluate.
type MetricSeries struct {
	Dates  []string
	Values map[string]map[string][]*float64
}

// Cell returns the value of metric for symbol at row i.
func (s MetricSeries) Cell(metric, symbol string, i int) *float64 {
	bySymbol, ok := s.Values[metric]
	if !ok {
		return nil
	}
	col, ok := bySymbol[symbol]
	if !ok || i < 0 || i >= len(col) {
		return nil
	}
	return col[i]
}

// Metrics returns the names of the evaluated metrics.
func (s MetricSeries) Metrics() []string {
	out := make([]string, 0, len(s.Values))
	for k := range s.Values {
		out = append(out, k)
	}
	return out
}
