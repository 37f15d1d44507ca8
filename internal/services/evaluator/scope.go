package evaluator

import (
	"strings"
	"time"

	"CoinDash/internal/domain/models"
)

// rowDate is the calendar of one row, parsed once per Evaluate call.
type rowDate struct {
	t  time.Time
	ok bool
}

func parseDates(rows []models.ShapedRow) []rowDate {
	out := make([]rowDate, len(rows))
	for i, r := range rows {
		t, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		out[i] = rowDate{t: t, ok: err == nil}
	}
	return out
}

// scope binds the variables of one (row, symbol) evaluation. The base bindings
// never change; custom holds the values of metrics already evaluated for this
// same row and symbol and is never shared with another cell.
type scope struct {
	rows   []models.ShapedRow
	index  int
	symbol string
	date   rowDate
	custom map[string]float64
}

func (s *scope) Lookup(name string) (float64, bool) {
	row := s.rows[s.index]
	switch name {
	case "price":
		v, _ := row.Price(s.symbol)
		return v, true
	case "volume":
		v, _ := row.Volume(s.symbol)
		return v, true
	case "marketCap":
		v, _ := row.MarketCap(s.symbol)
		return v, true
	case "index":
		return float64(s.index), true
	}

	if strings.HasPrefix(name, models.CustomVariablePrefix) {
		v, ok := s.custom[name]
		return v, ok
	}

	if !s.date.ok {
		return 0, false
	}
	t := s.date.t
	switch name {
	case "date":
		return float64(t.UnixMilli()), true
	case "dayOfWeek":
		return float64(t.Weekday()), true
	case "dayOfMonth":
		return float64(t.Day()), true
	case "month":
		return float64(t.Month()), true
	case "year":
		return float64(t.Year()), true
	}
	return 0, false
}

func (s *scope) Prev(steps int) float64 {
	i := s.index - steps
	if i < 0 || i >= len(s.rows) {
		return 0
	}
	v, _ := s.rows[i].Price(s.symbol)
	return v
}

// BuiltinVariables lists the variables every formula may reference.
func BuiltinVariables() []string {
	return []string{"price", "volume", "marketCap", "index", "date", "dayOfWeek", "dayOfMonth", "month", "year"}
}

// IsBuiltin reports whether name is a built-in variable.
func IsBuiltin(name string) bool {
	for _, b := range BuiltinVariables() {
		if b == name {
			return true
		}
	}
	return false
}
