package evaluator

import (
	"encoding/json"
	"testing"
	"time"

	"CoinDash/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(date string, fields map[string]float64) models.ShapedRow {
	return models.ShapedRow{Date: date, Fields: fields}
}

func metric(name, f string) models.MetricDefinition {
	return models.MetricDefinition{ID: name, Name: name, Formula: f}
}

func val(t *testing.T, v *float64) float64 {
	t.Helper()
	require.NotNil(t, v)
	return *v
}

func priceRows(prices ...float64) []models.ShapedRow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ShapedRow, len(prices))
	for i, p := range prices {
		out[i] = row(start.AddDate(0, 0, i).Format("2006-01-02"), map[string]float64{"BTC": p})
	}
	return out
}

func TestEvaluate_PriceTimesTwo(t *testing.T) {
	rows := []models.ShapedRow{row("2024-01-01", map[string]float64{"BTC": 10})}
	s := Evaluate(rows, []models.MetricDefinition{metric("double", "price * 2")}, []string{"BTC"})

	assert.Equal(t, 20.0, val(t, s.Cell("double", "BTC", 0)))
}

func TestEvaluate_Prev(t *testing.T) {
	rows := priceRows(1, 2, 3, 4)
	s := Evaluate(rows, []models.MetricDefinition{metric("p", "prev(1)")}, []string{"BTC"})

	assert.Equal(t, 0.0, val(t, s.Cell("p", "BTC", 0)))
	assert.Equal(t, 3.0, val(t, s.Cell("p", "BTC", 3)))
}

func TestEvaluate_MissingFieldsDefaultToZero(t *testing.T) {
	rows := []models.ShapedRow{row("2024-01-01", map[string]float64{})}
	s := Evaluate(rows, []models.MetricDefinition{metric("sum", "price + volume + marketCap + 1")}, []string{"ETH"})

	assert.Equal(t, 1.0, val(t, s.Cell("sum", "ETH", 0)))
}

func TestEvaluate_SyntaxErrorIsLocal(t *testing.T) {
	rows := priceRows(1, 2, 3)
	symbols := []string{"BTC", "ETH"}
	metrics := []models.MetricDefinition{
		metric("broken", "(price * 2"),
		metric("ok", "price + 1"),
	}

	s := Evaluate(rows, metrics, symbols)

	for i := range rows {
		for _, sym := range symbols {
			assert.Nil(t, s.Cell("broken", sym, i))
		}
	}
	assert.Equal(t, 2.0, val(t, s.Cell("ok", "BTC", 0)))
	assert.Equal(t, 4.0, val(t, s.Cell("ok", "BTC", 2)))
	assert.Equal(t, 1.0, val(t, s.Cell("ok", "ETH", 2)))
	assert.Equal(t, 6, Failures(s)["broken"])
	assert.Equal(t, 0, Failures(s)["ok"])
}

func TestEvaluate_NonFiniteIsNull(t *testing.T) {
	rows := []models.ShapedRow{
		row("2024-01-01", map[string]float64{"BTC": 10, "BTC_volume": 0}),
		row("2024-01-02", map[string]float64{"BTC": 10, "BTC_volume": 5}),
	}
	s := Evaluate(rows, []models.MetricDefinition{
		metric("ratio", "price / volume"),
		metric("log", "log10(volume)"),
		metric("root", "sqrt(-price)"),
	}, []string{"BTC"})

	assert.Nil(t, s.Cell("ratio", "BTC", 0))
	assert.Equal(t, 2.0, val(t, s.Cell("ratio", "BTC", 1)))
	assert.Nil(t, s.Cell("log", "BTC", 0))
	assert.Nil(t, s.Cell("root", "BTC", 1))
}

func TestEvaluate_CalendarVariables(t *testing.T) {
	// 2024-03-10 is a Sunday.
	rows := []models.ShapedRow{row("2024-03-10", map[string]float64{})}
	s := Evaluate(rows, []models.MetricDefinition{
		metric("dow", "dayOfWeek"),
		metric("dom", "dayOfMonth"),
		metric("month", "month"),
		metric("year", "year"),
		metric("date", "date"),
		metric("index", "index"),
	}, []string{"BTC"})

	assert.Equal(t, 0.0, val(t, s.Cell("dow", "BTC", 0)))
	assert.Equal(t, 10.0, val(t, s.Cell("dom", "BTC", 0)))
	assert.Equal(t, 3.0, val(t, s.Cell("month", "BTC", 0)))
	assert.Equal(t, 2024.0, val(t, s.Cell("year", "BTC", 0)))
	assert.Equal(t, float64(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()), val(t, s.Cell("date", "BTC", 0)))
	assert.Equal(t, 0.0, val(t, s.Cell("index", "BTC", 0)))
}

func TestEvaluate_UnknownVariableIsNull(t *testing.T) {
	rows := priceRows(1)
	s := Evaluate(rows, []models.MetricDefinition{metric("x", "price * bogus")}, []string{"BTC"})
	assert.Nil(t, s.Cell("x", "BTC", 0))
}

func TestEvaluate_CrossMetricReferencesRunInDependencyOrder(t *testing.T) {
	rows := priceRows(10, 20)
	// "ratio" is listed before the metric it references.
	metrics := []models.MetricDefinition{
		metric("ratio", "custom_double_price / price"),
		metric("double price", "price * 2"),
	}
	s := Evaluate(rows, metrics, []string{"BTC"})

	assert.Equal(t, 2.0, val(t, s.Cell("ratio", "BTC", 0)))
	assert.Equal(t, 2.0, val(t, s.Cell("ratio", "BTC", 1)))
	assert.Equal(t, 40.0, val(t, s.Cell("double price", "BTC", 1)))
}

func TestEvaluate_CyclesAreNull(t *testing.T) {
	rows := priceRows(1, 2)
	metrics := []models.MetricDefinition{
		metric("a", "custom_b + 1"),
		metric("b", "custom_a + 1"),
		metric("c", "custom_a * 2"),
		metric("self", "custom_self + price"),
		metric("free", "price"),
	}
	p := NewPlan(metrics)
	errs := p.Errors()
	for _, name := range []string{"a", "b", "c", "self"} {
		assert.ErrorIs(t, errs[name], ErrCycle, name)
	}
	assert.NotContains(t, errs, "free")

	s := p.Evaluate(rows, []string{"BTC"})
	for i := range rows {
		assert.Nil(t, s.Cell("a", "BTC", i))
		assert.Nil(t, s.Cell("b", "BTC", i))
		assert.Nil(t, s.Cell("c", "BTC", i))
		assert.Nil(t, s.Cell("self", "BTC", i))
	}
	assert.Equal(t, 2.0, val(t, s.Cell("free", "BTC", 1)))
}

func TestEvaluate_DependentOfFailedCellIsNull(t *testing.T) {
	rows := []models.ShapedRow{
		row("2024-01-01", map[string]float64{"BTC": 0}),
		row("2024-01-02", map[string]float64{"BTC": 4}),
	}
	metrics := []models.MetricDefinition{
		metric("inv", "1 / price"),
		metric("twice inv", "custom_inv * 2"),
	}
	s := Evaluate(rows, metrics, []string{"BTC"})

	assert.Nil(t, s.Cell("twice inv", "BTC", 0))
	assert.Equal(t, 0.5, val(t, s.Cell("twice inv", "BTC", 1)))
}

func TestEvaluate_Idempotent(t *testing.T) {
	rows := priceRows(3, 1, 4, 1, 5)
	metrics := []models.MetricDefinition{
		metric("m", "price / prev(1) - 1"),
		metric("n", "custom_m * 100"),
	}
	symbols := []string{"BTC", "ETH"}

	a, _ := json.Marshal(Reshape(Evaluate(rows, metrics, symbols), "n", symbols))
	b, _ := json.Marshal(Reshape(Evaluate(rows, metrics, symbols), "n", symbols))
	assert.JSONEq(t, string(a), string(b))
}

func TestEvaluate_DoesNotMutateRows(t *testing.T) {
	rows := priceRows(1, 2)
	Evaluate(rows, []models.MetricDefinition{metric("m", "price * 2")}, []string{"BTC"})

	assert.Equal(t, map[string]float64{"BTC": 1}, rows[0].Fields)
	assert.Equal(t, map[string]float64{"BTC": 2}, rows[1].Fields)
}

func TestEvaluate_EmptyInputs(t *testing.T) {
	rows := priceRows(1)
	ms := []models.MetricDefinition{metric("m", "price")}

	for _, s := range []models.MetricSeries{
		Evaluate(nil, ms, []string{"BTC"}),
		Evaluate(rows, nil, []string{"BTC"}),
		Evaluate(rows, ms, nil),
	} {
		assert.Empty(t, s.Dates)
		assert.Empty(t, s.Values)
		assert.Empty(t, Reshape(s, "m", []string{"BTC"}))
	}
}

func TestReshape_EverySymbolKeyPresent(t *testing.T) {
	rows := []models.ShapedRow{row("2024-01-01", map[string]float64{"BTC": 5})}
	// ETH has no price, so "1 / price" is Inf for ETH and null after evaluation.
	s := Evaluate(rows, []models.MetricDefinition{metric("inv", "1 / price")}, []string{"BTC", "ETH"})

	out := Reshape(s, "inv", []string{"BTC", "ETH"})
	require.Len(t, out, 1)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"2024-01-01","BTC":0.2,"ETH":null}]`, string(b))
}

func TestReshape_UnknownMetricIsAllNull(t *testing.T) {
	s := Evaluate(priceRows(1, 2), []models.MetricDefinition{metric("m", "price")}, []string{"BTC"})

	out := Reshape(s, "nope", []string{"BTC", "SOL"})
	require.Len(t, out, 2)
	for _, r := range out {
		v, ok := r.Value("BTC")
		assert.True(t, ok)
		assert.Nil(t, v)
		v, ok = r.Value("SOL")
		assert.True(t, ok)
		assert.Nil(t, v)
	}
}

func TestPlan_DuplicateNamesKeepFirst(t *testing.T) {
	p := NewPlan([]models.MetricDefinition{
		metric("m", "price"),
		metric("m", "price * 100"),
	})
	assert.Equal(t, []string{"m"}, p.Names())

	s := p.Evaluate(priceRows(3), []string{"BTC"})
	assert.Equal(t, 3.0, val(t, s.Cell("m", "BTC", 0)))
}
