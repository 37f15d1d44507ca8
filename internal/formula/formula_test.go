package formula

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testScope struct {
	vars   map[string]float64
	prices []float64
	index  int
}

func (s testScope) Lookup(name string) (float64, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s testScope) Prev(steps int) float64 {
	i := s.index - steps
	if i < 0 || i >= len(s.prices) {
		return 0
	}
	return s.prices[i]
}

func eval(t *testing.T, src string, s Scope) float64 {
	t.Helper()
	e, err := Compile(src)
	require.NoError(t, err)
	v, err := e.Eval(s)
	require.NoError(t, err)
	return v
}

func TestCompile_Precedence(t *testing.T) {
	s := testScope{vars: map[string]float64{"price": 10, "volume": 4}}

	cases := []struct {
		src  string
		want float64
	}{
		{"price * 2", 20},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"100 / 10 / 2", 5},
		{"-price + 3", -7},
		{"--2", 2},
		{"+price", 10},
		{"price / volume", 2.5},
		{"2 * -3", -6},
		{".5 + 1e2", 100.5},
		{"2.5E-1", 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.InDelta(t, tc.want, eval(t, tc.src, s), 1e-12)
		})
	}
}

func TestCompile_Functions(t *testing.T) {
	s := testScope{vars: map[string]float64{"price": 16, "marketCap": 1000}}

	assert.Equal(t, 4.0, eval(t, "sqrt(price)", s))
	assert.Equal(t, 3.0, eval(t, "log10(marketCap)", s))
	assert.Equal(t, 5.0, eval(t, "abs(1 - 6)", s))
	assert.Equal(t, 2.0, eval(t, "sqrt(abs(-16)) / 2", s))
	assert.Equal(t, 1.0, eval(t, "log10(sqrt(100))", s))
}

func TestPrev(t *testing.T) {
	prices := []float64{1, 2, 3, 4}

	at := func(i int) testScope { return testScope{prices: prices, index: i, vars: map[string]float64{}} }

	assert.Equal(t, 0.0, eval(t, "prev(1)", at(0)))
	assert.Equal(t, 3.0, eval(t, "prev(1)", at(3)))
	assert.Equal(t, 3.0, eval(t, "prev()", at(3)))
	assert.Equal(t, 1.0, eval(t, "prev(3)", at(3)))
	assert.Equal(t, 0.0, eval(t, "prev(4)", at(3)))
	assert.Equal(t, 0.0, eval(t, "prev(1.9)", at(2)), "fractional steps address no row")
	assert.Equal(t, 0.0, eval(t, "prev(1.5)", at(3)))
	assert.Equal(t, 2.0, eval(t, "prev(2.0)", at(3)))
	assert.Equal(t, 0.0, eval(t, "prev(1/0)", at(2)))
}

func TestDivisionByZeroIsNonFinite(t *testing.T) {
	s := testScope{vars: map[string]float64{"volume": 0}}
	assert.True(t, math.IsInf(eval(t, "1 / volume", s), 1))
	assert.True(t, math.IsNaN(eval(t, "volume / volume", s)))
}

func TestCompile_SyntaxErrors(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"(price * 2",
		"price * 2)",
		"price *",
		"price $ 2",
		"1..2",
		"1e",
		"price price",
		"sqrt(",
		"sqrt(1,)",
		",",
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			var se *SyntaxError
			require.Error(t, err)
			assert.True(t, errors.As(err, &se), "got %T", err)
		})
	}
}

func TestCompile_UnknownFunctionAndArity(t *testing.T) {
	_, err := Compile("pow(price, 2)")
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = Compile("sqrt(1, 2)")
	assert.ErrorIs(t, err, ErrArity)

	_, err = Compile("abs()")
	assert.ErrorIs(t, err, ErrArity)

	_, err = Compile("prev(1, 2)")
	assert.ErrorIs(t, err, ErrArity)
}

func TestCompile_NestingLimit(t *testing.T) {
	src := ""
	for i := 0; i < maxDepth+10; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < maxDepth+10; i++ {
		src += ")"
	}
	_, err := Compile(src)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestEval_UnboundVariable(t *testing.T) {
	e, err := Compile("price + custom_missing")
	require.NoError(t, err)

	_, err = e.Eval(testScope{vars: map[string]float64{"price": 1}})
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "custom_missing", ee.Name)
	assert.ErrorIs(t, err, ErrUnboundVariable)
}

func TestVariables(t *testing.T) {
	e := MustCompile("price / prev(1) + price * custom_a - sqrt(volume)")
	assert.Equal(t, []string{"price", "custom_a", "volume"}, e.Variables())
	assert.Equal(t, "price / prev(1) + price * custom_a - sqrt(volume)", e.Source())
}

func TestString(t *testing.T) {
	e := MustCompile("1 + 2 * price")
	assert.Equal(t, "(1 + (2 * price))", e.String())
}

func TestExprReusedAcrossScopes(t *testing.T) {
	e := MustCompile("price * 2")
	for i := 0; i < 5; i++ {
		v, err := e.Eval(testScope{vars: map[string]float64{"price": float64(i)}})
		require.NoError(t, err)
		assert.Equal(t, float64(i*2), v)
	}
}
