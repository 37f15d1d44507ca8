package shaper

import (
	"testing"

	"CoinDash/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tp(date string, kv ...any) models.TimePoint {
	p := models.TimePoint{Date: date, Values: map[string]float64{}}
	for i := 0; i+1 < len(kv); i += 2 {
		p.Values[kv[i].(string)] = kv[i+1].(float64)
	}
	return p
}

func TestShape_LengthAndDatesFollowPrice(t *testing.T) {
	price := []models.TimePoint{
		tp("2024-01-01", "BTC", 100.0),
		tp("2024-01-02", "BTC", 110.0),
		tp("2024-01-03"),
	}
	rows := Shape(price, nil, nil, []string{"BTC"})

	require.Len(t, rows, len(price))
	for i := range price {
		assert.Equal(t, price[i].Date, rows[i].Date)
	}
	v, ok := rows[1].Price("BTC")
	assert.True(t, ok)
	assert.Equal(t, 110.0, v)

	_, ok = rows[2].Price("BTC")
	assert.False(t, ok, "missing price must be omitted")
}

func TestShape_SecondarySeriesJoinedByDate(t *testing.T) {
	price := []models.TimePoint{
		tp("2024-01-01", "BTC", 1.0, "ETH", 2.0),
		tp("2024-01-02", "BTC", 3.0, "ETH", 4.0),
		tp("2024-01-03", "BTC", 5.0, "ETH", 6.0),
	}
	// market caps skip 01-02; volumes are shorter and start late
	caps := []models.TimePoint{
		tp("2024-01-01", "BTC", 10.0),
		tp("2024-01-03", "BTC", 30.0, "ETH", 60.0),
	}
	vols := []models.TimePoint{
		tp("2024-01-03", "ETH", 600.0),
	}

	rows := Shape(price, caps, vols, []string{"BTC", "ETH"})
	require.Len(t, rows, 3)

	mc, ok := rows[0].MarketCap("BTC")
	assert.True(t, ok)
	assert.Equal(t, 10.0, mc)
	_, ok = rows[0].MarketCap("ETH")
	assert.False(t, ok)

	_, ok = rows[1].MarketCap("BTC")
	assert.False(t, ok, "a gap in the market-cap series must not shift later values")

	mc, ok = rows[2].MarketCap("ETH")
	assert.True(t, ok)
	assert.Equal(t, 60.0, mc)

	_, ok = rows[0].Volume("ETH")
	assert.False(t, ok)
	vol, ok := rows[2].Volume("ETH")
	assert.True(t, ok)
	assert.Equal(t, 600.0, vol)
}

func TestShape_OnlySelectedSymbols(t *testing.T) {
	price := []models.TimePoint{tp("2024-01-01", "BTC", 1.0, "DOGE", 0.1)}
	rows := Shape(price, price, price, []string{"BTC"})

	require.Len(t, rows, 1)
	assert.Equal(t, map[string]float64{
		"BTC":           1.0,
		"BTC_marketCap": 1.0,
		"BTC_volume":    1.0,
	}, rows[0].Fields)
}

func TestShape_EmptyPrice(t *testing.T) {
	rows := Shape(nil, []models.TimePoint{tp("2024-01-01", "BTC", 1.0)}, nil, []string{"BTC"})
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestShape_DoesNotMutateInputs(t *testing.T) {
	price := []models.TimePoint{tp("2024-01-01", "BTC", 1.0)}
	caps := []models.TimePoint{tp("2024-01-01", "BTC", 2.0)}

	rows := Shape(price, caps, nil, []string{"BTC"})
	rows[0].Fields["BTC"] = 99

	assert.Equal(t, 1.0, price[0].Values["BTC"])
	assert.Len(t, price[0].Values, 1)
	assert.Len(t, caps[0].Values, 1)
}
