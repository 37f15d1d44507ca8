package models

import (
	"encoding/json"
	"sort"
)

// SeriesKind selects one of the daily market series.
type SeriesKind string

const (
	SeriesPrices     SeriesKind = "prices"
	SeriesMarketCaps SeriesKind = "market-caps"
	SeriesVolumes    SeriesKind = "volumes"
)

// Valid reports whether k is a known series kind.
func (k SeriesKind) Valid() bool {
	switch k {
	case SeriesPrices, SeriesMarketCaps, SeriesVolumes:
		return true
	default:
		return false
	}
}

// Table returns the storage table holding the series.
func (k SeriesKind) Table() string {
	switch k {
	case SeriesMarketCaps:
		return "crypto_market_caps"
	case SeriesVolumes:
		return "crypto_volumes"
	default:
		return "crypto_prices"
	}
}

// TimePoint is one date of one series: symbol -> value.
type TimePoint struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Value returns the value recorded for symbol.
func (p TimePoint) Value(symbol string) (float64, bool) {
	v, ok := p.Values[symbol]
	return v, ok
}

const (
	marketCapSuffix = "_marketCap"
	volumeSuffix    = "_volume"
)

// MarketCapKey is the ShapedRow field holding symbol's market cap.
func MarketCapKey(symbol string) string { return symbol + marketCapSuffix }

// VolumeKey is the ShapedRow field holding symbol's volume.
func VolumeKey(symbol string) string { return symbol + volumeSuffix }

// ShapedRow merges price, market cap and volume for one date.
// Fields are keyed "<SYM>", "<SYM>_marketCap" and "<SYM>_volume"; a field is
// present only when the source series had a value for it.
type ShapedRow struct {
	Date   string
	Fields map[string]float64
}

func (r ShapedRow) Price(symbol string) (float64, bool) {
	v, ok := r.Fields[symbol]
	return v, ok
}

func (r ShapedRow) MarketCap(symbol string) (float64, bool) {
	v, ok := r.Fields[MarketCapKey(symbol)]
	return v, ok
}

func (r ShapedRow) Volume(symbol string) (float64, bool) {
	v, ok := r.Fields[VolumeKey(symbol)]
	return v, ok
}

// MarshalJSON flattens the row into {"date": ..., "<field>": value, ...}.
func (r ShapedRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["date"] = r.Date
	return json.Marshal(out)
}

// SortedSymbols returns the symbols of a value map in alphabetical order.
func SortedSymbols(values map[string]float64) []string {
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
