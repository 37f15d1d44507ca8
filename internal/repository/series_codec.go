package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	applogger "CoinDash/pkg/logger"
)

// trackedCoinWindow is how recently a coin must have been in the top 100 to
// appear in the "all" coin list.
const trackedCoinWindow = 30 * 24 * time.Hour

// decodeNumber accepts JSON numbers and numeric strings. Anything else
// (null, objects, garbage) is reported as absent.
func decodeNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// unwrapJSONString returns the inner document of a JSONB column that was
// stored as a JSON string, e.g. "{\"BTC\":1}". Other input is returned as is.
func unwrapJSONString(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	if strings.TrimSpace(inner) == "" {
		return []byte("null"), nil
	}
	return []byte(inner), nil
}

// decodeValues decodes a {symbol: number} object, keeping only symbols.
// An empty symbols slice keeps everything.
func decodeValues(raw []byte, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	raw, err := unwrapJSONString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	if len(symbols) == 0 {
		for sym, v := range obj {
			if f, ok := decodeNumber(v); ok {
				out[sym] = f
			}
		}
		return out, nil
	}
	for _, sym := range symbols {
		if v, ok := obj[sym]; ok {
			if f, ok := decodeNumber(v); ok {
				out[sym] = f
			}
		}
	}
	return out, nil
}

// decodeIndicatorValues picks indicator name out of a {coin: {indicator: value}} object.
func decodeIndicatorValues(raw []byte, name string, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	raw, err := unwrapJSONString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode indicators: %w", err)
	}
	var obj map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode indicators: %w", err)
	}
	pick := func(coin string) {
		if v, ok := obj[coin][name]; ok {
			if f, ok := decodeNumber(v); ok {
				out[coin] = f
			}
		}
	}
	if len(symbols) == 0 {
		for coin := range obj {
			pick(coin)
		}
		return out, nil
	}
	for _, coin := range symbols {
		pick(coin)
	}
	return out, nil
}

// rankedSymbols orders a {symbol: rank} object by rank, ties by symbol.
func rankedSymbols(raw []byte) ([]string, error) {
	raw, err := unwrapJSONString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode rankings: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode rankings: %w", err)
	}
	type entry struct {
		symbol string
		rank   float64
	}
	entries := make([]entry, 0, len(obj))
	for sym, v := range obj {
		rank, ok := decodeNumber(v)
		if !ok {
			rank = math.MaxFloat64
		}
		entries = append(entries, entry{sym, rank})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rank != entries[j].rank {
			return entries[i].rank < entries[j].rank
		}
		return entries[i].symbol < entries[j].symbol
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.symbol
	}
	return out, nil
}

// sortedKeys returns the keys of a JSON object, sorted.
func sortedKeys(raw []byte) ([]string, error) {
	raw, err := unwrapJSONString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	out := make([]string, 0, len(obj))
	for k := range obj {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// catalogFromSnapshot builds the indicator catalog from the latest
// {coin: {indicator: value}} snapshot. "price" is not an indicator.
func catalogFromSnapshot(raw []byte) (models.IndicatorCatalog, error) {
	cat := models.IndicatorCatalog{
		Indicators:   []string{},
		Coins:        []string{},
		Combinations: []models.IndicatorCombination{},
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cat, nil
	}

	raw, err := unwrapJSONString(raw)
	if err != nil {
		return cat, fmt.Errorf("decode indicators: %w", err)
	}
	var obj map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return cat, fmt.Errorf("decode indicators: %w", err)
	}
	pairs := make(map[string][]string, len(obj))
	for coin, inds := range obj {
		names := make([]string, 0, len(inds))
		for name := range inds {
			names = append(names, name)
		}
		pairs[coin] = names
	}
	return catalogFromPairs(pairs), nil
}

// catalogFromPairs builds a catalog from coin -> indicator names, sorted.
func catalogFromPairs(pairs map[string][]string) models.IndicatorCatalog {
	cat := models.IndicatorCatalog{
		Indicators:   []string{},
		Coins:        make([]string, 0, len(pairs)),
		Combinations: make([]models.IndicatorCombination, 0, len(pairs)),
	}
	seen := make(map[string]struct{})
	for coin := range pairs {
		cat.Coins = append(cat.Coins, coin)
	}
	sort.Strings(cat.Coins)

	for _, coin := range cat.Coins {
		names := make([]string, 0, len(pairs[coin]))
		for _, name := range pairs[coin] {
			if name == "price" {
				continue
			}
			names = append(names, name)
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				cat.Indicators = append(cat.Indicators, name)
			}
		}
		sort.Strings(names)
		cat.Combinations = append(cat.Combinations, models.IndicatorCombination{Coin: coin, Indicators: names})
	}
	sort.Strings(cat.Indicators)
	return cat
}

// upstream marks err as a failure of the backing store.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domrepo.ErrUpstream, err)
}

// storeObserver times one store call and reports it to metrics and the log.
type storeObserver struct {
	backend string
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func (o storeObserver) done(op string, start time.Time, err error, fields ...applogger.Field) {
	d := time.Since(start)
	if o.metrics != nil {
		o.metrics.RecordStoreQuery(o.backend, op, d.Seconds(), err)
	}
	if o.l == nil {
		return
	}
	fields = append(fields, applogger.String("backend", o.backend), applogger.Duration("duration_ms", d))
	if err != nil {
		o.l.Error(o.backend+" "+op+" error", append(fields, applogger.Error(err))...)
		return
	}
	o.l.Debug(o.backend+" "+op+" ok", fields...)
}
