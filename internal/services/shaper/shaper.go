// Package shaper merges independently fetched price, market-cap and volume
// series into one row per price date.
package shaper

import "CoinDash/internal/domain/models"

// Shape returns one ShapedRow per element of price, in the same order and with
// the same dates. Market cap and volume are joined by date, so a secondary
// series that is shorter, longer or has gaps contributes only the dates it has.
// Missing values are omitted, never zero-filled. Inputs are not modified.
func Shape(price, marketCap, volume []models.TimePoint, symbols []string) []models.ShapedRow {
	if len(price) == 0 {
		return []models.ShapedRow{}
	}

	caps := byDate(marketCap)
	vols := byDate(volume)

	out := make([]models.ShapedRow, len(price))
	for i, p := range price {
		row := models.ShapedRow{
			Date:   p.Date,
			Fields: make(map[string]float64, len(symbols)*3),
		}
		mc, hasCap := caps[p.Date]
		vol, hasVol := vols[p.Date]

		for _, sym := range symbols {
			if v, ok := p.Values[sym]; ok {
				row.Fields[sym] = v
			}
			if hasCap {
				if v, ok := mc.Values[sym]; ok {
					row.Fields[models.MarketCapKey(sym)] = v
				}
			}
			if hasVol {
				if v, ok := vol.Values[sym]; ok {
					row.Fields[models.VolumeKey(sym)] = v
				}
			}
		}
		out[i] = row
	}
	return out
}

// byDate indexes a series by date. When a date repeats, the first entry wins.
func byDate(series []models.TimePoint) map[string]models.TimePoint {
	idx := make(map[string]models.TimePoint, len(series))
	for _, p := range series {
		if _, dup := idx[p.Date]; !dup {
			idx[p.Date] = p
		}
	}
	return idx
}
