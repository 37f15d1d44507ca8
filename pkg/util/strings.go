package util

import "strings"

// SplitCoins parses a comma-separated coin list: symbols are trimmed and
// upper-cased, empties and duplicates dropped, order kept.
func SplitCoins(s string) []string {
	return NormalizeSymbols(strings.Split(s, ","))
}

// NormalizeSymbols trims, upper-cases and de-duplicates symbols, keeping order.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
