package tariff

import "sort"

// Route is a directed country pair
type Route struct {
	From string
	To   string
}

// RateRecord is one tariff observation from uploaded data
type RateRecord struct {
	From string
	To   string
	Rate float64
}

// Index maps a directed country pair to its tariff percent
type Index map[Route]float64

// BuildTariffIndex indexes records by exact (from, to) pair.
// Later records for the same pair overwrite earlier ones.
func BuildTariffIndex(records []RateRecord) Index {
	idx := make(Index, len(records))
	for _, r := range records {
		idx[Route{From: r.From, To: r.To}] = r.Rate
	}
	return idx
}

// LookupTariff returns the rate for an exact, case-sensitive pair match
func LookupTariff(idx Index, from, to string) (float64, bool) {
	rate, ok := idx[Route{From: from, To: to}]
	return rate, ok
}

// Lookup adapts the index to a TariffLookup
func (idx Index) Lookup(from, to string) (float64, bool) {
	return LookupTariff(idx, from, to)
}

// RateInfo holds tariff info for API responses
type RateInfo struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// Rates lists every indexed pair, sorted by origin then destination
func (idx Index) Rates() []RateInfo {
	out := make([]RateInfo, 0, len(idx))
	for route, rate := range idx {
		out = append(out, RateInfo{From: route.From, To: route.To, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
