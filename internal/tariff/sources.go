package tariff

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrAllocationFull is returned when an ingredient's sources already cover 100%
	ErrAllocationFull = errors.New("total percentage already equals 100%, adjust existing values before adding more")
	// ErrSourceIndex is returned for an index outside the source list
	ErrSourceIndex = errors.New("source index out of range")
	// ErrUnknownField is returned for a slider field that does not exist
	ErrUnknownField = errors.New("unknown slider field")
)

// Slider fields accepted by SetAbsorptionSlider
const (
	FieldSupplierAbsorption     = "supplierAbsorption"
	FieldManufacturerAbsorption = "manufacturerAbsorption"
	FieldCashPaymentDelay       = "cashPaymentDelay"
)

// MaxCashPaymentDelay is the upper bound of the payment delay slider, in days
const MaxCashPaymentDelay = 90

// Ingredient is one line of a product's bill of materials
type Ingredient struct {
	Name            string  `json:"name"`
	Percentage      float64 `json:"percentage"` // share of total product mass
	ContractEndDate string  `json:"contractEndDate,omitempty"`
}

// SourceAllocation is a country-specific supply split for one ingredient
type SourceAllocation struct {
	Country                string  `json:"country"`
	Percentage             float64 `json:"percentage"`
	SupplierAbsorption     float64 `json:"supplierAbsorption"`
	ManufacturerAbsorption float64 `json:"manufacturerAbsorption"`
	CashPaymentDelay       float64 `json:"cashPaymentDelay"` // days
	BasePrice              float64 `json:"basePrice,omitempty"`
}

// DefaultSource returns the row an ingredient starts with
func DefaultSource() SourceAllocation {
	return SourceAllocation{Percentage: 100, ManufacturerAbsorption: 100}
}

// BasePriceLookup resolves a country-specific base price for an ingredient
type BasePriceLookup func(ingredient, country string) (float64, bool)

// TariffLookup resolves the tariff percent for a directed country pair
type TariffLookup func(from, to string) (float64, bool)

// InitSources returns the existing sources, or a single default row when there are none
func InitSources(existing []SourceAllocation) []SourceAllocation {
	if len(existing) > 0 {
		return clone(existing)
	}
	return []SourceAllocation{DefaultSource()}
}

// TotalPercentage sums the percentage of every source
func TotalPercentage(sources []SourceAllocation) float64 {
	var total float64
	for _, s := range sources {
		total += s.Percentage
	}
	return total
}

// AddSource appends a source covering whatever share is still unallocated.
// On rejection the input is returned unchanged alongside ErrAllocationFull.
func AddSource(sources []SourceAllocation) ([]SourceAllocation, SourceAllocation, error) {
	remaining := 100 - TotalPercentage(sources)
	if remaining <= 0 {
		return sources, SourceAllocation{}, ErrAllocationFull
	}

	added := SourceAllocation{Percentage: remaining, ManufacturerAbsorption: 100}
	next := append(clone(sources), added)
	return next, added, nil
}

// RemoveSource deletes the source at index. An ingredient always keeps at
// least one row, so removing the last one leaves a fresh default.
func RemoveSource(sources []SourceAllocation, index int) ([]SourceAllocation, error) {
	if err := checkIndex(sources, index); err != nil {
		return sources, err
	}

	next := make([]SourceAllocation, 0, len(sources))
	next = append(next, sources[:index]...)
	next = append(next, sources[index+1:]...)
	if len(next) == 0 {
		next = append(next, DefaultSource())
	}
	return next, nil
}

// SetSourcePercentage parses raw and stores it clamped to [0,100].
// Unparseable input counts as 0. Sibling rows are not renormalised.
func SetSourcePercentage(sources []SourceAllocation, index int, raw string) ([]SourceAllocation, error) {
	if err := checkIndex(sources, index); err != nil {
		return sources, err
	}

	next := clone(sources)
	next[index].Percentage = clamp(ParseNumber(raw), 0, 100)
	return next, nil
}

// SetAbsorptionSlider sets one slider on a source. Supplier and manufacturer
// absorption always sum to 100.
func SetAbsorptionSlider(sources []SourceAllocation, index int, field string, value float64) ([]SourceAllocation, error) {
	if err := checkIndex(sources, index); err != nil {
		return sources, err
	}

	next := clone(sources)
	src := &next[index]
	switch field {
	case FieldSupplierAbsorption:
		src.SupplierAbsorption = clamp(value, 0, 100)
		src.ManufacturerAbsorption = 100 - src.SupplierAbsorption
	case FieldManufacturerAbsorption:
		src.ManufacturerAbsorption = clamp(value, 0, 100)
		src.SupplierAbsorption = 100 - src.ManufacturerAbsorption
	case FieldCashPaymentDelay:
		src.CashPaymentDelay = clamp(value, 0, MaxCashPaymentDelay)
	default:
		return sources, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return next, nil
}

// CountryChange is the result of reassigning a source's country
type CountryChange struct {
	Sources         []SourceAllocation `json:"sources"`
	TariffRate      float64            `json:"tariffRate"`
	TariffAvailable bool               `json:"tariffAvailable"`
}

// SetSourceCountry replaces the country on a source, then refreshes its base
// price and the applicable tariff toward destination using the given lookups.
// Either lookup may be nil.
func SetSourceCountry(sources []SourceAllocation, index int, ingredient, country, destination string, prices BasePriceLookup, rates TariffLookup) (CountryChange, error) {
	if err := checkIndex(sources, index); err != nil {
		return CountryChange{Sources: sources}, err
	}

	next := clone(sources)
	next[index].Country = country

	change := CountryChange{Sources: next}
	if country == "" {
		next[index].BasePrice = 0
		return change, nil
	}

	if prices != nil {
		if price, ok := prices(ingredient, country); ok {
			next[index].BasePrice = price
		} else {
			next[index].BasePrice = 0
		}
	}
	if rates != nil {
		change.TariffRate, change.TariffAvailable = rates(country, destination)
	}
	return change, nil
}

// ParseNumber parses user input, returning 0 for anything that is not a finite number
func ParseNumber(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func checkIndex(sources []SourceAllocation, index int) error {
	if index < 0 || index >= len(sources) {
		return fmt.Errorf("%w: %d", ErrSourceIndex, index)
	}
	return nil
}

func clone(sources []SourceAllocation) []SourceAllocation {
	out := make([]SourceAllocation, len(sources))
	copy(out, sources)
	return out
}
