package tariff

import "math"

// SourcePrice compares one source's price with and without tariff
type SourcePrice struct {
	Country         string  `json:"country"`
	WithoutTariff   float64 `json:"withoutTariff"`
	WithTariff      float64 `json:"withTariff"`
	TariffRate      float64 `json:"tariffRate"`
	TariffAvailable bool    `json:"tariffAvailable"`
}

// ComparePrices builds the per-country price comparison for an ingredient.
// Sources without a country are skipped; a source without its own base price
// falls back to defaultPrice. Missing tariffs count as 0.
func ComparePrices(sources []SourceAllocation, destination string, defaultPrice float64, rates TariffLookup) []SourcePrice {
	out := []SourcePrice{}
	for _, src := range sources {
		if src.Country == "" {
			continue
		}

		price := src.BasePrice
		if price == 0 {
			price = defaultPrice
		}

		var rate float64
		var ok bool
		if rates != nil {
			rate, ok = rates(src.Country, destination)
		}

		out = append(out, SourcePrice{
			Country:         src.Country,
			WithoutTariff:   price,
			WithTariff:      price * (1 + rate/100),
			TariffRate:      rate,
			TariffAvailable: ok,
		})
	}
	return out
}

// QuoteParams holds parameters for a single price quote
type QuoteParams struct {
	BasePrice          float64 `json:"basePrice"`
	Weight             float64 `json:"weight"`
	TariffPercent      float64 `json:"tariffPercent"`
	SupplierAbsorption float64 `json:"supplierAbsorption"`
}

// QuoteResult holds the price quote breakdown
type QuoteResult struct {
	Cost                   float64 `json:"cost"`
	NewCost                float64 `json:"newCost"`
	TariffIncrease         float64 `json:"tariffIncrease"`
	SupplierAbsorptionCost float64 `json:"supplierAbsorptionCost"`
	FinalPrice             float64 `json:"finalPrice"`
}

// Quote prices an ingredient purchase after tariff, net of what the supplier absorbs
func Quote(p QuoteParams) QuoteResult {
	cost := p.BasePrice * p.Weight
	newCost := cost * (1 + p.TariffPercent/100)
	increase := newCost - cost
	absorbed := increase * clamp(p.SupplierAbsorption, 0, 100) / 100

	return QuoteResult{
		Cost:                   cost,
		NewCost:                newCost,
		TariffIncrease:         increase,
		SupplierAbsorptionCost: absorbed,
		FinalPrice:             newCost - absorbed,
	}
}

// PriceWithTariff applies a tariff percent to a unit price and scales by units
func PriceWithTariff(basePrice, tariffPercent, units float64) float64 {
	return (basePrice + basePrice*tariffPercent/100) * units
}

// BillOfMaterials summarises ingredient percentages of a product
type BillOfMaterials struct {
	Total    float64 `json:"total"`
	Balanced bool    `json:"balanced"`
}

// CheckBillOfMaterials reports whether ingredient percentages sum to 100.
// An unbalanced list is a warning, not an error.
func CheckBillOfMaterials(ingredients []Ingredient) BillOfMaterials {
	var total float64
	for _, ing := range ingredients {
		total += ing.Percentage
	}
	return BillOfMaterials{Total: total, Balanced: math.Abs(total-100) <= 0.01}
}
