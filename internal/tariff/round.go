package tariff

import "github.com/shopspring/decimal"

// DisplayDecimals is the precision used when no display setting is stored
const DisplayDecimals = 2

// Round rounds half away from zero for display. Calculations keep full precision.
func Round(val float64, places int32) float64 {
	return decimal.NewFromFloat(val).Round(places).InexactFloat64()
}

// Rounded returns a copy of the result with every amount rounded for display
func (r ImpactResult) Rounded(places int32) ImpactResult {
	r.WithoutTariff = Round(r.WithoutTariff, places)
	r.WithTariff = Round(r.WithTariff, places)
	r.TariffAmount = Round(r.TariffAmount, places)
	r.SupplierAmount = Round(r.SupplierAmount, places)
	r.ManufacturerAmount = Round(r.ManufacturerAmount, places)
	r.CustomerAmount = Round(r.CustomerAmount, places)
	r.RemainingAmount = Round(r.RemainingAmount, places)
	r.EffectiveRate = Round(r.EffectiveRate, places)
	return r
}

// Rounded returns a copy of the quote rounded for display
func (q QuoteResult) Rounded(places int32) QuoteResult {
	q.Cost = Round(q.Cost, places)
	q.NewCost = Round(q.NewCost, places)
	q.TariffIncrease = Round(q.TariffIncrease, places)
	q.SupplierAbsorptionCost = Round(q.SupplierAbsorptionCost, places)
	q.FinalPrice = Round(q.FinalPrice, places)
	return q
}

// RoundWeights rounds every weight in the breakdown for display
func RoundWeights(in []IngredientWeights, places int32) []IngredientWeights {
	out := make([]IngredientWeights, len(in))
	for i, iw := range in {
		iw.Weight = Round(iw.Weight, places)
		srcs := make([]SourceWeights, len(iw.Sources))
		for j, s := range iw.Sources {
			s.Weight = Round(s.Weight, places)
			srcs[j] = s
		}
		iw.Sources = srcs
		out[i] = iw
	}
	return out
}
