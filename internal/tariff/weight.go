package tariff

// IngredientWeight returns the mass attributable to one ingredient.
// A unitMultiplier of zero or less means "not set" and counts as 1.
func IngredientWeight(ingredientPercentage, totalQuantity, unitMultiplier float64) float64 {
	return ingredientPercentage / 100 * totalQuantity * effectiveMultiplier(unitMultiplier)
}

// SourceWeight returns the share of an ingredient's mass supplied by one source
func SourceWeight(ingredientPercentage, sourcePercentage, totalQuantity, unitMultiplier float64) float64 {
	return IngredientWeight(ingredientPercentage, totalQuantity, unitMultiplier) * sourcePercentage / 100
}

func effectiveMultiplier(m float64) float64 {
	if m <= 0 {
		return 1
	}
	return m
}

// IngredientWeights holds the weight breakdown for one ingredient
type IngredientWeights struct {
	Name    string          `json:"name"`
	Percent float64         `json:"percentage"`
	Weight  float64         `json:"weight"`
	Sources []SourceWeights `json:"sources"`
}

// SourceWeights holds the weight of one sourcing country
type SourceWeights struct {
	Country    string  `json:"country"`
	Percentage float64 `json:"percentage"`
	Weight     float64 `json:"weight"`
}

// WeightBreakdown computes ingredient and source weights for a bill of materials.
// Ingredients without sources are reported with an empty source list.
func WeightBreakdown(ingredients []Ingredient, sources map[string][]SourceAllocation, totalQuantity, unitMultiplier float64) []IngredientWeights {
	out := make([]IngredientWeights, 0, len(ingredients))
	for _, ing := range ingredients {
		iw := IngredientWeights{
			Name:    ing.Name,
			Percent: ing.Percentage,
			Weight:  IngredientWeight(ing.Percentage, totalQuantity, unitMultiplier),
			Sources: []SourceWeights{},
		}
		for _, src := range sources[ing.Name] {
			iw.Sources = append(iw.Sources, SourceWeights{
				Country:    src.Country,
				Percentage: src.Percentage,
				Weight:     SourceWeight(ing.Percentage, src.Percentage, totalQuantity, unitMultiplier),
			})
		}
		out = append(out, iw)
	}
	return out
}
