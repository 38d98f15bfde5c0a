package table

import (
	"sort"

	"github.com/julienbonastre/tariff-helpers/internal/tariff"
)

// ProductTariffIndex indexes Current_Tariff_Percent by (From_Country, To_Country)
func (t *UploadedTable) ProductTariffIndex() (tariff.Index, error) {
	recs, err := t.ProductRecords(ColFromCountry, ColToCountry, ColCurrentTariff)
	if err != nil {
		return nil, err
	}
	rates := make([]tariff.RateRecord, 0, len(recs))
	for _, r := range recs {
		rates = append(rates, tariff.RateRecord{From: r.FromCountry, To: r.ToCountry, Rate: r.CurrentTariff.Float()})
	}
	return tariff.BuildTariffIndex(rates), nil
}

// SupplyTariffIndex indexes Tariffs by (Export_Country, Import_country)
func (t *UploadedTable) SupplyTariffIndex() (tariff.Index, error) {
	recs, err := t.SupplyRecords(ColExportCountry, ColImportCountry, ColTariffs)
	if err != nil {
		return nil, err
	}
	rates := make([]tariff.RateRecord, 0, len(recs))
	for _, r := range recs {
		rates = append(rates, tariff.RateRecord{From: r.ExportCountry, To: r.ImportCountry, Rate: r.Tariff.Float()})
	}
	return tariff.BuildTariffIndex(rates), nil
}

// BasePrices maps (ingredient, origin country) to Base_Price_Per_Unit, last row wins
type BasePrices map[[2]string]float64

// ProductBasePrices builds the base price table from a product table
func (t *UploadedTable) ProductBasePrices() (BasePrices, error) {
	recs, err := t.ProductRecords(ColRawMaterial, ColFromCountry, ColBasePrice)
	if err != nil {
		return nil, err
	}
	prices := make(BasePrices, len(recs))
	for _, r := range recs {
		prices[[2]string{r.RawMaterial, r.FromCountry}] = r.BasePrice.Float()
	}
	return prices, nil
}

// Lookup adapts the table to a tariff.BasePriceLookup
func (p BasePrices) Lookup(ingredient, country string) (float64, bool) {
	v, ok := p[[2]string{ingredient, country}]
	return v, ok
}

// Default returns the average price of an ingredient across all origins
func (p BasePrices) Default(ingredient string) float64 {
	var sum float64
	var n int
	for k, v := range p {
		if k[0] == ingredient {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Ingredients returns the bill of materials for a product imported into a
// country, in upload order. The first row for each raw material wins,
// including its contract end date when the table has one.
func (t *UploadedTable) Ingredients(country, product string) ([]tariff.Ingredient, error) {
	recs, err := t.SupplyRecords(ColRawMaterial, ColImportCountry, ColSubCategory, ColPercentRequired)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := []tariff.Ingredient{}
	for _, r := range recs {
		if r.ImportCountry != country || r.SubCategory != product || r.RawMaterial == "" || seen[r.RawMaterial] {
			continue
		}
		seen[r.RawMaterial] = true
		out = append(out, tariff.Ingredient{
			Name:            r.RawMaterial,
			Percentage:      r.PercentRequired.Float(),
			ContractEndDate: r.ContractEndDate,
		})
	}
	return out, nil
}

// UniqueValues returns the distinct non-empty values of a column, sorted
func (t *UploadedTable) UniqueValues(column string) ([]string, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, newMissingColumnsError([]string{column})
	}

	seen := make(map[string]bool)
	out := []string{}
	for _, row := range t.Rows {
		v := cell(row, idx)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// ProductFilter selects product records. Empty fields match everything.
type ProductFilter struct {
	Country     string `json:"country"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
}

// Filter returns the records matching f on To_Country, category and sub-category
func Filter(recs []ProductRecord, f ProductFilter) []ProductRecord {
	out := []ProductRecord{}
	for _, r := range recs {
		if f.Country != "" && r.ToCountry != f.Country {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.SubCategory != "" && r.SubCategory != f.SubCategory {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CountryPrice is one origin's offer for a raw material
type CountryPrice struct {
	Country            string  `json:"country"`
	Price              float64 `json:"price"`
	CurrentTariff      float64 `json:"currentTariff"`
	FutureTariff       float64 `json:"futureTariff"`
	PaymentTermDays    float64 `json:"paymentTermDays"`
	ImplementationDate string  `json:"implementationDate,omitempty"`
}

// MaterialStats summarises prices of one raw material across origins
type MaterialStats struct {
	Material    string         `json:"material"`
	AvgPrice    float64        `json:"avgPrice"`
	MinPrice    float64        `json:"minPrice"`
	MaxPrice    float64        `json:"maxPrice"`
	CountryData []CountryPrice `json:"countryData"`
}

// MaterialStatistics groups records by raw material, sorted by material name
func MaterialStatistics(recs []ProductRecord) []MaterialStats {
	groups := make(map[string][]ProductRecord)
	var order []string
	for _, r := range recs {
		if _, ok := groups[r.RawMaterial]; !ok {
			order = append(order, r.RawMaterial)
		}
		groups[r.RawMaterial] = append(groups[r.RawMaterial], r)
	}
	sort.Strings(order)

	out := make([]MaterialStats, 0, len(order))
	for _, name := range order {
		items := groups[name]
		st := MaterialStats{Material: name, MinPrice: items[0].BasePrice.Float(), MaxPrice: items[0].BasePrice.Float()}
		var sum float64
		for _, it := range items {
			p := it.BasePrice.Float()
			sum += p
			if p < st.MinPrice {
				st.MinPrice = p
			}
			if p > st.MaxPrice {
				st.MaxPrice = p
			}
			st.CountryData = append(st.CountryData, CountryPrice{
				Country:            it.FromCountry,
				Price:              p,
				CurrentTariff:      it.CurrentTariff.Float(),
				FutureTariff:       it.FutureTariff.Float(),
				PaymentTermDays:    it.PaymentTermDays.Float(),
				ImplementationDate: it.ImplementationDate,
			})
		}
		st.AvgPrice = sum / float64(len(items))
		out = append(out, st)
	}
	return out
}

// PricedProduct is a product record priced with current and future tariffs
type PricedProduct struct {
	ProductRecord
	BaseWithCurrentTariff float64 `json:"baseWithCurrentTariff"`
	BaseWithFutureTariff  float64 `json:"baseWithFutureTariff"`
}

// PriceProducts applies current and future tariffs to each record, scaled by units
func PriceProducts(recs []ProductRecord, units float64) []PricedProduct {
	out := make([]PricedProduct, 0, len(recs))
	for _, r := range recs {
		out = append(out, PricedProduct{
			ProductRecord:         r,
			BaseWithCurrentTariff: tariff.PriceWithTariff(r.BasePrice.Float(), r.CurrentTariff.Float(), units),
			BaseWithFutureTariff:  tariff.PriceWithTariff(r.BasePrice.Float(), r.FutureTariff.Float(), units),
		})
	}
	return out
}
