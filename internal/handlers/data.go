package handlers

import (
	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/table"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
)

// dataset is the latest table of each type. Either may be nil.
type dataset struct {
	supply  *table.UploadedTable
	product *table.UploadedTable
}

func (h *Handler) loadDataset() (*dataset, error) {
	supply, err := h.db.LatestTable(table.FileTypeSupplyChain)
	if err != nil {
		return nil, err
	}
	product, err := h.db.LatestTable(table.FileTypeProduct)
	if err != nil {
		return nil, err
	}
	return &dataset{supply: supply, product: product}, nil
}

// basePrices returns the product table's base prices, empty when unavailable
func (d *dataset) basePrices() table.BasePrices {
	if d.product == nil {
		return table.BasePrices{}
	}
	prices, err := d.product.ProductBasePrices()
	if err != nil {
		return table.BasePrices{}
	}
	return prices
}

// tariffs looks routes up in the product table first, then the supply table.
// Tables lacking the needed columns contribute nothing.
func (d *dataset) tariffs() tariff.TariffLookup {
	var product, supply tariff.Index
	if d.product != nil {
		product, _ = d.product.ProductTariffIndex()
	}
	if d.supply != nil {
		supply, _ = d.supply.SupplyTariffIndex()
	}

	return func(from, to string) (float64, bool) {
		if rate, ok := product.Lookup(from, to); ok {
			return rate, true
		}
		if rate, ok := supply.Lookup(from, to); ok {
			return rate, true
		}
		metrics.TariffLookupMisses.Inc()
		return 0, false
	}
}

// rates lists every known route, supply rows overridden by product rows
func (d *dataset) rates() []tariff.RateInfo {
	merged := tariff.Index{}
	if d.supply != nil {
		if idx, err := d.supply.SupplyTariffIndex(); err == nil {
			for k, v := range idx {
				merged[k] = v
			}
		}
	}
	if d.product != nil {
		if idx, err := d.product.ProductTariffIndex(); err == nil {
			for k, v := range idx {
				merged[k] = v
			}
		}
	}
	return merged.Rates()
}
