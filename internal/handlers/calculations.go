package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/database"
	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/table"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
	"github.com/julienbonastre/tariff-helpers/internal/workspace"
)

const noMatchAdvisory = "No matching data found for the given inputs."

// GetWeights returns ingredient and source weights for the selected product
func (h *Handler) GetWeights(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !ws.HasSelection() {
		h.editError(w, r, workspace.ErrNoSelection)
		return
	}

	metrics.CalculationsTotal.WithLabelValues("weights").Inc()
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"quantity":        ws.Selection.Quantity,
		"units":           ws.Selection.Units,
		"ingredients":     tariff.RoundWeights(ws.Weights(), h.displayDecimals()),
		"billOfMaterials": ws.BillOfMaterials(),
	})
}

// ImpactRequest asks for a tariff decomposition. With no tariffRate the rate is
// looked up for from -> to (to defaults to the selected country). With no
// absorption the workspace split is used.
type ImpactRequest struct {
	TotalCost  float64            `json:"totalCost"`
	TariffRate *float64           `json:"tariffRate"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Absorption *tariff.Absorption `json:"absorption"`
}

// ImpactResponse is the rounded decomposition plus where the rate came from
type ImpactResponse struct {
	tariff.ImpactResult
	TariffRate      float64 `json:"tariffRate"`
	TariffAvailable bool    `json:"tariffAvailable"`
}

// CalculateImpact splits a tariff across supplier, manufacturer and customer
func (h *Handler) CalculateImpact(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPost) {
		return
	}

	var req ImpactRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	split := ws.Absorption
	if req.Absorption != nil {
		split = tariff.NewAbsorption(req.Absorption.Supplier, req.Absorption.Manufacturer, req.Absorption.Customer)
	}

	rate, available := 0.0, false
	if req.TariffRate != nil {
		rate, available = *req.TariffRate, true
	} else {
		to := req.To
		if to == "" {
			to = ws.Selection.Country
		}
		data, err := h.loadDataset()
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		rate, available = data.tariffs()(req.From, to)
	}

	metrics.CalculationsTotal.WithLabelValues("impact").Inc()
	h.jsonResponse(w, http.StatusOK, ImpactResponse{
		ImpactResult:    tariff.Impact(req.TotalCost, rate, split).Rounded(h.displayDecimals()),
		TariffRate:      rate,
		TariffAvailable: available,
	})
}

// GetTariffs looks up one route (?from=&to=) or lists every known route
func (h *Handler) GetTariffs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	data, err := h.loadDataset()
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		rates := data.rates()
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"rates": rates,
			"total": len(rates),
		})
		return
	}

	rate, ok := data.tariffs()(from, to)
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"from":      from,
		"to":        to,
		"rate":      rate,
		"available": ok,
	})
}

// ComparePrices shows each source's price with and without tariff for one ingredient
func (h *Handler) ComparePrices(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}
	name := r.PathValue("name")

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	sources, err := ws.SourcesFor(name)
	if err != nil {
		h.editError(w, r, err)
		return
	}

	data, err := h.loadDataset()
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	prices := data.basePrices()
	comparison := tariff.ComparePrices(sources, ws.Selection.Country, prices.Default(name), data.tariffs())
	places := h.displayDecimals()
	for i := range comparison {
		comparison[i].WithoutTariff = tariff.Round(comparison[i].WithoutTariff, places)
		comparison[i].WithTariff = tariff.Round(comparison[i].WithTariff, places)
	}

	metrics.CalculationsTotal.WithLabelValues("comparison").Inc()
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ingredient":   name,
		"destination":  ws.Selection.Country,
		"defaultPrice": tariff.Round(prices.Default(name), places),
		"sources":      comparison,
	})
}

// productRecords loads the latest product table's records. A nil slice with a
// message means the caller should answer with an advisory.
func (h *Handler) productRecords(required ...string) ([]table.ProductRecord, string, error) {
	product, err := h.db.LatestTable(table.FileTypeProduct)
	if err != nil {
		return nil, "", err
	}
	if product == nil {
		return nil, "Upload a product table first.", nil
	}
	recs, err := product.ProductRecords(required...)
	if err != nil {
		if msg, ok := advisory(err); ok {
			return nil, msg, nil
		}
		return nil, "", err
	}
	return recs, "", nil
}

func filterFromQuery(r *http.Request) table.ProductFilter {
	q := r.URL.Query()
	return table.ProductFilter{
		Country:     q.Get("country"),
		Category:    q.Get("category"),
		SubCategory: q.Get("subCategory"),
	}
}

// GetMaterialStats groups product records by raw material with price statistics
func (h *Handler) GetMaterialStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	recs, note, err := h.productRecords(table.ColRawMaterial, table.ColFromCountry, table.ColBasePrice)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if note != "" {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{"materials": []table.MaterialStats{}, "advisory": note})
		return
	}

	stats := table.MaterialStatistics(table.Filter(recs, filterFromQuery(r)))
	places := h.displayDecimals()
	for i := range stats {
		stats[i].AvgPrice = tariff.Round(stats[i].AvgPrice, places)
	}
	resp := map[string]interface{}{"materials": stats, "total": len(stats)}
	if len(stats) == 0 {
		resp["advisory"] = noMatchAdvisory
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

// MaterialTariff is one material's tariff from an origin into a destination
type MaterialTariff struct {
	Material           string  `json:"material"`
	FromCountry        string  `json:"fromCountry"`
	ToCountry          string  `json:"toCountry"`
	CurrentTariff      float64 `json:"currentTariff"`
	FutureTariff       float64 `json:"futureTariff"`
	ImplementationDate string  `json:"implementationDate,omitempty"`
}

// GetMaterialTariffs lists current and future tariffs per material and origin
func (h *Handler) GetMaterialTariffs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	recs, note, err := h.productRecords(table.ColRawMaterial, table.ColFromCountry, table.ColToCountry, table.ColCurrentTariff)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if note != "" {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{"tariffs": []MaterialTariff{}, "advisory": note})
		return
	}

	material := r.URL.Query().Get("material")
	out := []MaterialTariff{}
	for _, rec := range table.Filter(recs, filterFromQuery(r)) {
		if material != "" && rec.RawMaterial != material {
			continue
		}
		out = append(out, MaterialTariff{
			Material:           rec.RawMaterial,
			FromCountry:        rec.FromCountry,
			ToCountry:          rec.ToCountry,
			CurrentTariff:      rec.CurrentTariff.Float(),
			FutureTariff:       rec.FutureTariff.Float(),
			ImplementationDate: rec.ImplementationDate,
		})
	}
	resp := map[string]interface{}{"tariffs": out, "total": len(out)}
	if len(out) == 0 {
		resp["advisory"] = noMatchAdvisory
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

// GetFilteredSupply returns the latest supply rows for the selected country and product
func (h *Handler) GetFilteredSupply(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !ws.HasSelection() {
		h.editError(w, r, workspace.ErrNoSelection)
		return
	}

	supply, err := h.db.LatestTable(table.FileTypeSupplyChain)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if supply == nil {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"headers": []string{}, "rows": [][]string{}, "advisory": "Upload a supply chain table first.",
		})
		return
	}

	rows, err := supply.FilterRows(map[string]string{
		table.ColImportCountry: ws.Selection.Country,
		table.ColSubCategory:   ws.Selection.Product,
	})
	if err != nil {
		msg, ok := advisory(err)
		if !ok {
			h.serverError(w, r, err)
			return
		}
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"headers": supply.Headers, "rows": [][]string{}, "advisory": msg,
		})
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"tableId":  supply.ID,
		"fileName": supply.FileName,
		"headers":  supply.Headers,
		"rows":     rows,
		"total":    len(rows),
	})
}

// PricingRequest selects product records and a unit count
type PricingRequest struct {
	table.ProductFilter
	Units float64 `json:"units"`
}

// PriceProducts prices matching product records with current and future tariffs
func (h *Handler) PriceProducts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPost) {
		return
	}

	var req PricingRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Units <= 0 {
		req.Units = 1
	}

	recs, note, err := h.productRecords(table.ColToCountry, table.ColBasePrice)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if note != "" {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{"products": []table.PricedProduct{}, "advisory": note})
		return
	}

	priced := table.PriceProducts(table.Filter(recs, req.ProductFilter), req.Units)
	places := h.displayDecimals()
	for i := range priced {
		priced[i].BaseWithCurrentTariff = tariff.Round(priced[i].BaseWithCurrentTariff, places)
		priced[i].BaseWithFutureTariff = tariff.Round(priced[i].BaseWithFutureTariff, places)
	}

	metrics.CalculationsTotal.WithLabelValues("pricing").Inc()
	resp := map[string]interface{}{"products": priced, "total": len(priced)}
	if len(priced) == 0 {
		resp["advisory"] = noMatchAdvisory
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

// Quotes computes and stores a price quote (POST) or lists recent ones (GET)
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		quotes, err := h.db.GetQuotes()
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"quotes": quotes,
			"total":  len(quotes),
		})

	case http.MethodPost:
		var params tariff.QuoteParams
		if err := decodeBody(r, &params); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if params.BasePrice < 0 || params.Weight < 0 {
			h.errorResponse(w, http.StatusBadRequest, "basePrice and weight must not be negative")
			return
		}

		q := &database.PriceQuote{Params: params, Result: tariff.Quote(params).Rounded(h.displayDecimals())}
		if err := h.db.SaveQuote(q, h.opts.QuoteHistoryLimit); err != nil {
			h.serverError(w, r, err)
			return
		}
		metrics.CalculationsTotal.WithLabelValues("quote").Inc()
		h.logger.Debug("Quote saved", zap.Int64("quoteId", q.ID), zap.Float64("finalPrice", q.Result.FinalPrice))
		h.jsonResponse(w, http.StatusCreated, q)

	default:
		h.errorResponse(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}
