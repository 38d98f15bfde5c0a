package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/database"
	"github.com/julienbonastre/tariff-helpers/internal/table"
)

// Tables lists stored tables (GET) or accepts an upload (POST)
func (h *Handler) Tables(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTables(w, r)
	case http.MethodPost:
		h.uploadTable(w, r)
	default:
		h.errorResponse(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.db.ListTables()
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"tables": tables,
		"total":  len(tables),
	})
}

// uploadTable takes a multipart form with "file" and "fileType"
func (h *Handler) uploadTable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.errorResponse(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		h.errorResponse(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	fileType, err := table.ParseFileType(r.FormValue("fileType"))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := h.ingest.Ingest(r.Context(), header.Filename, fileType, file)
	if err != nil {
		if errors.Is(err, table.ErrUnsupportedFile) || errors.Is(err, table.ErrEmptyFile) || errors.Is(err, table.ErrMalformedFile) {
			h.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.jsonResponse(w, http.StatusCreated, result)
}

// Table returns (GET) or deletes (DELETE) one stored table
func (h *Handler) Table(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		t, err := h.db.GetTable(id)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if t == nil {
			h.errorResponse(w, http.StatusNotFound, "table not found")
			return
		}
		h.jsonResponse(w, http.StatusOK, t)

	case http.MethodDelete:
		if err := h.db.DeleteTable(id); err != nil {
			if errors.Is(err, database.ErrTableNotFound) {
				h.errorResponse(w, http.StatusNotFound, "table not found")
				return
			}
			h.serverError(w, r, err)
			return
		}
		h.logger.Info("Table deleted", zap.String("tableId", id))
		h.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		h.errorResponse(w, http.StatusMethodNotAllowed, "GET or DELETE required")
	}
}

// GetImports returns the import history
func (h *Handler) GetImports(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history, err := h.db.GetImportHistory(limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"total":   len(history),
	})
}

// OptionsResponse lists the values a user can pick from the latest supply table
type OptionsResponse struct {
	Countries       []string `json:"countries"`
	Categories      []string `json:"categories"`
	Products        []string `json:"products"`
	SourceCountries []string `json:"sourceCountries"`
	Advisory        string   `json:"advisory,omitempty"`
}

// GetOptions returns countries, categories, products and source countries.
// Products can be narrowed with ?country= and ?category=.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodGet) {
		return
	}

	resp := OptionsResponse{Countries: []string{}, Categories: []string{}, Products: []string{}, SourceCountries: []string{}}
	supply, err := h.db.LatestTable(table.FileTypeSupplyChain)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if supply == nil {
		resp.Advisory = "Upload a supply chain table to see options."
		h.jsonResponse(w, http.StatusOK, resp)
		return
	}

	var advisories []string
	collect := func(col string) []string {
		vals, err := supply.UniqueValues(col)
		if err != nil {
			if msg, ok := advisory(err); ok {
				advisories = append(advisories, msg)
			}
			return []string{}
		}
		return vals
	}
	resp.Countries = collect(table.ColImportCountry)
	resp.Categories = collect(table.ColCategory)
	resp.SourceCountries = collect(table.ColExportCountry)

	country, category := r.URL.Query().Get("country"), r.URL.Query().Get("category")
	if country == "" && category == "" {
		resp.Products = collect(table.ColSubCategory)
	} else {
		resp.Products = h.filteredProducts(supply, country, category, &advisories)
	}

	if len(advisories) > 0 {
		resp.Advisory = advisories[0]
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

func (h *Handler) filteredProducts(supply *table.UploadedTable, country, category string, advisories *[]string) []string {
	recs, err := supply.SupplyRecords(table.ColImportCountry, table.ColCategory, table.ColSubCategory)
	if err != nil {
		if msg, ok := advisory(err); ok {
			*advisories = append(*advisories, msg)
		}
		return []string{}
	}

	seen := map[string]bool{}
	out := []string{}
	for _, rec := range recs {
		if country != "" && rec.ImportCountry != country {
			continue
		}
		if category != "" && rec.Category != category {
			continue
		}
		if rec.SubCategory == "" || seen[rec.SubCategory] {
			continue
		}
		seen[rec.SubCategory] = true
		out = append(out, rec.SubCategory)
	}
	sort.Strings(out)
	return out
}
