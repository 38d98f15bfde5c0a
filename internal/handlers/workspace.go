package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
	"github.com/julienbonastre/tariff-helpers/internal/workspace"
)

// WorkspaceResponse is the workspace plus derived checks
type WorkspaceResponse struct {
	*workspace.Workspace
	BillOfMaterials tariff.BillOfMaterials `json:"billOfMaterials"`
	Warning         string                 `json:"warning,omitempty"`
	Advisory        string                 `json:"advisory,omitempty"`
}

func newWorkspaceResponse(ws *workspace.Workspace) WorkspaceResponse {
	resp := WorkspaceResponse{Workspace: ws}
	if len(ws.Ingredients) > 0 {
		resp.BillOfMaterials = ws.BillOfMaterials()
		if !resp.BillOfMaterials.Balanced {
			resp.Warning = "Ingredient percentages add up to " +
				strconv.FormatFloat(tariff.Round(resp.BillOfMaterials.Total, tariff.DisplayDecimals), 'f', -1, 64) + "%, not 100%."
		}
	}
	return resp
}

// save writes the workspace back to the session, answering 500 on failure
func (h *Handler) save(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) bool {
	if err := h.workspaces.Save(w, r, ws); err != nil {
		h.serverError(w, r, err)
		return false
	}
	return true
}

// Workspace returns (GET) or resets (DELETE) the session workspace
func (h *Handler) Workspace(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws, err := h.workspaces.Load(r)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.jsonResponse(w, http.StatusOK, newWorkspaceResponse(ws))
	case http.MethodDelete:
		if err := h.workspaces.Reset(w, r); err != nil {
			h.serverError(w, r, err)
			return
		}
		h.jsonResponse(w, http.StatusOK, newWorkspaceResponse(workspace.New()))
	default:
		h.errorResponse(w, http.StatusMethodNotAllowed, "GET or DELETE required")
	}
}

// SelectProduct validates a selection and loads its ingredients from the latest supply table
func (h *Handler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPost) {
		return
	}

	var sel workspace.Selection
	if err := decodeBody(r, &sel); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if sel.Units <= 0 {
		sel.Units = h.defaultUnits()
	}
	if err := sel.Validate(); err != nil {
		h.editError(w, r, err)
		return
	}

	data, err := h.loadDataset()
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	ingredients := []tariff.Ingredient{}
	var note string
	if data.supply == nil {
		note = "Upload a supply chain table to load ingredients."
	} else {
		ingredients, err = data.supply.Ingredients(sel.Country, sel.Product)
		if err != nil {
			msg, ok := advisory(err)
			if !ok {
				h.serverError(w, r, err)
				return
			}
			note = msg
			ingredients = []tariff.Ingredient{}
		} else if len(ingredients) == 0 {
			note = "No ingredients found for " + sel.Product + " in " + sel.Country + "."
		}
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := ws.Select(sel, ingredients); err != nil {
		h.editError(w, r, err)
		return
	}
	if !h.save(w, r, ws) {
		return
	}

	h.logger.Info("Product selected",
		zap.String("country", sel.Country),
		zap.String("product", sel.Product),
		zap.Int("ingredients", len(ingredients)))

	resp := newWorkspaceResponse(ws)
	resp.Advisory = note
	h.jsonResponse(w, http.StatusOK, resp)
}

// AddSource appends a source covering the ingredient's unallocated share
func (h *Handler) AddSource(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPost) {
		return
	}
	name := r.PathValue("ingredient")

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	added, err := ws.AddSource(name)
	if err != nil {
		h.editError(w, r, err)
		return
	}
	if !h.save(w, r, ws) {
		return
	}

	sources, _ := ws.SourcesFor(name)
	h.jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"added":   added,
		"sources": sources,
	})
}

// SourcePatch edits one source. Set exactly the fields to change:
// country, percentage (raw user input, string or number), or field+value for a slider.
type SourcePatch struct {
	Country    *string         `json:"country"`
	Percentage json.RawMessage `json:"percentage"`
	Field      string          `json:"field"`
	Value      *float64        `json:"value"`
}

// rawPercentage returns the percentage input as typed by the user
func (p SourcePatch) rawPercentage() (string, bool) {
	if len(p.Percentage) == 0 || bytes.Equal(p.Percentage, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.Percentage, &s); err == nil {
		return s, true
	}
	return string(p.Percentage), true
}

// EditSource patches (PATCH) or removes (DELETE) one source of an ingredient
func (h *Handler) EditSource(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPatch, http.MethodDelete) {
		return
	}

	name := r.PathValue("ingredient")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.editError(w, r, tariff.ErrSourceIndex)
		return
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	resp := map[string]interface{}{}
	if r.Method == http.MethodDelete {
		err = ws.RemoveSource(name, index)
	} else {
		err = h.patchSource(r, ws, name, index, resp)
	}
	if err != nil {
		if errors.Is(err, errBadPatch) {
			h.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		h.editError(w, r, err)
		return
	}
	if !h.save(w, r, ws) {
		return
	}

	resp["sources"], _ = ws.SourcesFor(name)
	h.jsonResponse(w, http.StatusOK, resp)
}

var errBadPatch = errors.New("set country, percentage, or field and value")

// patchSource applies every field present in the body. Edits are applied to a
// copy so a rejected field leaves the workspace untouched.
func (h *Handler) patchSource(r *http.Request, ws *workspace.Workspace, name string, index int, resp map[string]interface{}) error {
	var patch SourcePatch
	if err := decodeBody(r, &patch); err != nil {
		return errBadPatch
	}
	raw, hasPct := patch.rawPercentage()
	hasSlider := patch.Field != "" && patch.Value != nil
	if patch.Country == nil && !hasPct && !hasSlider {
		return errBadPatch
	}

	draft := ws.Clone()
	if patch.Country != nil {
		data, err := h.loadDataset()
		if err != nil {
			return err
		}
		change, err := draft.SetCountry(name, index, *patch.Country, data.basePrices().Lookup, data.tariffs())
		if err != nil {
			return err
		}
		resp["tariffRate"] = change.TariffRate
		resp["tariffAvailable"] = change.TariffAvailable
	}
	if hasPct {
		if err := draft.SetPercentage(name, index, raw); err != nil {
			return err
		}
	}
	if hasSlider {
		if err := draft.SetSlider(name, index, patch.Field, *patch.Value); err != nil {
			return err
		}
	}

	*ws = *draft
	return nil
}

// AbsorptionRequest sets one party's share of the tariff
type AbsorptionRequest struct {
	Party tariff.Party `json:"party"`
	Value float64      `json:"value"`
}

// SetAbsorption updates the supplier/manufacturer/customer split
func (h *Handler) SetAbsorption(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h, http.MethodPost) {
		return
	}

	var req AbsorptionRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ws, err := h.workspaces.Load(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := ws.SetAbsorption(req.Party, req.Value); err != nil {
		h.editError(w, r, err)
		return
	}
	if !h.save(w, r, ws) {
		return
	}
	h.jsonResponse(w, http.StatusOK, ws.Absorption)
}

// GetSnapshot returns the state handed to the results view
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
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
	metrics.CalculationsTotal.WithLabelValues("snapshot").Inc()
	h.jsonResponse(w, http.StatusOK, ws.Snapshot())
}
