// Package workspace holds the per-session simulation state: the selected
// product, its ingredients, their source allocations and the absorption split.
//
// All edits go through the pure functions in package tariff. A rejected edit
// returns an error and leaves the workspace unchanged.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/julienbonastre/tariff-helpers/internal/tariff"
)

var (
	// ErrIncompleteSelection is returned when a selection misses a required field
	ErrIncompleteSelection = errors.New("select a country, category, product and quantity")
	// ErrUnknownIngredient is returned for an ingredient not in the current selection
	ErrUnknownIngredient = errors.New("unknown ingredient")
	// ErrNoSelection is returned for operations that need a selection first
	ErrNoSelection = errors.New("no product selected")
)

// Selection is what the user is simulating
type Selection struct {
	Country  string  `json:"country"`
	Category string  `json:"category"`
	Product  string  `json:"product"`
	Quantity float64 `json:"quantity"`
	Units    float64 `json:"units"` // multiplier per quantity unit, 1 when unset
}

// Validate checks that every field needed for a simulation is present
func (s Selection) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Country) == "" {
		missing = append(missing, "country")
	}
	if strings.TrimSpace(s.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(s.Product) == "" {
		missing = append(missing, "product")
	}
	if s.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteSelection, strings.Join(missing, ", "))
	}
	return nil
}

// Workspace is the mutable simulation context, passed explicitly to every operation
type Workspace struct {
	Selection   Selection                            `json:"selection"`
	Ingredients []tariff.Ingredient                  `json:"ingredients"`
	Sources     map[string][]tariff.SourceAllocation `json:"sources"`
	Absorption  tariff.Absorption                    `json:"absorption"`
}

// New returns an empty workspace. The manufacturer absorbs the whole tariff by default.
func New() *Workspace {
	return &Workspace{
		Ingredients: []tariff.Ingredient{},
		Sources:     map[string][]tariff.SourceAllocation{},
		Absorption:  tariff.NewAbsorption(0, 100, 0),
	}
}

// Decode restores a workspace from its session encoding. Empty input yields New().
func Decode(data string) (*Workspace, error) {
	ws := New()
	if data == "" {
		return ws, nil
	}
	if err := json.Unmarshal([]byte(data), ws); err != nil {
		return nil, fmt.Errorf("failed to decode workspace: %w", err)
	}
	if ws.Sources == nil {
		ws.Sources = map[string][]tariff.SourceAllocation{}
	}
	if ws.Ingredients == nil {
		ws.Ingredients = []tariff.Ingredient{}
	}
	ws.Absorption.Normalize()
	return ws, nil
}

// Encode serialises the workspace for session storage
func (w *Workspace) Encode() (string, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode workspace: %w", err)
	}
	return string(data), nil
}

// Clone returns a deep copy
func (w *Workspace) Clone() *Workspace {
	out := &Workspace{
		Selection:   w.Selection,
		Ingredients: append([]tariff.Ingredient{}, w.Ingredients...),
		Sources:     make(map[string][]tariff.SourceAllocation, len(w.Sources)),
		Absorption:  w.Absorption,
	}
	for k, v := range w.Sources {
		out.Sources[k] = append([]tariff.SourceAllocation(nil), v...)
	}
	return out
}

// Select validates and applies a new selection with its ingredients. Source
// lists of ingredients that remain are kept; every ingredient gets at least
// the default source.
func (w *Workspace) Select(sel Selection, ingredients []tariff.Ingredient) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	sources := make(map[string][]tariff.SourceAllocation, len(ingredients))
	for _, ing := range ingredients {
		sources[ing.Name] = tariff.InitSources(w.Sources[ing.Name])
	}

	w.Selection = sel
	w.Ingredients = append([]tariff.Ingredient{}, ingredients...)
	w.Sources = sources
	return nil
}

// HasSelection reports whether a product has been selected
func (w *Workspace) HasSelection() bool {
	return w.Selection.Validate() == nil
}

// Ingredient returns the named ingredient of the current selection
func (w *Workspace) Ingredient(name string) (tariff.Ingredient, error) {
	for _, ing := range w.Ingredients {
		if ing.Name == name {
			return ing, nil
		}
	}
	return tariff.Ingredient{}, fmt.Errorf("%w: %q", ErrUnknownIngredient, name)
}

// SourcesFor returns the sources of an ingredient, never empty
func (w *Workspace) SourcesFor(name string) ([]tariff.SourceAllocation, error) {
	if _, err := w.Ingredient(name); err != nil {
		return nil, err
	}
	return tariff.InitSources(w.Sources[name]), nil
}

// AddSource appends a source holding the ingredient's unallocated share
func (w *Workspace) AddSource(name string) (tariff.SourceAllocation, error) {
	current, err := w.SourcesFor(name)
	if err != nil {
		return tariff.SourceAllocation{}, err
	}
	next, added, err := tariff.AddSource(current)
	if err != nil {
		return tariff.SourceAllocation{}, err
	}
	w.Sources[name] = next
	return added, nil
}

// RemoveSource deletes a source; removing the last one leaves the default row
func (w *Workspace) RemoveSource(name string, index int) error {
	return w.apply(name, func(s []tariff.SourceAllocation) ([]tariff.SourceAllocation, error) {
		return tariff.RemoveSource(s, index)
	})
}

// SetPercentage sets a source's share from raw user input
func (w *Workspace) SetPercentage(name string, index int, raw string) error {
	return w.apply(name, func(s []tariff.SourceAllocation) ([]tariff.SourceAllocation, error) {
		return tariff.SetSourcePercentage(s, index, raw)
	})
}

// SetSlider moves one of a source's absorption or payment-delay sliders
func (w *Workspace) SetSlider(name string, index int, field string, value float64) error {
	return w.apply(name, func(s []tariff.SourceAllocation) ([]tariff.SourceAllocation, error) {
		return tariff.SetAbsorptionSlider(s, index, field, value)
	})
}

// SetCountry assigns a source's origin country, refreshing its base price and
// the tariff toward the selected country from the given lookups
func (w *Workspace) SetCountry(name string, index int, country string, prices tariff.BasePriceLookup, rates tariff.TariffLookup) (tariff.CountryChange, error) {
	current, err := w.SourcesFor(name)
	if err != nil {
		return tariff.CountryChange{}, err
	}
	change, err := tariff.SetSourceCountry(current, index, name, country, w.Selection.Country, prices, rates)
	if err != nil {
		return tariff.CountryChange{}, err
	}
	w.Sources[name] = change.Sources
	return change, nil
}

func (w *Workspace) apply(name string, edit func([]tariff.SourceAllocation) ([]tariff.SourceAllocation, error)) error {
	current, err := w.SourcesFor(name)
	if err != nil {
		return err
	}
	next, err := edit(current)
	if err != nil {
		return err
	}
	w.Sources[name] = next
	return nil
}

// SetAbsorption changes one party's share of the tariff split
func (w *Workspace) SetAbsorption(party tariff.Party, value float64) error {
	next := w.Absorption
	if err := next.Set(party, value); err != nil {
		return err
	}
	w.Absorption = next
	return nil
}

// Weights returns ingredient and source weights for the selection
func (w *Workspace) Weights() []tariff.IngredientWeights {
	return tariff.WeightBreakdown(w.Ingredients, w.Sources, w.Selection.Quantity, w.Selection.Units)
}

// BillOfMaterials checks whether the selected ingredients add up to 100%
func (w *Workspace) BillOfMaterials() tariff.BillOfMaterials {
	return tariff.CheckBillOfMaterials(w.Ingredients)
}

// Snapshot is the state handed to the results view
type Snapshot struct {
	SelectedCountry   string                               `json:"selectedCountry"`
	SelectedCategory  string                               `json:"selectedCategory"`
	SelectedProduct   string                               `json:"selectedProduct"`
	SelectedQuantity  float64                              `json:"selectedQuantity"`
	IngredientSources map[string][]tariff.SourceAllocation `json:"ingredientSources"`
}

// Snapshot copies the selection and every ingredient's sources
func (w *Workspace) Snapshot() Snapshot {
	sources := make(map[string][]tariff.SourceAllocation, len(w.Ingredients))
	for _, ing := range w.Ingredients {
		list := tariff.InitSources(w.Sources[ing.Name])
		sources[ing.Name] = append([]tariff.SourceAllocation(nil), list...)
	}
	return Snapshot{
		SelectedCountry:   w.Selection.Country,
		SelectedCategory:  w.Selection.Category,
		SelectedProduct:   w.Selection.Product,
		SelectedQuantity:  w.Selection.Quantity,
		IngredientSources: sources,
	}
}
