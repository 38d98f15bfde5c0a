package tariff

import "math"

// Party identifies who bears part of a tariff
type Party string

const (
	PartySupplier     Party = "supplier"
	PartyManufacturer Party = "manufacturer"
	PartyCustomer     Party = "customer"
)

// Absorption is the three-way split of a tariff plus whatever is left unassigned.
// Remaining is always derived, never set directly.
type Absorption struct {
	Supplier     float64 `json:"supplier"`
	Manufacturer float64 `json:"manufacturer"`
	Customer     float64 `json:"customer"`
	Remaining    float64 `json:"remaining"`
}

// NewAbsorption builds a normalised split from the three party shares
func NewAbsorption(supplier, manufacturer, customer float64) Absorption {
	a := Absorption{Supplier: supplier, Manufacturer: manufacturer, Customer: customer}
	a.Normalize()
	return a
}

// Set changes one party's share and re-applies normalisation
func (a *Absorption) Set(party Party, value float64) error {
	value = clamp(value, 0, 100)
	switch party {
	case PartySupplier:
		a.Supplier = value
	case PartyManufacturer:
		a.Manufacturer = value
	case PartyCustomer:
		a.Customer = value
	default:
		return ErrUnknownField
	}
	a.Normalize()
	return nil
}

// Normalize rescales the three shares to sum to exactly 100 when they exceed
// it, rounding each to the nearest whole percent, then re-derives Remaining.
// Rounding drift is settled on the largest share.
func (a *Absorption) Normalize() {
	a.Supplier = math.Max(0, a.Supplier)
	a.Manufacturer = math.Max(0, a.Manufacturer)
	a.Customer = math.Max(0, a.Customer)

	sum := a.Supplier + a.Manufacturer + a.Customer
	if sum > 100 {
		scale := 100 / sum
		a.Supplier = math.Round(a.Supplier * scale)
		a.Manufacturer = math.Round(a.Manufacturer * scale)
		a.Customer = math.Round(a.Customer * scale)
		*a.largest() += 100 - (a.Supplier + a.Manufacturer + a.Customer)
		sum = 100
	}
	a.Remaining = math.Max(0, 100-sum)
}

// largest returns the biggest share, preferring supplier, then manufacturer on ties
func (a *Absorption) largest() *float64 {
	p := &a.Supplier
	if a.Manufacturer > *p {
		p = &a.Manufacturer
	}
	if a.Customer > *p {
		p = &a.Customer
	}
	return p
}

// ImpactResult holds the tariff decomposition
type ImpactResult struct {
	WithoutTariff      float64    `json:"withoutTariff"`
	WithTariff         float64    `json:"withTariff"`
	TariffAmount       float64    `json:"tariffAmount"`
	SupplierAmount     float64    `json:"supplierAmount"`
	ManufacturerAmount float64    `json:"manufacturerAmount"`
	CustomerAmount     float64    `json:"customerAmount"`
	RemainingAmount    float64    `json:"remainingAmount"`
	EffectiveRate      float64    `json:"effectiveRate"`
	Absorption         Absorption `json:"absorption"`
}

// Impact splits the tariff on totalCost between supplier, manufacturer and customer
func Impact(totalCost, tariffRatePercent float64, split Absorption) ImpactResult {
	split.Normalize()

	tariffAmount := totalCost * tariffRatePercent / 100

	var effective float64
	if totalCost != 0 {
		effective = tariffAmount / totalCost * 100
	}

	return ImpactResult{
		WithoutTariff:      totalCost,
		WithTariff:         totalCost + tariffAmount,
		TariffAmount:       tariffAmount,
		SupplierAmount:     tariffAmount * split.Supplier / 100,
		ManufacturerAmount: tariffAmount * split.Manufacturer / 100,
		CustomerAmount:     tariffAmount * split.Customer / 100,
		RemainingAmount:    tariffAmount * split.Remaining / 100,
		EffectiveRate:      effective,
		Absorption:         split,
	}
}
