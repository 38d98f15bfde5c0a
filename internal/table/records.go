package table

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

// Column names as they appear in uploaded files. Matching is exact and case-sensitive.
const (
	ColRawMaterial        = "Raw_Material_Name"
	ColExportCountry      = "Export_Country"
	ColImportCountry      = "Import_country"
	ColTariffs            = "Tariffs"
	ColBasePrice          = "Base_Price_Per_Unit"
	ColFromCountry        = "From_Country"
	ColToCountry          = "To_Country"
	ColCurrentTariff      = "Current_Tariff_Percent"
	ColFutureTariff       = "Future_Tariff_Percent"
	ColCategory           = "Product_Category"
	ColSubCategory        = "Product_Sub_Category"
	ColContractEndDate    = "contract_end_date"
	ColPercentRequired    = "Product_percent_requied"
	ColPaymentTermDays    = "payment_term_days"
	ColImplementationDate = "Future_Tariff_Implementation_Date"
)

// MissingColumnsError reports expected headers that a table does not have
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "could not find required columns: " + strings.Join(e.Columns, ", ")
}

func newMissingColumnsError(cols []string) *MissingColumnsError {
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted)
	return &MissingColumnsError{Columns: sorted}
}

// Number is a numeric cell. Anything that does not parse as a finite number becomes 0.
type Number float64

// UnmarshalText implements encoding.TextUnmarshaler
func (n *Number) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(text)), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	*n = Number(v)
	return nil
}

// Float returns the value as float64
func (n Number) Float() float64 { return float64(n) }

// SupplyRecord is one row of a supply-chain table
type SupplyRecord struct {
	RawMaterial     string `csv:"Raw_Material_Name" json:"rawMaterial"`
	ExportCountry   string `csv:"Export_Country" json:"exportCountry"`
	ImportCountry   string `csv:"Import_country" json:"importCountry"`
	Tariff          Number `csv:"Tariffs" json:"tariff"`
	Category        string `csv:"Product_Category" json:"category"`
	SubCategory     string `csv:"Product_Sub_Category" json:"subCategory"`
	ContractEndDate string `csv:"contract_end_date" json:"contractEndDate"`
	PercentRequired Number `csv:"Product_percent_requied" json:"percentRequired"`
	BasePrice       Number `csv:"Base_Price_Per_Unit" json:"basePrice"`
}

// ProductRecord is one row of a product/pricing table
type ProductRecord struct {
	RawMaterial        string `csv:"Raw_Material_Name" json:"rawMaterial"`
	FromCountry        string `csv:"From_Country" json:"fromCountry"`
	ToCountry          string `csv:"To_Country" json:"toCountry"`
	Category           string `csv:"Product_Category" json:"category"`
	SubCategory        string `csv:"Product_Sub_Category" json:"subCategory"`
	BasePrice          Number `csv:"Base_Price_Per_Unit" json:"basePrice"`
	CurrentTariff      Number `csv:"Current_Tariff_Percent" json:"currentTariff"`
	FutureTariff       Number `csv:"Future_Tariff_Percent" json:"futureTariff"`
	PaymentTermDays    Number `csv:"payment_term_days" json:"paymentTermDays"`
	ImplementationDate string `csv:"Future_Tariff_Implementation_Date" json:"implementationDate"`
}

// RequireColumns checks that every named column is present
func (t *UploadedTable) RequireColumns(names ...string) error {
	var missing []string
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return newMissingColumnsError(missing)
	}
	return nil
}

// SupplyRecords maps the table onto supply-chain records after checking the
// columns the caller depends on. Columns not present decode as zero values.
func (t *UploadedTable) SupplyRecords(required ...string) ([]SupplyRecord, error) {
	var out []SupplyRecord
	if err := t.decode(&out, required); err != nil {
		return nil, err
	}
	return out, nil
}

// ProductRecords maps the table onto product records after checking the
// columns the caller depends on
func (t *UploadedTable) ProductRecords(required ...string) ([]ProductRecord, error) {
	var out []ProductRecord
	if err := t.decode(&out, required); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *UploadedTable) decode(v interface{}, required []string) error {
	if err := t.RequireColumns(required...); err != nil {
		return err
	}
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		return nil
	}

	dec, err := csvutil.NewDecoder(&rowReader{rows: t.Rows, width: len(t.Headers)}, t.Headers...)
	if err != nil {
		return fmt.Errorf("failed to create decoder for %s: %w", t.FileName, err)
	}
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("failed to map %s: %w", t.FileName, err)
	}
	return nil
}

// rowReader feeds stored rows to csvutil, padding or cutting each row to the header width
type rowReader struct {
	rows  [][]string
	width int
	pos   int
}

func (r *rowReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++

	out := make([]string, r.width)
	copy(out, row)
	return out, nil
}
