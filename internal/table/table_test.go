package table

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const supplyCSV = "\xef\xbb\xbfRaw_Material_Name, Export_Country,Import_country,Tariffs,Product_Category,Product_Sub_Category,contract_end_date,Product_percent_requied\n" +
	"Cocoa Butter,Ghana,United States,12,Food & Beverages,Chocolate,2026-01-01,32.79\n" +
	"Sugar,Brazil,United States,8,Food & Beverages,Chocolate,2026-03-01,38.26\n" +
	"Cocoa Butter, Ivory Coast ,United States,15,Food & Beverages,Chocolate,2026-01-01,40\n" +
	"\n" +
	"Sugar,India,Canada,n/a,Food & Beverages,Chocolate,2026-03-01,50\n"

const productCSV = "Raw_Material_Name,From_Country,To_Country,Product_Category,Product_Sub_Category,Base_Price_Per_Unit,Current_Tariff_Percent,Future_Tariff_Percent,payment_term_days\n" +
	"Sugar,Brazil,United States,Food & Beverages,Chocolate,2,10,20,30\n" +
	"Sugar,India,United States,Food & Beverages,Chocolate,4,25,25,60\n" +
	"Cocoa Butter,Ghana,United States,Food & Beverages,Chocolate,9,5,15,45\n" +
	"Sugar,Brazil,United States,Food & Beverages,Chocolate,3,18,20,30\n" +
	"Steel,China,Canada,Machinery,Industrial Machinery,100,abc,50,90\n"

func mustRead(t *testing.T, name string, ft FileType, content string) *UploadedTable {
	t.Helper()
	tbl, err := Read(name, ft, strings.NewReader(content))
	require.NoError(t, err)
	return tbl
}

func TestRead(t *testing.T) {
	tbl := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)

	assert.NotEmpty(t, tbl.ID)
	assert.Equal(t, "Raw_Material_Name", tbl.Headers[0], "BOM is stripped")
	assert.Equal(t, "Export_Country", tbl.Headers[1], "headers are trimmed")
	assert.Len(t, tbl.Rows, 4, "blank lines are skipped")
	assert.Equal(t, "Ivory Coast", tbl.Rows[2][1], "cells are trimmed")
	assert.Equal(t, 4, tbl.Summary().RowCount)

	t.Run("rejects other formats", func(t *testing.T) {
		for _, name := range []string{"supply.xls", "supply.txt", "supply"} {
			_, err := Read(name, FileTypeSupplyChain, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrUnsupportedFile, name)
		}
	})

	t.Run("rejects a corrupt workbook", func(t *testing.T) {
		_, err := Read("supply.xlsx", FileTypeSupplyChain, strings.NewReader("not a zip"))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := Read("empty.csv", FileTypeProduct, strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	data := workbook(t,
		[]interface{}{},
		[]interface{}{" Raw_Material_Name", "Export_Country", "Import_country", "Tariffs", "Product_Category", "Product_Sub_Category", "Product_percent_requied"},
		[]interface{}{"Cocoa Butter", " Ghana ", "United States", 12, "Food & Beverages", "Chocolate", 32.79},
		[]interface{}{},
		[]interface{}{"Sugar", "Brazil", "United States", 8, "Food & Beverages", "Chocolate", 38.26},
	)

	tbl, err := Read("Supply.XLSX", FileTypeSupplyChain, bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "Raw_Material_Name", tbl.Headers[0], "leading blank rows are skipped and headers trimmed")
	require.Len(t, tbl.Rows, 2, "blank rows are skipped")
	assert.Equal(t, "Ghana", tbl.Rows[0][1])
	assert.Equal(t, "12", tbl.Rows[0][3])

	records, err := tbl.SupplyRecords()
	require.NoError(t, err)
	assert.Equal(t, 38.26, records[1].PercentRequired.Float())

	t.Run("empty workbook", func(t *testing.T) {
		_, err := Read("empty.xlsx", FileTypeProduct, bytes.NewReader(workbook(t)))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestParseFileType(t *testing.T) {
	ft, err := ParseFileType("product")
	require.NoError(t, err)
	assert.Equal(t, FileTypeProduct, ft)

	_, err = ParseFileType("Product")
	assert.ErrorIs(t, err, ErrUnknownFileType)
}

func TestSupplyRecords(t *testing.T) {
	tbl := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)

	recs, err := tbl.SupplyRecords(ColRawMaterial)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "Cocoa Butter", recs[0].RawMaterial)
	assert.Equal(t, 32.79, recs[0].PercentRequired.Float())
	assert.Equal(t, 0.0, recs[3].Tariff.Float(), "unparseable numbers become 0")
	assert.Zero(t, recs[0].BasePrice, "absent optional column decodes as zero")
}

func TestMissingColumns(t *testing.T) {
	tbl := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)

	_, err := tbl.ProductTariffIndex()
	var mc *MissingColumnsError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []string{"Current_Tariff_Percent", "From_Country", "To_Country"}, mc.Columns)

	_, err = tbl.FilterRows(map[string]string{"import_country": "United States"})
	assert.True(t, errors.As(err, &mc), "column lookup is case-sensitive")
}

func TestShortRowsArePadded(t *testing.T) {
	tbl := mustRead(t, "p.csv", FileTypeProduct, "Raw_Material_Name,From_Country,Base_Price_Per_Unit\nSugar,Brazil\nSalt,Chile,3,extra\n")

	recs, err := tbl.ProductRecords()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Zero(t, recs[0].BasePrice)
	assert.Equal(t, 3.0, recs[1].BasePrice.Float())
}

func TestTariffIndexes(t *testing.T) {
	product := mustRead(t, "product.csv", FileTypeProduct, productCSV)

	idx, err := product.ProductTariffIndex()
	require.NoError(t, err)
	rate, ok := idx.Lookup("Brazil", "United States")
	assert.True(t, ok)
	assert.Equal(t, 18.0, rate, "last row wins")

	supply := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)
	sidx, err := supply.SupplyTariffIndex()
	require.NoError(t, err)
	rate, ok = sidx.Lookup("Ivory Coast", "United States")
	assert.True(t, ok)
	assert.Equal(t, 15.0, rate)
}

func TestBasePrices(t *testing.T) {
	product := mustRead(t, "product.csv", FileTypeProduct, productCSV)

	prices, err := product.ProductBasePrices()
	require.NoError(t, err)
	p, ok := prices.Lookup("Sugar", "Brazil")
	assert.True(t, ok)
	assert.Equal(t, 3.0, p)
	_, ok = prices.Lookup("Sugar", "Ghana")
	assert.False(t, ok)
	assert.Equal(t, 3.5, prices.Default("Sugar"))
	assert.Zero(t, prices.Default("Vanilla"))
}

func TestIngredients(t *testing.T) {
	supply := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)

	ings, err := supply.Ingredients("United States", "Chocolate")
	require.NoError(t, err)
	require.Len(t, ings, 2)
	assert.Equal(t, "Cocoa Butter", ings[0].Name)
	assert.Equal(t, 32.79, ings[0].Percentage, "first occurrence wins")
	assert.Equal(t, "2026-01-01", ings[0].ContractEndDate)
	assert.Equal(t, "Sugar", ings[1].Name)
	assert.Equal(t, "2026-03-01", ings[1].ContractEndDate)

	none, err := supply.Ingredients("Mexico", "Chocolate")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUniqueValuesAndFilterRows(t *testing.T) {
	supply := mustRead(t, "supply.csv", FileTypeSupplyChain, supplyCSV)

	vals, err := supply.UniqueValues(ColExportCountry)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brazil", "Ghana", "India", "Ivory Coast"}, vals)

	rows, err := supply.FilterRows(map[string]string{ColImportCountry: "United States", ColSubCategory: "Chocolate"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestFilterAndStats(t *testing.T) {
	product := mustRead(t, "product.csv", FileTypeProduct, productCSV)
	recs, err := product.ProductRecords()
	require.NoError(t, err)

	us := Filter(recs, ProductFilter{Country: "United States"})
	assert.Len(t, us, 4)
	assert.Len(t, Filter(recs, ProductFilter{}), 5)
	assert.Len(t, Filter(recs, ProductFilter{Category: "Machinery", SubCategory: "Industrial Machinery"}), 1)

	stats := MaterialStatistics(us)
	require.Len(t, stats, 2)
	assert.Equal(t, "Cocoa Butter", stats[0].Material)
	sugar := stats[1]
	assert.Equal(t, 3.0, sugar.AvgPrice)
	assert.Equal(t, 2.0, sugar.MinPrice)
	assert.Equal(t, 4.0, sugar.MaxPrice)
	assert.Len(t, sugar.CountryData, 3)
	assert.Equal(t, 60.0, sugar.CountryData[1].PaymentTermDays)
}

func TestPriceProducts(t *testing.T) {
	product := mustRead(t, "product.csv", FileTypeProduct, productCSV)
	recs, err := product.ProductRecords()
	require.NoError(t, err)

	priced := PriceProducts(Filter(recs, ProductFilter{Country: "Canada"}), 2)
	require.Len(t, priced, 1)
	assert.Equal(t, 200.0, priced[0].BaseWithCurrentTariff)
	assert.Equal(t, 300.0, priced[0].BaseWithFutureTariff)
}
