package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addresses.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV_WithHeader(t *testing.T) {
	path := writeTempCSV(t, `street_number,route,unit,city,state,state_code,postal_code,country,raw
10808,S River Front Pkwy,3066,South Jordan,Utah,UT,84095,United States,"10808 S River Front Pkwy #3066, South Jordan, UT"
790,E Joralemon St,,Belle Plaine,Minnesota,MN,56011,United States,"790 E Joralemon St, Belle Plaine, MN 56011"
`)

	records, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "10808", first.Components.StreetNumber)
	assert.Equal(t, "S River Front Pkwy", first.Components.Route)
	assert.Equal(t, "3066", first.Components.Subpremise)
	assert.Equal(t, "South Jordan", first.Components.Locality)
	assert.Equal(t, "UT", first.Components.StateCode)
	assert.Equal(t, "84095", first.Components.PostalCode)
	assert.Equal(t, "United States", first.Components.Country)
	assert.Equal(t, "10808 S River Front Pkwy #3066, South Jordan, UT", first.Components.Raw)

	assert.Empty(t, records[1].Components.Subpremise)
}

func TestReadCSV_Headerless(t *testing.T) {
	path := writeTempCSV(t, `"10808 S River Front Pkwy #3066, South Jordan, UT"
"790 E Joralemon St, Belle Plaine, MN 56011"
`)

	records, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "10808 S River Front Pkwy #3066, South Jordan, UT", records[0].Components.Raw)
	assert.True(t, records[0].Components.RawOnly())
	assert.Equal(t, 1, records[0].Line, "first row is data, not a header")
}

func TestReadCSV_SkipsBlankRows(t *testing.T) {
	path := writeTempCSV(t, `raw,city
"1 Somewhere Street",Melbourne
,
"2 Elsewhere Road",Sydney
`)

	records, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4, records[1].Line)
}

func TestReadCSV_Empty(t *testing.T) {
	path := writeTempCSV(t, "")

	records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadCSV_HeaderAliases(t *testing.T) {
	// "Address", "City", "Zip" style headers common in exported sheets.
	path := writeTempCSV(t, `Address,City,State Code,Zip
"1 Somewhere Street",Melbourne,VIC,3000
`)

	records, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	c := records[0].Components
	assert.Equal(t, "1 Somewhere Street", c.Raw)
	assert.Equal(t, "Melbourne", c.Locality)
	assert.Equal(t, "VIC", c.StateCode)
	assert.Equal(t, "3000", c.PostalCode)
}

func writeTempXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Addresses")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "addresses.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_WithHeader(t *testing.T) {
	path := writeTempXLSX(t, [][]string{
		{"raw", "city", "postal_code"},
		{"1 Somewhere Street, Melbourne", "Melbourne", "3000"},
		{"2 Elsewhere Road, Sydney", "Sydney", "2000"},
	})

	records, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Melbourne", records[0].Components.Locality)
	assert.Equal(t, "3000", records[0].Components.PostalCode)
	assert.Equal(t, 2, records[0].Line)
}

func TestReadXLSX_Headerless(t *testing.T) {
	path := writeTempXLSX(t, [][]string{
		{"1 Somewhere Street, Melbourne"},
		{"2 Elsewhere Road, Sydney"},
	})

	records, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1 Somewhere Street, Melbourne", records[0].Components.Raw)
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := writeTempXLSX(t, [][]string{{"raw"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := writeTempXLSX(t, [][]string{
		{"raw"},
		{"1 Somewhere Street, Melbourne"},
	})

	records, err := ReadXLSX(path, XLSXOptions{SheetName: "Addresses"})
	require.NoError(t, err)
	require.Len(t, records, 1)
}
