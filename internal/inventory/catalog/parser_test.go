package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testLimit = 1 << 20

func TestParse_CSV(t *testing.T) {
	data := "SKU,Product Name,Manufacturer,Qty,Expiry Date,Unit Cost,Lot\n" +
		"GL-100,Nitrile Gloves,Acme Medical,120,2026-03-01,4.50,L1\n" +
		",,,,,,\n" +
		"SY-5,Syringe 5ml,,40,2026-07-15,0.30,\n"

	rows, err := Parse("catalog.csv", strings.NewReader(data), testLimit)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "GL-100", rows[0].Get(FieldSKU))
	assert.Equal(t, "Nitrile Gloves", rows[0].Get(FieldProductName))
	assert.Equal(t, "120", rows[0].Get(FieldQuantity))
	assert.Equal(t, "L1", rows[0].Get(FieldLotNumber))

	// blank line 3 is skipped but line numbers follow the sheet
	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "", rows[1].Get(FieldManufacturer))
}

func TestParse_CSVWithBOMAndSemicolons(t *testing.T) {
	data := "\xef\xbb\xbfproduct_name;quantity;expiration;price\n" +
		"Gauze;10;2026-01-31;1,25\n"

	rows, err := Parse("export.CSV", strings.NewReader(data), testLimit)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Gauze", rows[0].Get(FieldProductName))
	assert.Equal(t, "2026-01-31", rows[0].Get(FieldExpiryDate))
	assert.Equal(t, "1,25", rows[0].Get(FieldUnitCost))
}

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Product", "Quantity", "Expiry", "Unit Cost", "Rx"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Saline 0.9%", 24, "2026-02-28", 3.2, "yes"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Bandage", 5, 46022, 0.75, ""}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := Parse("catalog.xlsx", bytes.NewReader(buf.Bytes()), testLimit)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Saline 0.9%", rows[0].Get(FieldProductName))
	assert.Equal(t, "24", rows[0].Get(FieldQuantity))
	assert.Equal(t, "yes", rows[0].Get(FieldPrescriptionRequired))
	assert.Equal(t, "46022", rows[1].Get(FieldExpiryDate))
	assert.Equal(t, 3, rows[1].Line)
}

func TestParse_FormatErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     string
		limit    int64
		reason   string
	}{
		{"empty file", "a.csv", "  \n", testLimit, "file is empty"},
		{"unsupported extension", "a.txt", "product,quantity\n", testLimit, "unsupported file type"},
		{"missing columns", "a.csv", "product,quantity\nGauze,1\n", testLimit, "missing required column(s): expiry_date, unit_cost"},
		{"header only", "a.csv", "product,quantity,expiry,cost\n", testLimit, "file has no data rows"},
		{"too large", "a.csv", "product,quantity,expiry,cost\nGauze,1,2026-01-01,1\n", 10, "upload limit"},
		{"broken xlsx", "a.xlsx", "not a zip archive", testLimit, "open excel file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.fileName, strings.NewReader(tt.data), tt.limit)
			require.Error(t, err)

			var formatErr *FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Contains(t, formatErr.Reason, tt.reason)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "expiry date", normalizeHeader("  Expiry_Date "))
	assert.Equal(t, "unit cost", normalizeHeader("\ufeffUnit-Cost"))
	assert.Equal(t, "lot number", normalizeHeader("Lot   Number"))
}
