package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Field is a canonical catalog column
type Field string

const (
	FieldSKU                  Field = "sku"
	FieldProductName          Field = "product_name"
	FieldManufacturer         Field = "manufacturer"
	FieldQuantity             Field = "quantity"
	FieldExpiryDate           Field = "expiry_date"
	FieldUnitCost             Field = "unit_cost"
	FieldLotNumber            Field = "lot_number"
	FieldTaxCode              Field = "tax_code"
	FieldRequiresLicense      Field = "requires_license"
	FieldPrescriptionRequired Field = "prescription_required"
	FieldExportRestricted     Field = "export_restricted"
)

var requiredFields = []Field{FieldProductName, FieldQuantity, FieldExpiryDate, FieldUnitCost}

var headerAliases = map[string]Field{
	"sku":                   FieldSKU,
	"global sku":            FieldSKU,
	"gtin":                  FieldSKU,
	"article number":        FieldSKU,
	"product name":          FieldProductName,
	"product":               FieldProductName,
	"name":                  FieldProductName,
	"description":           FieldProductName,
	"item":                  FieldProductName,
	"manufacturer":          FieldManufacturer,
	"brand":                 FieldManufacturer,
	"maker":                 FieldManufacturer,
	"quantity":              FieldQuantity,
	"qty":                   FieldQuantity,
	"stock":                 FieldQuantity,
	"on hand":               FieldQuantity,
	"expiry date":           FieldExpiryDate,
	"expiry":                FieldExpiryDate,
	"expiration date":       FieldExpiryDate,
	"expiration":            FieldExpiryDate,
	"exp date":              FieldExpiryDate,
	"best before":           FieldExpiryDate,
	"unit cost":             FieldUnitCost,
	"cost":                  FieldUnitCost,
	"unit price":            FieldUnitCost,
	"price":                 FieldUnitCost,
	"lot number":            FieldLotNumber,
	"lot":                   FieldLotNumber,
	"batch":                 FieldLotNumber,
	"batch number":          FieldLotNumber,
	"tax code":              FieldTaxCode,
	"avalara tax code":      FieldTaxCode,
	"requires license":      FieldRequiresLicense,
	"license required":      FieldRequiresLicense,
	"prescription required": FieldPrescriptionRequired,
	"rx":                    FieldPrescriptionRequired,
	"rx required":           FieldPrescriptionRequired,
	"export restricted":     FieldExportRestricted,
}

// FormatError describes a file that cannot be read as a catalog at all
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return e.Reason
}

func formatErrorf(format string, args ...interface{}) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// RawRow is one non-blank data row keyed by canonical field.
// Line is the 1-based sheet line, the header being line 1.
type RawRow struct {
	Line   int
	Values map[Field]string
}

// Get returns the trimmed value of f
func (r RawRow) Get(f Field) string {
	return strings.TrimSpace(r.Values[f])
}

// Parse reads a .csv or .xlsx catalog of at most limit bytes
func Parse(fileName string, r io.Reader, limit int64) ([]RawRow, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, formatErrorf("read upload: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, formatErrorf("file exceeds the %d byte upload limit", limit)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, formatErrorf("file is empty")
	}

	var records [][]string
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
	default:
		return nil, formatErrorf("unsupported file type %q, expected .csv or .xlsx", ext)
	}
	if err != nil {
		return nil, err
	}

	return rowsFromRecords(records)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = sniffDelimiter(data)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, formatErrorf("malformed csv: %v", err)
	}
	return records, nil
}

// sniffDelimiter picks ';' for exports whose header has no commas
func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.Count(header, []byte(";")) > 0 && bytes.Count(header, []byte(",")) == 0 {
		return ';'
	}
	return ','
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, formatErrorf("open excel file: %v", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, formatErrorf("excel file has no sheets")
	}

	// raw values keep dates as serial numbers instead of locale-formatted text
	rows, err := file.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, formatErrorf("read sheet rows: %v", err)
	}
	return rows, nil
}

func rowsFromRecords(records [][]string) ([]RawRow, error) {
	if len(records) == 0 {
		return nil, formatErrorf("file is empty")
	}

	colMap := mapColumns(records[0])
	var missing []string
	for _, f := range requiredFields {
		if _, ok := colMap[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, formatErrorf("missing required column(s): %s", strings.Join(missing, ", "))
	}

	rows := make([]RawRow, 0, len(records)-1)
	for index := 1; index < len(records); index++ {
		cells := records[index]
		if blank(cells) {
			continue
		}
		values := make(map[Field]string, len(colMap))
		for f, idx := range colMap {
			values[f] = readCell(cells, idx)
		}
		rows = append(rows, RawRow{Line: index + 1, Values: values})
	}

	if len(rows) == 0 {
		return nil, formatErrorf("file has no data rows")
	}
	return rows, nil
}

func mapColumns(header []string) map[Field]int {
	mapped := make(map[Field]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(value)
	value = strings.Join(strings.Fields(value), " ")
	return value
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
