// Package catalog loads the administrative seed data: the indicator catalog
// from a spreadsheet and the asset and prompt catalogs from a YAML file.
package catalog

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/mesacredito/fidc-cli/internal/model"
)

// XLSXOptions selects the sheet holding the indicator catalog.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads a sheet and returns all rows as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("catalog: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("catalog: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// Header aliases, Portuguese and English.
var indicatorColumns = map[string]string{
	"name":        "name",
	"nome":        "name",
	"indicador":   "name",
	"description": "description",
	"descricao":   "description",
	"descrição":   "description",
	"category":    "category",
	"categoria":   "category",
	"value_type":  "value_type",
	"tipo":        "value_type",
	"tipo_valor":  "value_type",
	"unit":        "unit",
	"unidade":     "unit",
}

var valueTypes = map[string]model.ValueType{
	"":         model.ValueTypeNumeric,
	"numeric":  model.ValueTypeNumeric,
	"numerico": model.ValueTypeNumeric,
	"numérico": model.ValueTypeNumeric,
	"text":     model.ValueTypeText,
	"texto":    model.ValueTypeText,
	"date":     model.ValueTypeDate,
	"data":     model.ValueTypeDate,
	"integer":  model.ValueTypeInteger,
	"inteiro":  model.ValueTypeInteger,
}

// LoadIndicators reads the indicator catalog. The first row is the header;
// a "name" (or "nome"/"indicador") column is required. Blank rows are
// skipped and duplicate names keep the first occurrence.
func LoadIndicators(path string, opts XLSXOptions) ([]model.Indicator, error) {
	rows, err := ReadXLSX(path, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("catalog: %s is empty", path)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if field, ok := indicatorColumns[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, eris.Errorf("catalog: %s has no name column (header %v)", path, rows[0])
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	seen := map[string]bool{}
	var out []model.Indicator
	for n, row := range rows[1:] {
		name := cell(row, "name")
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		vt, ok := valueTypes[strings.ToLower(cell(row, "value_type"))]
		if !ok {
			return nil, eris.Errorf("catalog: row %d: unknown value type %q", n+2, cell(row, "value_type"))
		}
		out = append(out, model.Indicator{
			Name:        name,
			Description: cell(row, "description"),
			Category:    cell(row, "category"),
			ValueType:   vt,
			Unit:        cell(row, "unit"),
		})
	}
	return out, nil
}
