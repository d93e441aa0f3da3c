// Package export renders line items to CSV and XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/procdoc/internal/model"
)

// Headers is the column layout both formats share.
var Headers = []string{
	"Line #", "CLIN", "Part Number", "Manufacturer", "Product Name",
	"Description", "Category", "Sub-Category", "Quantity", "UOI",
	"Unit Price", "Extended Price", "Vendor", "Document #",
	"Document Type", "Document Date", "Contract #",
}

// CSV renders line items as CSV bytes.
func CSV(items []model.LineItem) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Headers); err != nil {
		return nil, eris.Wrap(err, "export: write header")
	}
	for _, item := range items {
		if err := w.Write(row(item)); err != nil {
			return nil, eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "export: flush csv")
	}
	return buf.Bytes(), nil
}

// XLSX renders line items as an XLSX workbook.
func XLSX(items []model.LineItem) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Line Items"

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: new sheet")
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, eris.Wrap(err, "export: drop default sheet")
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, eris.Wrap(err, "export: write header")
		}
	}

	for r, item := range items {
		for c, v := range row(item) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, eris.Wrap(err, "export: write cell")
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}

func row(item model.LineItem) []string {
	return []string{
		intOrEmpty(item.LineNumber),
		item.CLIN,
		item.PartNumber,
		item.Manufacturer,
		item.ProductName,
		item.ProductDescription,
		item.Category,
		item.SubCategory,
		floatOrEmpty(item.Quantity),
		item.UnitOfIssue,
		floatOrEmpty(item.UnitPrice),
		floatOrEmpty(item.ExtendedPrice),
		item.VendorName,
		item.DocumentNumber,
		item.DocumentType,
		item.DocumentDate,
		item.ContractNumber,
	}
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
