package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"facturas/pkg/models"
)

// xlsxWriter emits a two-sheet workbook: "Facturas" with one row per record
// and "Conceptos" with the flattened line items, keyed by document ID.
type xlsxWriter struct {
	fields []string
}

func (xw *xlsxWriter) Write(w io.Writer, records []*models.InvoiceRecord) error {
	f := excelize.NewFile()

	const recordSheet = "Facturas"
	const itemSheet = "Conceptos"

	index, err := f.NewSheet(recordSheet)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(itemSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := xw.writeRecords(f, recordSheet, records); err != nil {
		return err
	}
	if err := xw.writeItems(f, itemSheet, records); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func (xw *xlsxWriter) writeRecords(f *excelize.File, sheet string, records []*models.InvoiceRecord) error {
	header := append(append([]string{}, xw.fields...), metadataColumns...)
	for col, name := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	for i, record := range records {
		row := i + 2
		col := 1
		for _, field := range xw.fields {
			write(col, row, cellValue(record, field))
			col++
		}
		write(col, row, record.Metadata.DocumentID)
		write(col+1, row, record.Metadata.SourceFile)
		write(col+2, row, string(record.Metadata.Method))
		write(col+3, row, record.Metadata.Confidence)
		write(col+4, row, record.Metadata.SchemaVersion)
	}

	_ = f.SetColWidth(sheet, "A", "B", 18)
	_ = f.SetColWidth(sheet, "C", "E", 28)
	return nil
}

func (xw *xlsxWriter) writeItems(f *excelize.File, sheet string, records []*models.InvoiceRecord) error {
	header := []string{"document_id", "description", "quantity", "unit_price", "line_total"}
	for col, name := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	row := 2
	for _, record := range records {
		for _, item := range lineItems(record) {
			values := []any{record.Metadata.DocumentID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
			}
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	return nil
}
