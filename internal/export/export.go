// Package export serializes finalized invoice records for downstream
// consumers. Three writers ship: pretty JSON for single records and APIs,
// CSV for spreadsheet imports, and an XLSX workbook for accountants. Every
// writer emits the schema's full field set in deterministic column order.
package export

import (
	"fmt"
	"io"

	"facturas/pkg/models"
)

// Format selects a serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format selector string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatXLSX:
		return Format(s), nil
	}
	return "", fmt.Errorf("unrecognized export format %q (want json, csv or xlsx)", s)
}

// Writer serializes a batch of records to one output stream.
type Writer interface {
	// Write serializes the records. Columns follow the field order given at
	// construction; metadata columns come last.
	Write(w io.Writer, records []*models.InvoiceRecord) error
}

// NewWriter returns the Writer for the format. fields is the schema's
// declared property order; line_items is flattened or summarized depending
// on the format.
func NewWriter(format Format, fields []string) (Writer, error) {
	switch format {
	case FormatJSON:
		return &jsonWriter{}, nil
	case FormatCSV:
		return &csvWriter{fields: scalarFields(fields)}, nil
	case FormatXLSX:
		return &xlsxWriter{fields: scalarFields(fields)}, nil
	}
	return nil, fmt.Errorf("unrecognized export format %q", format)
}

// scalarFields drops line_items from the leading columns; tabular writers
// render items separately (flattened per-item columns in CSV, the item
// sheet in XLSX).
func scalarFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "line_items" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// lineItems returns the record's parsed line items, if any.
func lineItems(record *models.InvoiceRecord) []models.LineItem {
	items, _ := record.Field("line_items").([]models.LineItem)
	return items
}

// cellValue renders one field value for a tabular cell. Absent values
// render empty rather than "<nil>".
func cellValue(record *models.InvoiceRecord, field string) any {
	value := record.Field(field)
	if value == nil {
		return ""
	}
	return value
}
