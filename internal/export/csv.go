package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"facturas/pkg/models"
)

// csvWriter emits one row per record with a header row. Scalar fields come
// first in schema order, then the flattened line items, then the metadata
// columns. Items flatten into line_item_N_* columns sized to the largest
// record in the batch, so every schema field survives the tabular output.
type csvWriter struct {
	fields []string
}

var metadataColumns = []string{"document_id", "source_file", "extraction_method", "confidence_score", "schema_version"}

var itemColumns = []string{"description", "quantity", "unit_price", "line_total"}

func (cw *csvWriter) Write(w io.Writer, records []*models.InvoiceRecord) error {
	out := csv.NewWriter(w)

	maxItems := 0
	for _, record := range records {
		if n := len(lineItems(record)); n > maxItems {
			maxItems = n
		}
	}

	header := append([]string{}, cw.fields...)
	for i := 1; i <= maxItems; i++ {
		for _, col := range itemColumns {
			header = append(header, fmt.Sprintf("line_item_%d_%s", i, col))
		}
	}
	header = append(header, metadataColumns...)
	if err := out.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		row := make([]string, 0, len(header))
		for _, field := range cw.fields {
			row = append(row, fmt.Sprintf("%v", cellValue(record, field)))
		}
		items := lineItems(record)
		for i := 0; i < maxItems; i++ {
			if i < len(items) {
				row = append(row, items[i].Description, items[i].Quantity, items[i].UnitPrice, items[i].LineTotal)
			} else {
				row = append(row, "", "", "", "")
			}
		}
		row = append(row,
			record.Metadata.DocumentID,
			record.Metadata.SourceFile,
			string(record.Metadata.Method),
			fmt.Sprintf("%.3f", record.Metadata.Confidence),
			record.Metadata.SchemaVersion,
		)
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}
