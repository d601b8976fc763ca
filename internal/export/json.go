package export

import (
	"encoding/json"
	"io"

	"facturas/pkg/models"
)

// jsonWriter emits records as a pretty-printed JSON array, or a single
// object when the batch has exactly one record. Fields and metadata keep
// their struct JSON layout, so line items stay structured.
type jsonWriter struct{}

func (jw *jsonWriter) Write(w io.Writer, records []*models.InvoiceRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if len(records) == 1 {
		return enc.Encode(records[0])
	}
	return enc.Encode(records)
}
