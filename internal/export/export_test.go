package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"facturas/internal/export"
	"facturas/pkg/models"
)

var testFields = []string{"invoice_number", "issue_date", "line_items", "total_amount"}

func sampleRecord(id, number string) *models.InvoiceRecord {
	return &models.InvoiceRecord{
		Fields: map[string]any{
			"invoice_number": number,
			"issue_date":     "22/03/2023",
			"total_amount":   "90,75 €",
			"line_items": []models.LineItem{
				{Description: "Cemento gris 25kg", Quantity: "10", UnitPrice: "4,50", LineTotal: "45,00"},
			},
		},
		Metadata: models.RecordMetadata{
			DocumentID:    id,
			SourceFile:    number + ".pdf",
			Method:        models.MethodPattern,
			Confidence:    0.91,
			SchemaVersion: "v1",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"json", "csv", "xlsx"} {
		_, err := export.ParseFormat(valid)
		assert.NoError(t, err, valid)
	}
	_, err := export.ParseFormat("yaml")
	assert.Error(t, err)
}

func TestJSONWriter_SingleRecord(t *testing.T) {
	w, err := export.NewWriter(export.FormatJSON, testFields)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, w.Write(&buf, []*models.InvoiceRecord{sampleRecord("doc-1", "F-1")}))

	var decoded models.InvoiceRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded), "single record encodes as an object")
	assert.Equal(t, "F-1", decoded.Fields["invoice_number"])
	assert.Equal(t, "doc-1", decoded.Metadata.DocumentID)
}

func TestJSONWriter_MultipleRecords(t *testing.T) {
	w, err := export.NewWriter(export.FormatJSON, testFields)
	require.NoError(t, err)

	var buf bytes.Buffer
	records := []*models.InvoiceRecord{sampleRecord("doc-1", "F-1"), sampleRecord("doc-2", "F-2")}
	require.NoError(t, w.Write(&buf, records))

	var decoded []models.InvoiceRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "F-2", decoded[1].Fields["invoice_number"])
}

func TestCSVWriter(t *testing.T) {
	w, err := export.NewWriter(export.FormatCSV, testFields)
	require.NoError(t, err)

	var buf bytes.Buffer
	records := []*models.InvoiceRecord{sampleRecord("doc-1", "F-1"), sampleRecord("doc-2", "F-2")}
	require.NoError(t, w.Write(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per record")

	// Scalar fields in schema order, flattened line items, then metadata.
	assert.Equal(t, []string{
		"invoice_number", "issue_date", "total_amount",
		"line_item_1_description", "line_item_1_quantity", "line_item_1_unit_price", "line_item_1_line_total",
		"document_id", "source_file", "extraction_method", "confidence_score", "schema_version",
	}, rows[0])

	assert.Equal(t, "F-1", rows[1][0])
	assert.Equal(t, "22/03/2023", rows[1][1])
	assert.Equal(t, "90,75 €", rows[1][2])
	assert.Equal(t, "Cemento gris 25kg", rows[1][3])
	assert.Equal(t, "doc-1", rows[1][7])
	assert.Equal(t, "pattern", rows[1][9])
	assert.Equal(t, "0.910", rows[1][10])
	assert.Equal(t, "doc-2", rows[2][7])
}

func TestCSVWriter_FlattensLineItems(t *testing.T) {
	w, err := export.NewWriter(export.FormatCSV, testFields)
	require.NoError(t, err)

	long := sampleRecord("doc-1", "F-1")
	long.Fields["line_items"] = []models.LineItem{
		{Description: "Cemento gris 25kg", Quantity: "10", UnitPrice: "4,50", LineTotal: "45,00"},
		{Description: "Arena fina m3", Quantity: "2", UnitPrice: "15,00", LineTotal: "30,00"},
	}
	short := sampleRecord("doc-2", "F-2")

	var buf bytes.Buffer
	require.NoError(t, w.Write(&buf, []*models.InvoiceRecord{long, short}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Item columns size to the largest record in the batch.
	assert.Contains(t, rows[0], "line_item_2_description")
	assert.NotContains(t, rows[0], "line_item_3_description")
	require.Len(t, rows[0], 3+2*4+5)

	assert.Equal(t, "Arena fina m3", rows[1][7])
	assert.Equal(t, "30,00", rows[1][10])

	// Shorter records pad the trailing item columns.
	assert.Equal(t, "Cemento gris 25kg", rows[2][3])
	assert.Equal(t, "", rows[2][7])
	assert.Equal(t, "", rows[2][10])
	assert.Equal(t, "doc-2", rows[2][11])
}

func TestCSVWriter_MissingValuesRenderEmpty(t *testing.T) {
	w, err := export.NewWriter(export.FormatCSV, testFields)
	require.NoError(t, err)

	record := sampleRecord("doc-1", "F-1")
	delete(record.Fields, "total_amount")

	var buf bytes.Buffer
	require.NoError(t, w.Write(&buf, []*models.InvoiceRecord{record}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "", rows[1][2])
}

func TestXLSXWriter(t *testing.T) {
	w, err := export.NewWriter(export.FormatXLSX, testFields)
	require.NoError(t, err)

	var buf bytes.Buffer
	records := []*models.InvoiceRecord{sampleRecord("doc-1", "F-1")}
	require.NoError(t, w.Write(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	number, err := f.GetCellValue("Facturas", "A2")
	require.NoError(t, err)
	assert.Equal(t, "F-1", number)

	header, err := f.GetCellValue("Facturas", "A1")
	require.NoError(t, err)
	assert.Equal(t, "invoice_number", header)

	// The line items land on their own sheet, keyed by document ID.
	itemDoc, err := f.GetCellValue("Conceptos", "A2")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", itemDoc)
	itemDesc, err := f.GetCellValue("Conceptos", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Cemento gris 25kg", itemDesc)
}
