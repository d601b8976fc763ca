package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/internal/normalize"
	"facturas/internal/schema"
	"facturas/pkg/models"
)

func candidate(field, raw string) models.FieldCandidate {
	return models.FieldCandidate{
		FieldName:  field,
		RawValue:   raw,
		Method:     models.MethodPattern,
		Confidence: 0.9,
	}
}

func fullCandidates() map[string]models.FieldCandidate {
	return map[string]models.FieldCandidate{
		"invoice_number": candidate("invoice_number", "F-2023-0042"),
		"issue_date":     candidate("issue_date", "22-03-2023"),
		"vendor_name":    candidate("vendor_name", "Suministros García S.L. "),
		"vendor_tax_id":  candidate("vendor_tax_id", "b-12345678"),
		"total_amount":   candidate("total_amount", "90,75"),
		"base_amount":    candidate("base_amount", "75,00 €"),
		"vat_amount":     candidate("vat_amount", "15,75"),
		"vat_rate":       candidate("vat_rate", "21"),
		"currency":       candidate("currency", "€"),
		"payment_method": candidate("payment_method", "Transferencia"),
	}
}

func newNormalizer(t *testing.T, version string) *normalize.Normalizer {
	t.Helper()
	provider, err := schema.Load(version)
	require.NoError(t, err)
	return normalize.New(provider)
}

func TestFinalize_V1(t *testing.T) {
	n := newNormalizer(t, "v1")

	record, report := n.Finalize(fullCandidates(), nil, models.RecordMetadata{DocumentID: "doc-1"})
	require.NotNil(t, record)

	assert.True(t, report.Passed, "errors: %+v", report.Errors)
	assert.Equal(t, "22/03/2023", record.Field("issue_date"))
	assert.Equal(t, "90,75 €", record.Field("total_amount"))
	assert.Equal(t, "75,00 €", record.Field("base_amount"))
	assert.Equal(t, "21%", record.Field("vat_rate"))
	assert.Equal(t, "B12345678", record.Field("vendor_tax_id"))
	assert.Equal(t, "EUR", record.Field("currency"))
	assert.Equal(t, "transferencia", record.Field("payment_method"))
	assert.Equal(t, "Suministros García S.L.", record.Field("vendor_name"))
	assert.Equal(t, "v1", record.Metadata.SchemaVersion)
	assert.False(t, record.Metadata.ProcessedAt.IsZero())
}

func TestFinalize_FreeTextTrailingPunctuation(t *testing.T) {
	n := newNormalizer(t, "v1")

	// Stray anchor punctuation is trimmed; the abbreviation period is not.
	candidates := fullCandidates()
	candidates["vendor_name"] = candidate("vendor_name", "  Acme   Obras S.A.: ")
	candidates["buyer_name"] = candidate("buyer_name", "Promociones del Sur S.L., ")

	record, _ := n.Finalize(candidates, nil, models.RecordMetadata{DocumentID: "doc-1"})
	assert.Equal(t, "Acme Obras S.A.", record.Field("vendor_name"))
	assert.Equal(t, "Promociones del Sur S.L.", record.Field("buyer_name"))
}

func TestFinalize_V2(t *testing.T) {
	n := newNormalizer(t, "v2")

	record, report := n.Finalize(fullCandidates(), nil, models.RecordMetadata{DocumentID: "doc-2"})
	require.NotNil(t, record)

	assert.True(t, report.Passed, "errors: %+v", report.Errors)
	assert.Equal(t, "2023-03-22", record.Field("issue_date"))
	assert.Equal(t, 90.75, record.Field("total_amount"))
	assert.Equal(t, 75.00, record.Field("base_amount"))
	// Rates keep their percent sign in every schema version.
	assert.Equal(t, "21%", record.Field("vat_rate"))
}

func TestFinalize_KeySetAlwaysComplete(t *testing.T) {
	n := newNormalizer(t, "v1")
	provider, err := schema.Load("v1")
	require.NoError(t, err)

	record, report := n.Finalize(nil, nil, models.RecordMetadata{DocumentID: "doc-3"})
	require.NotNil(t, record)

	for _, name := range provider.FieldNames() {
		_, present := record.Fields[name]
		assert.True(t, present, "field %s must be present", name)
	}

	// Every required field got the sentinel plus an error entry.
	assert.False(t, report.Passed)
	assert.Len(t, report.Errors, len(provider.Required()))
	for _, name := range provider.Required() {
		assert.Equal(t, models.UnknownSentinel, record.Field(name), name)
	}

	// Defaults and empty placeholders for the rest.
	assert.Equal(t, "EUR", record.Field("currency"))
	assert.Equal(t, "factura", record.Field("invoice_type"))
	assert.Equal(t, "", record.Field("iban"))
	assert.Equal(t, []models.LineItem{}, record.Field("line_items"))
}

func TestFinalize_ImpossibleDate(t *testing.T) {
	n := newNormalizer(t, "v1")

	candidates := fullCandidates()
	candidates["issue_date"] = candidate("issue_date", "31/02/2023")

	record, report := n.Finalize(candidates, nil, models.RecordMetadata{})
	assert.False(t, report.Passed)
	assert.Equal(t, "31/02/2023", record.Field("issue_date"), "raw value is kept for inspection")
}

func TestFinalize_EnumDefaultOnUnknownValue(t *testing.T) {
	n := newNormalizer(t, "v1")

	candidates := fullCandidates()
	candidates["payment_method"] = candidate("payment_method", "cheque")

	record, report := n.Finalize(candidates, nil, models.RecordMetadata{})
	assert.Equal(t, "cheque", record.Field("payment_method"), "no default to fall back to, value kept")
	assert.False(t, report.Passed)

	candidates = fullCandidates()
	candidates["currency"] = candidate("currency", "pesetas")
	record, report = n.Finalize(candidates, nil, models.RecordMetadata{})
	assert.Equal(t, "EUR", record.Field("currency"))
	assert.True(t, report.Passed, "falling back to a declared default is only a warning")
	assert.NotEmpty(t, report.Warnings)
}

func TestFinalize_AmountCrossCheck(t *testing.T) {
	n := newNormalizer(t, "v1")

	// Base + VAT disagrees with the stated total by more than the tolerance.
	candidates := fullCandidates()
	candidates["total_amount"] = candidate("total_amount", "99,99")

	_, report := n.Finalize(candidates, nil, models.RecordMetadata{})
	found := false
	for _, w := range report.Warnings {
		if w.Path == "total_amount" {
			found = true
		}
	}
	assert.True(t, found, "amount mismatch must surface as a warning")
}

func TestFinalize_DerivesMissingAmount(t *testing.T) {
	n := newNormalizer(t, "v1")

	candidates := fullCandidates()
	delete(candidates, "vat_amount")

	record, report := n.Finalize(candidates, nil, models.RecordMetadata{})
	assert.Equal(t, "15,75 €", record.Field("vat_amount"))
	found := false
	for _, w := range report.Warnings {
		if w.Path == "vat_amount" {
			found = true
		}
	}
	assert.True(t, found, "derived amounts are flagged")
}

func TestFinalize_ThousandsSeparators(t *testing.T) {
	n := newNormalizer(t, "v1")

	candidates := fullCandidates()
	candidates["base_amount"] = candidate("base_amount", "1.033,06")
	candidates["vat_amount"] = candidate("vat_amount", "216,94")
	candidates["total_amount"] = candidate("total_amount", "1.250,00 €")

	record, report := n.Finalize(candidates, nil, models.RecordMetadata{})
	assert.True(t, report.Passed, "errors: %+v", report.Errors)
	assert.Equal(t, "1.250,00 €", record.Field("total_amount"))
	assert.Equal(t, "1.033,06 €", record.Field("base_amount"))
}

func TestCandidateValid(t *testing.T) {
	n := newNormalizer(t, "v1")

	tests := []struct {
		field string
		raw   string
		want  bool
	}{
		{"issue_date", "22/03/2023", true},
		{"issue_date", "22-3-23", true},
		{"issue_date", "mañana", false},
		{"total_amount", "1.234,56 €", true},
		{"total_amount", "unknown", false},
		{"vat_rate", "21", true},
		{"vat_rate", "veintiuno", false},
		{"vendor_tax_id", "B12345678", true},
		{"vendor_tax_id", "B-123", false},
		{"no_such_field", "x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.CandidateValid(tt.field, tt.raw), "%s=%q", tt.field, tt.raw)
	}
}

func TestFinalize_LineItemsCarriedThrough(t *testing.T) {
	n := newNormalizer(t, "v1")

	items := []models.LineItem{
		{Description: "Cemento gris 25kg", Quantity: "10", UnitPrice: "4,50", LineTotal: "45,00"},
	}
	record, _ := n.Finalize(fullCandidates(), items, models.RecordMetadata{})
	assert.Equal(t, items, record.Field("line_items"))
}
