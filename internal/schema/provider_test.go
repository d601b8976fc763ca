package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/internal/schema"
)

func TestLoad_Versions(t *testing.T) {
	v1, err := schema.Load("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v1.Version())
	assert.False(t, v1.MoneyNumeric())
	assert.Equal(t, "02/01/2006", v1.DateOutputLayout())

	v2, err := schema.Load("v2")
	require.NoError(t, err)
	assert.True(t, v2.MoneyNumeric())
	assert.Equal(t, "2006-01-02", v2.DateOutputLayout())

	_, err = schema.Load("v3")
	assert.ErrorIs(t, err, schema.ErrSchemaLoad)
}

func TestProvider_RequiredAndFields(t *testing.T) {
	p, err := schema.Load("v1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"invoice_number", "issue_date", "vendor_name",
		"vendor_tax_id", "total_amount", "vat_rate",
	}, p.Required())

	names := p.FieldNames()
	assert.Contains(t, names, "line_items")
	assert.Contains(t, names, "iban")
	assert.IsIncreasing(t, names, "field order must be deterministic")
}

func TestProvider_Spec(t *testing.T) {
	p, err := schema.Load("v1")
	require.NoError(t, err)

	tests := []struct {
		field    string
		kind     schema.FieldKind
		required bool
	}{
		{"issue_date", schema.KindDate, true},
		{"total_amount", schema.KindMoney, true},
		{"vat_rate", schema.KindPercentage, true},
		{"vendor_tax_id", schema.KindIdentifier, true},
		{"currency", schema.KindEnum, false},
		{"vendor_name", schema.KindFreeText, true},
		{"line_items", schema.KindArray, false},
	}
	for _, tt := range tests {
		spec, ok := p.Spec(tt.field)
		require.True(t, ok, tt.field)
		assert.Equal(t, tt.kind, spec.Kind, tt.field)
		assert.Equal(t, tt.required, spec.Required, tt.field)
	}

	_, ok := p.Spec("no_such_field")
	assert.False(t, ok)
}

func TestProvider_EnumDefaults(t *testing.T) {
	p, err := schema.Load("v1")
	require.NoError(t, err)

	currency, _ := p.Spec("currency")
	assert.Equal(t, "EUR", currency.Default)
	assert.True(t, currency.HasDefault())
	assert.ElementsMatch(t, []string{"EUR", "USD", "GBP"}, currency.Enum)

	invoiceType, _ := p.Spec("invoice_type")
	assert.Equal(t, "factura", invoiceType.Default)
}

func TestProvider_MatchesFormat(t *testing.T) {
	v1, err := schema.Load("v1")
	require.NoError(t, err)

	tests := []struct {
		field string
		value string
		want  bool
	}{
		{"issue_date", "22/03/2023", true},
		{"issue_date", "2023-03-22", false},
		{"total_amount", "1.234,56 €", true},
		{"total_amount", "1234.56", false},
		{"vat_rate", "21%", true},
		{"vat_rate", "21", false},
		{"vendor_tax_id", "B12345678", true},
		{"vendor_tax_id", "B123", false},
		{"currency", "EUR", true},
		{"currency", "euros", false},
		{"vendor_name", "Suministros García S.L.", true},
		{"vendor_name", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, v1.MatchesFormat(tt.field, tt.value), "%s=%q", tt.field, tt.value)
	}

	v2, err := schema.Load("v2")
	require.NoError(t, err)
	assert.True(t, v2.MatchesFormat("issue_date", "2023-03-22"))
	assert.False(t, v2.MatchesFormat("issue_date", "22/03/2023"))
}

func TestProvider_Validate(t *testing.T) {
	p, err := schema.Load("v1")
	require.NoError(t, err)

	valid := map[string]any{
		"invoice_number": "F-2023-0042",
		"issue_date":     "22/03/2023",
		"vendor_name":    "Suministros García S.L.",
		"vendor_tax_id":  "B12345678",
		"total_amount":   "90,75 €",
		"vat_rate":       "21%",
	}
	assert.NoError(t, p.Validate(valid))

	invalid := map[string]any{
		"invoice_number": "F-2023-0042",
		"issue_date":     "not a date",
		"vendor_name":    "Suministros García S.L.",
		"vendor_tax_id":  "B12345678",
		"total_amount":   "90,75 €",
		"vat_rate":       "21%",
	}
	assert.Error(t, p.Validate(invalid))

	missing := map[string]any{"invoice_number": "F-2023-0042"}
	assert.Error(t, p.Validate(missing), "required fields must be enforced")
}
