// Package normalize coerces extracted field candidates into the types and
// formats the active schema declares, applies defaults, and produces the
// final InvoiceRecord with its ValidationReport. Per-field problems are
// always recorded as report entries, never raised.
package normalize

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"facturas/internal/logger"
	"facturas/internal/schema"
	"facturas/pkg/models"
)

// Normalizer finalizes records against one schema version.
type Normalizer struct {
	provider *schema.Provider
	log      zerolog.Logger
}

// New creates a Normalizer bound to the given schema provider.
func New(provider *schema.Provider) *Normalizer {
	return &Normalizer{
		provider: provider,
		log:      logger.WithComponent("normalizer"),
	}
}

// CandidateValid reports whether a raw candidate value for the named field
// normalizes into a schema-conformant value. The refinement merge policy
// uses this to decide when a fallback value may displace a pattern value.
func (n *Normalizer) CandidateValid(field, raw string) bool {
	spec, ok := n.provider.Spec(field)
	if !ok {
		return false
	}
	_, _, valid := n.normalizeField(spec, raw)
	return valid
}

// fieldIssue is an intermediate per-field problem before it lands in the
// report.
type fieldIssue struct {
	warning bool
	message string
}

// Finalize produces the frozen InvoiceRecord and its ValidationReport from
// the surviving candidates. The record's key set always equals the schema's
// declared property set: required fields that stayed empty get the
// "unknown" sentinel plus an error entry.
func (n *Normalizer) Finalize(candidates map[string]models.FieldCandidate, items []models.LineItem, meta models.RecordMetadata) (*models.InvoiceRecord, *models.ValidationReport) {
	report := &models.ValidationReport{}
	fields := make(map[string]any, len(n.provider.FieldNames()))
	amounts := make(map[string]decimal.Decimal, 3)

	for _, name := range n.provider.FieldNames() {
		spec, _ := n.provider.Spec(name)

		if spec.Kind == schema.KindArray {
			if items == nil {
				items = []models.LineItem{}
			}
			fields[name] = items
			continue
		}

		candidate, present := candidates[name]
		if !present {
			continue
		}

		value, issue, ok := n.normalizeField(spec, candidate.RawValue)
		fields[name] = value
		if issue != nil {
			if issue.warning {
				report.AddWarning(name, issue.message)
			} else {
				report.AddError(name, issue.message)
			}
		}
		if ok && spec.Kind == schema.KindMoney {
			if d, err := parseMoney(candidate.RawValue); err == nil {
				amounts[name] = d
			}
		}
	}

	n.reconcileAmounts(fields, amounts, report)
	n.fillMissing(fields, report)
	n.crossValidate(fields, report)

	meta.SchemaVersion = n.provider.Version()
	meta.ProcessedAt = time.Now().UTC()

	record := &models.InvoiceRecord{Fields: fields, Metadata: meta}
	report.Finalize()

	n.log.Info().
		Str("document_id", meta.DocumentID).
		Bool("passed", report.Passed).
		Int("errors", len(report.Errors)).
		Int("warnings", len(report.Warnings)).
		Msg("Record finalized")

	return record, report
}

// normalizeField dispatches on the closed field-kind set. The returned
// value is always usable for the record; ok reports whether it conforms to
// the schema's declared format.
func (n *Normalizer) normalizeField(spec schema.FieldSpec, raw string) (any, *fieldIssue, bool) {
	switch spec.Kind {
	case schema.KindDate:
		t, err := parseDate(raw)
		if err != nil {
			return raw, &fieldIssue{message: err.Error()}, false
		}
		return t.Format(n.provider.DateOutputLayout()), nil, true

	case schema.KindMoney:
		d, err := parseMoney(raw)
		if err != nil {
			return raw, &fieldIssue{message: err.Error()}, false
		}
		if n.provider.MoneyNumeric() {
			f, _ := d.Float64()
			return f, nil, true
		}
		return formatMoney(d), nil, true

	case schema.KindPercentage:
		// A rate is a labeled ratio, not a plain quantity: it stays a
		// string with its percent sign in every schema version.
		s, err := normalizePercent(raw)
		if err != nil {
			return raw, &fieldIssue{message: err.Error()}, false
		}
		return s, nil, true

	case schema.KindIdentifier:
		s := normalizeIdentifier(raw)
		if !n.provider.MatchesFormat(spec.Name, s) {
			// A malformed identifier is an error but never blocks the
			// rest of the record.
			return s, &fieldIssue{message: fmt.Sprintf("%q does not match the %s format", raw, spec.Name)}, false
		}
		return s, nil, true

	case schema.KindEnum:
		value, matched := canonicalEnum(raw, spec.Enum)
		if matched {
			return value, nil, true
		}
		if spec.HasDefault() {
			return spec.Default, &fieldIssue{
				warning: true,
				message: fmt.Sprintf("%q is not an allowed value; using default %q", raw, spec.Default),
			}, false
		}
		return value, &fieldIssue{message: fmt.Sprintf("%q is not an allowed value", raw)}, false

	default:
		s := normalizeFreeText(raw)
		if s == "" {
			return raw, &fieldIssue{message: "value is empty after normalization"}, false
		}
		return s, nil, true
	}
}

// reconcileAmounts checks base + VAT against the total and derives a
// missing third amount when the other two are present. Discrepancies and
// derivations are warnings, not errors.
func (n *Normalizer) reconcileAmounts(fields map[string]any, amounts map[string]decimal.Decimal, report *models.ValidationReport) {
	base, hasBase := amounts["base_amount"]
	vat, hasVAT := amounts["vat_amount"]
	total, hasTotal := amounts["total_amount"]

	tolerance := decimal.NewFromFloat(0.02)

	switch {
	case hasBase && hasVAT && hasTotal:
		calculated := base.Add(vat)
		if calculated.Sub(total).Abs().GreaterThan(tolerance) {
			report.AddWarning("total_amount", fmt.Sprintf(
				"base (%s) + VAT (%s) = %s does not match total %s",
				base.StringFixed(2), vat.StringFixed(2), calculated.StringFixed(2), total.StringFixed(2)))
		}
	case hasBase && hasVAT:
		n.storeAmount(fields, "total_amount", base.Add(vat))
		report.AddWarning("total_amount", "total derived from base + VAT")
	case hasBase && hasTotal:
		n.storeAmount(fields, "vat_amount", total.Sub(base))
		report.AddWarning("vat_amount", "VAT derived from total - base")
	case hasVAT && hasTotal:
		n.storeAmount(fields, "base_amount", total.Sub(vat))
		report.AddWarning("base_amount", "base derived from total - VAT")
	}
}

func (n *Normalizer) storeAmount(fields map[string]any, name string, d decimal.Decimal) {
	if _, exists := fields[name]; exists {
		return
	}
	if n.provider.MoneyNumeric() {
		f, _ := d.Float64()
		fields[name] = f
		return
	}
	fields[name] = formatMoney(d)
}

// fillMissing completes the key set: absent required fields get the
// sentinel plus an error; absent optionals get their declared default or an
// empty value.
func (n *Normalizer) fillMissing(fields map[string]any, report *models.ValidationReport) {
	for _, name := range n.provider.FieldNames() {
		if _, present := fields[name]; present {
			continue
		}
		spec, _ := n.provider.Spec(name)
		switch {
		case spec.Required:
			fields[name] = models.UnknownSentinel
			report.AddError(name, "required field could not be determined")
		case spec.HasDefault():
			fields[name] = spec.Default
		default:
			fields[name] = ""
		}
	}
}

// crossValidate runs the compiled JSON Schema over clean records as a final
// safety net. Residual mismatches (typically placeholder values for absent
// optionals) surface as warnings; genuine format errors were already
// recorded per field.
func (n *Normalizer) crossValidate(fields map[string]any, report *models.ValidationReport) {
	if len(report.Errors) > 0 {
		return
	}
	// Empty placeholders for absent optionals are not format violations.
	subset := make(map[string]any, len(fields))
	for name, value := range fields {
		if s, isString := value.(string); isString && s == "" {
			continue
		}
		subset[name] = value
	}
	if err := n.provider.Validate(subset); err != nil {
		report.AddWarning("record", fmt.Sprintf("schema validation: %v", err))
	}
}
