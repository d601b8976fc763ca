package models

import "time"

// ExtractionMethod identifies which path produced a value or a record.
type ExtractionMethod string

const (
	// MethodPattern marks values produced by the heuristic pattern extractor.
	MethodPattern ExtractionMethod = "pattern"

	// MethodFallback marks values produced by the refinement backend.
	MethodFallback ExtractionMethod = "fallback"

	// MethodHybrid marks records containing values from both paths.
	MethodHybrid ExtractionMethod = "hybrid"
)

// FieldCandidate is a provisional, not-yet-validated value for one invoice
// field. Multiple candidates may exist for the same field while rules are
// applied; exactly one survives per field after resolution.
type FieldCandidate struct {
	// FieldName is the schema property this candidate belongs to.
	FieldName string `json:"field_name"`

	// RawValue is the extracted string before any normalization.
	RawValue string `json:"raw_value"`

	// Method records which extraction path produced the candidate.
	Method ExtractionMethod `json:"extraction_method"`

	// Confidence is the local confidence of the candidate (0.0 to 1.0).
	Confidence float64 `json:"local_confidence"`
}

// LineItem is a single parsed row of an invoice's items table. A row that
// cannot be parsed into all four columns is dropped rather than emitted
// partially populated.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// RecordMetadata describes how a record was produced.
type RecordMetadata struct {
	// DocumentID uniquely identifies one processing run.
	DocumentID string `json:"document_id"`

	// SourceFile is the name of the processed input file, when known.
	SourceFile string `json:"source_file,omitempty"`

	// Method is the overall extraction method: pattern, fallback or hybrid.
	Method ExtractionMethod `json:"extraction_method"`

	// MergeStrategy is the reconciliation strategy that produced the text.
	MergeStrategy string `json:"merge_strategy,omitempty"`

	// Confidence is the aggregate OCR confidence of the reconciled document.
	Confidence float64 `json:"confidence_score"`

	// Engines lists the OCR engines that contributed observations, in
	// trust order.
	Engines []string `json:"engines,omitempty"`

	// SchemaVersion is the identifier of the schema the record was
	// validated against.
	SchemaVersion string `json:"schema_version"`

	// ProcessedAt is when validation completed.
	ProcessedAt time.Time `json:"processed_at"`
}

// InvoiceRecord is the finalized output of the pipeline: one normalized
// value per schema-declared field plus processing metadata. The key set of
// Fields always equals the schema's declared property set; required fields
// that could not be determined hold the "unknown" sentinel.
type InvoiceRecord struct {
	// Fields maps schema field names to normalized values. Scalar fields
	// hold string or float64 depending on the schema's declared type;
	// line_items holds []LineItem.
	Fields map[string]any `json:"fields"`

	// Metadata describes how the record was produced.
	Metadata RecordMetadata `json:"metadata"`
}

// Field returns the value for name, or nil when absent.
func (r *InvoiceRecord) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// StringField returns the value for name when it is a string.
func (r *InvoiceRecord) StringField(name string) (string, bool) {
	s, ok := r.Field(name).(string)
	return s, ok
}

// ValidationIssue is one problem found while validating a record.
type ValidationIssue struct {
	// Path locates the offending field, e.g. "vat_rate" or "line_items.2".
	Path string `json:"path"`

	// Message describes the problem.
	Message string `json:"message"`
}

// ValidationReport is the outcome of validating one InvoiceRecord. It is
// produced once by the validator and never mutated afterward.
type ValidationReport struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`

	// Passed is true iff no errors were recorded. Warnings do not block.
	Passed bool `json:"passed"`
}

// AddError appends an error entry. Used only during report construction.
func (v *ValidationReport) AddError(path, message string) {
	v.Errors = append(v.Errors, ValidationIssue{Path: path, Message: message})
}

// AddWarning appends a warning entry. Used only during report construction.
func (v *ValidationReport) AddWarning(path, message string) {
	v.Warnings = append(v.Warnings, ValidationIssue{Path: path, Message: message})
}

// Finalize sets Passed from the recorded errors and returns the report.
func (v *ValidationReport) Finalize() *ValidationReport {
	v.Passed = len(v.Errors) == 0
	return v
}

// UnknownSentinel is the documented placeholder stored for required fields
// that could not be determined, so the output key set is always complete.
const UnknownSentinel = "unknown"
