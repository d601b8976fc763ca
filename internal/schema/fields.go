package schema

// FieldKind is the closed set of invoice field kinds. Every schema property
// declares its kind; normalization dispatches on it exhaustively instead of
// inspecting runtime types.
type FieldKind int

const (
	KindFreeText FieldKind = iota
	KindDate
	KindMoney
	KindPercentage
	KindIdentifier
	KindEnum
	KindArray
)

// String returns the schema annotation spelling of the kind.
func (k FieldKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindMoney:
		return "money"
	case KindPercentage:
		return "percentage"
	case KindIdentifier:
		return "identifier"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	default:
		return "free_text"
	}
}

// parseKind maps an x-kind annotation to a FieldKind. Unannotated or
// unrecognized properties are treated as free text.
func parseKind(s string) FieldKind {
	switch s {
	case "date":
		return KindDate
	case "money":
		return KindMoney
	case "percentage":
		return KindPercentage
	case "identifier":
		return KindIdentifier
	case "enum":
		return KindEnum
	case "array":
		return KindArray
	default:
		return KindFreeText
	}
}

// FieldSpec is the declarative definition of one invoice field.
type FieldSpec struct {
	// Name is the schema property name.
	Name string

	// Kind selects the normalization variant for the field.
	Kind FieldKind

	// Type is the JSON type the schema declares ("string" or "number").
	Type string

	// Pattern is the field's format pattern, compiled when present.
	Pattern string

	// Enum is the allowed value set for enum fields.
	Enum []string

	// Default is the fallback value for enum fields with a declared
	// default.
	Default string

	// Required marks fields that must be present in every record.
	Required bool
}

// HasDefault reports whether the field declares a default value.
func (f FieldSpec) HasDefault() bool { return f.Default != "" }
