// Package schema loads the declarative invoice schema a pipeline validates
// against. Two versions ship embedded: v1 keeps the legacy day/month/year
// dates and comma-decimal money strings, v2 uses ISO dates and numeric
// money. A Provider is constructed once per pipeline and immutable for its
// lifetime.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrSchemaLoad is returned when a schema definition is unavailable or
// malformed. This is a setup-time condition; no document can be validated
// without a schema.
var ErrSchemaLoad = errors.New("schema definition unavailable or malformed")

// Provider exposes one compiled schema version: its required fields, field
// specs, and a full-document validator.
type Provider struct {
	version  string
	compiled *jsonschema.Schema
	specs    map[string]FieldSpec
	names    []string
	required []string
	patterns map[string]*regexp.Regexp
	numeric  bool
}

// rawSchema mirrors the parts of the schema JSON the provider reads itself;
// structural validation is delegated to the compiled jsonschema.
type rawSchema struct {
	Required   []string                   `json:"required"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type rawProperty struct {
	Type    string   `json:"type"`
	Pattern string   `json:"pattern"`
	Enum    []string `json:"enum"`
	Default string   `json:"default"`
	Kind    string   `json:"x-kind"`
}

// Load builds the Provider for the given schema version ("v1" or "v2").
func Load(version string) (*Provider, error) {
	path := fmt.Sprintf("schemas/invoice_%s.json", version)
	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown version %q", ErrSchemaLoad, version)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaLoad, err)
	}
	compiled, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaLoad, err)
	}

	var def rawSchema
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaLoad, err)
	}
	if len(def.Properties) == 0 {
		return nil, fmt.Errorf("%w: schema declares no properties", ErrSchemaLoad)
	}

	requiredSet := make(map[string]bool, len(def.Required))
	for _, name := range def.Required {
		requiredSet[name] = true
	}

	p := &Provider{
		version:  version,
		compiled: compiled,
		specs:    make(map[string]FieldSpec, len(def.Properties)),
		required: def.Required,
		patterns: make(map[string]*regexp.Regexp),
	}

	for name, rawProp := range def.Properties {
		var prop rawProperty
		if err := json.Unmarshal(rawProp, &prop); err != nil {
			return nil, fmt.Errorf("%w: property %q: %v", ErrSchemaLoad, name, err)
		}
		spec := FieldSpec{
			Name:     name,
			Kind:     parseKind(prop.Kind),
			Type:     prop.Type,
			Pattern:  prop.Pattern,
			Enum:     prop.Enum,
			Default:  prop.Default,
			Required: requiredSet[name],
		}
		if prop.Pattern != "" {
			re, err := regexp.Compile(prop.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: property %q pattern: %v", ErrSchemaLoad, name, err)
			}
			p.patterns[name] = re
		}
		if spec.Kind == KindMoney && prop.Type == "number" {
			p.numeric = true
		}
		p.specs[name] = spec
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)

	return p, nil
}

// Version returns the schema version identifier.
func (p *Provider) Version() string { return p.version }

// Required returns the names of required fields in declaration order.
func (p *Provider) Required() []string { return p.required }

// FieldNames returns every declared property name in deterministic order.
func (p *Provider) FieldNames() []string { return p.names }

// Spec returns the FieldSpec for name.
func (p *Provider) Spec(name string) (FieldSpec, bool) {
	spec, ok := p.specs[name]
	return spec, ok
}

// MoneyNumeric reports whether monetary fields are declared numeric in this
// schema version.
func (p *Provider) MoneyNumeric() bool { return p.numeric }

// DateOutputLayout returns the canonical date layout for this version.
func (p *Provider) DateOutputLayout() string {
	if p.version == "v1" {
		return "02/01/2006"
	}
	return "2006-01-02"
}

// MatchesFormat reports whether a raw string satisfies the field's declared
// format: its pattern when one exists, its enum membership for enum fields,
// and non-emptiness otherwise. Used both by validation and by the
// refinement merge policy.
func (p *Provider) MatchesFormat(name, value string) bool {
	spec, ok := p.specs[name]
	if !ok {
		return false
	}
	if re, ok := p.patterns[name]; ok {
		return re.MatchString(value)
	}
	if len(spec.Enum) > 0 {
		for _, allowed := range spec.Enum {
			if allowed == value {
				return true
			}
		}
		return false
	}
	return value != ""
}

// Validate runs the compiled schema against a finalized field map. The map
// must round-trip through JSON first so typed values (line items) validate
// structurally.
func (p *Provider) Validate(fields map[string]any) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return err
	}
	return p.compiled.Validate(doc)
}
