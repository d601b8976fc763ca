// Package extract scans reconciled invoice text for field candidates using
// ordered per-field heuristics: anchored regexes around Spanish label
// phrases, bare format regexes biased toward the nearest anchor, and
// positional head-of-document rules. Fields are processed independently; a
// field whose rules all fail simply produces no candidate.
package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"facturas/internal/logger"
	"facturas/pkg/models"
)

// ErrMalformedDocument is returned only when the input text is empty.
// Unmatched fields never raise.
var ErrMalformedDocument = errors.New("document text is empty")

// Result is the outcome of one extraction pass: the single best candidate
// per field, plus the parsed line-item rows.
type Result struct {
	Candidates map[string]models.FieldCandidate
	LineItems  []models.LineItem
}

// Extractor applies the field rule lists to flattened document text.
type Extractor struct {
	fields []string
	rules  map[string][]rule
	log    zerolog.Logger
}

// New creates an Extractor for the given schema field names. Fields without
// a rule list (and line_items, which the table parser owns) are skipped.
func New(fields []string) *Extractor {
	return &Extractor{
		fields: fields,
		rules:  fieldRules(),
		log:    logger.WithComponent("extractor"),
	}
}

// Extract produces at most one FieldCandidate per requested field, plus the
// line-items array. Rules are tried in priority order and stop at the first
// success, so output is deterministic for a given text.
func (e *Extractor) Extract(text string) (*Result, error) {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil, ErrMalformedDocument
	}

	result := &Result{Candidates: make(map[string]models.FieldCandidate)}

	for _, field := range e.fields {
		rules, ok := e.rules[field]
		if !ok {
			continue
		}
		for _, r := range rules {
			value, found := r.apply(normalized)
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			result.Candidates[field] = models.FieldCandidate{
				FieldName:  field,
				RawValue:   value,
				Method:     models.MethodPattern,
				Confidence: r.confidence,
			}
			break
		}
	}

	result.LineItems = extractLineItems(normalized)

	e.log.Debug().
		Int("fields", len(result.Candidates)).
		Int("line_items", len(result.LineItems)).
		Msg("Pattern extraction completed")

	return result, nil
}

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{2,}`)
)

// normalizeText collapses horizontal whitespace and CR variants while
// preserving line breaks, which the table parser depends on.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
