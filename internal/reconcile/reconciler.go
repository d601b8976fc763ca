// Package reconcile merges ranked sets of OCR observations into a single
// reconciled document. Merging is a pure function of its inputs: the same
// sets and strategy always produce byte-identical output, with ties broken
// in favor of the primary source.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"facturas/internal/ocr"
)

// Strategy selects how observation sets are merged.
type Strategy string

const (
	// StrategyWholeDocument selects the entire set with the higher mean
	// confidence.
	StrategyWholeDocument Strategy = "whole_document"

	// StrategyByLine selects the higher-confidence line per vertical
	// bucket.
	StrategyByLine Strategy = "by_line"

	// StrategyByToken replaces individual primary tokens with
	// higher-confidence spatial matches from a fallback set.
	StrategyByToken Strategy = "by_token"
)

// Reconciliation errors. Callers must pre-validate the strategy selector;
// ErrInvalidStrategy indicates a programming error, not bad input data.
var (
	ErrEmptyInput      = errors.New("no observations in primary or fallback sets")
	ErrInvalidStrategy = errors.New("unrecognized merge strategy")
)

// ParseStrategy validates a strategy selector string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyWholeDocument, StrategyByLine, StrategyByToken:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// ReconciledDocument is the single merged output of reconciliation: the
// surviving observations in reading order, their flattened text, and the
// aggregate confidence of the selection.
type ReconciledDocument struct {
	Observations ocr.ObservationSet
	Text         string
	Confidence   float64
}

// Options tune the spatial and textual matching used by by_line and
// by_token merging.
type Options struct {
	// LineTolerance is the vertical bucket size for by_line grouping, in
	// the coordinate units of the observations' boxes.
	LineTolerance float64

	// OverlapThreshold is the minimum box overlap ratio for two tokens to
	// be considered the same spatial region.
	OverlapThreshold float64

	// SimilarityThreshold is the minimum normalized text similarity for a
	// fallback token to be considered a match for a primary token.
	SimilarityThreshold float64
}

// DefaultOptions returns the matching thresholds used in production.
func DefaultOptions() Options {
	return Options{
		LineTolerance:       10,
		OverlapThreshold:    0.3,
		SimilarityThreshold: 0.6,
	}
}

// Reconciler merges a primary observation set with zero or more fallback
// sets ordered by trust.
type Reconciler struct {
	opts Options
}

// New creates a Reconciler with the given options.
func New(opts Options) *Reconciler {
	if opts.LineTolerance <= 0 {
		opts.LineTolerance = DefaultOptions().LineTolerance
	}
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = DefaultOptions().OverlapThreshold
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultOptions().SimilarityThreshold
	}
	return &Reconciler{opts: opts}
}

// Merge reconciles the primary set with the fallback sets using the given
// strategy. Fallback sets are folded in trust order: the result of merging
// the first fallback becomes the primary input for the second, and so on.
// Primary content is never silently dropped.
func (r *Reconciler) Merge(primary ocr.ObservationSet, fallbacks []ocr.ObservationSet, strategy Strategy) (*ReconciledDocument, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	current := rankObservations(primary, 0)
	rank := 1
	if len(current) == 0 {
		// Degrade to the first non-empty fallback set.
		for ; rank <= len(fallbacks); rank++ {
			if len(fallbacks[rank-1]) > 0 {
				current = rankObservations(fallbacks[rank-1], rank)
				rank++
				break
			}
		}
	}
	if len(current) == 0 {
		return nil, ErrEmptyInput
	}

	for ; rank <= len(fallbacks); rank++ {
		fb := rankObservations(fallbacks[rank-1], rank)
		if len(fb) == 0 {
			continue
		}
		current = r.mergeOnce(current, fb, strategy)
	}

	doc := &ReconciledDocument{
		Observations: current,
		Text:         current.FlattenLines(r.opts.LineTolerance / 2),
		Confidence:   current.MeanConfidence(),
	}
	return doc, nil
}

func (r *Reconciler) mergeOnce(primary, fallback ocr.ObservationSet, strategy Strategy) ocr.ObservationSet {
	switch strategy {
	case StrategyWholeDocument:
		return r.mergeWholeDocument(primary, fallback)
	case StrategyByLine:
		return r.mergeByLine(primary, fallback)
	default:
		return r.mergeByToken(primary, fallback)
	}
}

// mergeWholeDocument selects the set with the higher mean confidence in its
// entirety. A tie keeps the primary set.
func (r *Reconciler) mergeWholeDocument(primary, fallback ocr.ObservationSet) ocr.ObservationSet {
	if primary.MeanConfidence() >= fallback.MeanConfidence() {
		return primary
	}
	return fallback
}

// lineKey buckets a token by page and vertical position. Tokens without
// boxes get a unique negative bucket so they always survive unmatched.
type lineKey struct {
	page   int
	bucket int
}

// mergeByLine partitions both sets into line buckets and keeps the
// higher-confidence line per bucket. Lines present in only one set are kept
// as-is; the merged output follows page then vertical order.
func (r *Reconciler) mergeByLine(primary, fallback ocr.ObservationSet) ocr.ObservationSet {
	primaryLines, primaryOrder := r.groupByLine(primary, false)
	fallbackLines, fallbackOrder := r.groupByLine(fallback, true)

	keys := make([]lineKey, 0, len(primaryOrder)+len(fallbackOrder))
	keys = append(keys, primaryOrder...)
	for _, k := range fallbackOrder {
		if _, ok := primaryLines[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].page != keys[j].page {
			return keys[i].page < keys[j].page
		}
		return keys[i].bucket < keys[j].bucket
	})

	var merged ocr.ObservationSet
	for _, key := range keys {
		pLine := primaryLines[key]
		fLine := fallbackLines[key]
		// The primary line wins on equal confidence.
		if len(pLine) > 0 && (len(fLine) == 0 || pLine.MeanConfidence() >= fLine.MeanConfidence()) {
			merged = append(merged, pLine...)
		} else {
			merged = append(merged, fLine...)
		}
	}
	return merged
}

func (r *Reconciler) groupByLine(set ocr.ObservationSet, fallback bool) (map[lineKey]ocr.ObservationSet, []lineKey) {
	lines := make(map[lineKey]ocr.ObservationSet)
	var order []lineKey
	for i, obs := range set {
		var key lineKey
		if obs.Box != nil {
			key = lineKey{page: obs.Page, bucket: int(obs.Box.CenterY() / r.opts.LineTolerance)}
		} else {
			// Unbucketable tokens must never collide across sets.
			bucket := -(i + 1)
			if fallback {
				bucket -= len(set)
			}
			key = lineKey{page: obs.Page, bucket: bucket}
		}
		if _, ok := lines[key]; !ok {
			order = append(order, key)
		}
		lines[key] = append(lines[key], obs)
	}
	return lines, order
}

// mergeByToken walks the primary tokens in order and substitutes a fallback
// token only when it overlaps spatially, reads similarly, carries strictly
// higher confidence, and passes the garble sanity check. Fallback tokens
// that overlap no primary token at all are appended after the primary
// sequence in their original order.
func (r *Reconciler) mergeByToken(primary, fallback ocr.ObservationSet) ocr.ObservationSet {
	used := make(map[int]bool, len(fallback))
	merged := make(ocr.ObservationSet, 0, len(primary))

	for _, p := range primary {
		bestIdx := -1
		bestConf := -1.0
		if p.Box != nil {
			for i, f := range fallback {
				if used[i] || f.Box == nil || p.Page != f.Page {
					continue
				}
				if p.Box.OverlapRatio(*f.Box) < r.opts.OverlapThreshold {
					continue
				}
				if textSimilarity(p.Text, f.Text) < r.opts.SimilarityThreshold {
					continue
				}
				// Deterministic choice: highest confidence, earliest index
				// on ties.
				if f.Confidence > bestConf {
					bestIdx, bestConf = i, f.Confidence
				}
			}
		}

		if bestIdx >= 0 {
			candidate := fallback[bestIdx]
			used[bestIdx] = true
			// Higher confidence alone is not sufficient: a garbled
			// replacement for a numeric-looking token is rejected.
			if candidate.Confidence > p.Confidence && passesSanity(p.Text, candidate.Text) {
				merged = append(merged, candidate)
				continue
			}
		}
		merged = append(merged, p)
	}

	// Append fallback tokens with no spatially overlapping primary token,
	// preserving their original order. Tokens without boxes cannot be
	// proven distinct and are skipped to avoid duplication.
	for i, f := range fallback {
		if used[i] || f.Box == nil {
			continue
		}
		overlapsPrimary := false
		for _, p := range primary {
			if p.Box != nil && p.Page == f.Page && p.Box.OverlapRatio(*f.Box) > 0 {
				overlapsPrimary = true
				break
			}
		}
		if !overlapsPrimary {
			merged = append(merged, f)
		}
	}

	return merged
}

// rankObservations returns a copy of the set with SourceRank stamped.
// Inputs stay untouched; observations are immutable once produced.
func rankObservations(set ocr.ObservationSet, rank int) ocr.ObservationSet {
	if len(set) == 0 {
		return nil
	}
	out := make(ocr.ObservationSet, len(set))
	for i, obs := range set {
		obs.SourceRank = rank
		out[i] = obs
	}
	return out
}

// textSimilarity compares two tokens after folding case and the classic
// digit/letter OCR confusions, so "1OO,OO" still matches "100,00".
func textSimilarity(a, b string) float64 {
	return levenshtein.Similarity(foldGarble(a), foldGarble(b), nil)
}

var garbleFolder = strings.NewReplacer(
	"O", "0", "o", "0",
	"l", "1", "I", "1",
	"S", "5",
	"B", "8",
)

func foldGarble(s string) string {
	return garbleFolder.Replace(strings.ToLower(s))
}

// passesSanity rejects a replacement that would introduce letters into a
// numeric-looking token. OCR garble such as "1OO,OO" must never displace a
// clean "100,00".
func passesSanity(primaryText, candidateText string) bool {
	if !numericLooking(primaryText) {
		return true
	}
	return numericLooking(candidateText)
}

// numericLooking reports whether the token is digits plus numeric
// punctuation (separators, currency marks) with no letters.
func numericLooking(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			return false
		}
	}
	return hasDigit
}
