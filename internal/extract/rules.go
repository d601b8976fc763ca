package extract

import "regexp"

// ruleKind distinguishes the three heuristics a field rule can use.
type ruleKind int

const (
	// ruleAnchored searches for an anchor phrase, then applies the value
	// pattern inside a bounded window after it.
	ruleAnchored ruleKind = iota

	// ruleBare applies the value pattern across the whole text, preferring
	// the match closest to an anchor phrase when anchors exist.
	ruleBare

	// rulePositional applies the value pattern only to the earliest
	// headWindow characters of the text.
	rulePositional
)

// anchorWindow bounds how far past an anchor phrase the value pattern may
// match.
const anchorWindow = 120

// headWindow bounds positional rules to the top of the document.
const headWindow = 200

// rule is one extraction heuristic for a field. Rules are applied in
// priority order; the first one that yields a value wins.
type rule struct {
	kind ruleKind

	// anchor locates the label phrase for anchored rules and, for bare
	// rules, biases match selection toward the nearest anchor occurrence.
	anchor *regexp.Regexp

	// value captures the field value in group 1.
	value *regexp.Regexp

	// confidence is the local confidence a candidate from this rule
	// carries.
	confidence float64
}

// apply runs the rule against the flattened text. The boolean reports
// whether a value was found.
func (r rule) apply(text string) (string, bool) {
	switch r.kind {
	case ruleAnchored:
		return r.applyAnchored(text)
	case rulePositional:
		return r.applyPositional(text)
	default:
		return r.applyBare(text)
	}
}

func (r rule) applyAnchored(text string) (string, bool) {
	for _, loc := range r.anchor.FindAllStringIndex(text, -1) {
		end := loc[1] + anchorWindow
		if end > len(text) {
			end = len(text)
		}
		window := text[loc[1]:end]
		if m := r.value.FindStringSubmatch(window); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

func (r rule) applyBare(text string) (string, bool) {
	matches := r.value.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", false
	}

	// No anchor to bias toward: first match in reading order wins.
	if r.anchor == nil {
		return group1(text, matches[0]), true
	}

	anchors := r.anchor.FindAllStringIndex(text, -1)
	if len(anchors) == 0 {
		return group1(text, matches[0]), true
	}

	// Pick the match closest to any anchor occurrence. Ties keep the
	// earlier match.
	bestIdx := 0
	bestDist := -1
	for i, m := range matches {
		dist := anchorDistance(anchors, m[0])
		if bestDist < 0 || dist < bestDist {
			bestIdx, bestDist = i, dist
		}
	}
	return group1(text, matches[bestIdx]), true
}

func (r rule) applyPositional(text string) (string, bool) {
	end := headWindow
	if end > len(text) {
		end = len(text)
	}
	if m := r.value.FindStringSubmatch(text[:end]); m != nil && m[1] != "" {
		return m[1], true
	}
	return "", false
}

func group1(text string, match []int) string {
	if len(match) < 4 || match[2] < 0 {
		return ""
	}
	return text[match[2]:match[3]]
}

func anchorDistance(anchors [][]int, pos int) int {
	best := -1
	for _, a := range anchors {
		d := pos - a[1]
		if d < 0 {
			d = a[0] - pos
		}
		if d < 0 {
			d = 0
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}
