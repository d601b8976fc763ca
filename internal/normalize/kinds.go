package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date inputs accept day/month/year with slash or dash separators and two-
// or four-digit years; ISO year-first input is also recognized so already-
// normalized values pass through.
func parseDate(raw string) (time.Time, error) {
	cleaned := strings.TrimSpace(raw)
	parts := regexp.MustCompile(`[/-]`).Split(cleaned, -1)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
		}
		nums[i] = n
	}

	var day, month, year int
	if len(parts[0]) == 4 {
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		day, month, year = nums[0], nums[1], nums[2]
		if year < 100 {
			year += 2000
		}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject silently-normalized impossible dates like 31/02.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("impossible date %q", raw)
	}
	return t, nil
}

var (
	reMoneyStrip = regexp.MustCompile(`[€$£\s]|EUR|USD|GBP`)
)

// parseMoney converts a Spanish-formatted amount ("1.234,56 €") to an exact
// decimal. Dot and space thousands separators are stripped; the comma is
// the decimal mark. A plain dot decimal ("1234.56") is accepted too.
func parseMoney(raw string) (decimal.Decimal, error) {
	s := reMoneyStrip.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", raw)
	}

	switch {
	case strings.Contains(s, ","):
		// Comma decimal: any dots are thousands separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		// Multiple dots with no comma: all thousands separators.
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, "."):
		// A single dot grouping exactly three digits is a thousands
		// separator; otherwise it is a decimal point.
		if idx := strings.Index(s, "."); len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", raw)
	}
	return d, nil
}

// formatMoney re-emits an amount in the canonical legacy form:
// dot-thousands, comma-decimal, euro suffix ("1.234,56 €").
func formatMoney(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, ".") + "," + fracPart + " €"
	if neg {
		out = "-" + out
	}
	return out
}

var rePercentValue = regexp.MustCompile(`^(\d{1,2}(?:,\d{1,2})?)\s*%?$`)

// normalizePercent keeps rates as labeled strings with a trailing percent
// sign, regardless of the schema's numeric preference.
func normalizePercent(raw string) (string, error) {
	m := rePercentValue.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", fmt.Errorf("unrecognized rate %q", raw)
	}
	return m[1] + "%", nil
}

// normalizeIdentifier uppercases and strips separators from tax IDs, IBANs
// and SWIFT codes.
func normalizeIdentifier(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "", "-", "", ".", "").Replace(s)
	return s
}

var diacriticFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
)

// canonicalEnum folds case and diacritics toward the spelling of the
// allowed set, and maps currency symbols to their ISO codes.
func canonicalEnum(raw string, allowed []string) (string, bool) {
	s := strings.TrimSpace(raw)
	switch s {
	case "€":
		s = "EUR"
	case "$":
		s = "USD"
	case "£":
		s = "GBP"
	}
	folded := strings.ToLower(diacriticFolder.Replace(s))
	folded = strings.Join(strings.Fields(folded), "_")
	for _, a := range allowed {
		if strings.ToLower(a) == folded {
			return a, true
		}
	}
	return s, false
}

var reCollapse = regexp.MustCompile(`\s+`)

// normalizeFreeText collapses whitespace and trims stray trailing
// punctuation left by anchored captures. Periods stay: Spanish company
// names end in abbreviations like "S.L." and "S.A.".
func normalizeFreeText(raw string) string {
	s := reCollapse.ReplaceAllString(strings.TrimSpace(raw), " ")
	return strings.TrimRight(s, " ,;:-")
}
