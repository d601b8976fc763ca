package extract

import (
	"regexp"
	"strings"

	"facturas/pkg/models"
)

// The items table is bounded by a header row above (Descripción/Concepto...
// Cantidad... Precio... Total) and a totals row below (Base imponible,
// Subtotal, Total...).
var (
	reTableHeader = regexp.MustCompile(`(?i)(?:descripci[óo]n|concepto|art[íi]culo|producto|servicio)[^\n]*(?:cantidad|cant\.?|uds?\.?|qty)[^\n]*(?:precio|importe|p\.?u\.?)[^\n]*(?:total|importe)[^\n]*\n`)
	reTableFooter = regexp.MustCompile(`(?i)^\s*(?:base\s+imponible|subtotal|suma|total|iva|i\.v\.a\.)`)

	// One row: description, quantity, unit price, line total. Quantity
	// accepts a comma fraction; money columns accept thousands separators
	// and an optional euro mark.
	reItemRow = regexp.MustCompile(`^(.{3,60}?)\s+(\d+(?:,\d+)?)\s+(\d{1,3}(?:[.\s]\d{3})*(?:,\d{1,2})?)\s*€?\s+(\d{1,3}(?:[.\s]\d{3})*(?:,\d{1,2})?)\s*€?\s*$`)
)

// extractLineItems locates the items table and parses each row into its
// four columns. A row that does not parse into all four is dropped whole,
// never emitted partially, so malformed rows cannot corrupt downstream
// arithmetic checks.
func extractLineItems(text string) []models.LineItem {
	headerLoc := reTableHeader.FindStringIndex(text)
	if headerLoc == nil {
		return nil
	}

	var items []models.LineItem
	for _, line := range strings.Split(text[headerLoc[1]:], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if reTableFooter.MatchString(line) {
			break
		}

		m := reItemRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		items = append(items, models.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    m[2],
			UnitPrice:   m[3],
			LineTotal:   m[4],
		})
	}
	return items
}
