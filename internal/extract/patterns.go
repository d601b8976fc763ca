package extract

import "regexp"

// Per-rule local confidences. An anchored match near its label is a far
// stronger signal than a bare format match or a positional guess.
const (
	confAnchored   = 0.9
	confBare       = 0.7
	confPositional = 0.5
)

// Shared value patterns for Spanish invoices. Money uses dot or space
// thousands separators and a comma decimal; dates are day-first with slash
// or dash separators.
var (
	reDate       = regexp.MustCompile(`(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	reMoney      = regexp.MustCompile(`(\d{1,3}(?:[.\s]\d{3})*(?:,\d{1,2})?)\s*(?:€|EUR)?`)
	reMoneyCents = regexp.MustCompile(`(\d{1,3}(?:[.\s]\d{3})*,\d{2})`)
	reMoneyCur   = regexp.MustCompile(`(\d{1,3}(?:[.\s]\d{3})*(?:,\d{1,2})?)\s*(?:€|EUR)`)
	rePercent    = regexp.MustCompile(`(\d{1,2}(?:,\d{1,2})?\s*%)`)
	reTaxID      = regexp.MustCompile(`([A-Z0-9]\d{7}[A-Z0-9])`)
	reIdent      = regexp.MustCompile(`\s*:?\s*([A-Za-z0-9][A-Za-z0-9\-/]+)`)
	reName       = regexp.MustCompile(`\s*:?\s*([A-ZÁÉÍÓÚÑ][A-Za-z0-9ÁÉÍÓÚÑáéíóúñ][\w ÁÉÍÓÚÑáéíóúñ.,&-]{1,58})`)
	reIBAN       = regexp.MustCompile(`([A-Z]{2}\d{2}(?:[ ]?[A-Z0-9]{4}){3,7}(?:[ ]?[A-Z0-9]{1,3})?)`)
	reSWIFT      = regexp.MustCompile(`([A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?)`)
	reFreeLine   = regexp.MustCompile(`\s*:?\s*([^\n]{3,80})`)
	reCurrency   = regexp.MustCompile(`(€|EUR|USD|\$|GBP|£)`)
	reInvType    = regexp.MustCompile(`(?i)\b(factura\s+simplificada|factura\s+rectificativa|factura)\b`)
)

// fieldRules maps every extractable schema field to its ordered rule list.
// Anchors follow the label vocabulary of Spanish invoices (Factura Nº,
// Fecha, Base imponible, IVA, NIF/CIF, forma de pago...). line_items is
// handled separately by the table parser.
func fieldRules() map[string][]rule {
	return map[string][]rule{
		"invoice_number": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:n[ºo°]\s*(?:de\s+)?factura|n[úu]mero\s+de\s+factura|n[úu]m\.?\s*factura|factura\s+n[ºo°]?\.?|invoice\s+(?:number|no))`),
				value:  reIdent},
			{kind: ruleAnchored, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)\b(?:factura|fact\.?|fra\.?)\b`),
				value:  regexp.MustCompile(`\s*:?\s*([A-Za-z]{0,4}[0-9][A-Za-z0-9\-/]+)`)},
		},
		"issue_date": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)fecha(?:\s+de)?(?:\s+(?:factura|emisi[óo]n|expedici[óo]n))?`),
				value:  reDate},
			{kind: ruleBare, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)(?:fecha|emitido)`),
				value:  reDate},
		},
		"vendor_name": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:emisor|proveedor|vendedor|expedidor)`),
				value:  reName},
			// Vendor names usually head the document.
			{kind: rulePositional, confidence: confPositional,
				value: regexp.MustCompile(`([A-ZÁÉÍÓÚÑ][A-Za-z0-9ÁÉÍÓÚÑáéíóúñ][\w ÁÉÍÓÚÑáéíóúñ.,&-]{3,58})`)},
		},
		"vendor_tax_id": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:n\.?i\.?f\.?|c\.?i\.?f\.?)\b`),
				value:  reTaxID},
			{kind: ruleBare, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)(?:nif|cif|fiscal)`),
				value:  reTaxID},
		},
		"buyer_name": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:cliente|destinatario|comprador|receptor|facturar\s+a)`),
				value:  reName},
		},
		"buyer_tax_id": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:cliente|destinatario|facturar\s+a)`),
				value:  reTaxID},
		},
		"total_amount": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:total\s+factura|importe\s+total|total\s+a\s+pagar|total)`),
				value:  reMoney},
			{kind: ruleBare, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)(?:total|a\s+pagar)`),
				value:  reMoneyCur},
		},
		"base_amount": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:base\s+imponible|importe\s+neto|subtotal)`),
				value:  reMoney},
		},
		"vat_rate": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:tipo\s+(?:de\s+)?)?(?:iva|i\.v\.a\.|impuesto)`),
				value:  rePercent},
			{kind: ruleBare, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)(?:iva|i\.v\.a\.|impuesto)`),
				value:  rePercent},
		},
		"vat_amount": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:cuota\s+(?:de\s+)?(?:iva|impuesto)|iva|i\.v\.a\.)`),
				value:  reMoneyCents},
		},
		"payment_method": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:forma|m[ée]todo|medio)\s+de\s+pago`),
				value:  regexp.MustCompile(`\s*:?\s*([A-Za-zÁÉÍÓÚÑáéíóúñ]+(?:\s+[A-Za-zÁÉÍÓÚÑáéíóúñ]+)?)`)},
		},
		"payment_terms": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:condiciones\s+de\s+pago|vencimiento)`),
				value:  reFreeLine},
		},
		"iban": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)\biban\b`),
				value:  reIBAN},
			{kind: ruleBare, confidence: confBare,
				value: regexp.MustCompile(`(ES\d{2}(?:[ ]?\d{4}){5})`)},
		},
		"swift": {
			{kind: ruleAnchored, confidence: confAnchored,
				anchor: regexp.MustCompile(`(?i)(?:swift|bic)\b`),
				value:  reSWIFT},
		},
		"currency": {
			{kind: ruleBare, confidence: confBare,
				anchor: regexp.MustCompile(`(?i)(?:total|importe)`),
				value:  reCurrency},
		},
		"invoice_type": {
			{kind: ruleBare, confidence: confBare,
				value: reInvType},
		},
	}
}
