package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/internal/ocr"
	"facturas/internal/reconcile"
)

func token(text string, conf float64, x1, y1, x2, y2 float64) ocr.TextObservation {
	return ocr.TextObservation{
		Text:       text,
		Confidence: conf,
		Box:        &ocr.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func texts(set ocr.ObservationSet) []string {
	out := make([]string, len(set))
	for i, o := range set {
		out[i] = o.Text
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"whole_document", "by_line", "by_token"} {
		_, err := reconcile.ParseStrategy(valid)
		assert.NoError(t, err, valid)
	}

	_, err := reconcile.ParseStrategy("by_paragraph")
	assert.ErrorIs(t, err, reconcile.ErrInvalidStrategy)
}

func TestMerge_EmptyInputs(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	_, err := r.Merge(nil, nil, reconcile.StrategyByToken)
	assert.ErrorIs(t, err, reconcile.ErrEmptyInput)

	_, err = r.Merge(nil, []ocr.ObservationSet{{}, {}}, reconcile.StrategyByLine)
	assert.ErrorIs(t, err, reconcile.ErrEmptyInput)
}

func TestMerge_EmptyPrimaryDegradesToFallback(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	fallback := ocr.ObservationSet{token("Factura", 0.7, 0, 0, 40, 10)}
	doc, err := r.Merge(nil, []ocr.ObservationSet{nil, fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factura"}, texts(doc.Observations))
}

func TestMerge_WholeDocument(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{
		token("Factura", 0.6, 0, 0, 40, 10),
		token("A-100", 0.6, 50, 0, 80, 10),
	}
	fallback := ocr.ObservationSet{
		token("Factura", 0.9, 0, 0, 40, 10),
		token("A-100", 0.9, 50, 0, 80, 10),
	}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyWholeDocument)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, doc.Confidence, 1e-9, "higher mean confidence set wins entirely")

	// A tie keeps the primary set.
	tied := ocr.ObservationSet{
		token("Fartura", 0.6, 0, 0, 40, 10),
		token("A-100", 0.6, 50, 0, 80, 10),
	}
	doc, err = r.Merge(primary, []ocr.ObservationSet{tied}, reconcile.StrategyWholeDocument)
	require.NoError(t, err)
	assert.Equal(t, "Factura", doc.Observations[0].Text)
}

func TestMerge_ByLine(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{
		token("Factura", 0.9, 0, 0, 40, 8),
		token("Tutal:", 0.4, 0, 50, 30, 58),
	}
	fallback := ocr.ObservationSet{
		token("Fartura", 0.5, 0, 0, 40, 8),
		token("Total:", 0.8, 0, 50, 30, 58),
		token("IBAN", 0.7, 0, 100, 30, 108),
	}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByLine)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factura", "Total:", "IBAN"}, texts(doc.Observations))
}

func TestMerge_ByToken_ReplacesOnHigherConfidence(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{
		token("Factura", 0.9, 0, 0, 40, 10),
		token("1O0,00", 0.5, 50, 0, 90, 10),
	}
	fallback := ocr.ObservationSet{
		token("100,00", 0.9, 50, 0, 90, 10),
	}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factura", "100,00"}, texts(doc.Observations))
}

func TestMerge_ByToken_RejectsGarbledReplacement(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	// The fallback reads the amount with higher confidence but garbles the
	// digits into letters. The clean primary token must survive.
	primary := ocr.ObservationSet{
		token("100,00", 0.9, 50, 0, 90, 10),
	}
	fallback := ocr.ObservationSet{
		token("1OO,OO", 0.95, 50, 0, 90, 10),
	}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"100,00"}, texts(doc.Observations))
}

func TestMerge_ByToken_EqualConfidenceKeepsPrimary(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{token("Factura", 0.8, 0, 0, 40, 10)}
	fallback := ocr.ObservationSet{token("Fatura", 0.8, 0, 0, 40, 10)}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factura"}, texts(doc.Observations))
}

func TestMerge_ByToken_AppendsUnmatchedFallbackTokens(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{token("Factura", 0.9, 0, 0, 40, 10)}
	fallback := ocr.ObservationSet{
		token("Factura", 0.5, 0, 0, 40, 10),
		token("vencimiento", 0.8, 0, 200, 60, 210),
	}

	doc, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"Factura", "vencimiento"}, texts(doc.Observations),
		"fallback content with no primary counterpart must not be lost")
}

func TestMerge_Deterministic(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{
		token("Factura", 0.6, 0, 0, 40, 10),
		token("1O0,00", 0.5, 50, 0, 90, 10),
	}
	fallback := ocr.ObservationSet{
		token("Fartura", 0.9, 0, 0, 40, 10),
		token("100,00", 0.9, 50, 0, 90, 10),
	}

	for _, strategy := range []reconcile.Strategy{
		reconcile.StrategyWholeDocument,
		reconcile.StrategyByLine,
		reconcile.StrategyByToken,
	} {
		first, err := r.Merge(primary, []ocr.ObservationSet{fallback}, strategy)
		require.NoError(t, err)
		second, err := r.Merge(primary, []ocr.ObservationSet{fallback}, strategy)
		require.NoError(t, err)
		assert.Equal(t, first.Text, second.Text, strategy)
		assert.Equal(t, first.Observations, second.Observations, strategy)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	r := reconcile.New(reconcile.DefaultOptions())

	primary := ocr.ObservationSet{token("Factura", 0.6, 0, 0, 40, 10)}
	fallback := ocr.ObservationSet{token("Factura", 0.9, 0, 0, 40, 10)}

	_, err := r.Merge(primary, []ocr.ObservationSet{fallback}, reconcile.StrategyByToken)
	require.NoError(t, err)

	assert.Zero(t, primary[0].SourceRank)
	assert.Zero(t, fallback[0].SourceRank, "rank stamping must happen on copies")
}
