package genomics

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCContent(t *testing.T) {
	for _, n := range []int{1, 7, 100} {
		gc, err := GCContent(strings.Repeat("G", n))
		require.NoError(t, err)
		assert.Equal(t, 1.0, gc)
	}

	gc, err := GCContent("ATGC")
	require.NoError(t, err)
	assert.Equal(t, 0.5, gc)

	gc, err = GCContent("atat")
	require.NoError(t, err)
	assert.Equal(t, 0.0, gc)

	_, err = GCContent("")
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestAnalyzeReproducibleWithSeed(t *testing.T) {
	req := Request{TumorType: "Glioma", DNASequence: "ATATATATATATATATAT"}

	first := NewAnalyzer(7)
	second := NewAnalyzer(7)
	for i := 0; i < 20; i++ {
		a, err := first.Analyze(req)
		require.NoError(t, err)
		b, err := second.Analyze(req)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestAnalyzeMotifsAlwaysFlag(t *testing.T) {
	req := Request{TumorType: "glioma", DNASequence: "GATGATGGTCGTCGCGAAAA"}

	for seed := int64(1); seed <= 10; seed++ {
		result, err := NewAnalyzer(seed).Analyze(req)
		require.NoError(t, err)
		assert.True(t, result.MutationIndicators.TP53Mutation)
		assert.True(t, result.MutationIndicators.IDHMutation)
		assert.True(t, result.MutationIndicators.MGMTMethylated)
	}
}

func TestAnalyzeTreatments(t *testing.T) {
	result, err := NewAnalyzer(1).Analyze(Request{TumorType: " Meningioma ", DNASequence: "GGCCGGCCGGCC"})
	require.NoError(t, err)

	assert.Equal(t, "meningioma", result.TumorType)
	assert.Equal(t, 1.0, result.GCContent)
	require.Len(t, result.StandardTreatments, 2)
	assert.Equal(t, "Surgery", result.StandardTreatments[0].Name)
	assert.True(t, result.MutationIndicators.MGMTMethylated)
	assert.Contains(t, result.PersonalizedTreatments,
		Treatment{Name: "Temozolomide", Mechanism: "DNA alkylating agent", Reason: "MGMT methylation detected"})

	unknown, err := NewAnalyzer(1).Analyze(Request{TumorType: "No Tumor", DNASequence: "ATATATATATAT"})
	require.NoError(t, err)
	assert.Empty(t, unknown.StandardTreatments)
	assert.NotNil(t, unknown.StandardTreatments)
}

func TestAnalyzeShortSequenceAlerts(t *testing.T) {
	result, err := NewAnalyzer(1).Analyze(Request{TumorType: "glioma", DNASequence: "GATC"})
	require.NoError(t, err)
	assert.Nil(t, result.Analysis)
	assert.Contains(t, result.Alert, "too short")

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alert": "`+result.Alert+`"}`, string(raw))
}

func TestAnalyzeEmptySequence(t *testing.T) {
	_, err := NewAnalyzer(1).Analyze(Request{TumorType: "glioma", DNASequence: "  \n "})
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestAnalyzeIgnoresWhitespace(t *testing.T) {
	result, err := NewAnalyzer(1).Analyze(Request{TumorType: "glioma", DNASequence: "GGGGG\nGGGGG"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.GCContent)
}
