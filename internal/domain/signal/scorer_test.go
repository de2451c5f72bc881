package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

func TestScore_VATWithStatusPhrase(t *testing.T) {
	s := NewScorer()
	got := s.Score("Please find attached our VAT return records for the quarter.")

	require.NotEmpty(t, got)
	top := got[0]
	assert.Equal(t, filing.VATReturn, top.FilingType)
	assert.InDelta(t, 0.8785, top.Confidence, 0.0001)
	assert.Contains(t, top.Matched, "vat return")
	assert.Contains(t, top.Matched, "please find attached")
	assert.False(t, top.Negated)
}

func TestScore_NegationDamps(t *testing.T) {
	s := NewScorer()
	plain := s.Score("Here is my P60 and SA302")
	negated := s.Score("I have not got my P60 and SA302 yet, still waiting")

	require.Len(t, plain, 1)
	require.Len(t, negated, 1)
	assert.Equal(t, filing.SelfAssessment, negated[0].FilingType)
	assert.True(t, negated[0].Negated)
	assert.Less(t, negated[0].Confidence, plain[0].Confidence)
	assert.InDelta(t, plain[0].Confidence*0.3, negated[0].Confidence, 0.001)
}

func TestScore_WordBoundaries(t *testing.T) {
	s := NewScorer()
	// "vat" inside "private" must not match.
	assert.Empty(t, s.Score("A private matter, nothing to do with tax."))
}

func TestScore_StatusAloneScoresNothing(t *testing.T) {
	assert.Empty(t, NewScorer().Score("Records attached, thanks!"))
	assert.Empty(t, NewScorer().Score(""))
}

func TestScore_OrderedByConfidence(t *testing.T) {
	got := NewScorer().Score("CT600 and corporation tax payment details")
	require.GreaterOrEqual(t, len(got), 2)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}
	for _, sc := range got {
		assert.GreaterOrEqual(t, sc.Confidence, 0.0)
		assert.LessOrEqual(t, sc.Confidence, 1.0)
	}
}

func TestScore_CustomRules(t *testing.T) {
	s := NewScorer(
		WithRules([]Rule{{FilingType: filing.CompaniesHouseAccounts, Keywords: []Keyword{{Term: "confirmation statement", Weight: 2}}}}),
		WithStatusPhrases(nil),
		WithNegations(nil, 1),
	)
	got := s.Score("Confirmation statement done")
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Confidence)
}
