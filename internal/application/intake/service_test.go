package intake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/signal"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/testutil"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

func newService(t *testing.T) (*testutil.MemStore, *Service) {
	t.Helper()
	store := testutil.NewMemStore()
	stagger := 1
	ye := calendar.MustParseDate("2026-03-31")
	store.AddClient(&filing.Client{ID: "vat", ClientType: filing.ClientLimitedCompany, YearEnd: &ye, VATRegistered: true, VATStaggerGroup: &stagger})
	store.AddClient(&filing.Client{ID: "novat", ClientType: filing.ClientLimitedCompany, YearEnd: &ye})

	clock := calendar.FixedClock{T: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	locker := scheduling.NewKeyedMutex()
	logger := testutil.NewMockLogger()
	builder := scheduling.NewQueueBuilder(store, locker, scheduling.BuilderConfig{}, logger, scheduling.WithClock(clock))
	records := scheduling.NewRecordsService(store, locker, builder, clock, logger)
	return store, NewService(signal.NewScorer(), store, records, 0.6, logger)
}

func TestApply_MarksConfidentAssignedTypes(t *testing.T) {
	store, svc := newService(t)
	ctx := context.Background()

	res, err := svc.Apply(ctx, "vat", "Hi, please find attached our VAT return for the quarter.")
	require.NoError(t, err)
	require.NotEmpty(t, res.Scores)
	assert.Equal(t, filing.VATReturn, res.Scores[0].FilingType)
	assert.InDelta(t, 0.8785, res.Scores[0].Confidence, 0.0001)
	assert.Equal(t, []filing.FilingType{filing.VATReturn}, res.Applied)
	require.Len(t, res.Changes, 1)
	assert.True(t, res.Changes[0].Changed)

	c, err := store.Clients().Get(ctx, "vat")
	require.NoError(t, err)
	assert.Equal(t, []filing.FilingType{filing.VATReturn}, c.RecordsReceivedFor)
}

func TestApply_SkipsUnassignedTypes(t *testing.T) {
	store, svc := newService(t)

	res, err := svc.Apply(context.Background(), "novat", "Please find attached our VAT return.")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Scores)
	assert.Empty(t, res.Applied)

	c, _ := store.Clients().Get(context.Background(), "novat")
	assert.Empty(t, c.RecordsReceivedFor)
}

func TestApply_NegationKeepsBelowThreshold(t *testing.T) {
	_, svc := newService(t)

	res, err := svc.Apply(context.Background(), "vat", "We will send the VAT return next week.")
	require.NoError(t, err)
	require.NotEmpty(t, res.Scores)
	assert.True(t, res.Scores[0].Negated)
	assert.Empty(t, res.Applied)
}

func TestApply_EmptyTextIsNotAnError(t *testing.T) {
	_, svc := newService(t)

	res, err := svc.Apply(context.Background(), "vat", "   ")
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.Empty(t, res.Applied)
}

func TestPreview_DoesNotWrite(t *testing.T) {
	store, svc := newService(t)

	res, err := svc.Preview(context.Background(), "vat", "VAT return attached")
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []filing.FilingType{filing.VATReturn}, res.Applied)
	assert.Empty(t, res.Changes)

	c, _ := store.Clients().Get(context.Background(), "vat")
	assert.Empty(t, c.RecordsReceivedFor)
}

func TestApply_Validation(t *testing.T) {
	_, svc := newService(t)

	_, err := svc.Apply(context.Background(), "", "VAT return attached")
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Apply(context.Background(), "ghost", "VAT return attached")
	assert.True(t, errors.IsNotFound(err))

	assert.Equal(t, DefaultThreshold, NewService(signal.NewScorer(), nil, nil, 0, nil).Threshold())
}
