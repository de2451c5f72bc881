package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

func TestStatus_Classes(t *testing.T) {
	for _, s := range []Status{StatusScheduled, StatusRescheduled} {
		assert.True(t, s.IsMutable(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StatusPending.IsInFlight())
	assert.False(t, StatusPending.IsMutable())
	assert.False(t, StatusPending.IsTerminal())
	for _, s := range []Status{StatusSent, StatusCancelled, StatusFailed, StatusRecordsReceived} {
		assert.False(t, s.IsMutable(), s)
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, Status("bogus").IsValid())
	assert.False(t, Status("bogus").IsTerminal())
}

func TestEntry_KeyIgnoresTimeOfDay(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	e := NewEntry("c1", filing.VATReturn, "t1", 2, time.Date(2026, 11, 6, 15, 30, 0, 0, time.UTC), calendar.MustParseDate("2026-10-07"), "s", "b", now)

	assert.Equal(t, Key{ClientID: "c1", FilingType: filing.VATReturn, DeadlineDate: "2026-11-06", StepNumber: 2}, e.Key())
	assert.Equal(t, "c1/vat_return/2026-11-06/2", e.Key().String())
	assert.Equal(t, StatusScheduled, e.Status)
	assert.NotEmpty(t, e.ID)
}

func TestEntry_SameContent(t *testing.T) {
	now := time.Now()
	d := calendar.MustParseDate("2026-11-06")
	a := NewEntry("c1", filing.VATReturn, "t1", 1, d, calendar.AddDays(d, -30), "s", "b", now)
	b := NewEntry("c1", filing.VATReturn, "t1", 1, d, calendar.AddDays(d, -30), "s", "b", now)
	assert.True(t, a.SameContent(b))

	b.Body = "changed"
	assert.False(t, a.SameContent(b))
}

func TestEntry_Transition(t *testing.T) {
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	e := &Entry{ID: "e1", Status: StatusScheduled}

	require.NoError(t, e.Transition(StatusPending, now))
	require.NoError(t, e.Transition(StatusSent, now))
	require.NotNil(t, e.SentAt)

	err := e.Transition(StatusScheduled, now)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusScheduled, StatusRecordsReceived))
	assert.True(t, CanTransition(StatusFailed, StatusPending))
	assert.True(t, CanTransition(StatusSent, StatusSent))
	assert.False(t, CanTransition(StatusRecordsReceived, StatusScheduled))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
}
