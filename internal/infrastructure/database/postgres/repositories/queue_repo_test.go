package repositories

import (
	"database/sql"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

var entryCols = []string{
	"id", "client_id", "filing_type", "template_id", "step_number", "deadline_date", "send_date",
	"resolved_subject", "resolved_body", "status", "sent_at", "last_error", "created_at", "updated_at",
}

func (s *StoreTestSuite) TestQueueInsert_CreatedAndConflict() {
	now := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)
	e := reminder.NewEntry("acme", filing.CT600Filing, "tpl-1", 1,
		calendar.MustParseDate("2027-01-31"), calendar.MustParseDate("2027-01-24"), "Subject", "Body", now)

	s.mock.ExpectExec("INSERT INTO reminder_queue .+ ON CONFLICT \\(client_id, filing_type, deadline_date, step_number\\) DO NOTHING").
		WithArgs(e.ID, "acme", "ct600_filing", "tpl-1", 1, "2027-01-31", "2027-01-24",
			"Subject", "Body", "scheduled", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := s.store.Queue().Insert(s.ctx, e)
	s.NoError(err)
	s.True(created)

	s.mock.ExpectExec("INSERT INTO reminder_queue").
		WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = s.store.Queue().Insert(s.ctx, e)
	s.NoError(err)
	s.False(created)
}

func (s *StoreTestSuite) TestQueueList_BuildsFilter() {
	today := calendar.MustParseDate("2026-10-18")
	now := time.Now()
	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue WHERE status = ANY\\(\\$1::text\\[\\]\\) AND send_date <= \\$2 ORDER BY client_id, filing_type, deadline_date, step_number LIMIT \\$3").
		WithArgs(pq.Array([]string{"scheduled"}), "2026-10-18", 50).
		WillReturnRows(sqlmock.NewRows(entryCols).AddRow(
			"e1", "acme", "vat_return", "tpl-v", 2,
			time.Date(2026, 11, 7, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
			"s", "b", "scheduled", nil, "", now, now,
		))

	out, err := s.store.Queue().List(s.ctx, reminder.EntryFilter{
		Statuses:       []reminder.Status{reminder.StatusScheduled},
		SendOnOrBefore: &today,
		Limit:          50,
	})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(filing.VATReturn, out[0].FilingType)
	s.Equal("2026-11-07", calendar.Key(out[0].DeadlineDate))
	s.Nil(out[0].SentAt)
}

func (s *StoreTestSuite) TestQueueList_DueFilter() {
	today := calendar.MustParseDate("2026-10-18")
	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue WHERE status = ANY\\(\\$1::text\\[\\]\\) AND send_date <= \\$2 AND deadline_date >= \\$3 " +
		"AND client_id IN \\(SELECT id FROM clients WHERE NOT paused\\) ORDER BY send_date, client_id, filing_type, deadline_date, step_number LIMIT \\$4").
		WithArgs(pq.Array([]string{"scheduled", "rescheduled"}), "2026-10-18", "2026-10-18", 500).
		WillReturnRows(sqlmock.NewRows(entryCols))

	out, err := s.store.Queue().List(s.ctx, reminder.EntryFilter{
		Statuses:          []reminder.Status{reminder.StatusScheduled, reminder.StatusRescheduled},
		SendOnOrBefore:    &today,
		DeadlineOnOrAfter: &today,
		ExcludePaused:     true,
		BySendDate:        true,
		Limit:             500,
	})
	s.NoError(err)
	s.Empty(out)
}

func (s *StoreTestSuite) TestQueueList_DeadlineOn() {
	deadline := calendar.MustParseDate("2026-10-31")
	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue WHERE client_id = \\$1 AND filing_type = \\$2 AND status = ANY\\(\\$3::text\\[\\]\\) AND deadline_date = \\$4 ORDER BY client_id").
		WithArgs("acme", "companies_house", pq.Array([]string{"records_received"}), "2026-10-31").
		WillReturnRows(sqlmock.NewRows(entryCols))

	_, err := s.store.Queue().List(s.ctx, reminder.EntryFilter{
		ClientID:   "acme",
		FilingType: filing.CompaniesHouseAccounts,
		Statuses:   []reminder.Status{reminder.StatusRecordsReceived},
		DeadlineOn: &deadline,
	})
	s.NoError(err)
}

func (s *StoreTestSuite) TestQueueList_NoFilter() {
	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue ORDER BY").
		WillReturnRows(sqlmock.NewRows(entryCols))
	out, err := s.store.Queue().List(s.ctx, reminder.EntryFilter{})
	s.NoError(err)
	s.Empty(out)
}

func (s *StoreTestSuite) TestQueueGet() {
	sent := time.Now()
	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue WHERE id = \\$1").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(entryCols).AddRow(
			"e1", "acme", "companies_house", "", 1,
			time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			"s", "b", "sent", sent, "", sent, sent,
		))
	e, err := s.store.Queue().Get(s.ctx, "e1")
	s.Require().NoError(err)
	s.Equal(reminder.StatusSent, e.Status)
	s.NotNil(e.SentAt)

	s.mock.ExpectQuery("SELECT .+ FROM reminder_queue WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = s.store.Queue().Get(s.ctx, "missing")
	s.True(errors.IsNotFound(err))
}

func (s *StoreTestSuite) TestQueueDeleteAndTransition() {
	n, err := s.store.Queue().DeleteByIDs(s.ctx, nil)
	s.NoError(err)
	s.Zero(n)

	s.mock.ExpectExec("DELETE FROM reminder_queue WHERE id = ANY").
		WithArgs(pq.Array([]string{"a", "b"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = s.store.Queue().DeleteByIDs(s.ctx, []string{"a", "b"})
	s.NoError(err)
	s.Equal(2, n)

	s.mock.ExpectExec("UPDATE reminder_queue SET status = \\$4").
		WithArgs("acme", "vat_return", "scheduled", "records_received").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err = s.store.Queue().TransitionAll(s.ctx, "acme", filing.VATReturn, reminder.StatusScheduled, reminder.StatusRecordsReceived)
	s.NoError(err)
	s.Equal(3, n)
}

func (s *StoreTestSuite) TestQueueUpdateStatus() {
	from := []reminder.Status{reminder.StatusPending}

	s.mock.ExpectExec("UPDATE reminder_queue SET").
		WithArgs("e1", "sent", "", pq.Array([]string{"pending"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := s.store.Queue().UpdateStatus(s.ctx, "e1", from, reminder.StatusSent, "")
	s.NoError(err)
	s.True(ok)

	s.mock.ExpectExec("UPDATE reminder_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err = s.store.Queue().UpdateStatus(s.ctx, "e2", from, reminder.StatusSent, "")
	s.NoError(err)
	s.False(ok)

	s.mock.ExpectExec("UPDATE reminder_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err = s.store.Queue().UpdateStatus(s.ctx, "ghost", from, reminder.StatusFailed, "smtp 550")
	s.True(errors.IsCode(err, errors.ErrCodeQueueEntryNotFound))
}
