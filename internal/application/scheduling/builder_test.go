package scheduling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func datePtr(s string) *time.Time {
	d := calendar.MustParseDate(s)
	return &d
}

func standardSteps() []template.Step {
	return []template.Step{
		{StepNumber: 1, DelayDays: 60, Subject: "{{filing_type}} coming up", Body: "Dear {{client_name}}, due {{deadline}}."},
		{StepNumber: 2, DelayDays: 30, Subject: "Follow-up", Body: "We notice we have not received your records."},
		{StepNumber: 3, DelayDays: 7, Subject: "Final reminder", Body: "{{days_until_deadline}} days left."},
	}
}

func seedTemplates(store *testutil.MemStore) {
	for _, d := range filing.All() {
		store.AddTemplate(&template.BaseTemplate{Name: d.DisplayName, FilingType: d.Type, Steps: standardSteps()})
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []reminder.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...reminder.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Topic())
	}
	return out
}

type staticHolidays calendar.HolidaySet

func (h staticHolidays) HolidaysOrWeekends(context.Context, string) calendar.HolidaySet {
	return calendar.HolidaySet(h)
}

// ─────────────────────────────────────────────────────────────────────────────
// Suite
// ─────────────────────────────────────────────────────────────────────────────

type BuilderSuite struct {
	suite.Suite
	store     *testutil.MemStore
	logger    *testutil.MockLogger
	publisher *recordingPublisher
	builder   QueueBuilder
	ctx       context.Context
}

func (s *BuilderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewMemStore()
	s.logger = testutil.NewMockLogger()
	s.publisher = &recordingPublisher{}
	seedTemplates(s.store)
	s.store.AddClient(&filing.Client{
		ID:          "acme",
		CompanyName: "Acme Ltd",
		ClientType:  filing.ClientLimitedCompany,
		YearEnd:     datePtr("2026-01-31"),
	})
	s.builder = NewQueueBuilder(s.store, NewKeyedMutex(), BuilderConfig{}, s.logger,
		WithClock(calendar.FixedClock{T: fixedNow}),
		WithPublisher(s.publisher))
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) entriesFor(ft filing.FilingType) []*reminder.Entry {
	var out []*reminder.Entry
	for _, e := range s.store.Entries() {
		if e.FilingType == ft {
			out = append(out, e)
		}
	}
	return out
}

func (s *BuilderSuite) TestBuildClient_CreatesEveryStep() {
	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(9, res.Created)
	s.Equal(0, res.Retired)

	ct := s.entriesFor(filing.CorporationTaxPayment)
	s.Require().Len(ct, 3)
	s.Equal("2026-11-01", calendar.Key(ct[0].DeadlineDate))
	// Send dates in the past are still created.
	s.Equal("2026-09-02", calendar.Key(ct[0].SendDate))
	s.Equal("2026-10-02", calendar.Key(ct[1].SendDate))
	s.Equal("2026-10-25", calendar.Key(ct[2].SendDate))
	s.Equal("Corporation Tax Payment coming up", ct[0].Subject)
	s.Equal("Dear Acme Ltd, due 1 November 2026.", ct[0].Body)
	s.Equal("7 days left.", ct[2].Body)
	for _, e := range ct {
		s.Equal(reminder.StatusScheduled, e.Status)
	}

	s.Equal("2027-01-31", calendar.Key(s.entriesFor(filing.CT600Filing)[0].DeadlineDate))
	s.Equal("2026-10-31", calendar.Key(s.entriesFor(filing.CompaniesHouseAccounts)[0].DeadlineDate))
	s.Equal([]string{reminder.TopicQueueRebuilt}, s.publisher.Topics())
}

func (s *BuilderSuite) TestBuildClient_SecondRunCreatesNothing() {
	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	before := s.store.Entries()

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(0, res.Created)
	s.Equal(0, res.Retired)
	s.Equal(9, res.Kept)

	after := s.store.Entries()
	s.Require().Len(after, len(before))
	for i := range before {
		s.Equal(before[i].ID, after[i].ID)
	}
	// No event for a no-op rebuild.
	s.Len(s.publisher.Topics(), 1)
}

func (s *BuilderSuite) TestBuildClient_OverrideMovesCycle() {
	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeadlineOverrides().Upsert(s.ctx, filing.DeadlineOverride{
		ClientID: "acme", FilingType: filing.CT600Filing, Date: calendar.MustParseDate("2027-02-28"), Reason: "agreed extension",
	}))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(3, res.Created)
	s.Equal(3, res.Retired)

	for _, e := range s.entriesFor(filing.CT600Filing) {
		s.Equal("2027-02-28", calendar.Key(e.DeadlineDate))
	}
}

func (s *BuilderSuite) TestBuildClient_TerminalEntriesNeverResurrected() {
	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)

	ct := s.entriesFor(filing.CorporationTaxPayment)
	_, err = s.store.Queue().UpdateStatus(s.ctx, ct[0].ID, nil, reminder.StatusSent, "")
	s.Require().NoError(err)
	_, err = s.store.Queue().UpdateStatus(s.ctx, ct[1].ID, nil, reminder.StatusCancelled, "")
	s.Require().NoError(err)

	// A template edit changes content; terminal entries keep theirs.
	tpl, err := s.store.Templates().GetByFilingType(s.ctx, filing.CorporationTaxPayment)
	s.Require().NoError(err)
	tpl.Steps[0].Subject = "Edited"
	tpl.Steps[1].Subject = "Edited"
	tpl.Steps[2].Subject = "Edited"
	s.Require().NoError(s.store.Templates().Save(s.ctx, tpl))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(1, res.Created)
	s.Equal(1, res.Retired)

	after := s.entriesFor(filing.CorporationTaxPayment)
	s.Require().Len(after, 3)
	s.Equal(reminder.StatusSent, after[0].Status)
	s.Equal("Corporation Tax Payment coming up", after[0].Subject)
	s.Equal(reminder.StatusCancelled, after[1].Status)
	s.Equal("Edited", after[2].Subject)
}

func (s *BuilderSuite) dueEvents(pub *recordingPublisher, ft filing.FilingType, step int) []*reminder.DueEvent {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	var out []*reminder.DueEvent
	for _, ev := range pub.events {
		if due, ok := ev.(*reminder.DueEvent); ok && due.FilingType == ft && due.StepNumber == step {
			out = append(out, due)
		}
	}
	return out
}

func (s *BuilderSuite) TestBuildClient_PendingSurvivesTemplateEdit() {
	pub := &recordingPublisher{}
	d := NewDispatcher(s.store, pub, nil, calendar.FixedClock{T: fixedNow}, s.logger, 0)

	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	_, err = d.PromoteDue(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(s.dueEvents(pub, filing.CorporationTaxPayment, 1), 1)
	pendingID := s.entriesFor(filing.CorporationTaxPayment)[0].ID

	tpl, err := s.store.Templates().GetByFilingType(s.ctx, filing.CorporationTaxPayment)
	s.Require().NoError(err)
	tpl.Steps[0].Subject = "v2"
	s.Require().NoError(s.store.Templates().Save(s.ctx, tpl))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(0, res.Created)
	s.Equal(0, res.Retired)

	_, err = d.PromoteDue(s.ctx)
	s.Require().NoError(err)

	due := s.dueEvents(pub, filing.CorporationTaxPayment, 1)
	s.Require().Len(due, 1)
	s.Equal(pendingID, due[0].EntryID)

	got, err := s.store.Queue().Get(s.ctx, pendingID)
	s.Require().NoError(err)
	s.Equal(reminder.StatusPending, got.Status)
	s.Equal("Corporation Tax Payment coming up", got.Subject)
}

func (s *BuilderSuite) TestBuildClient_DroppedPendingIsCancelled() {
	d := NewDispatcher(s.store, &recordingPublisher{}, nil, calendar.FixedClock{T: fixedNow}, s.logger, 0)

	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	_, err = d.PromoteDue(s.ctx)
	s.Require().NoError(err)
	pendingID := s.entriesFor(filing.CorporationTaxPayment)[0].ID

	s.Require().NoError(s.store.DeadlineOverrides().Upsert(s.ctx, filing.DeadlineOverride{
		ClientID: "acme", FilingType: filing.CorporationTaxPayment, Date: calendar.MustParseDate("2027-02-01"), Reason: "agreed extension",
	}))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(3, res.Created)
	// Two pending entries cancelled, one scheduled entry deleted.
	s.Equal(3, res.Retired)

	got, err := s.store.Queue().Get(s.ctx, pendingID)
	s.Require().NoError(err)
	s.Equal(reminder.StatusCancelled, got.Status)
	s.Equal("obligation no longer scheduled", got.LastError)
}

func (s *BuilderSuite) TestBuildClient_StepOverridesApplied() {
	tpl, err := s.store.Templates().GetByFilingType(s.ctx, filing.CT600Filing)
	s.Require().NoError(err)
	days := 21
	body := "Custom body"
	s.Require().NoError(s.store.Templates().UpsertStepOverride(s.ctx, template.StepOverride{
		ClientID: "acme", TemplateID: tpl.ID, StepIndex: 1, DelayDays: &days, Body: &body,
	}))

	_, err = s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)

	ct600 := s.entriesFor(filing.CT600Filing)
	s.Require().Len(ct600, 3)
	s.Equal("2027-01-10", calendar.Key(ct600[1].SendDate))
	s.Equal("Follow-up", ct600[1].Subject)
	s.Equal("Custom body", ct600[1].Body)
}

func (s *BuilderSuite) TestBuildClient_SkipsPastAndMissing() {
	s.store.AddClient(&filing.Client{ID: "late", CompanyName: "Late Ltd", ClientType: filing.ClientLimitedCompany, YearEnd: datePtr("2025-01-31")})
	s.store.AddClient(&filing.Client{ID: "noye", CompanyName: "No YE Ltd", ClientType: filing.ClientLimitedCompany})

	res, err := s.builder.BuildClient(s.ctx, "late")
	s.Require().NoError(err)
	s.Equal(0, res.Created)
	s.Len(res.Skipped, 3)
	for _, sk := range res.Skipped {
		s.Equal(SkipPastDeadline, sk.Reason)
	}

	res, err = s.builder.BuildClient(s.ctx, "noye")
	s.Require().NoError(err)
	s.Equal(0, res.Created)
	for _, sk := range res.Skipped {
		s.Equal(SkipNoDeadline, sk.Reason)
	}
}

func (s *BuilderSuite) TestBuildClient_RecordsReceivedAndCompletedSkipped() {
	c, err := s.store.Clients().Get(s.ctx, "acme")
	s.Require().NoError(err)
	c.MarkRecordsReceived(filing.CorporationTaxPayment)
	c.MarkCompleted(filing.CompaniesHouseAccounts)
	s.Require().NoError(s.store.Clients().Save(s.ctx, c))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(3, res.Created)
	s.ElementsMatch([]SkippedObligation{
		{FilingType: filing.CorporationTaxPayment, Reason: SkipRecordsReceived},
		{FilingType: filing.CompaniesHouseAccounts, Reason: SkipCompleted},
	}, res.Skipped)
}

func (s *BuilderSuite) TestBuildClient_CutoffKeepsDeadlineDay() {
	tpl, err := s.store.Templates().GetByFilingType(s.ctx, filing.CompaniesHouseAccounts)
	s.Require().NoError(err)
	tpl.Steps = []template.Step{{StepNumber: 1, DelayDays: 0, Subject: "Due today", Body: "Today"}}
	s.Require().NoError(s.store.Templates().Save(s.ctx, tpl))

	_, err = s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)

	ch := s.entriesFor(filing.CompaniesHouseAccounts)
	s.Require().Len(ch, 1)
	s.Equal(calendar.Key(ch[0].DeadlineDate), calendar.Key(ch[0].SendDate))
}

func (s *BuilderSuite) TestBuildClient_PausedLeavesQueue() {
	_, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	c, _ := s.store.Clients().Get(s.ctx, "acme")
	c.Paused = true
	s.Require().NoError(s.store.Clients().Save(s.ctx, c))

	res, err := s.builder.BuildClient(s.ctx, "acme")
	s.Require().NoError(err)
	s.True(res.Paused)
	s.Len(s.store.Entries(), 9)
}

func (s *BuilderSuite) TestBuildClient_UnknownClient() {
	_, err := s.builder.BuildClient(s.ctx, "ghost")
	s.Require().Error(err)
}

func (s *BuilderSuite) TestBuildAll_IsolatesClientFailures() {
	s.store.AddClient(&filing.Client{ID: "broken", CompanyName: "Broken Ltd", ClientType: filing.ClientLimitedCompany, YearEnd: datePtr("2026-03-31")})
	s.store.AddClient(&filing.Client{ID: "paused", ClientType: filing.ClientSoleTrader, Paused: true})
	s.store.Fail = func(op, key string) error {
		if op == "queue.insert" && key == "broken" {
			return fmt.Errorf("disk full")
		}
		return nil
	}

	res, err := s.builder.BuildAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Clients)
	s.Equal(1, res.Succeeded)
	s.Equal(9, res.Created)
	s.Require().Len(res.Errors, 1)
	s.Equal("broken", res.Errors[0].ClientID)
	s.True(s.logger.HasMessage("error", "client queue build failed"))

	// All-or-nothing per client.
	for _, e := range s.store.Entries() {
		s.NotEqual("broken", e.ClientID)
	}
}

func (s *BuilderSuite) TestBuildClient_ConcurrentSameClient() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.builder.BuildClient(s.ctx, "acme")
			s.NoError(err)
		}()
	}
	wg.Wait()
	s.Len(s.store.Entries(), 9)
}

func (s *BuilderSuite) TestPlan_DoesNotWrite() {
	entries, skipped, err := s.builder.Plan(s.ctx, "acme")
	s.Require().NoError(err)
	s.Len(entries, 9)
	s.Empty(skipped)
	s.Empty(s.store.Entries())
}

// ─────────────────────────────────────────────────────────────────────────────
// Working-day options
// ─────────────────────────────────────────────────────────────────────────────

func TestBuilder_WorkingDayAdjustments(t *testing.T) {
	store := testutil.NewMemStore()
	seedTemplates(store)
	store.AddClient(&filing.Client{ID: "acme", CompanyName: "Acme", ClientType: filing.ClientLimitedCompany, YearEnd: datePtr("2026-01-31")})

	b := NewQueueBuilder(store, NewKeyedMutex(), BuilderConfig{
		AdjustDeadlines: []filing.FilingType{filing.CompaniesHouseAccounts},
		ShiftSendDates:  true,
	}, testutil.NewMockLogger(),
		WithClock(calendar.FixedClock{T: fixedNow}),
		WithHolidays(staticHolidays(calendar.NewHolidaySet())))

	_, err := b.BuildClient(context.Background(), "acme")
	require.NoError(t, err)

	for _, e := range store.Entries() {
		if e.FilingType == filing.CompaniesHouseAccounts {
			// 2026-10-31 is a Saturday.
			assert.Equal(t, "2026-11-02", calendar.Key(e.DeadlineDate))
		}
		if e.FilingType == filing.CorporationTaxPayment {
			// 2026-11-01 is a Sunday and stays calendar-exact.
			assert.Equal(t, "2026-11-01", calendar.Key(e.DeadlineDate))
		}
		assert.True(t, calendar.IsWorkingDay(e.SendDate, nil) || e.SendDate.Equal(e.DeadlineDate), e.Key().String())
		assert.False(t, e.SendDate.After(e.DeadlineDate))
	}
}
