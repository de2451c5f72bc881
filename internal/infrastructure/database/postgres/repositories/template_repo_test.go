package repositories

import (
	"database/sql"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

const stepsJSON = `[{"step_number":1,"delay_days":30,"subject":"Accounts due {{deadline}}","body":"Hi {{client_name}}"},` +
	`{"step_number":2,"delay_days":7,"subject":"Reminder","body":"Please send records"}]`

func (s *StoreTestSuite) TestTemplateGetByFilingType() {
	s.mock.ExpectQuery("SELECT id, name, filing_type, steps, updated_at FROM reminder_templates WHERE filing_type = \\$1").
		WithArgs("companies_house").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "filing_type", "steps", "updated_at"}).
			AddRow("tpl-ch", "Companies House", "companies_house", []byte(stepsJSON), time.Now()))

	t, err := s.store.Templates().GetByFilingType(s.ctx, filing.CompaniesHouseAccounts)
	s.Require().NoError(err)
	s.Require().Len(t.Steps, 2)
	s.Equal(30, t.Steps[0].DelayDays)
	s.Equal("Please send records", t.Steps[1].Body)

	s.mock.ExpectQuery("FROM reminder_templates WHERE filing_type").
		WithArgs("vat_return").
		WillReturnError(sql.ErrNoRows)
	_, err = s.store.Templates().GetByFilingType(s.ctx, filing.VATReturn)
	s.True(errors.IsCode(err, errors.ErrCodeTemplateNotFound))
}

func (s *StoreTestSuite) TestTemplateSave_KeepsExistingID() {
	t := &template.BaseTemplate{
		Name:       "VAT",
		FilingType: filing.VATReturn,
		Steps:      []template.Step{{StepNumber: 1, DelayDays: 14, Subject: "VAT due", Body: "Body"}},
	}
	updated := time.Now()
	s.mock.ExpectQuery("INSERT INTO reminder_templates .+ ON CONFLICT \\(filing_type\\)").
		WithArgs(sqlmock.AnyArg(), "VAT", "vat_return", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow("tpl-existing", updated))

	s.Require().NoError(s.store.Templates().Save(s.ctx, t))
	s.Equal("tpl-existing", t.ID)

	err := s.store.Templates().Save(s.ctx, &template.BaseTemplate{Name: "bad", FilingType: filing.VATReturn})
	s.True(errors.IsValidation(err))
}

func (s *StoreTestSuite) TestStepOverrides() {
	s.mock.ExpectQuery("FROM client_template_overrides").
		WithArgs("acme", "tpl-ch").
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "template_id", "step_index", "subject", "body", "delay_days"}).
			AddRow("acme", "tpl-ch", 0, "Custom subject", nil, nil).
			AddRow("acme", "tpl-ch", 1, nil, nil, int64(3)))

	out, err := s.store.Templates().ListStepOverrides(s.ctx, "acme", "tpl-ch")
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal("Custom subject", *out[0].Subject)
	s.Nil(out[0].Body)
	s.Equal(3, *out[1].DelayDays)

	delay := 10
	s.mock.ExpectExec("INSERT INTO client_template_overrides").
		WithArgs("acme", "tpl-ch", 1, nil, nil, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.store.Templates().UpsertStepOverride(s.ctx, template.StepOverride{
		ClientID: "acme", TemplateID: "tpl-ch", StepIndex: 1, DelayDays: &delay,
	}))

	err = s.store.Templates().UpsertStepOverride(s.ctx, template.StepOverride{ClientID: "acme", TemplateID: "tpl-ch"})
	s.True(errors.IsValidation(err))

	s.mock.ExpectExec("DELETE FROM client_template_overrides").
		WithArgs("acme", "tpl-ch", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.store.Templates().DeleteStepOverride(s.ctx, "acme", "tpl-ch", 1))
}

func (s *StoreTestSuite) TestAuditAppendAndList() {
	oldYE := calendar.MustParseDate("2025-01-31")
	newYE := calendar.MustParseDate("2026-01-31")
	rec := &reminder.AuditRecord{
		ClientID: "acme", FilingType: filing.CT600Filing, Action: reminder.AuditRollover,
		OldYearEnd: &oldYE, NewYearEnd: &newYE,
	}
	s.mock.ExpectExec("INSERT INTO engine_audit_log").
		WithArgs(sqlmock.AnyArg(), "acme", "ct600_filing", "rollover", "2025-01-31", "2026-01-31", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.Require().NoError(s.store.Audit().Append(s.ctx, rec))
	s.NotEmpty(rec.ID)
	s.False(rec.CreatedAt.IsZero())

	s.mock.ExpectQuery("FROM engine_audit_log\\s+WHERE client_id = \\$1\\s+ORDER BY created_at DESC\\s+LIMIT NULLIF\\(\\$2, 0\\)").
		WithArgs("acme", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "filing_type", "action", "old_year_end", "new_year_end", "detail", "created_at"}).
			AddRow(rec.ID, "acme", "ct600_filing", "rollover", oldYE, newYE, "", time.Now()).
			AddRow("r0", "acme", "vat_return", "records_received", nil, nil, "", time.Now()))
	out, err := s.store.Audit().ListByClient(s.ctx, "acme", -1)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(newYE, *out[0].NewYearEnd)
	s.Nil(out[1].OldYearEnd)
}

func (s *StoreTestSuite) TestCredentials() {
	repo := NewCredentialRepository(postgres.NewConnectionWithDB(s.db, logging.NewNopLogger()))
	exp := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	s.mock.ExpectQuery("FROM accounting_credentials WHERE connection_id = \\$1").
		WithArgs("xero-main").
		WillReturnRows(sqlmock.NewRows([]string{"connection_id", "provider", "access_token", "refresh_token", "expires_at", "updated_at"}).
			AddRow("xero-main", "xero", "at", "rt", exp, exp))
	c, err := repo.Get(s.ctx, "xero-main")
	s.Require().NoError(err)
	s.Equal("rt", c.RefreshToken)

	s.mock.ExpectQuery("FROM accounting_credentials").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(s.ctx, "nope")
	s.True(errors.IsCode(err, errors.ErrCodeCredentialNotFound))

	s.mock.ExpectQuery("INSERT INTO accounting_credentials").
		WithArgs("xero-main", "xero", "at2", "rt2", exp).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(exp))
	s.NoError(repo.Save(s.ctx, &credential.Credential{
		ConnectionID: "xero-main", Provider: "xero", AccessToken: "at2", RefreshToken: "rt2", ExpiresAt: exp,
	}))
}
