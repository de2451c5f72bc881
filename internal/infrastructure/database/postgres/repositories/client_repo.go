package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

const clientColumns = `id, company_name, client_type, year_end_date, vat_registered, vat_stagger_group,
	paused, records_received_for, completed_for, created_at, updated_at`

// --- Clients ---

type clientRepo struct {
	exec queryExecutor
}

func (r *clientRepo) Get(ctx context.Context, id string) (*filing.Client, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeClientNotFound, "client not found").WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get client")
	}
	return c, nil
}

func (r *clientRepo) List(ctx context.Context, f filing.ClientFilter) ([]*filing.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients
		WHERE ($1 OR NOT paused)
		AND (cardinality($2::text[]) = 0 OR id = ANY($2::text[]))
		AND (NOT $3 OR cardinality(records_received_for) > 0)
		ORDER BY id`
	ids := f.IDs
	if ids == nil {
		ids = []string{}
	}
	rows, err := r.exec.QueryContext(ctx, query, f.IncludePaused, pq.Array(ids), f.WithRecordsReceived)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list clients")
	}
	defer rows.Close()

	var out []*filing.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan client")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientRepo) Save(ctx context.Context, c *filing.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO clients (
			id, company_name, client_type, year_end_date, vat_registered, vat_stagger_group,
			paused, records_received_for, completed_for
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			client_type = EXCLUDED.client_type,
			year_end_date = EXCLUDED.year_end_date,
			vat_registered = EXCLUDED.vat_registered,
			vat_stagger_group = EXCLUDED.vat_stagger_group,
			paused = EXCLUDED.paused,
			records_received_for = EXCLUDED.records_received_for,
			completed_for = EXCLUDED.completed_for,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	var stagger interface{}
	if c.VATStaggerGroup != nil {
		stagger = *c.VATStaggerGroup
	}
	err := r.exec.QueryRowContext(ctx, query,
		c.ID, c.CompanyName, string(c.ClientType), dateArg(c.YearEnd), c.VATRegistered, stagger,
		c.Paused, typeArray(c.RecordsReceivedFor), typeArray(c.CompletedFor),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save client")
	}
	return nil
}

func (r *clientRepo) UpdateFilingState(ctx context.Context, id string, yearEnd *time.Time, recordsReceivedFor, completedFor []filing.FilingType) error {
	query := `
		UPDATE clients SET
			year_end_date = $2,
			records_received_for = $3,
			completed_for = $4,
			updated_at = NOW()
		WHERE id = $1`
	res, err := r.exec.ExecContext(ctx, query, id, dateArg(yearEnd), typeArray(recordsReceivedFor), typeArray(completedFor))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update client filing state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeClientNotFound, "client not found").WithDetail(id)
	}
	return nil
}

func scanClient(row scanner) (*filing.Client, error) {
	var (
		c         filing.Client
		clientTyp string
		yearEnd   sql.NullTime
		stagger   sql.NullInt64
		received  pq.StringArray
		completed pq.StringArray
	)
	err := row.Scan(&c.ID, &c.CompanyName, &clientTyp, &yearEnd, &c.VATRegistered, &stagger,
		&c.Paused, &received, &completed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ClientType = filing.ClientType(clientTyp)
	c.YearEnd = nullDate(yearEnd)
	if stagger.Valid {
		g := int(stagger.Int64)
		c.VATStaggerGroup = &g
	}
	c.RecordsReceivedFor = toTypes(received)
	c.CompletedFor = toTypes(completed)
	return &c, nil
}

// --- Assignments ---

type assignmentRepo struct {
	exec queryExecutor
}

func (r *assignmentRepo) ListByClient(ctx context.Context, clientID string) ([]filing.Assignment, error) {
	rows, err := r.exec.QueryContext(ctx, `
		SELECT client_id, filing_type, is_active FROM client_filing_assignments
		WHERE client_id = $1 ORDER BY filing_type`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list assignments")
	}
	defer rows.Close()

	var out []filing.Assignment
	for rows.Next() {
		var a filing.Assignment
		var ft string
		if err := rows.Scan(&a.ClientID, &ft, &a.Active); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan assignment")
		}
		a.FilingType = filing.FilingType(ft)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *assignmentRepo) Upsert(ctx context.Context, a filing.Assignment) error {
	if !a.FilingType.IsValid() {
		return errors.NewValidationError("filing_type", "unknown filing type "+string(a.FilingType))
	}
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO client_filing_assignments (client_id, filing_type, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, filing_type) DO UPDATE SET is_active = EXCLUDED.is_active`,
		a.ClientID, string(a.FilingType), a.Active)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert assignment")
	}
	return nil
}

// --- Deadline overrides ---

type overrideRepo struct {
	exec queryExecutor
}

func (r *overrideRepo) ListByClient(ctx context.Context, clientID string) ([]filing.DeadlineOverride, error) {
	rows, err := r.exec.QueryContext(ctx, `
		SELECT client_id, filing_type, override_date, reason FROM client_deadline_overrides
		WHERE client_id = $1 ORDER BY filing_type`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list deadline overrides")
	}
	defer rows.Close()

	var out []filing.DeadlineOverride
	for rows.Next() {
		var o filing.DeadlineOverride
		var ft string
		if err := rows.Scan(&o.ClientID, &ft, &o.Date, &o.Reason); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan deadline override")
		}
		o.FilingType = filing.FilingType(ft)
		o.Date = calendar.Normalize(o.Date)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *overrideRepo) Upsert(ctx context.Context, o filing.DeadlineOverride) error {
	if !o.FilingType.IsValid() {
		return errors.NewValidationError("filing_type", "unknown filing type "+string(o.FilingType))
	}
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO client_deadline_overrides (client_id, filing_type, override_date, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, filing_type) DO UPDATE SET
			override_date = EXCLUDED.override_date,
			reason = EXCLUDED.reason`,
		o.ClientID, string(o.FilingType), calendar.Key(o.Date), o.Reason)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert deadline override")
	}
	return nil
}

func (r *overrideRepo) Delete(ctx context.Context, clientID string, ft filing.FilingType) error {
	_, err := r.exec.ExecContext(ctx,
		`DELETE FROM client_deadline_overrides WHERE client_id = $1 AND filing_type = $2`,
		clientID, string(ft))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete deadline override")
	}
	return nil
}
