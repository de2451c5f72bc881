package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

const entryColumns = `id, client_id, filing_type, template_id, step_number, deadline_date, send_date,
	resolved_subject, resolved_body, status, sent_at, last_error, created_at, updated_at`

type queueRepo struct {
	exec queryExecutor
}

func (r *queueRepo) Get(ctx context.Context, id string) (*reminder.Entry, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM reminder_queue WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeQueueEntryNotFound, "queue entry not found").WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get queue entry")
	}
	return e, nil
}

func (r *queueRepo) List(ctx context.Context, f reminder.EntryFilter) ([]*reminder.Entry, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.FilingType != "" {
		add("filing_type = $%d", string(f.FilingType))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d::text[])", statusArray(f.Statuses))
	}
	if f.SendOnOrBefore != nil {
		add("send_date <= $%d", calendar.Key(*f.SendOnOrBefore))
	}
	if f.DeadlineOn != nil {
		add("deadline_date = $%d", calendar.Key(*f.DeadlineOn))
	}
	if f.DeadlineOnOrAfter != nil {
		add("deadline_date >= $%d", calendar.Key(*f.DeadlineOnOrAfter))
	}
	if f.ExcludePaused {
		conds = append(conds, "client_id IN (SELECT id FROM clients WHERE NOT paused)")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + ` FROM reminder_queue`)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if f.BySendDate {
		b.WriteString(" ORDER BY send_date, client_id, filing_type, deadline_date, step_number")
	} else {
		b.WriteString(" ORDER BY client_id, filing_type, deadline_date, step_number")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := r.exec.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list queue entries")
	}
	defer rows.Close()

	var out []*reminder.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan queue entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert relies on the unique key constraint; a conflicting row means the
// obligation-cycle step is already queued.
func (r *queueRepo) Insert(ctx context.Context, e *reminder.Entry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	res, err := r.exec.ExecContext(ctx, `
		INSERT INTO reminder_queue (
			id, client_id, filing_type, template_id, step_number, deadline_date, send_date,
			resolved_subject, resolved_body, status, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (client_id, filing_type, deadline_date, step_number) DO NOTHING`,
		e.ID, e.ClientID, string(e.FilingType), e.TemplateID, e.StepNumber,
		calendar.Key(e.DeadlineDate), calendar.Key(e.SendDate),
		e.Subject, e.Body, string(e.Status), e.LastError, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert queue entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read insert result")
	}
	return n == 1, nil
}

func (r *queueRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.exec.ExecContext(ctx, `DELETE FROM reminder_queue WHERE id = ANY($1::text[])`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete queue entries")
	}
	return affected(res)
}

func (r *queueRepo) DeleteByStatus(ctx context.Context, clientID string, ft filing.FilingType, status reminder.Status) (int, error) {
	res, err := r.exec.ExecContext(ctx,
		`DELETE FROM reminder_queue WHERE client_id = $1 AND filing_type = $2 AND status = $3`,
		clientID, string(ft), string(status))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete queue entries by status")
	}
	return affected(res)
}

func (r *queueRepo) TransitionAll(ctx context.Context, clientID string, ft filing.FilingType, from, to reminder.Status) (int, error) {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE reminder_queue SET status = $4, updated_at = NOW()
		WHERE client_id = $1 AND filing_type = $2 AND status = $3`,
		clientID, string(ft), string(from), string(to))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to transition queue entries")
	}
	return affected(res)
}

func (r *queueRepo) UpdateStatus(ctx context.Context, id string, from []reminder.Status, to reminder.Status, lastError string) (bool, error) {
	res, err := r.exec.ExecContext(ctx, `
		UPDATE reminder_queue SET
			status = $2::text,
			last_error = $3,
			sent_at = CASE WHEN $2::text = 'sent' THEN NOW() ELSE sent_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($4::text[])`,
		id, string(to), lastError, statusArray(from))
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update queue entry status")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	if err := r.exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reminder_queue WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check queue entry")
	}
	if !exists {
		return false, errors.New(errors.ErrCodeQueueEntryNotFound, "queue entry not found").WithDetail(id)
	}
	return false, nil
}

func scanEntry(row scanner) (*reminder.Entry, error) {
	var (
		e      reminder.Entry
		ft     string
		status string
		sentAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.ClientID, &ft, &e.TemplateID, &e.StepNumber, &e.DeadlineDate, &e.SendDate,
		&e.Subject, &e.Body, &status, &sentAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.FilingType = filing.FilingType(ft)
	e.Status = reminder.Status(status)
	e.DeadlineDate = calendar.Normalize(e.DeadlineDate)
	e.SendDate = calendar.Normalize(e.SendDate)
	if sentAt.Valid {
		t := sentAt.Time
		e.SentAt = &t
	}
	return &e, nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	return int(n), nil
}
