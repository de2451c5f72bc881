package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type auditRepo struct {
	exec queryExecutor
}

func (r *auditRepo) Append(ctx context.Context, rec *reminder.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO engine_audit_log (id, client_id, filing_type, action, old_year_end, new_year_end, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.ClientID, string(rec.FilingType), string(rec.Action),
		dateArg(rec.OldYearEnd), dateArg(rec.NewYearEnd), rec.Detail, rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to append audit record")
	}
	return nil
}

// ListByClient returns newest first.  A non-positive limit returns all.
func (r *auditRepo) ListByClient(ctx context.Context, clientID string, limit int) ([]*reminder.AuditRecord, error) {
	rows, err := r.exec.QueryContext(ctx, `
		SELECT id, client_id, filing_type, action, old_year_end, new_year_end, detail, created_at
		FROM engine_audit_log
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`, clientID, max(limit, 0))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list audit records")
	}
	defer rows.Close()

	var out []*reminder.AuditRecord
	for rows.Next() {
		var (
			rec    reminder.AuditRecord
			ft     string
			action string
			oldYE  sql.NullTime
			newYE  sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.ClientID, &ft, &action, &oldYE, &newYE, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan audit record")
		}
		rec.FilingType = filing.FilingType(ft)
		rec.Action = reminder.AuditAction(action)
		rec.OldYearEnd = nullDate(oldYE)
		rec.NewYearEnd = nullDate(newYE)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
