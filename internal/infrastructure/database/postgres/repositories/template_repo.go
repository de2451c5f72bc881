package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type templateRepo struct {
	exec queryExecutor
}

func (r *templateRepo) GetByFilingType(ctx context.Context, ft filing.FilingType) (*template.BaseTemplate, error) {
	row := r.exec.QueryRowContext(ctx,
		`SELECT id, name, filing_type, steps, updated_at FROM reminder_templates WHERE filing_type = $1`, string(ft))
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeTemplateNotFound, "template not found").WithDetail(string(ft))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get template")
	}
	return t, nil
}

func (r *templateRepo) List(ctx context.Context) ([]*template.BaseTemplate, error) {
	rows, err := r.exec.QueryContext(ctx,
		`SELECT id, name, filing_type, steps, updated_at FROM reminder_templates ORDER BY filing_type`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list templates")
	}
	defer rows.Close()

	var out []*template.BaseTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan template")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Save upserts by filing type; an existing row keeps its id.
func (r *templateRepo) Save(ctx context.Context, t *template.BaseTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	steps, err := json.Marshal(t.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode template steps")
	}
	err = r.exec.QueryRowContext(ctx, `
		INSERT INTO reminder_templates (id, name, filing_type, steps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (filing_type) DO UPDATE SET
			name = EXCLUDED.name,
			steps = EXCLUDED.steps,
			updated_at = NOW()
		RETURNING id, updated_at`,
		t.ID, t.Name, string(t.FilingType), steps,
	).Scan(&t.ID, &t.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save template")
	}
	return nil
}

func (r *templateRepo) ListStepOverrides(ctx context.Context, clientID, templateID string) ([]template.StepOverride, error) {
	rows, err := r.exec.QueryContext(ctx, `
		SELECT client_id, template_id, step_index, subject, body, delay_days
		FROM client_template_overrides
		WHERE client_id = $1 AND template_id = $2
		ORDER BY step_index`, clientID, templateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list step overrides")
	}
	defer rows.Close()

	var out []template.StepOverride
	for rows.Next() {
		var (
			o       template.StepOverride
			subject sql.NullString
			body    sql.NullString
			delay   sql.NullInt64
		)
		if err := rows.Scan(&o.ClientID, &o.TemplateID, &o.StepIndex, &subject, &body, &delay); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan step override")
		}
		if subject.Valid {
			o.Subject = &subject.String
		}
		if body.Valid {
			o.Body = &body.String
		}
		if delay.Valid {
			d := int(delay.Int64)
			o.DelayDays = &d
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *templateRepo) UpsertStepOverride(ctx context.Context, o template.StepOverride) error {
	if err := o.Validate(); err != nil {
		return err
	}
	var delay interface{}
	if o.DelayDays != nil {
		delay = *o.DelayDays
	}
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO client_template_overrides (client_id, template_id, step_index, subject, body, delay_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, template_id, step_index) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			delay_days = EXCLUDED.delay_days`,
		o.ClientID, o.TemplateID, o.StepIndex, nullString(o.Subject), nullString(o.Body), delay)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert step override")
	}
	return nil
}

func (r *templateRepo) DeleteStepOverride(ctx context.Context, clientID, templateID string, stepIndex int) error {
	_, err := r.exec.ExecContext(ctx,
		`DELETE FROM client_template_overrides WHERE client_id = $1 AND template_id = $2 AND step_index = $3`,
		clientID, templateID, stepIndex)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete step override")
	}
	return nil
}

func scanTemplate(row scanner) (*template.BaseTemplate, error) {
	var (
		t     template.BaseTemplate
		ft    string
		steps []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &ft, &steps, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.FilingType = filing.FilingType(ft)
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
