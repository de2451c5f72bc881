// Package template holds reminder templates and the per-client step override
// layering that produces the steps a client actually receives.
package template

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// MaxSteps is the largest number of steps a base template may carry.
const MaxSteps = 5

// Overridable field names reported by OverriddenFields.
const (
	FieldSubject   = "subject"
	FieldBody      = "body"
	FieldDelayDays = "delay_days"
)

// Step is one reminder email of a campaign.  DelayDays counts days before the
// deadline on which the step fires.
type Step struct {
	StepNumber int    `json:"step_number" validate:"gte=1"`
	DelayDays  int    `json:"delay_days" validate:"gte=0,lte=366"`
	Subject    string `json:"subject" validate:"required,max=200"`
	Body       string `json:"body" validate:"required"`
}

// BaseTemplate is the practice-wide campaign for one filing type.
type BaseTemplate struct {
	ID         string            `json:"id"`
	Name       string            `json:"name" validate:"required"`
	FilingType filing.FilingType `json:"filing_type" validate:"required"`
	Steps      []Step            `json:"steps" validate:"required,min=1,dive"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Validate checks tag rules plus the step count ceiling and filing type.
func (t *BaseTemplate) Validate() error {
	if len(t.Steps) > MaxSteps {
		return errors.Newf(errors.ErrCodeTemplateTooManySteps, "template %q has %d steps, at most %d allowed", t.Name, len(t.Steps), MaxSteps)
	}
	if err := errors.ValidateStruct(t); err != nil {
		return err
	}
	if !t.FilingType.IsValid() {
		return errors.NewValidationError("filing_type", "unknown filing type "+string(t.FilingType))
	}
	return nil
}

// StepOverride replaces selected fields of one base step for one client.
// Nil fields fall through to the live base template.
type StepOverride struct {
	ClientID   string  `json:"client_id" validate:"required"`
	TemplateID string  `json:"template_id" validate:"required"`
	StepIndex  int     `json:"step_index" validate:"gte=0"`
	Subject    *string `json:"subject,omitempty" validate:"omitempty,max=200"`
	Body       *string `json:"body,omitempty"`
	DelayDays  *int    `json:"delay_days,omitempty" validate:"omitempty,gte=0,lte=366"`
}

// Validate checks tag rules and that at least one field is overridden.
func (o *StepOverride) Validate() error {
	if err := errors.ValidateStruct(o); err != nil {
		return err
	}
	if o.IsEmpty() {
		return errors.NewValidationError("step_override", "at least one of subject, body, delay_days is required")
	}
	return nil
}

// IsEmpty reports whether the override names no field.
func (o *StepOverride) IsEmpty() bool {
	return o.Subject == nil && o.Body == nil && o.DelayDays == nil
}

func (o *StepOverride) fields() []string {
	var out []string
	if o.Subject != nil {
		out = append(out, FieldSubject)
	}
	if o.Body != nil {
		out = append(out, FieldBody)
	}
	if o.DelayDays != nil {
		out = append(out, FieldDelayDays)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolution
// ─────────────────────────────────────────────────────────────────────────────

// Resolve layers overrides onto the base steps.  Overrides whose index has no
// base step are ignored; for a repeated index the later override's fields win.
// The result is a fresh slice and base is never modified.
func Resolve(base []Step, overrides []StepOverride) []Step {
	out := make([]Step, len(base))
	copy(out, base)
	for i := range overrides {
		o := &overrides[i]
		if o.StepIndex < 0 || o.StepIndex >= len(out) {
			continue
		}
		s := &out[o.StepIndex]
		if o.Subject != nil {
			s.Subject = *o.Subject
		}
		if o.Body != nil {
			s.Body = *o.Body
		}
		if o.DelayDays != nil {
			s.DelayDays = *o.DelayDays
		}
	}
	return out
}

// OverriddenFields lists, per valid step index, the field names overridden.
// Indices with no effective override are absent.
func OverriddenFields(base []Step, overrides []StepOverride) map[int][]string {
	out := make(map[int][]string)
	for i := range overrides {
		o := &overrides[i]
		if o.StepIndex < 0 || o.StepIndex >= len(base) {
			continue
		}
		for _, f := range o.fields() {
			if !containsString(out[o.StepIndex], f) {
				out[o.StepIndex] = append(out[o.StepIndex], f)
			}
		}
	}
	for idx := range out {
		sort.Strings(out[idx])
	}
	return out
}

// PruneOverrides splits overrides into those that still address a base step
// and those that do not.  Callers use the second list for cleanup.
func PruneOverrides(base []Step, overrides []StepOverride) (valid, orphaned []StepOverride) {
	for _, o := range overrides {
		if o.StepIndex >= 0 && o.StepIndex < len(base) {
			valid = append(valid, o)
		} else {
			orphaned = append(orphaned, o)
		}
	}
	return valid, orphaned
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

// DeadlineLayout is the human date format used in rendered reminders.
const DeadlineLayout = "2 January 2006"

// Vars are the values substituted into step placeholders.  Days until the
// deadline are counted from SendDate so the rendered text does not depend on
// when the queue was built.
type Vars struct {
	ClientName string
	FilingType filing.FilingType
	Deadline   time.Time
	SendDate   time.Time
}

// Rendered is a step with placeholders substituted.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Render substitutes {{client_name}}, {{filing_type}}, {{deadline}} and
// {{days_until_deadline}}.  Unknown placeholders are left as written.
func Render(s Step, v Vars) Rendered {
	r := strings.NewReplacer(
		"{{client_name}}", v.ClientName,
		"{{filing_type}}", v.FilingType.DisplayName(),
		"{{deadline}}", calendar.Normalize(v.Deadline).Format(DeadlineLayout),
		"{{days_until_deadline}}", strconv.Itoa(calendar.DaysBetween(v.SendDate, v.Deadline)),
	)
	return Rendered{Subject: r.Replace(s.Subject), Body: r.Replace(s.Body)}
}
