package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// FailFunc lets a test inject an error into a named store operation.  op is
// "<repo>.<method>", key is the client id (or entry id) the call addresses.
type FailFunc func(op, key string) error

type memState struct {
	clients       map[string]*filing.Client
	assignments   map[string]map[filing.FilingType]filing.Assignment
	overrides     map[string]map[filing.FilingType]filing.DeadlineOverride
	templates     map[filing.FilingType]*template.BaseTemplate
	stepOverrides map[string]template.StepOverride
	queue         map[string]*reminder.Entry
	audit         []*reminder.AuditRecord
}

func newMemState() *memState {
	return &memState{
		clients:       map[string]*filing.Client{},
		assignments:   map[string]map[filing.FilingType]filing.Assignment{},
		overrides:     map[string]map[filing.FilingType]filing.DeadlineOverride{},
		templates:     map[filing.FilingType]*template.BaseTemplate{},
		stepOverrides: map[string]template.StepOverride{},
		queue:         map[string]*reminder.Entry{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.clients {
		c.clients[k] = v.Clone()
	}
	for k, m := range s.assignments {
		c.assignments[k] = map[filing.FilingType]filing.Assignment{}
		for ft, a := range m {
			c.assignments[k][ft] = a
		}
	}
	for k, m := range s.overrides {
		c.overrides[k] = map[filing.FilingType]filing.DeadlineOverride{}
		for ft, o := range m {
			c.overrides[k][ft] = o
		}
	}
	for k, v := range s.templates {
		t := *v
		t.Steps = append([]template.Step(nil), v.Steps...)
		c.templates[k] = &t
	}
	for k, v := range s.stepOverrides {
		c.stepOverrides[k] = v
	}
	for k, v := range s.queue {
		e := *v
		c.queue[k] = &e
	}
	c.audit = append(c.audit, s.audit...)
	return c
}

// MemStore is an in-memory reminder.Store.  Transactions work on a copy of
// the state that replaces the original only when fn succeeds, and are
// serialised against each other.
type MemStore struct {
	mu    *sync.Mutex
	txMu  *sync.Mutex
	state *memState
	inTx  bool
	Fail  FailFunc
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, state: newMemState()}
}

var _ reminder.Store = (*MemStore)(nil)

func (m *MemStore) fail(op, key string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, key)
}

func (m *MemStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemStore) Clients() filing.ClientRepository             { return memClients{m} }
func (m *MemStore) Assignments() filing.AssignmentRepository     { return memAssignments{m} }
func (m *MemStore) DeadlineOverrides() filing.OverrideRepository { return memOverrides{m} }
func (m *MemStore) Templates() template.Repository               { return memTemplates{m} }
func (m *MemStore) Queue() reminder.QueueRepository              { return memQueue{m} }
func (m *MemStore) Audit() reminder.AuditRepository              { return memAudit{m} }

// WithTx runs fn on a transactional view of the store.
func (m *MemStore) WithTx(ctx context.Context, fn func(reminder.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	tx := &MemStore{mu: &sync.Mutex{}, txMu: m.txMu, state: snapshot, inTx: true, Fail: m.Fail}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = snapshot
	m.mu.Unlock()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding helpers
// ─────────────────────────────────────────────────────────────────────────────

// AddClient stores c with its default assignments.
func (m *MemStore) AddClient(c *filing.Client) {
	defer m.lock()()
	m.state.clients[c.ID] = c.Clone()
	m.state.assignments[c.ID] = map[filing.FilingType]filing.Assignment{}
	for _, a := range filing.DefaultAssignments(c) {
		m.state.assignments[c.ID][a.FilingType] = a
	}
}

// AddTemplate stores t, assigning an id when empty.
func (m *MemStore) AddTemplate(t *template.BaseTemplate) {
	defer m.lock()()
	if t.ID == "" {
		t.ID = "tpl-" + string(t.FilingType)
	}
	cp := *t
	cp.Steps = append([]template.Step(nil), t.Steps...)
	m.state.templates[t.FilingType] = &cp
}

// Entries returns every queue entry ordered by key.
func (m *MemStore) Entries() []*reminder.Entry {
	defer m.lock()()
	out := make([]*reminder.Entry, 0, len(m.state.queue))
	for _, e := range m.state.queue {
		cp := *e
		out = append(out, &cp)
	}
	sortEntries(out)
	return out
}

// AuditRecords returns the audit trail.
func (m *MemStore) AuditRecords() []*reminder.AuditRecord {
	defer m.lock()()
	return append([]*reminder.AuditRecord(nil), m.state.audit...)
}

func sortEntries(es []*reminder.Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Key().String() < es[j].Key().String() })
}

// ─────────────────────────────────────────────────────────────────────────────
// Clients
// ─────────────────────────────────────────────────────────────────────────────

type memClients struct{ m *MemStore }

func (r memClients) Get(_ context.Context, id string) (*filing.Client, error) {
	if err := r.m.fail("clients.get", id); err != nil {
		return nil, err
	}
	defer r.m.lock()()
	c, ok := r.m.state.clients[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeClientNotFound, "client not found").WithDetail(id)
	}
	return c.Clone(), nil
}

func (r memClients) List(_ context.Context, f filing.ClientFilter) ([]*filing.Client, error) {
	if err := r.m.fail("clients.list", ""); err != nil {
		return nil, err
	}
	defer r.m.lock()()
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	var out []*filing.Client
	for _, c := range r.m.state.clients {
		if c.Paused && !f.IncludePaused {
			continue
		}
		if len(ids) > 0 && !ids[c.ID] {
			continue
		}
		if f.WithRecordsReceived && len(c.RecordsReceivedFor) == 0 {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memClients) Save(_ context.Context, c *filing.Client) error {
	if err := r.m.fail("clients.save", c.ID); err != nil {
		return err
	}
	defer r.m.lock()()
	r.m.state.clients[c.ID] = c.Clone()
	return nil
}

func (r memClients) UpdateFilingState(_ context.Context, id string, yearEnd *time.Time, rr, completed []filing.FilingType) error {
	if err := r.m.fail("clients.update_filing_state", id); err != nil {
		return err
	}
	defer r.m.lock()()
	c, ok := r.m.state.clients[id]
	if !ok {
		return errors.New(errors.ErrCodeClientNotFound, "client not found").WithDetail(id)
	}
	if yearEnd != nil {
		ye := calendar.Normalize(*yearEnd)
		c.YearEnd = &ye
	} else {
		c.YearEnd = nil
	}
	c.RecordsReceivedFor = append([]filing.FilingType(nil), rr...)
	c.CompletedFor = append([]filing.FilingType(nil), completed...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Assignments and overrides
// ─────────────────────────────────────────────────────────────────────────────

type memAssignments struct{ m *MemStore }

func (r memAssignments) ListByClient(_ context.Context, clientID string) ([]filing.Assignment, error) {
	if err := r.m.fail("assignments.list", clientID); err != nil {
		return nil, err
	}
	defer r.m.lock()()
	var out []filing.Assignment
	for _, a := range r.m.state.assignments[clientID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingType < out[j].FilingType })
	return out, nil
}

func (r memAssignments) Upsert(_ context.Context, a filing.Assignment) error {
	defer r.m.lock()()
	if r.m.state.assignments[a.ClientID] == nil {
		r.m.state.assignments[a.ClientID] = map[filing.FilingType]filing.Assignment{}
	}
	r.m.state.assignments[a.ClientID][a.FilingType] = a
	return nil
}

type memOverrides struct{ m *MemStore }

func (r memOverrides) ListByClient(_ context.Context, clientID string) ([]filing.DeadlineOverride, error) {
	defer r.m.lock()()
	var out []filing.DeadlineOverride
	for _, o := range r.m.state.overrides[clientID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingType < out[j].FilingType })
	return out, nil
}

func (r memOverrides) Upsert(_ context.Context, o filing.DeadlineOverride) error {
	defer r.m.lock()()
	if r.m.state.overrides[o.ClientID] == nil {
		r.m.state.overrides[o.ClientID] = map[filing.FilingType]filing.DeadlineOverride{}
	}
	o.Date = calendar.Normalize(o.Date)
	r.m.state.overrides[o.ClientID][o.FilingType] = o
	return nil
}

func (r memOverrides) Delete(_ context.Context, clientID string, ft filing.FilingType) error {
	defer r.m.lock()()
	delete(r.m.state.overrides[clientID], ft)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Templates
// ─────────────────────────────────────────────────────────────────────────────

type memTemplates struct{ m *MemStore }

func stepKey(clientID, templateID string, idx int) string {
	return fmt.Sprintf("%s|%s|%d", clientID, templateID, idx)
}

func (r memTemplates) GetByFilingType(_ context.Context, ft filing.FilingType) (*template.BaseTemplate, error) {
	if err := r.m.fail("templates.get", string(ft)); err != nil {
		return nil, err
	}
	defer r.m.lock()()
	t, ok := r.m.state.templates[ft]
	if !ok {
		return nil, errors.New(errors.ErrCodeTemplateNotFound, "template not found").WithDetail(string(ft))
	}
	cp := *t
	cp.Steps = append([]template.Step(nil), t.Steps...)
	return &cp, nil
}

func (r memTemplates) List(_ context.Context) ([]*template.BaseTemplate, error) {
	defer r.m.lock()()
	var out []*template.BaseTemplate
	for _, t := range r.m.state.templates {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingType < out[j].FilingType })
	return out, nil
}

func (r memTemplates) Save(_ context.Context, t *template.BaseTemplate) error {
	defer r.m.lock()()
	cp := *t
	r.m.state.templates[t.FilingType] = &cp
	return nil
}

func (r memTemplates) ListStepOverrides(_ context.Context, clientID, templateID string) ([]template.StepOverride, error) {
	defer r.m.lock()()
	var out []template.StepOverride
	for _, o := range r.m.state.stepOverrides {
		if o.ClientID == clientID && o.TemplateID == templateID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (r memTemplates) UpsertStepOverride(_ context.Context, o template.StepOverride) error {
	defer r.m.lock()()
	r.m.state.stepOverrides[stepKey(o.ClientID, o.TemplateID, o.StepIndex)] = o
	return nil
}

func (r memTemplates) DeleteStepOverride(_ context.Context, clientID, templateID string, idx int) error {
	defer r.m.lock()()
	delete(r.m.state.stepOverrides, stepKey(clientID, templateID, idx))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queue
// ─────────────────────────────────────────────────────────────────────────────

type memQueue struct{ m *MemStore }

func (r memQueue) Get(_ context.Context, id string) (*reminder.Entry, error) {
	defer r.m.lock()()
	e, ok := r.m.state.queue[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeQueueEntryNotFound, "queue entry not found").WithDetail(id)
	}
	cp := *e
	return &cp, nil
}

func statusIn(s reminder.Status, list []reminder.Status) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (r memQueue) List(_ context.Context, f reminder.EntryFilter) ([]*reminder.Entry, error) {
	if err := r.m.fail("queue.list", f.ClientID); err != nil {
		return nil, err
	}
	defer r.m.lock()()
	var out []*reminder.Entry
	for _, e := range r.m.state.queue {
		if f.ClientID != "" && e.ClientID != f.ClientID {
			continue
		}
		if f.FilingType != "" && e.FilingType != f.FilingType {
			continue
		}
		if !statusIn(e.Status, f.Statuses) {
			continue
		}
		if f.SendOnOrBefore != nil && e.SendDate.After(calendar.Normalize(*f.SendOnOrBefore)) {
			continue
		}
		if f.DeadlineOn != nil && !e.DeadlineDate.Equal(calendar.Normalize(*f.DeadlineOn)) {
			continue
		}
		if f.DeadlineOnOrAfter != nil && e.DeadlineDate.Before(calendar.Normalize(*f.DeadlineOnOrAfter)) {
			continue
		}
		if f.ExcludePaused {
			if c, ok := r.m.state.clients[e.ClientID]; !ok || c.Paused {
				continue
			}
		}
		cp := *e
		out = append(out, &cp)
	}
	sortEntries(out)
	if f.BySendDate {
		sort.SliceStable(out, func(i, j int) bool { return out[i].SendDate.Before(out[j].SendDate) })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memQueue) Insert(_ context.Context, e *reminder.Entry) (bool, error) {
	if err := r.m.fail("queue.insert", e.ClientID); err != nil {
		return false, err
	}
	defer r.m.lock()()
	key := e.Key()
	for _, x := range r.m.state.queue {
		if x.Key() == key {
			return false, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	r.m.state.queue[e.ID] = &cp
	return true, nil
}

func (r memQueue) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	defer r.m.lock()()
	n := 0
	for _, id := range ids {
		if _, ok := r.m.state.queue[id]; ok {
			delete(r.m.state.queue, id)
			n++
		}
	}
	return n, nil
}

func (r memQueue) DeleteByStatus(_ context.Context, clientID string, ft filing.FilingType, status reminder.Status) (int, error) {
	if err := r.m.fail("queue.delete_by_status", clientID); err != nil {
		return 0, err
	}
	defer r.m.lock()()
	n := 0
	for id, e := range r.m.state.queue {
		if e.ClientID == clientID && e.FilingType == ft && e.Status == status {
			delete(r.m.state.queue, id)
			n++
		}
	}
	return n, nil
}

func (r memQueue) TransitionAll(_ context.Context, clientID string, ft filing.FilingType, from, to reminder.Status) (int, error) {
	defer r.m.lock()()
	n := 0
	for _, e := range r.m.state.queue {
		if e.ClientID == clientID && e.FilingType == ft && e.Status == from {
			e.Status = to
			e.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r memQueue) UpdateStatus(_ context.Context, id string, from []reminder.Status, to reminder.Status, lastError string) (bool, error) {
	defer r.m.lock()()
	e, ok := r.m.state.queue[id]
	if !ok {
		return false, errors.New(errors.ErrCodeQueueEntryNotFound, "queue entry not found").WithDetail(id)
	}
	if !statusIn(e.Status, from) {
		return false, nil
	}
	now := time.Now().UTC()
	e.Status = to
	e.LastError = lastError
	e.UpdatedAt = now
	if to == reminder.StatusSent {
		e.SentAt = &now
	}
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit
// ─────────────────────────────────────────────────────────────────────────────

type memAudit struct{ m *MemStore }

func (r memAudit) Append(_ context.Context, rec *reminder.AuditRecord) error {
	if err := r.m.fail("audit.append", rec.ClientID); err != nil {
		return err
	}
	defer r.m.lock()()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := *rec
	r.m.state.audit = append(r.m.state.audit, &cp)
	return nil
}

func (r memAudit) ListByClient(_ context.Context, clientID string, limit int) ([]*reminder.AuditRecord, error) {
	defer r.m.lock()()
	var out []*reminder.AuditRecord
	for i := len(r.m.state.audit) - 1; i >= 0; i-- {
		if r.m.state.audit[i].ClientID == clientID {
			out = append(out, r.m.state.audit[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
