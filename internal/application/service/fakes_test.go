package service

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// memStore backs every fake repository so tests can inspect persisted state
type memStore struct {
	mu         sync.Mutex
	workflows  map[string]*entity.ApprovalWorkflow
	stages     map[string][]*entity.ApprovalStage
	requests   map[string]*entity.ApprovalRequest
	executions map[string]*entity.ApprovalStageExecution
	forums     map[string]*entity.Forum
	areas      map[string]*entity.Area
	units      map[string]*entity.Unit
	agents     map[string]*entity.Agent
	members    map[string]*entity.Member
}

func newMemStore() *memStore {
	return &memStore{
		workflows:  map[string]*entity.ApprovalWorkflow{},
		stages:     map[string][]*entity.ApprovalStage{},
		requests:   map[string]*entity.ApprovalRequest{},
		executions: map[string]*entity.ApprovalStageExecution{},
		forums:     map[string]*entity.Forum{},
		areas:      map[string]*entity.Area{},
		units:      map[string]*entity.Unit{},
		agents:     map[string]*entity.Agent{},
		members:    map[string]*entity.Member{},
	}
}

func (s *memStore) executionsFor(requestID string) []*entity.ApprovalStageExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ApprovalStageExecution
	for _, e := range s.executions {
		if e.RequestID == requestID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out
}

func (s *memStore) request(id string) *entity.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		c := *r
		return &c
	}
	return nil
}

// --- workflows ---

type fakeWorkflowRepo struct {
	s          *memStore
	createFunc func(ctx context.Context, wf *entity.ApprovalWorkflow) error
}

func (r *fakeWorkflowRepo) Create(ctx context.Context, wf *entity.ApprovalWorkflow) error {
	if r.createFunc != nil {
		if err := r.createFunc(ctx, wf); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *wf
	r.s.workflows[wf.ID] = &c
	return nil
}

func (r *fakeWorkflowRepo) Update(ctx context.Context, wf *entity.ApprovalWorkflow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *wf
	r.s.workflows[wf.ID] = &c
	return nil
}

func (r *fakeWorkflowRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if wf, ok := r.s.workflows[id]; ok {
		c := *wf
		return &c, nil
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) GetByCode(ctx context.Context, code string) (*entity.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, wf := range r.s.workflows {
		if wf.Code == code {
			c := *wf
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) ListActive(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error) {
	all, _ := r.ListAll(ctx)
	var out []*entity.ApprovalWorkflow
	for _, wf := range all {
		if wf.IsActive && (module == "" || wf.Module == module) {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) ListAll(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.ApprovalWorkflow, 0, len(r.s.workflows))
	for _, wf := range r.s.workflows {
		c := *wf
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// --- stages ---

type fakeStageRepo struct {
	s              *memStore
	createManyFunc func(ctx context.Context, stages []*entity.ApprovalStage) error
}

func (r *fakeStageRepo) CreateMany(ctx context.Context, stages []*entity.ApprovalStage) error {
	if r.createManyFunc != nil {
		if err := r.createManyFunc(ctx, stages); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range stages {
		c := *st
		r.s.stages[st.WorkflowID] = append(r.s.stages[st.WorkflowID], &c)
	}
	return nil
}

func (r *fakeStageRepo) ListByWorkflow(ctx context.Context, workflowID string) ([]*entity.ApprovalStage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.ApprovalStage, 0, len(r.s.stages[workflowID]))
	for _, st := range r.s.stages[workflowID] {
		c := *st
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out, nil
}

// --- requests ---

type fakeRequestRepo struct {
	s *memStore
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *req
	r.s.requests[req.ID] = &c
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	return r.s.request(id), nil
}

func (r *fakeRequestRepo) GetLatestByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *entity.ApprovalRequest
	for _, req := range r.s.requests {
		if req.EntityType == entityType && req.EntityID == entityID {
			if latest == nil || req.RequestedAt.After(latest.RequestedAt) {
				latest = req
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (r *fakeRequestRepo) HasPending(ctx context.Context, entityType, entityID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.EntityType == entityType && req.EntityID == entityID && req.Status == entity.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ApprovalRequest
	for _, req := range r.s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.WorkflowCode != "" && req.WorkflowCode != filter.WorkflowCode {
			continue
		}
		c := *req
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeRequestRepo) UpdateIfAt(ctx context.Context, req *entity.ApprovalRequest, expectedStage int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.requests[req.ID]
	if !ok || !stored.IsAt(expectedStage) {
		return false, nil
	}
	c := *req
	r.s.requests[req.ID] = &c
	return true, nil
}

// --- executions ---

type fakeExecutionRepo struct {
	s *memStore
}

func (r *fakeExecutionRepo) Create(ctx context.Context, exec *entity.ApprovalStageExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.executions {
		if e.RequestID == exec.RequestID && e.StageID == exec.StageID {
			return apperr.Conflict("execution for stage %s exists", exec.StageID)
		}
	}
	c := *exec
	r.s.executions[exec.ID] = &c
	return nil
}

func (r *fakeExecutionRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalStageExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.executions[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (r *fakeExecutionRepo) ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalStageExecution, error) {
	return r.s.executionsFor(requestID), nil
}

func (r *fakeExecutionRepo) ListPending(ctx context.Context, approverID string, roles []string) ([]*entity.ApprovalStageExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ApprovalStageExecution
	for _, e := range r.s.executions {
		if e.Status != entity.ExecutionStatusPending {
			continue
		}
		match := approverID != "" && e.AssignedApproverID == approverID
		for _, role := range roles {
			if e.AssignedRoleID == role {
				match = true
			}
		}
		if match {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeExecutionRepo) CompleteIfPending(ctx context.Context, exec *entity.ApprovalStageExecution) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.executions[exec.ID]
	if !ok || stored.Status != entity.ExecutionStatusPending {
		return false, nil
	}
	c := *exec
	r.s.executions[exec.ID] = &c
	return true, nil
}

// --- hierarchy ---

type fakeForumRepo struct{ s *memStore }

func (r *fakeForumRepo) Create(ctx context.Context, f *entity.Forum) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.forums[f.ID] = f
	return nil
}

func (r *fakeForumRepo) GetByID(ctx context.Context, id string) (*entity.Forum, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.forums[id], nil
}

type fakeAreaRepo struct{ s *memStore }

func (r *fakeAreaRepo) Create(ctx context.Context, a *entity.Area) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.areas[a.ID] = a
	return nil
}

func (r *fakeAreaRepo) GetByID(ctx context.Context, id string) (*entity.Area, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.areas[id], nil
}

type fakeUnitRepo struct {
	s           *memStore
	getByIDFunc func(ctx context.Context, id string) (*entity.Unit, error)
}

func (r *fakeUnitRepo) Create(ctx context.Context, u *entity.Unit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.units[u.ID] = u
	return nil
}

func (r *fakeUnitRepo) GetByID(ctx context.Context, id string) (*entity.Unit, error) {
	if r.getByIDFunc != nil {
		return r.getByIDFunc(ctx, id)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.units[id], nil
}

// --- agents and members ---

type fakeAgentRepo struct{ s *memStore }

func (r *fakeAgentRepo) Create(ctx context.Context, a *entity.Agent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *a
	r.s.agents[a.ID] = &c
	return nil
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, id string) (*entity.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.agents[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (r *fakeAgentRepo) List(ctx context.Context, limit, offset int) ([]*entity.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Agent
	for _, a := range r.s.agents {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeAgentRepo) UpdateStatusFrom(ctx context.Context, a *entity.Agent, from string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.agents[a.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	c := *a
	r.s.agents[a.ID] = &c
	return true, nil
}

type fakeMemberRepo struct{ s *memStore }

func (r *fakeMemberRepo) Create(ctx context.Context, m *entity.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *m
	r.s.members[m.ID] = &c
	return nil
}

func (r *fakeMemberRepo) GetByID(ctx context.Context, id string) (*entity.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.members[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (r *fakeMemberRepo) List(ctx context.Context, limit, offset int) ([]*entity.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Member
	for _, m := range r.s.members {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeMemberRepo) UpdateStatusFrom(ctx context.Context, m *entity.Member, from string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.members[m.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	c := *m
	r.s.members[m.ID] = &c
	return true, nil
}

// --- transactions, events, logging ---

type hooksKey struct{}

// mockTxManager snapshots the store and restores it when fn fails, so tests
// can assert that nothing was persisted
type mockTxManager struct {
	store *memStore
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(hooksKey{}).(*[]func()); nested {
		return fn(ctx)
	}

	snap := m.snapshot()
	hooks := &[]func(){}
	if err := fn(context.WithValue(ctx, hooksKey{}, hooks)); err != nil {
		m.restore(snap)
		return err
	}
	for _, h := range *hooks {
		h()
	}
	return nil
}

func (m *mockTxManager) AfterCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(hooksKey{}).(*[]func()); ok {
		*hooks = append(*hooks, fn)
		return
	}
	fn()
}

func (m *mockTxManager) snapshot() *memStore {
	if m.store == nil {
		return nil
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	snap := newMemStore()
	for k, v := range m.store.workflows {
		snap.workflows[k] = v
	}
	for k, v := range m.store.stages {
		snap.stages[k] = append([]*entity.ApprovalStage(nil), v...)
	}
	for k, v := range m.store.requests {
		snap.requests[k] = v
	}
	for k, v := range m.store.executions {
		snap.executions[k] = v
	}
	for k, v := range m.store.agents {
		snap.agents[k] = v
	}
	for k, v := range m.store.members {
		snap.members[k] = v
	}
	return snap
}

func (m *mockTxManager) restore(snap *memStore) {
	if snap == nil {
		return
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.workflows = snap.workflows
	m.store.stages = snap.stages
	m.store.requests = snap.requests
	m.store.executions = snap.executions
	m.store.agents = snap.agents
	m.store.members = snap.members
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(t event.Type) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// harness wires real services over the fakes
type harness struct {
	store     *memStore
	publisher *recordingPublisher
	workflows WorkflowService
	requests  RequestService
	registry  RegistrationService
	unitRepo  *fakeUnitRepo
	stageRepo *fakeStageRepo
	wfRepo    *fakeWorkflowRepo
}

func newHarness(enforce bool) *harness {
	store := newMemStore()
	tx := &mockTxManager{store: store}
	pub := &recordingPublisher{}
	conditions := NewConditionEvaluator()

	wfRepo := &fakeWorkflowRepo{s: store}
	stageRepo := &fakeStageRepo{s: store}
	unitRepo := &fakeUnitRepo{s: store}
	areaRepo := &fakeAreaRepo{s: store}
	resolver := NewApproverResolver(&fakeForumRepo{s: store}, areaRepo, unitRepo)

	requests := NewRequestService(wfRepo, stageRepo, &fakeRequestRepo{s: store}, &fakeExecutionRepo{s: store},
		resolver, conditions, tx, pub, &mockLogger{}, RequestServiceConfig{EnforceAssignment: enforce})

	return &harness{
		store:     store,
		publisher: pub,
		workflows: NewWorkflowService(wfRepo, stageRepo, conditions, tx, &mockLogger{}),
		requests:  requests,
		registry: NewRegistrationService(&fakeAgentRepo{s: store}, &fakeMemberRepo{s: store}, areaRepo, unitRepo,
			requests, tx, &mockLogger{}, RegistrationConfig{
				AgentWorkflowCode:     "agent_registration",
				MemberWorkflowCode:    "member_registration",
				DefaultMemberFeeCents: 2500,
			}),
		unitRepo:  unitRepo,
		stageRepo: stageRepo,
		wfRepo:    wfRepo,
	}
}

// seedHierarchy creates forum F1 (admin FA) → area AR1 (admin AA) → unit U1 (admin A1)
func (h *harness) seedHierarchy() {
	h.store.forums["F1"] = &entity.Forum{ID: "F1", Name: "North", AdminUserID: "FA"}
	h.store.areas["AR1"] = &entity.Area{ID: "AR1", ForumID: "F1", Name: "Harbor", AdminUserID: "AA"}
	h.store.units["U1"] = &entity.Unit{ID: "U1", AreaID: "AR1", Name: "Pier", AdminUserID: "A1"}
}

func portFilter(status entity.RequestStatus) port.RequestFilter {
	return port.RequestFilter{Status: status}
}
