package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/application/service"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/report"
)

// mockWorkflowService implements service.WorkflowService for testing
type mockWorkflowService struct {
	createFunc     func(ctx context.Context, actor entity.Actor, in service.CreateWorkflowInput) (*service.WorkflowDefinition, error)
	updateFunc     func(ctx context.Context, actor entity.Actor, id string, in service.UpdateWorkflowInput) (*service.WorkflowDefinition, error)
	getByIDFunc    func(ctx context.Context, id string) (*service.WorkflowDefinition, error)
	getByCodeFunc  func(ctx context.Context, code string) (*service.WorkflowDefinition, error)
	listActiveFunc func(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error)
	listAllFunc    func(ctx context.Context) ([]*entity.ApprovalWorkflow, error)
}

func (m *mockWorkflowService) CreateWorkflow(ctx context.Context, actor entity.Actor, in service.CreateWorkflowInput) (*service.WorkflowDefinition, error) {
	return m.createFunc(ctx, actor, in)
}

func (m *mockWorkflowService) UpdateWorkflow(ctx context.Context, actor entity.Actor, id string, in service.UpdateWorkflowInput) (*service.WorkflowDefinition, error) {
	return m.updateFunc(ctx, actor, id, in)
}

func (m *mockWorkflowService) GetWorkflowByID(ctx context.Context, id string) (*service.WorkflowDefinition, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockWorkflowService) GetWorkflowByCode(ctx context.Context, code string) (*service.WorkflowDefinition, error) {
	return m.getByCodeFunc(ctx, code)
}

func (m *mockWorkflowService) ListActiveWorkflows(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error) {
	return m.listActiveFunc(ctx, module)
}

func (m *mockWorkflowService) ListAllWorkflows(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
	return m.listAllFunc(ctx)
}

// mockRequestService implements service.RequestService for testing
type mockRequestService struct {
	submitFunc      func(ctx context.Context, actor entity.Actor, in service.SubmitRequestInput) (*service.RequestDetail, error)
	processFunc     func(ctx context.Context, actor entity.Actor, in service.ProcessApprovalInput) (*service.RequestDetail, error)
	cancelFunc      func(ctx context.Context, actor entity.Actor, requestID, reason string) (*service.RequestDetail, error)
	pendingFunc     func(ctx context.Context, approverID string, roles []string) ([]*service.PendingApproval, error)
	getByIDFunc     func(ctx context.Context, id string) (*service.RequestDetail, error)
	getByEntityFunc func(ctx context.Context, entityType, entityID string) (*service.RequestDetail, error)
	listFunc        func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
}

func (m *mockRequestService) SubmitRequest(ctx context.Context, actor entity.Actor, in service.SubmitRequestInput) (*service.RequestDetail, error) {
	return m.submitFunc(ctx, actor, in)
}

func (m *mockRequestService) ProcessApproval(ctx context.Context, actor entity.Actor, in service.ProcessApprovalInput) (*service.RequestDetail, error) {
	return m.processFunc(ctx, actor, in)
}

func (m *mockRequestService) CancelRequest(ctx context.Context, actor entity.Actor, requestID, reason string) (*service.RequestDetail, error) {
	return m.cancelFunc(ctx, actor, requestID, reason)
}

func (m *mockRequestService) GetPendingApprovals(ctx context.Context, approverID string, roles []string) ([]*service.PendingApproval, error) {
	return m.pendingFunc(ctx, approverID, roles)
}

func (m *mockRequestService) GetRequestByID(ctx context.Context, id string) (*service.RequestDetail, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRequestService) GetRequestByEntity(ctx context.Context, entityType, entityID string) (*service.RequestDetail, error) {
	return m.getByEntityFunc(ctx, entityType, entityID)
}

func (m *mockRequestService) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	return m.listFunc(ctx, filter)
}

// mockRegistrationService implements service.RegistrationService for testing
type mockRegistrationService struct {
	registerAgentFunc  func(ctx context.Context, actor entity.Actor, in service.RegisterAgentInput) (*service.AgentRegistration, error)
	registerMemberFunc func(ctx context.Context, actor entity.Actor, in service.RegisterMemberInput) (*service.MemberRegistration, error)
	getAgentFunc       func(ctx context.Context, id string) (*entity.Agent, error)
	listAgentsFunc     func(ctx context.Context, limit, offset int) ([]*entity.Agent, error)
	getMemberFunc      func(ctx context.Context, id string) (*entity.Member, error)
	listMembersFunc    func(ctx context.Context, limit, offset int) ([]*entity.Member, error)
}

func (m *mockRegistrationService) RegisterAgent(ctx context.Context, actor entity.Actor, in service.RegisterAgentInput) (*service.AgentRegistration, error) {
	return m.registerAgentFunc(ctx, actor, in)
}

func (m *mockRegistrationService) RegisterMember(ctx context.Context, actor entity.Actor, in service.RegisterMemberInput) (*service.MemberRegistration, error) {
	return m.registerMemberFunc(ctx, actor, in)
}

func (m *mockRegistrationService) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	return m.getAgentFunc(ctx, id)
}

func (m *mockRegistrationService) ListAgents(ctx context.Context, limit, offset int) ([]*entity.Agent, error) {
	return m.listAgentsFunc(ctx, limit, offset)
}

func (m *mockRegistrationService) GetMember(ctx context.Context, id string) (*entity.Member, error) {
	return m.getMemberFunc(ctx, id)
}

func (m *mockRegistrationService) ListMembers(ctx context.Context, limit, offset int) ([]*entity.Member, error) {
	return m.listMembersFunc(ctx, limit, offset)
}

// mockLogger implements Logger for testing
type mockLogger struct {
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.errors = append(m.errors, msg)
}

type testEnv struct {
	workflows     *mockWorkflowService
	requests      *mockRequestService
	registrations *mockRegistrationService
	logger        *mockLogger
	healthy       bool
	server        *Server
}

func newTestEnv() *testEnv {
	env := &testEnv{
		workflows:     &mockWorkflowService{},
		requests:      &mockRequestService{},
		registrations: &mockRegistrationService{},
		logger:        &mockLogger{},
		healthy:       true,
	}
	health := func() (bool, interface{}) {
		return env.healthy, map[string]bool{"database": env.healthy}
	}
	env.server = NewServer(ServerConfig{Mode: "test"}, Services{
		Workflows:     env.workflows,
		Requests:      env.requests,
		Registrations: env.registrations,
	}, report.NewExcelExporter(zap.NewNop()), health, env.logger)
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) Response {
	t.Helper()
	var resp Response
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var clerkHeaders = map[string]string{headerUserID: "clerk-1", headerUserRoles: "clerk, finance ,"}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	resp := decode(t, rec, &health)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", health.Status)

	env.healthy = false
	rec = env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActorMiddleware(t *testing.T) {
	env := newTestEnv()
	var got entity.Actor
	env.workflows.createFunc = func(ctx context.Context, actor entity.Actor, in service.CreateWorkflowInput) (*service.WorkflowDefinition, error) {
		got = actor
		return &service.WorkflowDefinition{Workflow: &entity.ApprovalWorkflow{Code: in.Code}}, nil
	}

	rec := env.do(http.MethodPost, "/api/workflows", map[string]interface{}{"workflowCode": "wf"}, clerkHeaders)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, entity.Actor{UserID: "clerk-1", Roles: []string{"clerk", "finance"}}, got)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"bad request", apperr.BadRequest("stages are required"), http.StatusBadRequest, "stages are required"},
		{"unauthorized", apperr.Unauthorized("no acting principal"), http.StatusUnauthorized, "no acting principal"},
		{"not found", apperr.NotFound("workflow wf"), http.StatusNotFound, "workflow wf"},
		{"conflict", apperr.Conflict("workflow code wf already exists"), http.StatusConflict, "already exists"},
		{"internal", assert.AnError, http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.workflows.getByCodeFunc = func(ctx context.Context, code string) (*service.WorkflowDefinition, error) {
				return nil, tt.err
			}

			rec := env.do(http.MethodGet, "/api/workflows/code/wf", nil, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec, nil)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantMsg)

			if tt.wantStatus == http.StatusInternalServerError {
				assert.Len(t, env.logger.errors, 1)
			} else {
				assert.Empty(t, env.logger.errors)
			}
		})
	}
}

func TestWorkflowRoutes(t *testing.T) {
	env := newTestEnv()
	env.workflows.listActiveFunc = func(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error) {
		return []*entity.ApprovalWorkflow{{Code: "active-" + module}}, nil
	}
	env.workflows.listAllFunc = func(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
		return []*entity.ApprovalWorkflow{{Code: "a"}, {Code: "b"}}, nil
	}
	env.workflows.getByIDFunc = func(ctx context.Context, id string) (*service.WorkflowDefinition, error) {
		return &service.WorkflowDefinition{Workflow: &entity.ApprovalWorkflow{ID: id}}, nil
	}
	env.workflows.updateFunc = func(ctx context.Context, actor entity.Actor, id string, in service.UpdateWorkflowInput) (*service.WorkflowDefinition, error) {
		require.NotNil(t, in.IsActive)
		return &service.WorkflowDefinition{Workflow: &entity.ApprovalWorkflow{ID: id, IsActive: *in.IsActive}}, nil
	}

	var list []*entity.ApprovalWorkflow
	decode(t, env.do(http.MethodGet, "/api/workflows?module=agents", nil, nil), &list)
	require.Len(t, list, 1)
	assert.Equal(t, "active-agents", list[0].Code)

	list = nil
	decode(t, env.do(http.MethodGet, "/api/workflows?all=true", nil, nil), &list)
	assert.Len(t, list, 2)

	var def service.WorkflowDefinition
	rec := env.do(http.MethodGet, "/api/workflows/wf-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &def)
	assert.Equal(t, "wf-1", def.Workflow.ID)

	rec = env.do(http.MethodPatch, "/api/workflows/wf-1", map[string]interface{}{"isActive": false}, clerkHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/workflows", nil, clerkHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing body")
}

func TestDecideExecution(t *testing.T) {
	env := newTestEnv()
	var got service.ProcessApprovalInput
	env.requests.processFunc = func(ctx context.Context, actor entity.Actor, in service.ProcessApprovalInput) (*service.RequestDetail, error) {
		got = in
		return &service.RequestDetail{Request: &entity.ApprovalRequest{ID: "req-1", Status: entity.RequestStatusApproved}}, nil
	}

	rec := env.do(http.MethodPost, "/api/executions/exec-1/decision",
		map[string]string{"decision": "approve", "comments": "looks good"}, clerkHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ProcessApprovalInput{ExecutionID: "exec-1", Decision: entity.DecisionApprove, Comments: "looks good"}, got)

	rec = env.do(http.MethodPost, "/api/executions/exec-1/decision", map[string]string{"comments": "?"}, clerkHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestRoutes(t *testing.T) {
	env := newTestEnv()
	var gotFilter port.RequestFilter
	env.requests.listFunc = func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
		gotFilter = filter
		return []*entity.ApprovalRequest{{ID: "req-1"}}, nil
	}
	env.requests.getByEntityFunc = func(ctx context.Context, entityType, entityID string) (*service.RequestDetail, error) {
		return &service.RequestDetail{Request: &entity.ApprovalRequest{EntityType: entityType, EntityID: entityID}}, nil
	}
	var cancelReason string
	env.requests.cancelFunc = func(ctx context.Context, actor entity.Actor, requestID, reason string) (*service.RequestDetail, error) {
		cancelReason = reason
		return &service.RequestDetail{Request: &entity.ApprovalRequest{ID: requestID, Status: entity.RequestStatusCancelled}}, nil
	}
	env.requests.submitFunc = func(ctx context.Context, actor entity.Actor, in service.SubmitRequestInput) (*service.RequestDetail, error) {
		return &service.RequestDetail{Request: &entity.ApprovalRequest{WorkflowCode: in.WorkflowCode, RequestedBy: actor.UserID}}, nil
	}

	rec := env.do(http.MethodGet, "/api/requests?status=pending&entityType=Agent&limit=5&offset=10", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, port.RequestFilter{EntityType: "Agent", Status: entity.RequestStatusPending, Limit: 5, Offset: 10}, gotFilter)

	rec = env.do(http.MethodGet, "/api/requests?limit=many", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var detail service.RequestDetail
	decode(t, env.do(http.MethodGet, "/api/requests/entity/Member/m-1", nil, nil), &detail)
	assert.Equal(t, "Member", detail.Request.EntityType)
	assert.Equal(t, "m-1", detail.Request.EntityID)

	rec = env.do(http.MethodPost, "/api/requests/req-1/cancel", map[string]string{"reason": "duplicate"}, clerkHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", cancelReason)

	rec = env.do(http.MethodPost, "/api/requests/req-1/cancel", nil, clerkHeaders)
	assert.Equal(t, http.StatusOK, rec.Code, "reason is optional")

	rec = env.do(http.MethodPost, "/api/requests", map[string]interface{}{"workflowCode": "wf", "entityType": "Agent", "entityId": "a-1"}, clerkHeaders)
	assert.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &detail)
	assert.Equal(t, "clerk-1", detail.Request.RequestedBy)
}

func TestListPendingApprovals(t *testing.T) {
	env := newTestEnv()
	var gotApprover string
	var gotRoles []string
	env.requests.pendingFunc = func(ctx context.Context, approverID string, roles []string) ([]*service.PendingApproval, error) {
		gotApprover, gotRoles = approverID, roles
		return []*service.PendingApproval{}, nil
	}

	rec := env.do(http.MethodGet, "/api/approvals/pending", nil, clerkHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clerk-1", gotApprover)
	assert.Equal(t, []string{"clerk", "finance"}, gotRoles)

	env.do(http.MethodGet, "/api/approvals/pending?roles=compliance", nil, clerkHeaders)
	assert.Equal(t, "", gotApprover)
	assert.Equal(t, []string{"compliance"}, gotRoles)
}

func TestRegistrationRoutes(t *testing.T) {
	env := newTestEnv()
	env.registrations.registerAgentFunc = func(ctx context.Context, actor entity.Actor, in service.RegisterAgentInput) (*service.AgentRegistration, error) {
		return &service.AgentRegistration{Agent: &entity.Agent{ID: "agent-1", Name: in.Name, UnitID: in.UnitID}}, nil
	}
	env.registrations.registerMemberFunc = func(ctx context.Context, actor entity.Actor, in service.RegisterMemberInput) (*service.MemberRegistration, error) {
		return nil, apperr.BadRequest("agent %s is PENDING_APPROVAL, not ACTIVE", in.AgentID)
	}
	var gotLimit, gotOffset int
	env.registrations.listMembersFunc = func(ctx context.Context, limit, offset int) ([]*entity.Member, error) {
		gotLimit, gotOffset = limit, offset
		return nil, nil
	}
	env.registrations.getAgentFunc = func(ctx context.Context, id string) (*entity.Agent, error) {
		return nil, apperr.NotFound("agent %s", id)
	}

	rec := env.do(http.MethodPost, "/api/agents", map[string]string{"name": "Ada", "unitId": "unit-1"}, clerkHeaders)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/members", map[string]string{"name": "Grace", "agentId": "agent-1"}, clerkHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/members?limit=20&offset=40", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 40, gotOffset)

	rec = env.do(http.MethodGet, "/api/agents/nobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportRequests(t *testing.T) {
	env := newTestEnv()
	stage := 1
	requested := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.requests.listFunc = func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
		return []*entity.ApprovalRequest{{ID: "req-1"}, {ID: "req-2"}}, nil
	}
	env.requests.getByIDFunc = func(ctx context.Context, id string) (*service.RequestDetail, error) {
		return &service.RequestDetail{
			Request: &entity.ApprovalRequest{
				ID: id, WorkflowCode: "agent_registration", EntityType: "Agent", EntityID: "a-" + id,
				Status: entity.RequestStatusPending, CurrentStageOrder: &stage, RequestedAt: requested,
			},
			Executions: []*entity.ApprovalStageExecution{
				{ID: "exec-" + id, RequestID: id, StageOrder: 1, AssignedApproverID: "unit-admin", Status: entity.ExecutionStatusPending},
			},
		}, nil
	}

	rec := env.do(http.MethodGet, "/api/requests/export?workflowCode=agent_registration", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Requests")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	stages, err := f.GetRows("Stages")
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, "req-2", stages[2][0])
}
