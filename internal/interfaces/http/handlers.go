package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/application/service"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	exporter Exporter
	health   HealthChecker
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, exporter Exporter, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		exporter: exporter,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// PageQuery holds limit/offset query parameters
type PageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ListRequestsQuery holds query parameters for listing requests
type ListRequestsQuery struct {
	PageQuery
	WorkflowCode string `form:"workflowCode"`
	EntityType   string `form:"entityType"`
	Status       string `form:"status"`
	RequestedBy  string `form:"requestedBy"`
}

// DecisionBody is the body of POST /api/executions/:id/decision
type DecisionBody struct {
	Decision entity.Decision `json:"decision" binding:"required"`
	Comments string          `json:"comments"`
}

// CancelBody is the body of POST /api/requests/:id/cancel
type CancelBody struct {
	Reason string `json:"reason"`
}

func (h *Handlers) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail writes err with its mapped status; server errors are logged and masked
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err, "path", c.Request.URL.Path)
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, details := true, interface{}(nil)
	if h.health != nil {
		healthy, details = h.health()
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: details,
	}
	if !healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp})
		return
	}
	h.ok(c, http.StatusOK, resp)
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var in service.CreateWorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	def, err := h.services.Workflows.CreateWorkflow(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "create workflow", err)
		return
	}
	h.ok(c, http.StatusCreated, def)
}

// ListWorkflows handles GET /api/workflows?module=&all=
func (h *Handlers) ListWorkflows(c *gin.Context) {
	var (
		workflows []*entity.ApprovalWorkflow
		err       error
	)
	if c.Query("all") == "true" {
		workflows, err = h.services.Workflows.ListAllWorkflows(c.Request.Context())
	} else {
		workflows, err = h.services.Workflows.ListActiveWorkflows(c.Request.Context(), c.Query("module"))
	}
	if err != nil {
		h.fail(c, "list workflows", err)
		return
	}
	h.ok(c, http.StatusOK, workflows)
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.services.Workflows.GetWorkflowByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get workflow", err)
		return
	}
	h.ok(c, http.StatusOK, def)
}

// GetWorkflowByCode handles GET /api/workflows/code/:code
func (h *Handlers) GetWorkflowByCode(c *gin.Context) {
	def, err := h.services.Workflows.GetWorkflowByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, "get workflow by code", err)
		return
	}
	h.ok(c, http.StatusOK, def)
}

// UpdateWorkflow handles PATCH /api/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var in service.UpdateWorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	def, err := h.services.Workflows.UpdateWorkflow(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, "update workflow", err)
		return
	}
	h.ok(c, http.StatusOK, def)
}

// SubmitRequest handles POST /api/requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var in service.SubmitRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	detail, err := h.services.Requests.SubmitRequest(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "submit request", err)
		return
	}
	h.ok(c, http.StatusCreated, detail)
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	filter, ok := h.requestFilter(c)
	if !ok {
		return
	}

	requests, err := h.services.Requests.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "list requests", err)
		return
	}
	h.ok(c, http.StatusOK, requests)
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	detail, err := h.services.Requests.GetRequestByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get request", err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// GetRequestByEntity handles GET /api/requests/entity/:type/:id
func (h *Handlers) GetRequestByEntity(c *gin.Context) {
	detail, err := h.services.Requests.GetRequestByEntity(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		h.fail(c, "get request by entity", err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// CancelRequest handles POST /api/requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	var body CancelBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, "invalid request body")
			return
		}
	}

	detail, err := h.services.Requests.CancelRequest(c.Request.Context(), actorFrom(c), c.Param("id"), body.Reason)
	if err != nil {
		h.fail(c, "cancel request", err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// ExportRequests handles GET /api/requests/export with the ListRequests filters
func (h *Handlers) ExportRequests(c *gin.Context) {
	filter, ok := h.requestFilter(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	requests, err := h.services.Requests.ListRequests(ctx, filter)
	if err != nil {
		h.fail(c, "export requests", err)
		return
	}

	rows := make([]report.Row, 0, len(requests))
	for _, req := range requests {
		detail, err := h.services.Requests.GetRequestByID(ctx, req.ID)
		if err != nil {
			h.fail(c, "export requests", err)
			return
		}
		rows = append(rows, report.Row{Request: detail.Request, Executions: detail.Executions})
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(&buf, rows); err != nil {
		h.fail(c, "export requests", err)
		return
	}

	filename := fmt.Sprintf("approval-requests-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// DecideExecution handles POST /api/executions/:id/decision
func (h *Handlers) DecideExecution(c *gin.Context) {
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "decision is required")
		return
	}

	detail, err := h.services.Requests.ProcessApproval(c.Request.Context(), actorFrom(c), service.ProcessApprovalInput{
		ExecutionID: c.Param("id"),
		Decision:    entity.Decision(strings.ToUpper(string(body.Decision))),
		Comments:    body.Comments,
	})
	if err != nil {
		h.fail(c, "process approval", err)
		return
	}
	h.ok(c, http.StatusOK, detail)
}

// ListPendingApprovals handles GET /api/approvals/pending?approverId=&roles=.
// Without query parameters the acting principal's own queue is listed.
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	approverID := c.Query("approverId")
	roles := splitList(c.Query("roles"))
	if approverID == "" && len(roles) == 0 {
		actor := actorFrom(c)
		approverID, roles = actor.UserID, actor.Roles
	}

	pending, err := h.services.Requests.GetPendingApprovals(c.Request.Context(), approverID, roles)
	if err != nil {
		h.fail(c, "list pending approvals", err)
		return
	}
	h.ok(c, http.StatusOK, pending)
}

// RegisterAgent handles POST /api/agents
func (h *Handlers) RegisterAgent(c *gin.Context) {
	var in service.RegisterAgentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	reg, err := h.services.Registrations.RegisterAgent(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "register agent", err)
		return
	}
	h.ok(c, http.StatusCreated, reg)
}

// ListAgents handles GET /api/agents
func (h *Handlers) ListAgents(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	agents, err := h.services.Registrations.ListAgents(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, "list agents", err)
		return
	}
	h.ok(c, http.StatusOK, agents)
}

// GetAgent handles GET /api/agents/:id
func (h *Handlers) GetAgent(c *gin.Context) {
	agent, err := h.services.Registrations.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get agent", err)
		return
	}
	h.ok(c, http.StatusOK, agent)
}

// RegisterMember handles POST /api/members
func (h *Handlers) RegisterMember(c *gin.Context) {
	var in service.RegisterMemberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	reg, err := h.services.Registrations.RegisterMember(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "register member", err)
		return
	}
	h.ok(c, http.StatusCreated, reg)
}

// ListMembers handles GET /api/members
func (h *Handlers) ListMembers(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	members, err := h.services.Registrations.ListMembers(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, "list members", err)
		return
	}
	h.ok(c, http.StatusOK, members)
}

// GetMember handles GET /api/members/:id
func (h *Handlers) GetMember(c *gin.Context) {
	member, err := h.services.Registrations.GetMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get member", err)
		return
	}
	h.ok(c, http.StatusOK, member)
}

func (h *Handlers) requestFilter(c *gin.Context) (port.RequestFilter, bool) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return port.RequestFilter{}, false
	}
	return port.RequestFilter{
		WorkflowCode: q.WorkflowCode,
		EntityType:   q.EntityType,
		Status:       entity.RequestStatus(strings.ToUpper(q.Status)),
		RequestedBy:  q.RequestedBy,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
