package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/pkg/utils"
)

// RegistrationConfig names the workflows gating each registration
type RegistrationConfig struct {
	AgentWorkflowCode     string
	MemberWorkflowCode    string
	DefaultMemberFeeCents int64
}

// RegisterAgentInput describes a new field agent
type RegisterAgentInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	UnitID string `json:"unitId"`
}

// RegisterMemberInput describes a new member enrolled by an active agent.
// A zero fee uses the configured default.
type RegisterMemberInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	AgentID              string `json:"agentId"`
	UnitID               string `json:"unitId"`
	RegistrationFeeCents int64  `json:"registrationFeeCents"`
}

// AgentRegistration is a created agent with its approval request
type AgentRegistration struct {
	Agent   *entity.Agent  `json:"agent"`
	Request *RequestDetail `json:"approval"`
}

// MemberRegistration is a created member with its approval request
type MemberRegistration struct {
	Member  *entity.Member `json:"member"`
	Request *RequestDetail `json:"approval"`
}

// RegistrationService creates agents and members pending approval
type RegistrationService interface {
	RegisterAgent(ctx context.Context, actor entity.Actor, in RegisterAgentInput) (*AgentRegistration, error)
	RegisterMember(ctx context.Context, actor entity.Actor, in RegisterMemberInput) (*MemberRegistration, error)
	GetAgent(ctx context.Context, id string) (*entity.Agent, error)
	ListAgents(ctx context.Context, limit, offset int) ([]*entity.Agent, error)
	GetMember(ctx context.Context, id string) (*entity.Member, error)
	ListMembers(ctx context.Context, limit, offset int) ([]*entity.Member, error)
}

type registrationServiceImpl struct {
	agentRepo  port.AgentRepository
	memberRepo port.MemberRepository
	areaRepo   port.AreaRepository
	unitRepo   port.UnitRepository
	requests   RequestService
	txManager  port.TransactionManager
	logger     Logger
	cfg        RegistrationConfig
}

// NewRegistrationService creates a new RegistrationService
func NewRegistrationService(
	agentRepo port.AgentRepository,
	memberRepo port.MemberRepository,
	areaRepo port.AreaRepository,
	unitRepo port.UnitRepository,
	requests RequestService,
	txManager port.TransactionManager,
	logger Logger,
	cfg RegistrationConfig,
) RegistrationService {
	return &registrationServiceImpl{
		agentRepo:  agentRepo,
		memberRepo: memberRepo,
		areaRepo:   areaRepo,
		unitRepo:   unitRepo,
		requests:   requests,
		txManager:  txManager,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterAgent creates the agent and submits its approval request atomically
func (s *registrationServiceImpl) RegisterAgent(ctx context.Context, actor entity.Actor, in RegisterAgentInput) (*AgentRegistration, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}
	in.Name = utils.SanitizeString(in.Name)
	if in.Name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if err := validateContact(in.Email, in.Phone); err != nil {
		return nil, err
	}

	placement, err := s.placement(ctx, in.UnitID)
	if err != nil {
		return nil, err
	}

	now := utcNow()
	agent := &entity.Agent{
		ID:        newID(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		UnitID:    in.UnitID,
		Status:    entity.LifecycleStatusPendingApproval,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var detail *RequestDetail
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.agentRepo.Create(txCtx, agent); err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		var err error
		detail, err = s.requests.SubmitRequest(txCtx, actor, SubmitRequestInput{
			WorkflowCode: s.cfg.AgentWorkflowCode,
			EntityType:   entity.EntityTypeAgent,
			EntityID:     agent.ID,
			ForumID:      placement.forumID,
			AreaID:       placement.areaID,
			UnitID:       placement.unitID,
			Attributes: map[string]interface{}{
				"name":  agent.Name,
				"email": agent.Email,
			},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to register agent", "error", err, "unit_id", in.UnitID)
		return nil, err
	}

	s.logger.Info("Agent registered", "agent_id", agent.ID, "request_id", detail.Request.ID)
	return &AgentRegistration{Agent: agent, Request: detail}, nil
}

// RegisterMember creates the member and submits its approval request atomically
func (s *registrationServiceImpl) RegisterMember(ctx context.Context, actor entity.Actor, in RegisterMemberInput) (*MemberRegistration, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}
	in.Name = utils.SanitizeString(in.Name)
	if in.Name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if err := validateContact(in.Email, ""); err != nil {
		return nil, err
	}
	if in.RegistrationFeeCents < 0 {
		return nil, apperr.BadRequest("registration fee cannot be negative")
	}

	agent, err := s.agentRepo.GetByID(ctx, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, apperr.NotFound("agent %s", in.AgentID)
	}
	if agent.Status != entity.LifecycleStatusActive {
		return nil, apperr.BadRequest("agent %s is %s, not ACTIVE", agent.ID, agent.Status)
	}

	unitID := in.UnitID
	if unitID == "" {
		unitID = agent.UnitID
	}
	placement, err := s.placement(ctx, unitID)
	if err != nil {
		return nil, err
	}

	fee := in.RegistrationFeeCents
	if fee == 0 {
		fee = s.cfg.DefaultMemberFeeCents
	}

	now := utcNow()
	member := &entity.Member{
		ID:                   newID(),
		Name:                 in.Name,
		Email:                in.Email,
		AgentID:              agent.ID,
		UnitID:               unitID,
		Status:               entity.LifecycleStatusPendingApproval,
		RegistrationFeeCents: fee,
		CreatedBy:            actor.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var detail *RequestDetail
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.memberRepo.Create(txCtx, member); err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		var err error
		detail, err = s.requests.SubmitRequest(txCtx, actor, SubmitRequestInput{
			WorkflowCode: s.cfg.MemberWorkflowCode,
			EntityType:   entity.EntityTypeMember,
			EntityID:     member.ID,
			ForumID:      placement.forumID,
			AreaID:       placement.areaID,
			UnitID:       placement.unitID,
			Attributes: map[string]interface{}{
				"name":                 member.Name,
				"agentId":              member.AgentID,
				"registrationFeeCents": member.RegistrationFeeCents,
			},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to register member", "error", err, "agent_id", in.AgentID)
		return nil, err
	}

	s.logger.Info("Member registered", "member_id", member.ID, "request_id", detail.Request.ID)
	return &MemberRegistration{Member: member, Request: detail}, nil
}

func (s *registrationServiceImpl) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	agent, err := s.agentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, apperr.NotFound("agent %s", id)
	}
	return agent, nil
}

func (s *registrationServiceImpl) ListAgents(ctx context.Context, limit, offset int) ([]*entity.Agent, error) {
	limit, offset = page(limit, offset)
	return s.agentRepo.List(ctx, limit, offset)
}

func (s *registrationServiceImpl) GetMember(ctx context.Context, id string) (*entity.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return nil, apperr.NotFound("member %s", id)
	}
	return member, nil
}

func (s *registrationServiceImpl) ListMembers(ctx context.Context, limit, offset int) ([]*entity.Member, error) {
	limit, offset = page(limit, offset)
	return s.memberRepo.List(ctx, limit, offset)
}

type placement struct {
	forumID string
	areaID  string
	unitID  string
}

// placement walks unit → area → forum so hierarchy approvers can be resolved
func (s *registrationServiceImpl) placement(ctx context.Context, unitID string) (placement, error) {
	if strings.TrimSpace(unitID) == "" {
		return placement{}, apperr.BadRequest("unitId is required")
	}

	unit, err := s.unitRepo.GetByID(ctx, unitID)
	if err != nil {
		return placement{}, fmt.Errorf("get unit: %w", err)
	}
	if unit == nil {
		return placement{}, apperr.BadRequest("unit %s does not exist", unitID)
	}

	p := placement{unitID: unit.ID, areaID: unit.AreaID}
	if unit.AreaID == "" {
		return p, nil
	}

	area, err := s.areaRepo.GetByID(ctx, unit.AreaID)
	if err != nil {
		return placement{}, fmt.Errorf("get area: %w", err)
	}
	if area != nil {
		p.forumID = area.ForumID
	}
	return p, nil
}

// validateContact checks optional contact details when present
func validateContact(email, phone string) error {
	if email != "" {
		if err := utils.ValidateEmail(email); err != nil {
			return apperr.BadRequest("%v", err)
		}
	}
	if phone != "" {
		if err := utils.ValidatePhone(phone); err != nil {
			return apperr.BadRequest("%v", err)
		}
	}
	return nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
