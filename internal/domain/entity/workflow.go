package entity

import (
	"fmt"
	"strings"
	"time"
)

// ApproverType selects how the approver of a stage is resolved
type ApproverType string

const (
	ApproverTypeRole         ApproverType = "ROLE"
	ApproverTypeSpecificUser ApproverType = "SPECIFIC_USER"
	ApproverTypeHierarchy    ApproverType = "HIERARCHY"
)

// IsValid reports whether the approver type is known
func (t ApproverType) IsValid() bool {
	switch t {
	case ApproverTypeRole, ApproverTypeSpecificUser, ApproverTypeHierarchy:
		return true
	}
	return false
}

// HierarchyLevel names the organizational level whose admin approves a stage
type HierarchyLevel string

const (
	HierarchyLevelUnit  HierarchyLevel = "UNIT"
	HierarchyLevelArea  HierarchyLevel = "AREA"
	HierarchyLevelForum HierarchyLevel = "FORUM"
)

// IsValid reports whether the hierarchy level is known
func (l HierarchyLevel) IsValid() bool {
	switch l {
	case HierarchyLevelUnit, HierarchyLevelArea, HierarchyLevelForum:
		return true
	}
	return false
}

// ApprovalWorkflow is a named, reusable definition of an ordered approval process
// for one entity type. Workflows are deactivated, never deleted.
type ApprovalWorkflow struct {
	ID                string    `json:"workflowId"`
	Code              string    `json:"workflowCode"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Module            string    `json:"module"`
	EntityType        string    `json:"entityType"`
	IsActive          bool      `json:"isActive"`
	RequiresAllStages bool      `json:"requiresAllStages"`
	CreatedBy         string    `json:"createdBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ApprovalStage is one ordered step of a workflow
type ApprovalStage struct {
	ID             string         `json:"stageId"`
	WorkflowID     string         `json:"workflowId"`
	StageOrder     int            `json:"stageOrder"`
	Name           string         `json:"name,omitempty"`
	ApproverType   ApproverType   `json:"approverType"`
	RoleID         string         `json:"roleId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	HierarchyLevel HierarchyLevel `json:"hierarchyLevel,omitempty"`
	IsOptional     bool           `json:"isOptional"`
	AutoApprove    bool           `json:"autoApprove"`

	// Condition is an optional boolean expression; the stage is skipped when it is false
	Condition string `json:"condition,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks that exactly the approver field matching ApproverType is populated
func (s *ApprovalStage) Validate() error {
	if s.StageOrder < 1 {
		return fmt.Errorf("stage order must be positive, got %d", s.StageOrder)
	}
	if !s.ApproverType.IsValid() {
		return fmt.Errorf("stage %d: unknown approver type %q", s.StageOrder, s.ApproverType)
	}

	populated := 0
	for _, v := range []string{s.RoleID, s.UserID, string(s.HierarchyLevel)} {
		if strings.TrimSpace(v) != "" {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("stage %d: exactly one of roleId, userId, hierarchyLevel must be set", s.StageOrder)
	}

	switch s.ApproverType {
	case ApproverTypeRole:
		if s.RoleID == "" {
			return fmt.Errorf("stage %d: roleId is required for %s", s.StageOrder, s.ApproverType)
		}
	case ApproverTypeSpecificUser:
		if s.UserID == "" {
			return fmt.Errorf("stage %d: userId is required for %s", s.StageOrder, s.ApproverType)
		}
	case ApproverTypeHierarchy:
		if !s.HierarchyLevel.IsValid() {
			return fmt.Errorf("stage %d: invalid hierarchy level %q", s.StageOrder, s.HierarchyLevel)
		}
	}
	return nil
}
