package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// errUnresolvable marks a stage whose approver cannot be determined from the
// request. Optional stages are skipped on it; required stages fail.
var errUnresolvable = errors.New("approver cannot be resolved")

// Assignment is the resolved approver of one stage execution
type Assignment struct {
	ApproverID string
	RoleID     string
}

// ApproverResolver maps a stage's approver rule to a concrete assignment
type ApproverResolver struct {
	forums port.ForumRepository
	areas  port.AreaRepository
	units  port.UnitRepository
}

// NewApproverResolver creates a resolver over the hierarchy repositories
func NewApproverResolver(forums port.ForumRepository, areas port.AreaRepository, units port.UnitRepository) *ApproverResolver {
	return &ApproverResolver{forums: forums, areas: areas, units: units}
}

// Resolve returns the assignment for stage on req. Repository failures are
// returned as-is; everything else that prevents resolution wraps errUnresolvable.
func (r *ApproverResolver) Resolve(ctx context.Context, stage *entity.ApprovalStage, req *entity.ApprovalRequest) (Assignment, error) {
	switch stage.ApproverType {
	case entity.ApproverTypeSpecificUser:
		if stage.UserID == "" {
			return Assignment{}, fmt.Errorf("%w: stage %d has no user", errUnresolvable, stage.StageOrder)
		}
		return Assignment{ApproverID: stage.UserID}, nil

	case entity.ApproverTypeRole:
		if stage.RoleID == "" {
			return Assignment{}, fmt.Errorf("%w: stage %d has no role", errUnresolvable, stage.StageOrder)
		}
		return Assignment{RoleID: stage.RoleID}, nil

	case entity.ApproverTypeHierarchy:
		admin, err := r.hierarchyAdmin(ctx, stage.HierarchyLevel, req)
		if err != nil {
			return Assignment{}, err
		}
		return Assignment{ApproverID: admin}, nil
	}

	return Assignment{}, fmt.Errorf("%w: unknown approver type %q", errUnresolvable, stage.ApproverType)
}

func (r *ApproverResolver) hierarchyAdmin(ctx context.Context, level entity.HierarchyLevel, req *entity.ApprovalRequest) (string, error) {
	var ref, admin string
	var found bool

	switch level {
	case entity.HierarchyLevelUnit:
		ref = req.UnitID
		if ref == "" {
			break
		}
		unit, err := r.units.GetByID(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("get unit %s: %w", ref, err)
		}
		if unit != nil {
			found, admin = true, unit.AdminUserID
		}

	case entity.HierarchyLevelArea:
		ref = req.AreaID
		if ref == "" {
			break
		}
		area, err := r.areas.GetByID(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("get area %s: %w", ref, err)
		}
		if area != nil {
			found, admin = true, area.AdminUserID
		}

	case entity.HierarchyLevelForum:
		ref = req.ForumID
		if ref == "" {
			break
		}
		forum, err := r.forums.GetByID(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("get forum %s: %w", ref, err)
		}
		if forum != nil {
			found, admin = true, forum.AdminUserID
		}

	default:
		return "", fmt.Errorf("%w: unknown hierarchy level %q", errUnresolvable, level)
	}

	switch {
	case ref == "":
		return "", fmt.Errorf("%w: request has no %s reference", errUnresolvable, level)
	case !found:
		return "", fmt.Errorf("%w: %s %s not found", errUnresolvable, level, ref)
	case admin == "":
		return "", fmt.Errorf("%w: %s %s has no administrator", errUnresolvable, level, ref)
	}
	return admin, nil
}
