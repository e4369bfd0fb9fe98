package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

func TestApproverResolver_Resolve(t *testing.T) {
	store := newMemStore()
	store.forums["F1"] = &entity.Forum{ID: "F1", AdminUserID: "FA"}
	store.areas["AR1"] = &entity.Area{ID: "AR1", ForumID: "F1", AdminUserID: "AA"}
	store.units["U1"] = &entity.Unit{ID: "U1", AreaID: "AR1", AdminUserID: "A1"}
	store.units["U2"] = &entity.Unit{ID: "U2", AreaID: "AR1"}

	r := NewApproverResolver(&fakeForumRepo{s: store}, &fakeAreaRepo{s: store}, &fakeUnitRepo{s: store})
	full := &entity.ApprovalRequest{ForumID: "F1", AreaID: "AR1", UnitID: "U1"}

	tests := []struct {
		name             string
		stage            *entity.ApprovalStage
		req              *entity.ApprovalRequest
		want             Assignment
		wantUnresolvable bool
	}{
		{
			name:  "specific user",
			stage: &entity.ApprovalStage{ApproverType: entity.ApproverTypeSpecificUser, UserID: "u-9"},
			req:   full,
			want:  Assignment{ApproverID: "u-9"},
		},
		{
			name:  "role",
			stage: &entity.ApprovalStage{ApproverType: entity.ApproverTypeRole, RoleID: "finance"},
			req:   full,
			want:  Assignment{RoleID: "finance"},
		},
		{
			name:  "unit admin",
			stage: &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelUnit},
			req:   full,
			want:  Assignment{ApproverID: "A1"},
		},
		{
			name:  "area admin",
			stage: &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelArea},
			req:   full,
			want:  Assignment{ApproverID: "AA"},
		},
		{
			name:  "forum admin",
			stage: &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelForum},
			req:   full,
			want:  Assignment{ApproverID: "FA"},
		},
		{
			name:             "missing reference",
			stage:            &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelForum},
			req:              &entity.ApprovalRequest{UnitID: "U1"},
			wantUnresolvable: true,
		},
		{
			name:             "unit without admin",
			stage:            &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelUnit},
			req:              &entity.ApprovalRequest{UnitID: "U2"},
			wantUnresolvable: true,
		},
		{
			name:             "unknown unit",
			stage:            &entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelUnit},
			req:              &entity.ApprovalRequest{UnitID: "U404"},
			wantUnresolvable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.stage, tt.req)
			if tt.wantUnresolvable {
				assert.ErrorIs(t, err, errUnresolvable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApproverResolver_RepositoryErrorPropagates(t *testing.T) {
	store := newMemStore()
	boom := errors.New("database is locked")
	units := &fakeUnitRepo{s: store, getByIDFunc: func(ctx context.Context, id string) (*entity.Unit, error) {
		return nil, boom
	}}
	r := NewApproverResolver(&fakeForumRepo{s: store}, &fakeAreaRepo{s: store}, units)

	_, err := r.Resolve(context.Background(),
		&entity.ApprovalStage{ApproverType: entity.ApproverTypeHierarchy, HierarchyLevel: entity.HierarchyLevelUnit},
		&entity.ApprovalRequest{UnitID: "U1"})

	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, errUnresolvable))
}
