package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

func TestConditionEvaluator_Evaluate(t *testing.T) {
	req := &entity.ApprovalRequest{
		EntityType: entity.EntityTypeMember,
		EntityID:   "m-1",
		UnitID:     "U1",
		Attributes: map[string]interface{}{"registrationFeeCents": 12000, "vip": true},
	}

	tests := []struct {
		name       string
		expression string
		want       bool
		wantErr    bool
	}{
		{name: "empty is true", expression: "", want: true},
		{name: "entity type", expression: `entityType == "Member"`, want: true},
		{name: "attribute threshold", expression: "attributes.registrationFeeCents > 10000", want: true},
		{name: "attribute below threshold", expression: "attributes.registrationFeeCents > 50000", want: false},
		{name: "boolean attribute", expression: "attributes.vip == true", want: true},
		{name: "unit reference", expression: `unitId != ""`, want: true},
		{name: "syntax error", expression: "unitId ==", wantErr: true},
	}

	e := NewConditionEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expression, req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvaluator_CachesPrograms(t *testing.T) {
	e := NewConditionEvaluator()
	require.NoError(t, e.Compile(`entityType == "Agent"`))
	require.NoError(t, e.Compile(`entityType == "Agent"`))
	assert.Len(t, e.cache, 1)

	assert.Error(t, e.Compile(`entityId + "x"`), "non-boolean expressions are rejected")
	assert.Len(t, e.cache, 1)
}

func TestConditionEvaluator_NilAttributes(t *testing.T) {
	e := NewConditionEvaluator()
	got, err := e.Evaluate(`entityType == "Agent"`, &entity.ApprovalRequest{EntityType: entity.EntityTypeAgent})
	require.NoError(t, err)
	assert.True(t, got)
}
