package service

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// ConditionEvaluator evaluates stage conditions against a request.
// Compiled programs are cached by expression text.
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditionEvaluator creates an evaluator with an empty cache
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]*vm.Program)}
}

// Compile checks that expression is a boolean expression over the request
// environment and caches the program
func (e *ConditionEvaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs expression against req. An empty expression is true.
func (e *ConditionEvaluator) Evaluate(expression string, req *entity.ApprovalRequest) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, conditionEnv(req))
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean, got %T", expression, result)
	}
	return b, nil
}

func (e *ConditionEvaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if program, ok = e.cache[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(conditionEnv(&entity.ApprovalRequest{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	e.cache[expression] = program
	return program, nil
}

func conditionEnv(req *entity.ApprovalRequest) map[string]interface{} {
	attrs := req.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return map[string]interface{}{
		"entityType":  req.EntityType,
		"entityId":    req.EntityID,
		"forumId":     req.ForumID,
		"areaId":      req.AreaID,
		"unitId":      req.UnitID,
		"requestedBy": req.RequestedBy,
		"attributes":  attrs,
	}
}
