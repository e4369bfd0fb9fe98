package workflow

// RequestLifecycle governs approval requests. A request moves only out of
// PENDING; ADVANCE keeps it pending while the current stage changes.
var RequestLifecycle = requestLifecycle()

// ExecutionLifecycle governs a single stage execution
var ExecutionLifecycle = executionLifecycle()

func requestLifecycle() *Definition {
	b := NewBuilder("request")
	b.Configure(StatePending).
		Permit(TriggerAdvance, StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled)
	return b.Build()
}

func executionLifecycle() *Definition {
	b := NewBuilder("stage execution")
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerSkip, StateSkipped)
	return b.Build()
}
