package orders

// WorkflowType selects one of the declarative stage graphs an order moves
// through.
type WorkflowType string

const (
	WorkflowStandard WorkflowType = "standard"
	WorkflowExpress  WorkflowType = "express"
)

// Stage is a node in a workflow graph. Stages are finer grained than Status;
// the two are kept in sync at the handful of stages listed in statusForStage.
type Stage string

const (
	StageCreated        Stage = "created"
	StageValidation     Stage = "validation"
	StageInventoryCheck Stage = "inventory_check"
	StageCreditCheck    Stage = "credit_check"
	StageApproval       Stage = "approval"
	StageConfirmed      Stage = "confirmed"
	StageProcessing     Stage = "processing"
	StagePicking        Stage = "picking"
	StagePacking        Stage = "packing"
	StageShipping       Stage = "shipping"
	StageDelivered      Stage = "delivered"
	StageCompleted      Stage = "completed"

	// StagePaymentCompleted is an off-graph marker written when a payment is
	// captured. Advancement from it is a no-op; fulfilment resumes when the
	// shipping label moves the order to StageShipping.
	StagePaymentCompleted Stage = "payment_completed"

	// StageCancelled is terminal and reachable from any non-final stage.
	StageCancelled Stage = "cancelled"
)

// StageDef is one node of a workflow definition. Auto stages are advanced by
// the engine without human input; manual stages park the order until a
// completion signal arrives.
type StageDef struct {
	Stage Stage
	Next  Stage
	Auto  bool
}

// workflows holds the immutable stage graphs. Automated checks (validation,
// inventory and credit checks) run inline and auto-advance; human gates
// (approval, warehouse picking and packing) and externally driven stages
// (shipping) park the order.
var workflows = map[WorkflowType][]StageDef{
	WorkflowStandard: {
		{Stage: StageCreated, Next: StageValidation, Auto: true},
		{Stage: StageValidation, Next: StageInventoryCheck, Auto: true},
		{Stage: StageInventoryCheck, Next: StageCreditCheck, Auto: true},
		{Stage: StageCreditCheck, Next: StageApproval, Auto: true},
		{Stage: StageApproval, Next: StageConfirmed, Auto: false},
		{Stage: StageConfirmed, Next: StageProcessing, Auto: true},
		{Stage: StageProcessing, Next: StagePicking, Auto: false},
		{Stage: StagePicking, Next: StagePacking, Auto: false},
		{Stage: StagePacking, Next: StageShipping, Auto: false},
		{Stage: StageShipping, Next: StageDelivered, Auto: false},
		{Stage: StageDelivered, Next: StageCompleted, Auto: true},
	},
	WorkflowExpress: {
		{Stage: StageCreated, Next: StageValidation, Auto: true},
		{Stage: StageValidation, Next: StageConfirmed, Auto: true},
		{Stage: StageConfirmed, Next: StageProcessing, Auto: true},
		{Stage: StageProcessing, Next: StageShipping, Auto: false},
		{Stage: StageShipping, Next: StageDelivered, Auto: false},
		{Stage: StageDelivered, Next: StageCompleted, Auto: true},
	},
}

// statusForStage maps the stages that also move the coarse order status.
// Shipping and delivery carry their own timestamps and are written by the
// label and tracking paths respectively.
var statusForStage = map[Stage]Status{
	StageConfirmed:  StatusConfirmed,
	StageProcessing: StatusProcessing,
	StageDelivered:  StatusDelivered,
}

// ValidWorkflowType reports whether t names a defined workflow.
func ValidWorkflowType(t WorkflowType) bool {
	_, ok := workflows[t]
	return ok
}

// StageLookup returns the definition of stage within the given workflow.
// Off-graph markers such as payment_completed return ok=false.
func StageLookup(wt WorkflowType, stage Stage) (StageDef, bool) {
	for _, def := range workflows[wt] {
		if def.Stage == stage {
			return def, true
		}
	}
	return StageDef{}, false
}

// StatusForStage returns the order status implied by entering stage, if any.
func StatusForStage(stage Stage) (Status, bool) {
	s, ok := statusForStage[stage]
	return s, ok
}

// AutoStages returns every stage, across all workflows, from which the engine
// advances without human input. The stalled-order sweep retries orders parked
// at these stages.
func AutoStages() []Stage {
	seen := map[Stage]bool{}
	var out []Stage
	for _, defs := range workflows {
		for _, def := range defs {
			if def.Auto && !seen[def.Stage] {
				seen[def.Stage] = true
				out = append(out, def.Stage)
			}
		}
	}
	return out
}
