package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageLookup(t *testing.T) {
	def, ok := StageLookup(WorkflowStandard, StageApproval)
	require.True(t, ok)
	require.False(t, def.Auto)
	require.Equal(t, StageConfirmed, def.Next)

	def, ok = StageLookup(WorkflowExpress, StageValidation)
	require.True(t, ok)
	require.True(t, def.Auto)
	require.Equal(t, StageConfirmed, def.Next)

	// express has no approval gate
	_, ok = StageLookup(WorkflowExpress, StageApproval)
	require.False(t, ok)

	// the payment marker is not part of any graph
	_, ok = StageLookup(WorkflowStandard, StagePaymentCompleted)
	require.False(t, ok)
}

func TestWorkflowGraphsTerminate(t *testing.T) {
	for wt, defs := range workflows {
		seen := map[Stage]bool{}
		cur := StageCreated
		for range defs {
			def, ok := StageLookup(wt, cur)
			if !ok {
				break
			}
			require.False(t, seen[cur], "workflow %s revisits stage %s", wt, cur)
			seen[cur] = true
			cur = def.Next
		}
		require.Equal(t, StageCompleted, cur, "workflow %s must end at completed", wt)
	}
}

func TestAutoStages(t *testing.T) {
	auto := map[Stage]bool{}
	for _, st := range AutoStages() {
		auto[st] = true
	}
	require.True(t, auto[StageCreated])
	require.True(t, auto[StageValidation])
	require.True(t, auto[StageCreditCheck])
	require.True(t, auto[StageDelivered])
	require.False(t, auto[StageApproval])
	require.False(t, auto[StagePicking])
	require.False(t, auto[StageShipping])
}

func TestStatusForStage(t *testing.T) {
	st, ok := StatusForStage(StageConfirmed)
	require.True(t, ok)
	require.Equal(t, StatusConfirmed, st)

	_, ok = StatusForStage(StagePicking)
	require.False(t, ok)
}

func TestStatusPredicates(t *testing.T) {
	require.True(t, StatusConfirmed.IsPayable())
	require.True(t, StatusProcessing.IsPayable())
	require.False(t, StatusDraft.IsPayable())
	require.False(t, StatusShipped.IsPayable())

	require.True(t, StatusCancelled.IsFinal())
	require.True(t, StatusDelivered.IsFinal())
	require.False(t, StatusProcessing.IsFinal())
}
