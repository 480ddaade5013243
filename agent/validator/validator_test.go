package validator

import (
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
)

func TestGateBelowLimit(t *testing.T) {
	state := &model.State{FeedbackCycleCount: consts.MaxFeedbackCycles - 1}
	assert.False(t, Gate(state))
	assert.Nil(t, state.ValidationResult)
}

func TestGateAtLimitForcesAccept(t *testing.T) {
	state := &model.State{FeedbackCycleCount: consts.MaxFeedbackCycles, FinalResponse: "draft"}
	assert.True(t, Gate(state))

	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, consts.VerdictFullyCorrect, state.ValidationResult.Verdict)
	assert.Equal(t, consts.MaxRetriesFeedback, state.ValidationResult.Feedback)
	// 回复不变，降级接受
	assert.Equal(t, "draft", state.FinalResponse)
}

func TestResolveFullyCorrectEnds(t *testing.T) {
	state := &model.State{}
	Resolve(state, &model.ValidationVerdict{Verdict: consts.VerdictFullyCorrect})
	assert.Equal(t, compose.END, state.Goto)
}

func TestResolvePartiallyCorrectEnds(t *testing.T) {
	state := &model.State{}
	Resolve(state, &model.ValidationVerdict{Verdict: consts.VerdictPartiallyCorrect, Feedback: "missing sources"})
	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, "missing sources", state.ValidationResult.Feedback)
}

func TestResolveIncorrectGoesToHumanReview(t *testing.T) {
	state := &model.State{}
	Resolve(state, &model.ValidationVerdict{Verdict: consts.VerdictIncorrect, Feedback: "numbers are stale"})
	assert.Equal(t, consts.HumanReview, state.Goto)
}

func TestResolveHumanRejectDowngrades(t *testing.T) {
	state := &model.State{
		HumanResponse:    consts.HumanReject,
		FinalResponse:    "draft answer",
		ValidationResult: &model.ValidationVerdict{Verdict: consts.VerdictIncorrect},
	}
	ResolveHuman(state)

	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, consts.VerdictPartiallyCorrect, state.ValidationResult.Verdict)
	assert.Equal(t, "draft answer", state.FinalResponse)
	assert.Empty(t, state.HumanResponse)
}

func TestResolveHumanApproveRestartsResearch(t *testing.T) {
	state := &model.State{
		HumanResponse:    consts.HumanApprove,
		HumanFeedback:    "include the Q2 earnings",
		FinalResponse:    "draft answer",
		CurrentTaskIdx:   2,
		TaskList:         []*model.Task{{TaskName: "a"}, {TaskName: "b"}, {TaskName: "c"}},
		ResearchPlan:     &model.Plan{},
		ValidationResult: &model.ValidationVerdict{Verdict: consts.VerdictIncorrect, Feedback: "incomplete"},
	}
	ResolveHuman(state)

	assert.Equal(t, consts.Planner, state.Goto)
	assert.Equal(t, 1, state.FeedbackCycleCount)
	assert.Nil(t, state.ResearchPlan)
	assert.Empty(t, state.TaskList)
	assert.Equal(t, -1, state.CurrentTaskIdx)
	assert.Empty(t, state.FinalResponse)
	assert.Contains(t, state.ValidationResult.Feedback, "incomplete")
	assert.Contains(t, state.ValidationResult.Feedback, "include the Q2 earnings")
	assert.Empty(t, state.HumanResponse)
	assert.Empty(t, state.HumanFeedback)
}

func TestResolveHumanApproveReasoningModeGoesToManager(t *testing.T) {
	state := &model.State{
		HumanResponse:    consts.HumanApprove,
		ReasoningMode:    true,
		ManagerStepCount: 5,
		ValidationResult: &model.ValidationVerdict{Verdict: consts.VerdictIncorrect},
	}
	ResolveHuman(state)

	assert.Equal(t, consts.Manager, state.Goto)
	assert.Equal(t, 0, state.ManagerStepCount)
}

func TestFeedbackLoopTerminatesAfterMaxCycles(t *testing.T) {
	// 每轮返工后计数加一，到达上限后校验无条件放行
	state := &model.State{CurrentTaskIdx: -1}
	for i := 0; i < consts.MaxFeedbackCycles; i++ {
		assert.False(t, Gate(state))
		Resolve(state, &model.ValidationVerdict{Verdict: consts.VerdictIncorrect})
		assert.Equal(t, consts.HumanReview, state.Goto)

		state.HumanResponse = consts.HumanApprove
		ResolveHuman(state)
		assert.Equal(t, consts.Planner, state.Goto)
	}

	assert.True(t, Gate(state))
	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, consts.VerdictFullyCorrect, state.ValidationResult.Verdict)
}
