package intent

import (
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
)

func TestApplyDecisionReject(t *testing.T) {
	// 空查询被拒绝：进度保持0，直接给出兜底回复，不进入规划
	state := &model.State{UserQuery: "", CurrentTaskIdx: -1}
	ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentReject})

	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, 0.0, state.Progress)
	assert.NotEmpty(t, state.FinalResponse)
	assert.Nil(t, state.ResearchPlan)
	assert.Empty(t, state.TaskList)
}

func TestApplyDecisionDirectAnswer(t *testing.T) {
	state := &model.State{UserQuery: "hello!", CurrentTaskIdx: -1}
	ApplyDecision(state, &model.IntentDecision{
		Intent:         consts.IntentDirectAnswer,
		ResponseToUser: "Hi! Ask me about markets.",
	})

	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, "Hi! Ask me about markets.", state.FinalResponse)
}

func TestApplyDecisionProceedToPlanner(t *testing.T) {
	state := &model.State{UserQuery: "What is Tesla's current stock price?", CurrentTaskIdx: -1}
	ApplyDecision(state, &model.IntentDecision{
		Intent:             consts.IntentProceed,
		FormattedUserQuery: "Tesla (TSLA) current stock price",
		QueryTags:          []string{"stocks", "realtime"},
	})

	assert.Equal(t, consts.Planner, state.Goto)
	assert.Equal(t, "Tesla (TSLA) current stock price", state.FormattedUserQuery)
	assert.Equal(t, consts.ProgressIntentStep, state.Progress)
}

func TestApplyDecisionProceedReasoningMode(t *testing.T) {
	state := &model.State{UserQuery: "deep dive on NVDA", ReasoningMode: true, CurrentTaskIdx: -1}
	ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentProceed})

	assert.Equal(t, consts.Manager, state.Goto)
}

func TestApplyDecisionProceedDocLookup(t *testing.T) {
	state := &model.State{
		UserQuery:      "summarize my uploaded 10-K",
		DocumentIDs:    []string{"doc-1"},
		CurrentTaskIdx: -1,
	}
	ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentProceed, NeedsDocLookup: true})

	assert.Equal(t, consts.DBSearchAgent, state.Goto)
}

func TestApplyDecisionDocLookupWithoutDocsGoesToPlanner(t *testing.T) {
	state := &model.State{UserQuery: "what happened in 2008?", CurrentTaskIdx: -1}
	ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentProceed, NeedsDocLookup: true})

	assert.Equal(t, consts.Planner, state.Goto)
}
