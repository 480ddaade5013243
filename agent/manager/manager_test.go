package manager

import (
	"testing"

	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
)

func TestDecodeDecision(t *testing.T) {
	raw := "Next step:\n```json\n{\"done\": false, \"task_name\": \"tsla_price\", \"agent_name\": \"finance_data_agent\", \"instructions\": \"fetch TSLA quote\", \"expected_output\": \"current price\"}\n```"
	d, err := DecodeDecision(raw)

	assert.NoError(t, err)
	assert.False(t, d.Done)
	assert.Equal(t, "tsla_price", d.TaskName)
	assert.Equal(t, consts.FinanceDataAgent, d.AgentName)
}

func TestDecodeDecisionNormalizesAgentKey(t *testing.T) {
	// 模型把字段写成 agent 时照样能解析
	raw := "```json\n{\"done\": false, \"task_name\": \"t1\", \"agent\": \"web_search_agent\"}\n```"
	d, err := DecodeDecision(raw)

	assert.NoError(t, err)
	assert.Equal(t, consts.WebSearchAgent, d.AgentName)
}

func TestDecodeDecisionNoJSON(t *testing.T) {
	_, err := DecodeDecision("I think we should search the web first.")
	assert.Error(t, err)
}

func TestApplyDecisionDispatchesTask(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1, MaxManagerSteps: 5, Progress: 10}
	ApplyDecision(state, &model.ManagerDecision{
		TaskName:     "tsla_price",
		AgentName:    consts.FinanceDataAgent,
		Instructions: "fetch TSLA quote",
	})

	assert.Equal(t, consts.FinanceDataAgent, state.Goto)
	assert.Len(t, state.TaskList, 1)
	assert.Equal(t, 0, state.CurrentTaskIdx)
	assert.Equal(t, 1, state.ManagerStepCount)
	assert.InDelta(t, 10+70.0/5, state.Progress, 1e-9)
}

func TestApplyDecisionDoneBuildsFinalTask(t *testing.T) {
	state := &model.State{
		CurrentTaskIdx:  1,
		MaxManagerSteps: 5,
		TaskList: []*model.Task{
			{TaskName: "a", AgentName: consts.WebSearchAgent},
			{TaskName: "b", AgentName: consts.SentimentAgent},
		},
	}
	ApplyDecision(state, &model.ManagerDecision{Done: true})

	assert.Equal(t, consts.ResponseGenerator, state.Goto)
	final := state.TaskList[len(state.TaskList)-1]
	assert.Equal(t, consts.ResponseGenerator, final.AgentName)
	assert.Equal(t, []string{"a", "b"}, final.RequiredContext)
	assert.Equal(t, len(state.TaskList)-1, state.CurrentTaskIdx)
}

func TestApplyDecisionForcedFinishAtStepBudget(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1, MaxManagerSteps: 2, ManagerStepCount: 2}
	ApplyDecision(state, &model.ManagerDecision{
		TaskName:  "one_more",
		AgentName: consts.WebSearchAgent,
	})

	// 步数耗尽时无视决策内容，强制收尾
	assert.Equal(t, consts.ResponseGenerator, state.Goto)
	assert.Equal(t, consts.ResponseGenerator, state.TaskList[0].AgentName)
	assert.Equal(t, 2, state.ManagerStepCount)
}

func TestApplyDecisionResponseGeneratorDispatchMeansDone(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1, MaxManagerSteps: 5}
	ApplyDecision(state, &model.ManagerDecision{
		TaskName:  "write_it_up",
		AgentName: "Response Generator",
	})

	assert.Equal(t, consts.ResponseGenerator, state.Goto)
}

func TestApplyDecisionUnknownAgentFallsBack(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1, MaxManagerSteps: 5}
	ApplyDecision(state, &model.ManagerDecision{TaskName: "t", AgentName: "quantum_agent"})

	assert.Equal(t, consts.WebSearchAgent, state.Goto)
	assert.Equal(t, consts.WebSearchAgent, state.TaskList[0].AgentName)
}

func TestApplyDecisionDeduplicatesTaskNames(t *testing.T) {
	state := &model.State{
		CurrentTaskIdx:  0,
		MaxManagerSteps: 5,
		TaskList:        []*model.Task{{TaskName: "search", AgentName: consts.WebSearchAgent}},
	}
	ApplyDecision(state, &model.ManagerDecision{TaskName: "search", AgentName: consts.WebSearchAgent})

	assert.Equal(t, "search_2", state.TaskList[1].TaskName)
}

func TestApplyDecisionProgressNeverExceedsDone(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1, MaxManagerSteps: 1, Progress: 95}
	ApplyDecision(state, &model.ManagerDecision{TaskName: "t", AgentName: consts.WebSearchAgent})

	assert.LessOrEqual(t, state.Progress, consts.ProgressDone)
}
