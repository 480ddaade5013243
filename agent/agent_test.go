package agent

import (
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/insightlab/insight-agent-go/agent/executor"
	"github.com/insightlab/insight-agent-go/agent/intent"
	"github.com/insightlab/insight-agent-go/agent/manager"
	"github.com/insightlab/insight-agent-go/agent/taskrouter"
	"github.com/insightlab/insight-agent-go/agent/validator"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 状态机级别的整轮走查：不触发模型调用，按各节点的纯决策函数
// 推演一轮静态流水线，验证路由顺序、进度曲线和终态。
func TestStaticPipelineFullTurn(t *testing.T) {
	state := &model.State{
		UserQuery:      "Should I worry about Tesla's latest quarter?",
		CurrentTaskIdx: -1,
	}

	// 意图分类：进入研究流程
	intent.ApplyDecision(state, &model.IntentDecision{
		Intent:             consts.IntentProceed,
		FormattedUserQuery: "Analysis of Tesla's (TSLA) latest quarterly results",
		QueryTags:          []string{"stocks", "earnings"},
	})
	require.Equal(t, consts.Planner, state.Goto)
	assert.Equal(t, consts.ProgressIntentStep, state.Progress)

	// 执行器：把计划落成任务列表，末尾自动补合成任务
	state.TaskList = executor.NormalizeTaskList([]model.TaskSpec{
		{TaskName: "earnings_news", AgentName: consts.WebSearchAgent, Instructions: "find coverage of the quarter"},
		{TaskName: "quarter_financials", AgentName: consts.FinanceDataAgent, Instructions: "pull the reported figures"},
		{TaskName: "street_sentiment", AgentName: consts.SentimentAgent,
			RequiredContext: []string{"earnings_news"}},
	})
	state.CurrentTaskIdx = -1
	state.Goto = consts.TaskRouter
	require.Len(t, state.TaskList, 4)
	require.Equal(t, consts.ResponseGenerator, state.TaskList[3].AgentName)

	// 任务路由器逐个派发，进度单调爬升
	dispatched := []string{}
	prevProgress := state.Progress
	for {
		require.NoError(t, taskrouter.Advance(state))
		assert.GreaterOrEqual(t, state.Progress, prevProgress)
		prevProgress = state.Progress

		if state.Goto == consts.Validator {
			break
		}
		dispatched = append(dispatched, state.Goto)
		// 模拟代理完成任务
		state.CurrentTask().TaskMessages = []*schema.Message{
			schema.AssistantMessage("findings for "+state.CurrentTask().TaskName, nil),
		}
	}

	assert.Equal(t, []string{
		consts.WebSearchAgent,
		consts.FinanceDataAgent,
		consts.SentimentAgent,
		consts.ResponseGenerator,
	}, dispatched)
	assert.Equal(t, consts.ProgressDone, state.Progress)

	// 校验通过，流程终止。最终回复带内联引用标记
	state.FinalResponse = "Tesla's quarter was mixed but not alarming. " +
		"Deliveries held up despite margin pressure. [*](https://ir.tesla.com/q2-update)"
	require.False(t, validator.Gate(state))
	validator.Resolve(state, &model.ValidationVerdict{Verdict: consts.VerdictFullyCorrect})
	assert.Equal(t, compose.END, state.Goto)
	assert.Contains(t, state.FinalResponse, "mixed but not alarming")
	assert.Regexp(t, `\[\*\]\(http[^)]+\)`, state.FinalResponse)
}

func TestRejectedQueryShortCircuits(t *testing.T) {
	state := &model.State{UserQuery: "", CurrentTaskIdx: -1}
	intent.ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentReject})

	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, 0.0, state.Progress)
	assert.NotEmpty(t, state.FinalResponse)
	assert.Empty(t, state.TaskList)
}

// 推理模式整轮走查：管理者动态派发直到宣布收尾
func TestManagerLoopFullTurn(t *testing.T) {
	state := &model.State{
		UserQuery:       "deep dive on NVDA demand",
		ReasoningMode:   true,
		CurrentTaskIdx:  -1,
		MaxManagerSteps: 4,
	}

	intent.ApplyDecision(state, &model.IntentDecision{Intent: consts.IntentProceed})
	require.Equal(t, consts.Manager, state.Goto)

	steps := []*model.ManagerDecision{
		{TaskName: "nvda_news", AgentName: consts.WebSearchAgent},
		{TaskName: "nvda_financials", AgentName: consts.FinanceDataAgent},
		{Done: true},
	}
	for _, d := range steps {
		manager.ApplyDecision(state, d)
		if task := state.CurrentTask(); task != nil && state.Goto != consts.ResponseGenerator {
			task.TaskMessages = []*schema.Message{
				schema.AssistantMessage("findings for "+task.TaskName, nil),
			}
		}
	}

	assert.Equal(t, consts.ResponseGenerator, state.Goto)
	final := state.TaskList[len(state.TaskList)-1]
	assert.Equal(t, []string{"nvda_news", "nvda_financials"}, final.RequiredContext)
	assert.Equal(t, 2, state.ManagerStepCount)
	assert.LessOrEqual(t, state.Progress, consts.ProgressDone)
}

// 返工闭环：人工确认返工后流程回到规划，且必然在上限内终止
func TestReworkLoopBounded(t *testing.T) {
	state := &model.State{
		UserQuery:      "compare AMD and Intel",
		CurrentTaskIdx: -1,
	}

	cycles := 0
	for {
		if validator.Gate(state) {
			break
		}
		validator.Resolve(state, &model.ValidationVerdict{
			Verdict:  consts.VerdictIncorrect,
			Feedback: "missing Intel numbers",
		})
		require.Equal(t, consts.HumanReview, state.Goto)

		state.HumanResponse = consts.HumanApprove
		validator.ResolveHuman(state)
		require.Equal(t, consts.Planner, state.Goto)
		cycles++
	}

	assert.Equal(t, consts.MaxFeedbackCycles, cycles)
	assert.Equal(t, compose.END, state.Goto)
	assert.Equal(t, consts.VerdictFullyCorrect, state.ValidationResult.Verdict)
}
