package executor

import (
	"testing"

	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTaskListAppendsMissingSynthesis(t *testing.T) {
	// 模型漏掉了合成任务
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "finance_data_agent", Instructions: "fetch price"},
		{TaskName: "task_2", AgentName: "web_search_agent", RequiredContext: []string{"task_1"}},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 3)

	last := tasks[len(tasks)-1]
	assert.Equal(t, consts.ResponseGenerator, last.AgentName)
	assert.ElementsMatch(t, []string{"task_1", "task_2"}, last.RequiredContext)
}

func TestNormalizeTaskListKeepsModelSynthesisContract(t *testing.T) {
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "finance_data_agent"},
		{
			TaskName:        "task_2",
			AgentName:       "Response Generator",
			Instructions:    "write the quarterly comparison report",
			RequiredContext: []string{"task_1"},
		},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 2)

	last := tasks[1]
	assert.Equal(t, consts.ResponseGenerator, last.AgentName)
	assert.Equal(t, "write the quarterly comparison report", last.Instructions)
	// 依赖闭包始终覆盖所有在前任务，与模型给的列表无关
	assert.ElementsMatch(t, []string{"task_1"}, last.RequiredContext)
}

func TestNormalizeTaskListDemotesMidListSynthesis(t *testing.T) {
	// 合成任务被模型放在中间，且出现了两个
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "response_generator", Instructions: "premature report"},
		{TaskName: "task_2", AgentName: "sentiment_agent"},
		{TaskName: "task_3", AgentName: "response_generator"},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 2)

	// 恰好一个合成任务且位于末尾
	var synthCount int
	for _, task := range tasks {
		if task.AgentName == consts.ResponseGenerator {
			synthCount++
		}
	}
	assert.Equal(t, 1, synthCount)
	assert.Equal(t, consts.ResponseGenerator, tasks[len(tasks)-1].AgentName)
	assert.Equal(t, "premature report", tasks[len(tasks)-1].Instructions)
}

func TestNormalizeTaskListDropsForwardReferences(t *testing.T) {
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "web_search_agent", RequiredContext: []string{"task_2"}},
		{TaskName: "task_2", AgentName: "finance_data_agent", RequiredContext: []string{"task_1"}},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 3)
	assert.Empty(t, tasks[0].RequiredContext, "forward reference must be dropped")
	assert.Equal(t, []string{"task_1"}, tasks[1].RequiredContext)
}

func TestNormalizeTaskListUnknownAgentFallsBack(t *testing.T) {
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "quantum_oracle_agent"},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 2)
	assert.Equal(t, consts.WebSearchAgent, tasks[0].AgentName)
}

func TestNormalizeTaskListEmptyPlanStillTerminates(t *testing.T) {
	// 极端情况：模型一个任务都没给，列表退化为单个响应生成任务
	tasks := NormalizeTaskList(nil)
	require.Len(t, tasks, 1)
	assert.Equal(t, consts.ResponseGenerator, tasks[0].AgentName)
	assert.Empty(t, tasks[0].RequiredContext)
}

func TestNormalizeTaskListDeduplicatesNames(t *testing.T) {
	specs := []model.TaskSpec{
		{TaskName: "task_1", AgentName: "web_search_agent"},
		{TaskName: "task_1", AgentName: "finance_data_agent"},
	}

	tasks := NormalizeTaskList(specs)
	require.Len(t, tasks, 3)
	assert.NotEqual(t, tasks[0].TaskName, tasks[1].TaskName)
}
