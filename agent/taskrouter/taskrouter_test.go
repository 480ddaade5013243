package taskrouter

import (
	"fmt"
	"testing"

	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTaskList 构造 n-1 个信息收集任务加一个响应生成任务
func newTaskList(n int) []*model.Task {
	tasks := make([]*model.Task, 0, n)
	for i := 1; i < n; i++ {
		tasks = append(tasks, &model.Task{
			TaskName:  fmt.Sprintf("task_%d", i),
			AgentName: consts.WebSearchAgent,
		})
	}
	tasks = append(tasks, &model.Task{
		TaskName:  fmt.Sprintf("task_%d", n),
		AgentName: consts.ResponseGenerator,
	})
	return tasks
}

func TestAdvanceProgressMonotoneAndBounded(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8} {
		t.Run(fmt.Sprintf("tasks_%d", n), func(t *testing.T) {
			state := &model.State{
				TaskList:       newTaskList(n),
				CurrentTaskIdx: -1,
				Progress:       consts.ProgressIntentStep, // 意图分类已通过
			}

			prev := state.Progress
			prevIdx := state.CurrentTaskIdx
			for state.Goto != consts.Validator {
				require.NoError(t, Advance(state))

				assert.GreaterOrEqual(t, state.Progress, prev, "progress must never decrease")
				assert.LessOrEqual(t, state.Progress, 100.0)
				assert.GreaterOrEqual(t, state.CurrentTaskIdx, prevIdx, "cursor only moves forward")

				if state.Goto != consts.Validator {
					// 终态之前进度不能到100
					assert.Less(t, state.Progress, 100.0)
				}
				prev = state.Progress
				prevIdx = state.CurrentTaskIdx
			}

			assert.Equal(t, 100.0, state.Progress)
			assert.Equal(t, n-1, state.CurrentTaskIdx)
		})
	}
}

func TestAdvanceSingleTaskList(t *testing.T) {
	// 只有响应生成任务的列表不能触发除零
	state := &model.State{
		TaskList: []*model.Task{
			{TaskName: "task_1", AgentName: consts.ResponseGenerator},
		},
		CurrentTaskIdx: -1,
	}

	require.NoError(t, Advance(state))
	assert.Equal(t, consts.ResponseGenerator, state.Goto)
	assert.Equal(t, 0, state.CurrentTaskIdx)
	assert.Equal(t, 0.0, state.Progress)

	require.NoError(t, Advance(state))
	assert.Equal(t, consts.Validator, state.Goto)
	assert.Equal(t, 100.0, state.Progress)
}

func TestAdvanceDispatchOrderFollowsTaskList(t *testing.T) {
	state := &model.State{
		TaskList: []*model.Task{
			{TaskName: "task_1", AgentName: consts.FinanceDataAgent},
			{TaskName: "task_2", AgentName: consts.SentimentAgent},
			{TaskName: "task_3", AgentName: consts.ResponseGenerator},
		},
		CurrentTaskIdx: -1,
	}

	var dispatched []string
	for {
		require.NoError(t, Advance(state))
		if state.Goto == consts.Validator {
			break
		}
		dispatched = append(dispatched, state.Goto)
	}

	assert.Equal(t, []string{
		consts.FinanceDataAgent,
		consts.SentimentAgent,
		consts.ResponseGenerator,
	}, dispatched)
}

func TestAdvanceEmptyTaskList(t *testing.T) {
	state := &model.State{CurrentTaskIdx: -1}
	assert.Error(t, Advance(state))
}
