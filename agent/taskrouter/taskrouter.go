package taskrouter

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
)

// taskRouterImpl 任务路由器。静态流水线的调度中心：按任务列表顺序推进游标，
// 把刚完成任务的进度计入全局进度，并派发下一个专业代理。不发起任何模型调用。
type taskRouterImpl[I, O any] struct{}

// NewTaskRouter 创建实例
func NewTaskRouter[I, O any](ctx context.Context) *taskRouterImpl[I, O] {
	return &taskRouterImpl[I, O]{}
}

// NewGraphNode 创建任务图
func (t *taskRouterImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(router))

	// 构造关联
	graph.AddEdge(compose.START, "router")
	graph.AddEdge("router", compose.END)

	return consts.TaskRouter, graph, compose.WithNodeName(consts.TaskRouter)
}

// Advance 任务列表状态机的一次转移。
// 状态：未开始(CurrentTaskIdx=-1) → 执行第i个任务 → 走完列表。
//   - 未开始：派发首个任务，不计进度（还没有任务完成）。
//   - 中间任务完成：进度增加 70/(len-1)，信息收集任务均分执行预算，游标前移。
//   - 末尾任务（响应生成）完成：进度置为100，交给校验者，循环到此结束。
//
// 游标只会前进，任务完成后不会被重新执行。
func Advance(state *model.State) error {
	n := len(state.TaskList)
	if n == 0 {
		return fmt.Errorf("advance failed, task list is empty")
	}

	// 未开始，派发首个任务
	if state.CurrentTaskIdx < 0 {
		state.CurrentTaskIdx = 0
		state.Goto = state.TaskList[0].AgentName
		return nil
	}

	// 末尾任务已完成，终结本轮任务循环
	if state.CurrentTaskIdx >= n-1 {
		state.Progress = consts.ProgressDone
		state.Goto = consts.Validator
		return nil
	}

	// 中间任务完成，分摊进度预算。单任务列表不会走到这里，无除零风险
	state.BumpProgress(consts.ProgressExecutionBudget / float64(n-1))

	// 游标前移，派发下一个任务
	state.CurrentTaskIdx++
	state.Goto = state.TaskList[state.CurrentTaskIdx].AgentName
	return nil
}

// router 路由决策函数，推进任务列表状态机并返回下一个节点
func router(ctx context.Context, input string, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		if err := Advance(state); err != nil {
			slog.Error("router failed, advance err = %+v", err)
			return err
		}

		if task := state.CurrentTask(); task != nil {
			slog.Debug("router debug, dispatch task = %s, agent = %s, progress = %.1f",
				task.TaskName, task.AgentName, state.Progress)
		}
		return nil
	})
	return output, err
}
