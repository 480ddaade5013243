package validator

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
)

// humanImpl 人工评审。校验不通过时中断整个图等待用户决策：
// 确认返工则带反馈重新进入研究流程，否决则降级为部分正确直接结束。
// 节点本身不调用模型，中断恢复后重跑不产生副作用。
type humanImpl[I, O any] struct{}

// NewHumanReview 创建实例
func NewHumanReview[I, O any](ctx context.Context) *humanImpl[I, O] {
	return &humanImpl[I, O]{}
}

// NewGraphNode 创建任务图
func (h *humanImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[I, O]()
	graph.AddLambdaNode("review", compose.InvokableLambdaWithOption(review))

	graph.AddEdge(compose.START, "review")
	graph.AddEdge("review", compose.END)

	return consts.HumanReview, graph, compose.WithNodeName(consts.HumanReview)
}

// review 等待并消费人工决策。没有决策时触发中断，恢复执行时
// 由 StateModifier 注入决策后重跑本节点。
func review(ctx context.Context, name string, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			// 流程在这里终止时，图的输出就是最终回复
			if state.Goto == compose.END {
				output = state.FinalResponse
			} else {
				output = state.Goto
			}
		}()

		if state.HumanResponse == "" {
			// 中断等待人工输入
			return compose.InterruptAndRerun
		}

		ResolveHuman(state)
		slog.Debug("review success, cycle = %d, goto = %s", state.FeedbackCycleCount, state.Goto)
		return nil
	})
	return output, err
}

// ResolveHuman 把人工决策落到状态上。
//   - 否决返工：结论降级为部分正确，带上人工否决说明，直接结束；
//   - 确认返工：反馈计数加一，清掉计划、任务列表和最终回复，
//     带着缺陷反馈重新进入规划（推理模式则回管理者）。
//
// 两种情况都会消费掉人工输入，避免恢复重跑时重复生效。
func ResolveHuman(state *model.State) {
	response := state.HumanResponse
	feedback := state.HumanFeedback
	state.HumanResponse = ""
	state.HumanFeedback = ""

	if response != consts.HumanApprove {
		// 否决返工，按部分正确放行当前回复
		state.ValidationResult = &model.ValidationVerdict{
			Verdict:  consts.VerdictPartiallyCorrect,
			Feedback: "validation overridden by user",
		}
		state.Goto = compose.END
		return
	}

	// 合并人工补充的反馈，重新规划时一并带入
	if state.ValidationResult == nil {
		state.ValidationResult = &model.ValidationVerdict{Verdict: consts.VerdictIncorrect}
	}
	if feedback != "" {
		if state.ValidationResult.Feedback != "" {
			state.ValidationResult.Feedback = fmt.Sprintf("%s\nUser adds: %s", state.ValidationResult.Feedback, feedback)
		} else {
			state.ValidationResult.Feedback = feedback
		}
	}

	state.FeedbackCycleCount++
	state.ResearchPlan = nil
	state.TaskList = nil
	state.CurrentTaskIdx = -1
	state.FinalResponse = ""
	state.ManagerStepCount = 0
	state.Messages = append(state.Messages, schema.UserMessage(fmt.Sprintf(
		"Rework requested, feedback: %s", state.ValidationResult.Feedback)))

	if state.ReasoningMode {
		state.Goto = consts.Manager
	} else {
		state.Goto = consts.Planner
	}
}
