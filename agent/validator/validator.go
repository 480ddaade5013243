package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/insightlab/insight-agent-go/agent/comm"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/llm"
	"github.com/insightlab/insight-agent-go/repo/template"
)

// validatorImpl 校验者。对最终回复做完整性评审：
// 完全正确或部分正确直接放行，不正确则移交人工评审决定是否返工。
// 反馈循环有硬上限，达到后无条件放行，保证流程必然终止。
type validatorImpl[I, O any] struct {
	llm *llm.FallbackChatModel // 结构化输出模型服务
}

// NewValidator 创建实例
func NewValidator[I, O any](ctx context.Context) *validatorImpl[I, O] {
	return &validatorImpl[I, O]{
		llm: llm.NewStructuredModel(ctx, "validation_verdict", &model.ValidationVerdict{}),
	}
}

// NewGraphNode 创建任务图。
// 循环上限的拦截必须发生在模型调用之前，所以这里不走 load/agent/router
// 三段式，而是单个命令式节点。
func (v *validatorImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	graph := compose.NewGraph[I, O]()
	graph.AddLambdaNode("validate", compose.InvokableLambdaWithOption(v.validate))

	graph.AddEdge(compose.START, "validate")
	graph.AddEdge("validate", compose.END)

	return consts.Validator, graph, compose.WithNodeName(consts.Validator)
}

// validate 评审最终回复
func (v *validatorImpl[I, O]) validate(ctx context.Context, name string, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(ctx context.Context, state *model.State) error {
		defer func() {
			// 流程在这里终止时，图的输出就是最终回复
			if state.Goto == compose.END {
				output = state.FinalResponse
			} else {
				output = state.Goto
			}
		}()

		// 循环上限拦截，不再消耗模型调用
		if Gate(state) {
			slog.Debug("validate debug, feedback cycle limit reached, accepting response")
			return nil
		}

		sysPrompt, err := template.GetPromptTemplate(ctx, name)
		if err != nil {
			slog.Error("validate failed, GetPromptTemplate err = %+v", err)
			return err
		}

		promptTemp := prompt.FromMessages(schema.Jinja2,
			schema.SystemMessage(sysPrompt),
			schema.MessagesPlaceholder("user_input", true),
		)

		msg := []*schema.Message{
			schema.UserMessage(fmt.Sprintf("#User question\n\n %v", state.EffectiveQuery())),
		}
		for _, task := range state.TaskList {
			if prose := comm.FinalProse(task.TaskMessages); len(prose) > 0 {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"#Research output: %v\n\n%v", task.TaskName, strings.Join(prose, "\n\n"))))
			}
		}
		msg = append(msg, schema.UserMessage(fmt.Sprintf(
			"#Final response to review\n\n%v", state.FinalResponse)))

		variables := map[string]any{
			"CURRENT_TIME": time.Now().Format("2006-01-02 15:04:05"),
			"user_input":   msg,
		}
		input, err := promptTemp.Format(ctx, variables)
		if err != nil {
			return err
		}

		resp, err := v.llm.Generate(ctx, input)
		if err != nil {
			slog.Error("validate failed, generate verdict err = %+v", err)
			return err
		}

		var verdict model.ValidationVerdict
		if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
			slog.Error("validate failed, unmarshal verdict err = %+v, content = %s", err, resp.Content)
			return fmt.Errorf("decode validation verdict failed: %w", err)
		}

		Resolve(state, &verdict)
		slog.Debug("validate success, verdict = %s, goto = %s", verdict.Verdict, state.Goto)
		return nil
	})
	return output, err
}

// Gate 反馈循环上限检查。达到上限时强制接受当前回复并终止流程
func Gate(state *model.State) bool {
	if state.FeedbackCycleCount < consts.MaxFeedbackCycles {
		return false
	}
	state.ValidationResult = &model.ValidationVerdict{
		Verdict:  consts.VerdictFullyCorrect,
		Feedback: consts.MaxRetriesFeedback,
	}
	state.Goto = compose.END
	return true
}

// Resolve 把校验结论落到状态上。
// 完全正确和部分正确都放行，只有不正确才走人工评审。
func Resolve(state *model.State, verdict *model.ValidationVerdict) {
	if verdict.Verdict == consts.VerdictFullyCorrect {
		// 完全正确不留反馈
		verdict.Feedback = ""
	}
	state.ValidationResult = verdict

	switch verdict.Verdict {
	case consts.VerdictIncorrect:
		state.Goto = consts.HumanReview
	default:
		state.Goto = compose.END
	}
}
