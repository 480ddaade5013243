package intent

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
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/llm"
	"github.com/insightlab/insight-agent-go/repo/template"
)

// intentImpl 意图分类者。整个流程的第一个节点：
// 判断查询是拒绝、直接回答还是进入研究流程，并产出重写后的查询和话题标签。
type intentImpl[I, O any] struct {
	llm *llm.FallbackChatModel // 结构化输出模型服务
}

// NewIntentClassifier 创建实例
func NewIntentClassifier[I, O any](ctx context.Context) *intentImpl[I, O] {
	return &intentImpl[I, O]{
		llm: llm.NewStructuredModel(ctx, "intent_decision", &model.IntentDecision{}),
	}
}

// NewGraphNode 创建任务图
func (i *intentImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))
	graph.AddChatModelNode("agent", i.llm)
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return consts.IntentClassifier, graph, compose.WithNodeName(consts.IntentClassifier)
}

// loadMsg 加载意图分类的提示词模板，注入当前查询、历史轮次和文档引用
func loadMsg(ctx context.Context, name string, opts ...any) (output []*schema.Message, err error) {
	err = compose.ProcessState[*model.State](ctx, func(ctx context.Context, state *model.State) error {
		sysPrompt, err := template.GetPromptTemplate(ctx, name)
		if err != nil {
			slog.Error("loadMsg failed, GetPromptTemplate err = %+v", err)
			return err
		}

		promptTemp := prompt.FromMessages(schema.Jinja2,
			schema.SystemMessage(sysPrompt),
			schema.MessagesPlaceholder("user_input", true),
		)

		msg := []*schema.Message{}
		for _, qa := range state.PreviousMessages {
			msg = append(msg,
				schema.UserMessage(qa.Query),
				schema.AssistantMessage(qa.Response, nil),
			)
		}
		msg = append(msg, schema.UserMessage(state.UserQuery))
		if len(state.DocumentIDs) > 0 {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"The user has uploaded documents for this session: %s", strings.Join(state.DocumentIDs, ", "))))
		}

		variables := map[string]any{
			"CURRENT_TIME": time.Now().Format("2006-01-02 15:04:05"),
			"user_input":   msg,
		}
		output, err = promptTemp.Format(ctx, variables)
		return err
	})
	return output, err
}

// router 解析意图分类的结构化输出并决定流程走向
func router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			// 流程在这里终止时，图的输出就是最终回复
			if state.Goto == compose.END {
				output = state.FinalResponse
			} else {
				output = state.Goto
			}
		}()

		var decision model.IntentDecision
		if err := json.Unmarshal([]byte(input.Content), &decision); err != nil {
			slog.Error("router failed, unmarshal intent decision err = %+v, content = %s", err, input.Content)
			return fmt.Errorf("decode intent decision failed: %w", err)
		}

		ApplyDecision(state, &decision)
		slog.Debug("router success, intent = %s, goto = %s", decision.Intent, state.Goto)
		return nil
	})
	return output, err
}

// ApplyDecision 把意图分类结果落到状态上。
//   - reject：直接返回兜底回复，流程终止，进度保持为0；
//   - direct_answer：返回模型给出的回复，流程终止；
//   - proceed：记录重写查询和标签，进度加10，进入规划。
//     推理模式走管理者；带文档且需要查档的先走文档检索。
func ApplyDecision(state *model.State, d *model.IntentDecision) {
	switch d.Intent {
	case consts.IntentReject:
		state.FinalResponse = d.ResponseToUser
		if state.FinalResponse == "" {
			state.FinalResponse = consts.RejectFallbackResponse
		}
		state.Goto = compose.END

	case consts.IntentDirectAnswer:
		state.FinalResponse = d.ResponseToUser
		if state.FinalResponse == "" {
			state.FinalResponse = consts.RejectFallbackResponse
		}
		state.Goto = compose.END

	default: // proceed
		if d.FormattedUserQuery != "" {
			state.FormattedUserQuery = d.FormattedUserQuery
		}
		state.QueryTags = d.QueryTags
		state.BumpProgress(consts.ProgressIntentStep)

		switch {
		case state.ReasoningMode:
			state.Goto = consts.Manager
		case d.NeedsDocLookup && len(state.DocumentIDs) > 0:
			// 先做文档检索，结果作为规划的补充上下文
			state.Goto = consts.DBSearchAgent
		default:
			state.Goto = consts.Planner
		}
	}
}
