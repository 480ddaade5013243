package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
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

// plannerImpl 计划者。把查询拆解为有序研究计划，输出走文本协议：
// 先一段推理文本，再一个围栏JSON块。部分模型后端对该调用点的
// schema 约束不可靠，所以不用结构化输出，由解码器显式兜底。
type plannerImpl[I, O any] struct {
	llm *llm.FallbackChatModel // llm模型服务
}

// NewPlanner 创建实例
func NewPlanner[I, O any](ctx context.Context) *plannerImpl[I, O] {
	return &plannerImpl[I, O]{
		llm: llm.NewChatModel(ctx),
	}
}

// NewGraphNode 创建任务图
func (p *plannerImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))
	graph.AddChatModelNode("agent", p.llm)
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return consts.Planner, graph, compose.WithNodeName(consts.Planner)
}

// loadMsg 加载计划生成的提示词模板，注入查询、历史轮次和可用的文档上下文
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
		msg = append(msg, schema.UserMessage(state.EffectiveQuery()))

		// 规划前的文档检索结果，作为补充上下文
		if state.DocContext != "" {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"document search results for the user query: \n %s", state.DocContext)))
		}
		// 校验反馈重新规划时，把上一轮的缺陷反馈带进来
		if state.FeedbackCycleCount > 0 && state.ValidationResult != nil {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"The previous research round was judged insufficient. Address this feedback in the new plan: \n %s",
				state.ValidationResult.Feedback)))
		}

		variables := map[string]any{
			"query_tags":   state.QueryTags,
			"CURRENT_TIME": time.Now().Format("2006-01-02 15:04:05"),
			"user_input":   msg,
		}
		output, err = promptTemp.Format(ctx, variables)
		return err
	})
	return output, err
}

// router 解析研究计划并移交执行器
func router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(ctx context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		plan, err := DecodePlan(input.Content)
		if err != nil {
			// 显式失败，不产出半截计划
			slog.Error("router failed, decode plan err = %+v, content = %s", err, input.Content)
			return err
		}

		state.ResearchPlan = plan
		state.Messages = append(state.Messages, schema.AssistantMessage(input.Content, nil))
		state.Goto = consts.Executor

		slog.Debug("router success, plan steps = %d", len(plan.Steps))
		return nil
	})
	return output, err
}

// planStepBody 文本协议中单个计划步骤的载荷
type planStepBody struct {
	Plan string `json:"plan"`
	Done bool   `json:"done"`
}

// DecodePlan 从模型原始输出中解码研究计划。
// 协议形态是 step-id 到步骤的映射，按数字序排列；空计划视为错误。
func DecodePlan(raw string) (*model.Plan, error) {
	block, err := comm.ExtractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	var stepMap map[string]planStepBody
	if err := json.Unmarshal([]byte(block), &stepMap); err != nil {
		return nil, fmt.Errorf("decode plan failed: %w", err)
	}
	if len(stepMap) == 0 {
		return nil, fmt.Errorf("decode plan failed, empty step map")
	}

	ids := make([]string, 0, len(stepMap))
	for id := range stepMap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, ei := strconv.Atoi(ids[i])
		nj, ej := strconv.Atoi(ids[j])
		if ei == nil && ej == nil {
			return ni < nj
		}
		if ei == nil || ej == nil {
			// 数字步骤排在前面
			return ei == nil
		}
		return ids[i] < ids[j]
	})

	plan := &model.Plan{Steps: make([]model.PlanStep, 0, len(ids))}
	for _, id := range ids {
		body := stepMap[id]
		plan.Steps = append(plan.Steps, model.PlanStep{
			StepID: id,
			Plan:   body.Plan,
			Done:   body.Done,
		})
	}
	return plan, nil
}
