package manager

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
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// managerImpl 管理者。推理模式下取代"规划者+执行者+任务路由器"的静态流水线：
// 每一步观察已有产出，动态决定下一个任务派给谁，直到自己宣布收尾或步数耗尽。
type managerImpl[I, O any] struct {
	llm *llm.FallbackChatModel // llm模型服务
}

// NewManager 创建实例
func NewManager[I, O any](ctx context.Context) *managerImpl[I, O] {
	return &managerImpl[I, O]{
		llm: llm.NewChatModel(ctx),
	}
}

// NewGraphNode 创建任务图
func (m *managerImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))
	graph.AddChatModelNode("agent", m.llm)
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return consts.Manager, graph, compose.WithNodeName(consts.Manager)
}

// loadMsg 组装管理者的输入：研究目标、已完成任务的产出摘要和剩余步数
func loadMsg(ctx context.Context, name string, opts ...any) (output []*schema.Message, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		sysPrompt, err := template.GetPromptTemplate(ctx, name)
		if err != nil {
			slog.Error("loadMsg failed, GetPromptTemplate err = %+v", err)
			return err
		}

		promptTemp := prompt.FromMessages(schema.Jinja2,
			schema.SystemMessage(sysPrompt),
			schema.MessagesPlaceholder("user_input", true),
		)

		msg := []*schema.Message{
			schema.UserMessage(fmt.Sprintf("#Research goal\n\n %v", state.EffectiveQuery())),
		}
		if state.DocContext != "" {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"Context retrieved from the user's documents:\n\n%v", state.DocContext)))
		}
		// 校验反馈返工时，把上一轮的缺陷反馈带进来
		if state.FeedbackCycleCount > 0 && state.ValidationResult != nil {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"The previous answer was judged insufficient. Address this feedback: %v",
				state.ValidationResult.Feedback)))
		}

		// 已完成任务的产出，管理者据此决定下一步
		for _, task := range state.TaskList {
			if prose := comm.FinalProse(task.TaskMessages); len(prose) > 0 {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"#Completed task: %v (by %v)\n\n%v", task.TaskName, task.AgentName, strings.Join(prose, "\n\n"))))
			}
		}

		remaining := state.MaxManagerSteps - state.ManagerStepCount
		msg = append(msg, schema.UserMessage(fmt.Sprintf(
			"You have %d research steps remaining before you must finish.", remaining)))

		variables := map[string]any{
			"CURRENT_TIME": time.Now().Format("2006-01-02 15:04:05"),
			"agent_names":  consts.GetSpecializedAgentList(),
			"user_input":   msg,
		}
		output, err = promptTemp.Format(ctx, variables)
		return err
	})
	return output, err
}

// router 解析管理者的决策并派发下一个任务
func router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		decision, err := DecodeDecision(input.Content)
		if err != nil {
			slog.Error("router failed, decode manager decision err = %+v, content = %s", err, input.Content)
			return err
		}

		ApplyDecision(state, decision)
		slog.Debug("router success, manager step = %d, goto = %s", state.ManagerStepCount, state.Goto)
		return nil
	})
	return output, err
}

// DecodeDecision 解析管理者输出的JSON决策块。
// 模型偶尔把字段写成 agent 而不是 agent_name，这里统一归一。
func DecodeDecision(raw string) (*model.ManagerDecision, error) {
	block, err := comm.ExtractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	if gjson.Get(block, "agent_name").String() == "" {
		if alt := gjson.Get(block, "agent").String(); alt != "" {
			if fixed, serr := sjson.Set(block, "agent_name", alt); serr == nil {
				block = fixed
			}
		}
	}

	var decision model.ManagerDecision
	if err := json.Unmarshal([]byte(block), &decision); err != nil {
		return nil, fmt.Errorf("decode manager decision failed: %w", err)
	}
	return &decision, nil
}

// ApplyDecision 把管理者决策落到状态上。
//   - 步数耗尽时无视决策内容，强制收尾；
//   - 收尾任务固定派给回复生成者，并把全部已有任务声明为它的上下文；
//   - 普通任务追加到任务列表尾部并立即成为当前任务。
func ApplyDecision(state *model.State, d *model.ManagerDecision) {
	maxSteps := state.MaxManagerSteps
	if maxSteps <= 0 {
		maxSteps = consts.DefaultMaxManagerSteps
		state.MaxManagerSteps = maxSteps
	}

	if state.ManagerStepCount >= maxSteps {
		d.Done = true
	}
	// 直接点名回复生成者等价于宣布收尾
	if canon, ok := comm.CanonicalAgentName(d.AgentName); ok && canon == consts.ResponseGenerator {
		d.Done = true
	}

	if d.Done {
		required := make([]string, 0, len(state.TaskList))
		for _, task := range state.TaskList {
			required = append(required, task.TaskName)
		}

		task := &model.Task{
			TaskName:        uniqueTaskName(state, "final_response"),
			AgentName:       consts.ResponseGenerator,
			Instructions:    d.Instructions,
			ExpectedOutput:  d.ExpectedOutput,
			RequiredContext: required,
		}
		if task.Instructions == "" {
			task.Instructions = "Synthesize all research findings into the final answer for the user."
		}
		if task.ExpectedOutput == "" {
			task.ExpectedOutput = "A complete, well-structured answer to the user's question."
		}

		state.TaskList = append(state.TaskList, task)
		state.CurrentTaskIdx = len(state.TaskList) - 1
		state.Goto = consts.ResponseGenerator
		return
	}

	agentName, ok := comm.CanonicalAgentName(d.AgentName)
	if !ok || !isSpecializedAgent(agentName) {
		slog.Error("ApplyDecision failed, unknown agent = %q, fallback to web search", d.AgentName)
		agentName = consts.WebSearchAgent
	}

	name := d.TaskName
	if name == "" {
		name = fmt.Sprintf("%s_step_%d", agentName, state.ManagerStepCount+1)
	}

	task := &model.Task{
		TaskName:        uniqueTaskName(state, name),
		AgentName:       agentName,
		Instructions:    d.Instructions,
		ExpectedOutput:  d.ExpectedOutput,
		RequiredContext: d.RequiredContext,
	}

	state.TaskList = append(state.TaskList, task)
	state.CurrentTaskIdx = len(state.TaskList) - 1
	state.ManagerStepCount++
	state.BumpProgress(consts.ProgressExecutionBudget / float64(maxSteps))
	state.Goto = agentName
}

// uniqueTaskName 保证任务名在列表内唯一，上下文按名字关联不能撞名
func uniqueTaskName(state *model.State, name string) string {
	exists := func(n string) bool {
		for _, t := range state.TaskList {
			if t.TaskName == n {
				return true
			}
		}
		return false
	}

	if !exists(name) {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !exists(candidate) {
			return candidate
		}
	}
}

// isSpecializedAgent 判断名字是否为可派发的专业代理
func isSpecializedAgent(name string) bool {
	for _, agent := range consts.GetSpecializedAgentList() {
		if agent == name {
			return true
		}
	}
	return false
}
