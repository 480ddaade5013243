package executor

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

// executorImpl 执行器。把 Planner 的抽象研究计划落成具体任务列表：
// 每个任务绑定一个专业代理，并声明可见的上游任务。
type executorImpl[I, O any] struct {
	llm *llm.FallbackChatModel // 结构化输出模型服务
}

// NewExecutor 创建实例
func NewExecutor[I, O any](ctx context.Context) *executorImpl[I, O] {
	return &executorImpl[I, O]{
		llm: llm.NewStructuredModel(ctx, "task_plan", &model.TaskPlan{}),
	}
}

// NewGraphNode 创建任务图
func (e *executorImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))
	graph.AddChatModelNode("agent", e.llm)
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return consts.Executor, graph, compose.WithNodeName(consts.Executor)
}

// loadMsg 加载提示词模板，把研究计划和查询注入给任务编排模型
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

		// 把研究计划逐步列出，供模型绑定代理和依赖
		var planText strings.Builder
		if state.ResearchPlan != nil {
			for _, step := range state.ResearchPlan.Steps {
				fmt.Fprintf(&planText, "- step %s: %s\n", step.StepID, step.Plan)
			}
		}

		msg := []*schema.Message{
			schema.UserMessage(fmt.Sprintf(
				"# Query\n\n%s\n\n# Research Plan\n\n%s", state.EffectiveQuery(), planText.String())),
		}
		if state.DocContext != "" {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"Relevant content extracted from the user's documents:\n\n%s", state.DocContext)))
		}

		variables := map[string]any{
			"agent_names":  consts.GetSpecializedAgentList(),
			"CURRENT_TIME": time.Now().Format("2006-01-02 15:04:05"),
			"user_input":   msg,
		}
		output, err = promptTemp.Format(ctx, variables)
		return err
	})
	return output, err
}

// router 解析结构化任务列表，整形后写入状态并移交任务路由器
func router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		var taskPlan model.TaskPlan
		if err := json.Unmarshal([]byte(input.Content), &taskPlan); err != nil {
			slog.Error("router failed, unmarshal task plan err = %+v, content = %s", err, input.Content)
			return fmt.Errorf("decode task plan failed: %w", err)
		}

		state.TaskList = NormalizeTaskList(taskPlan.Tasks)
		state.CurrentTaskIdx = -1
		state.Goto = consts.TaskRouter

		slog.Debug("router success, task count = %d", len(state.TaskList))
		return nil
	})
	return output, err
}

// NormalizeTaskList 对模型产出的任务列表做代码层面的整形，不依赖提示词约束：
//   - 代理名归一化，识别不了的降级为网络搜索代理；
//   - 任务名去重去空；
//   - required_context 只保留对更早任务的引用；
//   - 末尾固定恰好一个响应生成任务，缺失则补一个，其依赖闭包覆盖所有在前任务。
//
// 这是整条流水线里唯一主动修复模型输出的地方。
func NormalizeTaskList(specs []model.TaskSpec) []*model.Task {
	var tasks []*model.Task
	var finalSpec *model.TaskSpec
	seen := map[string]int{}

	for i := range specs {
		s := specs[i]

		agent, ok := comm.CanonicalAgentName(s.AgentName)
		if !ok {
			slog.Error("NormalizeTaskList warn, unknown agent name = %q, fallback to web search", s.AgentName)
			agent = consts.WebSearchAgent
		}

		// 合成任务统一重建到末尾，这里只记下模型给的契约文本
		if agent == consts.ResponseGenerator {
			if finalSpec == nil {
				finalSpec = &s
			}
			continue
		}

		name := strings.TrimSpace(s.TaskName)
		if name == "" {
			name = fmt.Sprintf("task_%d", len(tasks)+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}

		// 只允许引用已经出现过的任务
		var deps []string
		for _, dep := range s.RequiredContext {
			if _, earlier := seen[dep]; earlier && dep != name {
				deps = append(deps, dep)
			}
		}

		tasks = append(tasks, &model.Task{
			TaskName:        name,
			AgentName:       agent,
			Instructions:    s.Instructions,
			ExpectedOutput:  s.ExpectedOutput,
			RequiredContext: deps,
		})
	}

	// 重建终态响应生成任务，依赖闭包覆盖所有在前任务
	all := make([]string, 0, len(tasks))
	for _, t := range tasks {
		all = append(all, t.TaskName)
	}
	final := &model.Task{
		TaskName:        fmt.Sprintf("task_%d", len(tasks)+1),
		AgentName:       consts.ResponseGenerator,
		Instructions:    "Synthesize all gathered findings into the final cited report for the user query.",
		ExpectedOutput:  "A markdown report with inline citations answering the user query.",
		RequiredContext: all,
	}
	if finalSpec != nil {
		if name := strings.TrimSpace(finalSpec.TaskName); name != "" {
			if _, dup := seen[name]; !dup {
				final.TaskName = name
			}
		}
		if finalSpec.Instructions != "" {
			final.Instructions = finalSpec.Instructions
		}
		if finalSpec.ExpectedOutput != "" {
			final.ExpectedOutput = finalSpec.ExpectedOutput
		}
	}
	return append(tasks, final)
}
