package specialized

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/insightlab/insight-agent-go/agent/comm"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/llm"
	"github.com/insightlab/insight-agent-go/repo/mcp"
	"github.com/insightlab/insight-agent-go/repo/template"
)

// 八个专业代理共享同一个实现：读取当前任务和它声明的上游上下文，
// 执行带工具的模型调用，把完整消息记录写回任务。差异全部收敛到 Config。

// Config 专业代理的差异配置
type Config struct {
	Name         string   // 节点名，同时是提示词模板名
	ToolKeywords []string // MCP工具过滤关键词，空表示纯对话代理
	MaxToolSteps int      // 工具循环步数上限，0时使用全局配置
}

// Configs 返回所有专业代理的注册表
func Configs() []Config {
	setting := conf.GetCfg().Setting
	return []Config{
		{Name: consts.WebSearchAgent, ToolKeywords: []string{"search", "scrape"}},
		{Name: consts.SocialMediaAgent, ToolKeywords: []string{"reddit", "twitter", "social"}},
		{Name: consts.FinanceDataAgent, ToolKeywords: []string{"finance", "stock", "ticker"}},
		{Name: consts.SentimentAgent},  // 纯模型分析，消化上游任务的产出
		{Name: consts.ComparisonAgent}, // 纯模型对比，消化上游任务的产出
		{
			Name:         consts.CoderAgent,
			ToolKeywords: []string{"python", "code", "execute"},
			// 工具调用预算是硬上限，一次调用占模型决策和工具执行两步
			MaxToolSteps: setting.CoderMaxToolCalls * 2,
		},
		{Name: consts.DBSearchAgent, ToolKeywords: []string{"document", "vector"}},
		{Name: consts.MapAgent, ToolKeywords: []string{"geocode", "map"}},
	}
}

// specializedImpl 专业代理
type specializedImpl[I, O any] struct {
	cfg Config
	llm *llm.FallbackChatModel // llm模型服务

	// 最近一次 react 循环的消息快照，由 modifyInput 写入、router 消费。
	// 图是单线程遍历的，同一实例不会被并发执行。
	transcript []*schema.Message
}

// NewSpecializedAgent 创建实例
func NewSpecializedAgent[I, O any](ctx context.Context, cfg Config) *specializedImpl[I, O] {
	return &specializedImpl[I, O]{
		cfg: cfg,
		llm: llm.NewChatModel(ctx),
	}
}

// NewGraphNode 创建任务图
func (s *specializedImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))

	if len(s.cfg.ToolKeywords) > 0 {
		// 带工具的代理走 ReAct 循环
		tools, err := mcp.GetToolsByKeyword(ctx, s.cfg.ToolKeywords)
		if err != nil {
			slog.Error("NewGraphNode failed, get mcp tools err = %+v, agent = %s", err, s.cfg.Name)
			// 失败不影响使用
			tools = []tool.BaseTool{}
		}

		maxStep := s.cfg.MaxToolSteps
		if maxStep <= 0 {
			maxStep = conf.GetCfg().Setting.AgentMaxStep
		}

		reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
			MaxStep:               maxStep,
			ToolCallingModel:      s.llm,
			ToolsConfig:           compose.ToolsNodeConfig{Tools: tools},
			MessageModifier:       s.modifyInput,        // 消息长度限制 + 任务记录快照
			StreamToolCallChecker: comm.ToolCallChecker, // 工具调用检测器
		})
		if err != nil {
			slog.Fatal("NewGraphNode failed, create react agent err = %+v, agent = %s", err, s.cfg.Name)
		}

		// 封装为 lambda 节点
		agentLambda, err := compose.AnyLambda(reactAgent.Generate, reactAgent.Stream, nil, nil)
		if err != nil {
			slog.Fatal("NewGraphNode failed, create lambda node err = %+v, agent = %s", err, s.cfg.Name)
		}
		graph.AddLambdaNode("agent", agentLambda)
	} else {
		// 纯对话代理直接挂模型节点
		graph.AddChatModelNode("agent", s.llm)
	}

	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(s.router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return s.cfg.Name, graph, compose.WithNodeName(s.cfg.Name)
}

// loadMsg 组装专业代理的输入。上下文只来自任务声明的 required_context，
// 组装出的任务消息同时记入任务的消息记录。
func loadMsg(ctx context.Context, name string, opts ...any) (output []*schema.Message, err error) {
	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		sysPrompt, err := template.GetPromptTemplate(ctx, name)
		if err != nil {
			slog.Error("loadMsg failed, GetPromptTemplate err = %+v, prompt name = %+v", err, name)
			return err
		}

		promptTemp := prompt.FromMessages(schema.Jinja2,
			schema.SystemMessage(sysPrompt),
			schema.MessagesPlaceholder("user_input", true),
		)

		msg := []*schema.Message{}
		task := state.CurrentTask()
		if task == nil {
			// 规划前的文档检索：任务列表尚不存在，用重写后的查询做检索
			docIDs := append(append([]string{}, state.DocumentIDs...), state.PreviousDocumentIDs...)
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"#Task\n\n##instructions\n\n Search the user's documents for content relevant to: %v \n\n##document_ids\n\n %v",
				state.EffectiveQuery(), strings.Join(docIDs, ", "))))
		} else {
			msg = append(msg, schema.UserMessage(fmt.Sprintf(
				"#Task\n\n##name\n\n %v \n\n##instructions\n\n %v \n\n##expected_output\n\n %v",
				task.TaskName, task.Instructions, task.ExpectedOutput)))

			if task.TaskFeedback != "" {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"Previous attempt was rejected with this feedback, rework the task: %v", task.TaskFeedback)))
			}
			if ctxText := comm.BuildTaskContext(state, task); ctxText != "" {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"Findings from the tasks you may rely on:\n\n%v", ctxText)))
			}

			// 任务消息记录从这里开始累积
			task.TaskMessages = append([]*schema.Message{}, msg...)
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

// modifyInput react 循环每次模型调用前触发：限制输入长度，并留存
// 到当前为止的消息快照。循环结束后最后一次快照就是完整的工具使用过程。
func (s *specializedImpl[I, O]) modifyInput(ctx context.Context, input []*schema.Message) []*schema.Message {
	input = comm.ModifyInputFunc(ctx, input)
	s.transcript = comm.SnapshotTranscript(input)
	return input
}

// router 专业代理的路由函数，把完整执行记录写回任务并交还调度方
func (s *specializedImpl[I, O]) router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	slog.Debug("router debug, specialized agent output = %+v", input)

	last := input
	transcript := s.transcript
	s.transcript = nil

	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		task := state.CurrentTask()
		if task == nil {
			// 规划前检索路径：结果作为规划阶段的补充上下文
			state.DocContext = strings.Clone(last.Content)
			state.Goto = consts.Planner
			return nil
		}

		// 保存完整执行记录（含中间的工具调用和工具返回），任务在列表中就地更新
		comm.MergeTranscript(task, transcript, last)

		// 交还调度方：静态流水线回任务路由器，推理模式回管理者
		if state.ReasoningMode {
			state.Goto = consts.Manager
		} else {
			state.Goto = consts.TaskRouter
		}
		return nil
	})
	return output, err
}
