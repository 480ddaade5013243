package response

import (
	"context"
	"fmt"
	"regexp"
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

// responseImpl 回复生成者。综合各任务的产出生成面向用户的最终回复，
// 需要时通过图表工具产出可视化数据块。
type responseImpl[I, O any] struct {
	llm *llm.FallbackChatModel // llm模型服务

	// 最近一次 react 循环的消息快照，由 modifyInput 写入、router 消费。
	// 图是单线程遍历的，同一实例不会被并发执行。
	transcript []*schema.Message
}

// NewResponseGenerator 创建实例
func NewResponseGenerator[I, O any](ctx context.Context) *responseImpl[I, O] {
	return &responseImpl[I, O]{
		llm: llm.NewChatModel(ctx),
	}
}

// NewGraphNode 创建任务图
func (r *responseImpl[I, O]) NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt) {
	// 图表生成走MCP工具
	tools, err := mcp.GetToolsByKeyword(ctx, []string{"chart", "plot", "visualization"})
	if err != nil {
		slog.Error("NewGraphNode failed, get chart tools err = %+v", err)
		// 失败不影响使用
		tools = []tool.BaseTool{}
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		MaxStep:               conf.GetCfg().Setting.AgentMaxStep,
		ToolCallingModel:      r.llm,
		ToolsConfig:           compose.ToolsNodeConfig{Tools: tools},
		MessageModifier:       r.modifyInput,        // 消息长度限制 + 任务记录快照
		StreamToolCallChecker: comm.ToolCallChecker, // 工具调用检测器
	})
	if err != nil {
		slog.Fatal("NewGraphNode failed, create react agent err = %+v", err)
	}

	agentLambda, err := compose.AnyLambda(reactAgent.Generate, reactAgent.Stream, nil, nil)
	if err != nil {
		slog.Fatal("NewGraphNode failed, create lambda node err = %+v", err)
	}

	// 创建图实例
	graph := compose.NewGraph[I, O]()

	// 添加节点
	graph.AddLambdaNode("load", compose.InvokableLambdaWithOption(loadMsg))
	graph.AddLambdaNode("agent", agentLambda)
	graph.AddLambdaNode("router", compose.InvokableLambdaWithOption(r.router))

	// 构造关联
	graph.AddEdge(compose.START, "load")
	graph.AddEdge("load", "agent")
	graph.AddEdge("agent", "router")
	graph.AddEdge("router", compose.END)

	return consts.ResponseGenerator, graph, compose.WithNodeName(consts.ResponseGenerator)
}

// loadMsg 组装回复生成的输入：原始问题、历史轮次和当前任务声明的全部上游产出
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

		msg := []*schema.Message{}
		for _, qa := range state.PreviousMessages {
			msg = append(msg,
				schema.UserMessage(qa.Query),
				schema.AssistantMessage(qa.Response, nil),
			)
		}
		msg = append(msg, schema.UserMessage(fmt.Sprintf(
			"Answer the user's question: %v", state.UserQuery)))

		task := state.CurrentTask()
		if task != nil {
			if task.TaskFeedback != "" {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"Previous response was rejected with this feedback, rework it: %v", task.TaskFeedback)))
			}
			if ctxText := comm.BuildTaskContext(state, task); ctxText != "" {
				msg = append(msg, schema.UserMessage(fmt.Sprintf(
					"Research findings to base the answer on:\n\n%v", ctxText)))
			}
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
func (r *responseImpl[I, O]) modifyInput(ctx context.Context, input []*schema.Message) []*schema.Message {
	input = comm.ModifyInputFunc(ctx, input)
	r.transcript = comm.SnapshotTranscript(input)
	return input
}

// router 保存最终回复并进入校验阶段
func (r *responseImpl[I, O]) router(ctx context.Context, input *schema.Message, opts ...any) (output string, err error) {
	transcript := r.transcript
	r.transcript = nil

	err = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		defer func() {
			output = state.Goto
		}()

		state.FinalResponse = ScrubChartBlocks(input.Content)

		// 保存完整执行记录（含图表工具的调用过程）
		comm.MergeTranscript(state.CurrentTask(), transcript, input)

		if state.ReasoningMode {
			// 管理者循环不经过任务路由器，在这里闭合进度
			state.Progress = consts.ProgressDone
			state.Goto = consts.Validator
		} else {
			state.Goto = consts.TaskRouter
		}
		return nil
	})
	return output, err
}

// chartBlockRe 匹配回复中的图表数据块
var chartBlockRe = regexp.MustCompile("(?s)\\n?```chart_data\\s*\\n.*?\\n```")

// ScrubChartBlocks 清除含失败哨兵值的图表数据块。
// 图表工具失败时会把哨兵值写进数据块，这种块不能透出给用户。
func ScrubChartBlocks(content string) string {
	return chartBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		if strings.Contains(block, consts.ChartSentinel) {
			return ""
		}
		return block
	})
}
