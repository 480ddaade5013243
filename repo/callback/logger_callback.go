package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/google/uuid"
	"github.com/insightlab/insight-agent-go/entity/model"
)

// LoggerCallback 日志回调。把各节点的流式输出转换成对客户端的SSE事件，
// 每个事件都带上当前进度和正在执行的代理名。
type LoggerCallback struct {
	callbacks.HandlerBuilder // 可以用 callbacks.HandlerBuilder 来辅助实现 callback

	ID  string      // 线程ID，用于标识当前对话会话
	SSE *sse.Writer // SSE写入器，用于向客户端推送实时流式数据
	Out chan string // 输出通道，用于异步传递消息内容

	mu           sync.Mutex // 保护进度读写，流式推送在独立goroutine中进行
	lastProgress float64    // 最近一次从状态读到的进度
}

// setProgress 记录最近一次观测到的进度
func (cb *LoggerCallback) setProgress(p float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastProgress = p
}

// LastProgress 返回最近一次观测到的进度。
// 被拒绝或直接回答的轮次进度保持为0，终态事件不能伪造成100。
func (cb *LoggerCallback) LastProgress() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastProgress
}

// pushF 推送格式化数据到客户端
// 将聊天响应数据序列化后通过SSE和输出通道进行双路推送
func (cb *LoggerCallback) pushF(ctx context.Context, event string, data *model.ChatResp) error {
	// 将响应数据序列化为JSON格式
	dataByte, err := json.Marshal(data)
	if err != nil {
		slog.Error("pushF failed, marshal data err = %+v, data = %+v", err, data)
		return err
	}
	// 通过SSE推送到客户端（如果SSE连接存在）
	if cb.SSE != nil {
		err = cb.SSE.WriteEvent("", event, dataByte)
	}
	// 通过输出通道异步传递消息内容（如果通道存在）
	if cb.Out != nil {
		cb.Out <- data.Content
	}
	return nil
}

// pushMsg 推送消息到客户端
// 根据消息类型（普通消息、工具调用、工具结果）进行不同的处理和推送
func (cb *LoggerCallback) pushMsg(ctx context.Context, msgID string, msg *schema.Message) error {
	// 空消息检查
	if msg == nil {
		return nil
	}

	// 从状态中获取当前智能体名称和进度
	agentName := ""
	progress := 0.0
	_ = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		agentName = state.Goto
		progress = state.Progress
		return nil
	})
	cb.setProgress(progress)

	// 提取完成原因（如果存在响应元数据）
	fr := ""
	if msg.ResponseMeta != nil {
		fr = msg.ResponseMeta.FinishReason
	}
	// 构建标准聊天响应数据结构
	data := &model.ChatResp{
		ThreadID:      cb.ID,
		Agent:         agentName,
		ID:            msgID,
		Role:          "assistant",
		Content:       msg.Content,
		Progress:      progress,
		FinishReason:  fr,
		MessageChunks: msg.Content,
	}

	// 处理工具调用结果消息
	if msg.Role == schema.Tool {
		data.ToolCallID = msg.ToolCallID
		return cb.pushF(ctx, "tool_call_result", data)
	}

	// 处理包含工具调用的消息
	if len(msg.ToolCalls) > 0 {
		event := "tool_call_chunks"
		// 当前只支持单个工具调用，多个工具调用会记录警告并跳过
		if len(msg.ToolCalls) != 1 {
			slog.Error("pushMsg failed, tool_calls len not 1, msg = %+v", msg)
			return nil
		}

		// 初始化工具调用响应数据结构
		ts := []model.ToolResp{}
		tcs := []model.ToolChunkResp{}
		fn := msg.ToolCalls[0].Function.Name
		// 如果工具名称存在，构建完整的工具调用响应
		if len(fn) > 0 {
			event = "tool_calls"
			// 搜索类工具统一命名，前端按 web_search 渲染
			if strings.HasSuffix(fn, "search") {
				fn = "web_search"
			}
			ts = append(ts, model.ToolResp{
				Name: fn,
				Args: map[string]interface{}{},
				Type: "tool_call",
				ID:   msg.ToolCalls[0].ID,
			})
		}
		// 构建工具调用块响应（包含实际参数）
		tcs = append(tcs, model.ToolChunkResp{
			Name: fn,
			Args: msg.ToolCalls[0].Function.Arguments,
			Type: "tool_call_chunk",
			ID:   msg.ToolCalls[0].ID,
		})
		data.ToolCalls = ts
		data.ToolCallChunks = tcs
		return cb.pushF(ctx, event, data)
	}
	// 处理普通消息块
	return cb.pushF(ctx, "message_chunk", data)
}

// OnStart 智能体开始执行时的回调方法
func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	// 如果输入是字符串类型，通过输出通道记录开始信息
	if inputStr, ok := input.(string); ok {
		if cb.Out != nil {
			cb.Out <- "\n==================\n"
			cb.Out <- fmt.Sprintf(" [OnStart] %s ", inputStr)
			cb.Out <- "\n==================\n"
		}
	}
	return ctx
}

// OnEnd 智能体执行结束时的回调方法
func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	return ctx
}

// OnError 智能体执行出错时的回调方法
func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	fmt.Println("=========[OnError]=========")
	fmt.Println(err)
	return ctx
}

// OnEndWithStreamOutput 处理流式输出的回调方法
// 当智能体产生流式输出时被调用，负责实时处理和推送流式数据
func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	// 生成唯一消息ID，用于标识本次流式会话
	msgID := uuid.New().String()
	// 启动异步goroutine处理流式数据，避免阻塞主流程
	go func() {
		// 确保流在函数结束时被正确关闭
		defer output.Close() // remember to close the stream in defer
		// 异常恢复机制，防止panic导致整个程序崩溃
		defer func() {
			if err := recover(); err != nil {
				slog.Error("OnEndStream panic_recover, msgID = %s, err = %v", msgID, err)
			}
		}()
		// 循环接收流式数据帧
		for {
			frame, err := output.Recv()
			// 流结束标志，正常退出循环
			if errors.Is(err, io.EOF) {
				break
			}
			// 接收错误，记录日志并退出
			if err != nil {
				slog.Error("OnEndStream recv_error, msgID = %s, err = %v", msgID, err)
				return
			}

			// 根据数据帧类型进行不同处理
			switch v := frame.(type) {
			case *schema.Message:
				// 处理单个消息
				_ = cb.pushMsg(ctx, msgID, v)
			case *ecmodel.CallbackOutput:
				// 处理模型回调输出，提取其中的消息
				_ = cb.pushMsg(ctx, msgID, v.Message)
			case []*schema.Message:
				// 处理消息数组，逐个推送
				for _, m := range v {
					_ = cb.pushMsg(ctx, msgID, m)
				}
			default:
				// 未知类型的数据帧，忽略
			}
		}

	}()
	return ctx
}

// OnStartWithStreamInput 处理流式输入的回调方法
func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	// 确保输入流被正确关闭，释放相关资源
	defer input.Close()
	return ctx
}
