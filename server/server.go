package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/hertz/pkg/app"
	hertz "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/google/uuid"
	"github.com/insightlab/insight-agent-go/agent"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/callback"
)

// threads 线程注册表。人工评审中断后恢复执行必须复用同一个已编译图，
// 否则检查点找不回来。
var threads sync.Map // thread_id -> compose.Runnable[string, string]

// Run 启动HTTP服务
func Run() error {
	h := hertz.Default(hertz.WithHostPorts(conf.GetCfg().Server.Addr))

	h.POST("/api/chat", handleChat)
	h.POST("/api/chat/resume", handleResume)

	h.Spin()
	return nil
}

// handleChat 处理一轮用户查询，SSE流式推送各节点的过程产出和最终回复
func handleChat(ctx context.Context, c *app.RequestContext) {
	var req model.TurnRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	// 每轮对话一个线程ID，同时作为检查点ID
	threadID := uuid.New().String()

	graph, err := agent.BuildAgentGraph[string, string](ctx, &req)
	if err != nil {
		slog.Error("handleChat failed, build graph err = %+v", err)
		c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to build agent graph"})
		return
	}
	threads.Store(threadID, graph)

	w := sse.NewWriter(c)
	defer w.Close()

	streamTurn(ctx, graph, threadID, consts.IntentClassifier, nil, w)
}

// handleResume 消费人工评审决策，从中断点恢复执行
func handleResume(ctx context.Context, c *app.RequestContext) {
	var req model.ResumeRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.HumanResponse != consts.HumanApprove && req.HumanResponse != consts.HumanReject {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "human_response must be yes or no"})
		return
	}

	val, ok := threads.Load(req.ThreadID)
	if !ok {
		c.JSON(http.StatusNotFound, map[string]string{"error": "unknown thread_id"})
		return
	}
	graph := val.(compose.Runnable[string, string])

	// 恢复执行前把人工决策注入状态，人工评审节点重跑时消费
	modifier := func(ctx context.Context, path compose.NodePath, state any) error {
		s, ok := state.(*model.State)
		if !ok {
			return nil
		}
		s.HumanResponse = req.HumanResponse
		s.HumanFeedback = req.Feedback
		return nil
	}

	w := sse.NewWriter(c)
	defer w.Close()

	streamTurn(ctx, graph, req.ThreadID, consts.HumanReview, modifier, w)
}

// streamTurn 驱动一次图执行并把结果推给客户端。
// 中断时推送 interrupt 事件等待人工决策，正常结束时推送 final 事件。
func streamTurn(ctx context.Context, graph compose.Runnable[string, string],
	threadID, input string, modifier compose.StateModifier, w *sse.Writer) {
	cb := &callback.LoggerCallback{
		ID:  threadID,
		SSE: w,
	}
	opts := []compose.Option{
		compose.WithCheckPointID(threadID),
		compose.WithCallbacks(cb),
	}
	if modifier != nil {
		opts = append(opts, compose.WithStateModifier(modifier))
	}

	sr, err := graph.Stream(ctx, input, opts...)
	if err != nil {
		pushError(w, threadID, err)
		return
	}

	// 汇聚输出流，最后的内容就是最终回复
	final := ""
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			pushError(w, threadID, err)
			return
		}
		final += chunk
	}
	sr.Close()

	// 终态进度取自状态的真实值：被拒绝的轮次进度保持为0，不伪造成100
	data, _ := json.Marshal(&model.ChatResp{
		ThreadID:     threadID,
		Role:         "assistant",
		Content:      final,
		Progress:     cb.LastProgress(),
		FinishReason: "stop",
	})
	_ = w.WriteEvent("", "final", data)
	threads.Delete(threadID)
}

// pushError 区分中断和真实错误：中断推送待审载荷，错误推送降级回复
func pushError(w *sse.Writer, threadID string, err error) {
	if info, ok := compose.ExtractInterruptInfo(err); ok {
		resp := &model.InterruptResp{ThreadID: threadID}
		if state, ok := info.State.(*model.State); ok {
			resp.DraftResponse = state.FinalResponse
			if state.ValidationResult != nil {
				resp.Feedback = state.ValidationResult.Feedback
			}
		}
		data, _ := json.Marshal(resp)
		_ = w.WriteEvent("", "interrupt", data)
		return
	}

	slog.Error("streamTurn failed, err = %+v", err)
	data, _ := json.Marshal(&model.ChatResp{
		ThreadID:     threadID,
		Role:         "assistant",
		Content:      consts.DegradedFailureResponse,
		FinishReason: "error",
	})
	_ = w.WriteEvent("", "error", data)
	threads.Delete(threadID)
}
