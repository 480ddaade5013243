package agent

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/insightlab/insight-agent-go/agent/executor"
	"github.com/insightlab/insight-agent-go/agent/intent"
	"github.com/insightlab/insight-agent-go/agent/manager"
	"github.com/insightlab/insight-agent-go/agent/planner"
	"github.com/insightlab/insight-agent-go/agent/response"
	"github.com/insightlab/insight-agent-go/agent/specialized"
	"github.com/insightlab/insight-agent-go/agent/taskrouter"
	"github.com/insightlab/insight-agent-go/agent/validator"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/checkpoint"
)

// Agent 定义了一个代理接口，用于创建和管理代理实例
type Agent[I, O any] interface {
	// NewGraphNode 获取代理节点
	NewGraphNode(ctx context.Context) (key string, node compose.AnyGraph, nameOption compose.GraphAddNodeOpt)
}

// BuildAgentGraph 用于构建代理图
func BuildAgentGraph[I, O any](ctx context.Context, req *model.TurnRequest) (compose.Runnable[I, O], error) {
	// 初始化状态
	stateGenFunc := func(ctx context.Context) *model.State {
		return &model.State{
			UserQuery:        req.Query,
			PreviousMessages: req.PreviousTurns,
			DocumentIDs:      req.DocumentIDs,
			ReasoningMode:    req.ReasoningMode,
			CurrentTaskIdx:   -1,
			MaxManagerSteps:  conf.GetCfg().Setting.MaxManagerSteps,
			Goto:             consts.IntentClassifier,
		}
	}

	// 创建 Agent 流程图
	graph := compose.NewGraph[I, O](
		compose.WithGenLocalState(stateGenFunc),
	)

	// 定义agent实例映射，确保节点名字与实例严格对应
	agentInstances := map[string]Agent[I, O]{
		consts.IntentClassifier:  intent.NewIntentClassifier[I, O](ctx),
		consts.Planner:           planner.NewPlanner[I, O](ctx),
		consts.Executor:          executor.NewExecutor[I, O](ctx),
		consts.TaskRouter:        taskrouter.NewTaskRouter[I, O](ctx),
		consts.Manager:           manager.NewManager[I, O](ctx),
		consts.ResponseGenerator: response.NewResponseGenerator[I, O](ctx),
		consts.Validator:         validator.NewValidator[I, O](ctx),
		consts.HumanReview:       validator.NewHumanReview[I, O](ctx),
	}
	// 八个专业代理共用一个实现，按注册表逐个实例化
	for _, cfg := range specialized.Configs() {
		agentInstances[cfg.Name] = specialized.NewSpecializedAgent[I, O](ctx, cfg)
	}

	// 构造任务图 - 使用映射确保名字与实例对应
	for agentName, agentInstance := range agentInstances {
		key, node, nameOption := agentInstance.NewGraphNode(ctx)
		// 验证返回的key与预期的agentName一致
		if key != agentName {
			slog.Error("Agent key mismatch: expected %s, got %s", agentName, key)
			return nil, fmt.Errorf("agent key mismatch: expected %s, got %s", agentName, key)
		}

		// 添加节点
		graph.AddGraphNode(key, node, nameOption)
	}

	// 构造branch - 只为实际存在的agent创建分支
	for agentName := range agentInstances {
		graph.AddBranch(agentName,
			compose.NewGraphBranch(routeToNextAgent, getAgentGraphMap()))
	}

	// 构造起始边
	graph.AddEdge(compose.START, consts.IntentClassifier)

	// 编译图
	runnable, err := graph.Compile(ctx,
		compose.WithGraphName(consts.GraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithCheckPointStore(checkpoint.NewCheckPoint()), // 全局状态存储点
	)
	if err != nil {
		slog.Error("BuildAgentGraph failed, err = %v", err)
		return nil, err
	}
	return runnable, nil
}

// routeToNextAgent 根据状态中的Goto字段路由到下一个代理节点
// 该函数从状态中读取目标代理名称，实现代理间的流程控制转移
func routeToNextAgent(ctx context.Context, input string) (next string, err error) {
	defer func() {
		slog.Info("route_to_next_agent info, input = %s, next = %s", input, next)
	}()
	_ = compose.ProcessState[*model.State](ctx, func(_ context.Context, state *model.State) error {
		next = state.Goto
		return nil
	})
	return next, nil
}

// getAgentGraphMap 返回所有可用的agent节点及其启用状态
// 注意：这个函数应该与BuildAgentGraph中的agentInstances保持一致
func getAgentGraphMap() map[string]bool {
	graphMap := map[string]bool{
		consts.IntentClassifier:  true, // 意图分类者，流程入口
		consts.Planner:           true, // 计划者，产出有序研究计划
		consts.Executor:          true, // 执行器，把计划翻译成任务列表
		consts.TaskRouter:        true, // 任务路由器，静态流水线的调度器
		consts.Manager:           true, // 管理者，推理模式的动态调度器
		consts.ResponseGenerator: true, // 响应生成者，汇总产出最终报告
		consts.Validator:         true, // 校验者，评审最终报告
		consts.HumanReview:       true, // 人工评审，返工决策
		compose.END:              true, // 流程结束节点，标记任务完成
	}
	for _, name := range consts.GetSpecializedAgentList() {
		graphMap[name] = true
	}
	return graphMap
}
