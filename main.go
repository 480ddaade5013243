package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/insightlab/insight-agent-go/agent"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
	"github.com/insightlab/insight-agent-go/repo/callback"
	"github.com/insightlab/insight-agent-go/repo/mcp"
	"github.com/insightlab/insight-agent-go/server"
)

func main() {
	serverMode := flag.Bool("server", false, "run as HTTP server instead of console")
	reasoning := flag.Bool("reasoning", false, "use the dynamic manager loop instead of the static pipeline")
	flag.Parse()

	// 初始化配置
	funcs := []func() error{conf.Init, mcp.InitMCPServers}
	for _, f := range funcs {
		if err := f(); err != nil {
			log.Fatal(err)
		}
	}

	if *serverMode {
		if err := server.Run(); err != nil {
			log.Fatal(err)
		}
		return
	}
	runConsole(*reasoning)
}

// runConsole 运行控制台
func runConsole(reasoning bool) {
	ctx := context.Background()

	// 读取用户终端输入
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("请输入你的问题： ")

	userQuery, _ := reader.ReadString('\n')
	userQuery = strings.TrimSpace(userQuery) // 去除换行符

	req := &model.TurnRequest{
		Query:         userQuery,
		ReasoningMode: reasoning,
	}

	// 创建 Agent 工作流
	graph, err := agent.BuildAgentGraph[string, string](ctx, req)
	if err != nil {
		slog.Fatal("BuildAgentGraph failed, err: %v", err)
	}

	// 流式输出
	outChan := make(chan string)
	go func() {
		for out := range outChan {
			fmt.Print(out)
		}
	}()

	threadID := "console"
	opts := []compose.Option{
		compose.WithCheckPointID(threadID),
		compose.WithCallbacks(&callback.LoggerCallback{
			ID:  threadID,
			Out: outChan,
		}),
	}

	_, err = graph.Stream(ctx, consts.IntentClassifier, opts...)

	// 校验不通过时图会中断，在终端里做人工评审
	for err != nil {
		if _, ok := compose.ExtractInterruptInfo(err); !ok {
			slog.Error("Stream failed, err: %v", err)
			fmt.Println(consts.DegradedFailureResponse)
			return
		}

		fmt.Print("\n答案未通过校验，是否返工？(yes/no): ")
		decision, _ := reader.ReadString('\n')
		decision = strings.TrimSpace(decision)
		feedback := ""
		if decision == consts.HumanApprove {
			fmt.Print("补充返工意见（可留空）: ")
			feedback, _ = reader.ReadString('\n')
			feedback = strings.TrimSpace(feedback)
		}

		modifier := func(ctx context.Context, path compose.NodePath, state any) error {
			if s, ok := state.(*model.State); ok {
				s.HumanResponse = decision
				s.HumanFeedback = feedback
			}
			return nil
		}

		_, err = graph.Stream(ctx, consts.HumanReview,
			append(opts, compose.WithStateModifier(modifier))...)
	}
}
