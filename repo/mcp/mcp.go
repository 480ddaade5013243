package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// 所有外部协作工具（网络搜索、社媒抓取、金融数据、代码沙箱、
// 地理编码、文档检索、图表生成）都以 MCP 服务的形式接入，
// 核心流程只看到 eino 的 tool.BaseTool 接口。

var (
	mcpClients map[string]client.MCPClient // MCP客户端管理，key为服务名
)

// InitMCPServers 初始化所有配置的MCP服务端连接
func InitMCPServers() (err error) {
	mcpClients, err = createClients()
	return err
}

// createClients 按配置创建并初始化MCP客户端，任一失败则整体失败并回收已建连接
func createClients() (map[string]client.MCPClient, error) {
	clients := make(map[string]client.MCPClient)

	for name, server := range conf.GetCfg().MCP.Servers {
		var env []string
		for k, v := range server.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}

		slog.Debug("createClients debug, load mcp stdio client = %s, command = %s, args = %+v", name, server.Command, server.Args)
		mcpClient, err := client.NewStdioMCPClient(server.Command, env, server.Args...)
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			slog.Error("createClients failed, name = %s, err = %+v", name, err)
			return nil, fmt.Errorf("failed to create MCP client for %s: %w", name, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		initRequest := mcpgo.InitializeRequest{}
		initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
		initRequest.Params.ClientInfo = mcpgo.Implementation{
			Name:    "insight-agent",
			Version: "0.1.0",
		}
		initRequest.Params.Capabilities = mcpgo.ClientCapabilities{}

		_, err = mcpClient.Initialize(ctx, initRequest)
		cancel()
		if err != nil {
			_ = mcpClient.Close()
			for _, c := range clients {
				_ = c.Close()
			}
			slog.Error("createClients failed, initialize name = %s, err = %+v", name, err)
			return nil, fmt.Errorf("failed to initialize MCP client for %s: %w", name, err)
		}

		clients[name] = mcpClient
	}

	return clients, nil
}

var (
	// 工具缓存相关变量
	cachedTools []tool.BaseTool // 缓存的MCP工具
	toolsOnce   sync.Once       // 确保工具只被初始化一次
	toolsErr    error           // 初始化工具时的错误
)

// GetMCPTools 获取所有MCP工具
func GetMCPTools(ctx context.Context) ([]tool.BaseTool, error) {
	// 使用 sync.Once 确保工具只被初始化一次
	toolsOnce.Do(func() {
		cachedTools, toolsErr = loadMCPTools(ctx)
	})
	return cachedTools, toolsErr
}

// GetToolsByKeyword 按关键词过滤MCP工具，专业代理用它拿到各自的工具子集。
// 关键词命中工具名或描述即保留；keywords 为空返回空集。
func GetToolsByKeyword(ctx context.Context, keywords []string) ([]tool.BaseTool, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	allTools, err := GetMCPTools(ctx)
	if err != nil {
		return nil, err
	}

	var matched []tool.BaseTool
	for _, t := range allTools {
		info, err := t.Info(ctx)
		if err != nil {
			slog.Error("GetToolsByKeyword failed, get tool info err = %+v", err)
			continue
		}

		name := strings.ToLower(info.Name)
		desc := strings.ToLower(info.Desc)
		for _, kw := range keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(name, kw) || strings.Contains(desc, kw) {
				matched = append(matched, t)
				break
			}
		}
	}
	return matched, nil
}

// loadMCPTools 加载所有MCP工具（内部函数）
func loadMCPTools(ctx context.Context) ([]tool.BaseTool, error) {
	var allTools []tool.BaseTool

	// 遍历所有MCP服务器
	for serverName, mcpClient := range mcpClients {
		slog.Debug("loadMCPTools debug, loading tools from MCP server = %s", serverName)

		// 获取工具列表
		listToolsReq := mcpgo.ListToolsRequest{}
		toolsResp, err := mcpClient.ListTools(ctx, listToolsReq)
		if err != nil {
			slog.Debug("loadMCPTools failed, list tools from %s err = %+v", serverName, err)
			continue
		}

		// 为每个工具创建MCPTool包装器
		for _, mcpTool := range toolsResp.Tools {
			allTools = append(allTools, &MCPTool{
				cli:         mcpClient,
				toolName:    mcpTool.Name,
				toolDesc:    mcpTool.Description,
				inputSchema: mcpTool.InputSchema,
			})
		}
	}

	slog.Debug("loadMCPTools debug, total tools loaded: %d", len(allTools))
	return allTools, nil
}
