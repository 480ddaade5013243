package comm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/HildaM/logs/slog"

	"github.com/cloudwego/eino/schema"
	"github.com/insightlab/insight-agent-go/entity/conf"
	"github.com/insightlab/insight-agent-go/entity/consts"
	"github.com/insightlab/insight-agent-go/entity/model"
)

// ModifyInputFunc 输入消息修改函数，限制单条消息长度
func ModifyInputFunc(ctx context.Context, inputList []*schema.Message) []*schema.Message {
	sum := 0
	maxLimit := conf.GetCfg().Setting.MaxLimitToken
	for _, input := range inputList {
		if input == nil {
			slog.Debug("ModifyInputFunc debug, input is nil")
			continue
		}

		length := len(input.Content)
		if length >= maxLimit {
			slog.Debug("ModifyInputFunc debug, input content length is %d, max limit token is %d", length, maxLimit)
			// 截断, 取后半段部分的最新信息
			input.Content = input.Content[length-maxLimit:]
		}

		sum += len(input.Content)
	}

	slog.Debug("ModifyInputFunc debug, input content sum length is %d", sum)
	return inputList
}

// ToolCallChecker 工具调用检查函数
func ToolCallChecker(ctx context.Context, sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()

	// 遍历流式响应中的所有消息
	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			// 流结束，未发现工具调用
			slog.Debug("ToolCallChecker debug, stream message eof")
			return false, nil
		}
		if err != nil {
			slog.Error("ToolCallChecker failed, recv stream message failed, err = %+v", err)
			return false, err
		}

		// 检查当前消息是否包含工具调用
		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
	}
}

// FinalProse 从任务消息记录中提取助手的最终文本输出。
// 工具调用参数和工具返回不会被提取，注入给下游任务的只有成稿文本。
func FinalProse(msgs []*schema.Message) []string {
	var out []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role != schema.Assistant {
			continue
		}
		if len(m.ToolCalls) > 0 || m.Content == "" {
			continue
		}
		out = append(out, m.Content)
	}
	return out
}

// BuildTaskContext 为当前任务组装上下文。
// 只允许读取 RequiredContext 中列出的、且排在当前任务之前的任务产出，
// 这是任务间信息隔离的唯一入口。
func BuildTaskContext(state *model.State, task *model.Task) string {
	if task == nil || len(task.RequiredContext) == 0 {
		return ""
	}

	allowed := make(map[string]bool, len(task.RequiredContext))
	for _, name := range task.RequiredContext {
		allowed[name] = true
	}

	var b strings.Builder
	for _, t := range state.TaskList {
		if t.TaskName == task.TaskName {
			// 后面的任务一律不可见
			break
		}
		if !allowed[t.TaskName] {
			continue
		}

		prose := FinalProse(t.TaskMessages)
		if len(prose) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## Output of task: %s\n\n%s\n\n", t.TaskName, strings.Join(prose, "\n\n"))
	}
	return b.String()
}

// SnapshotTranscript 复制一次模型调用的输入消息作为任务记录快照。
// react 循环每次模型调用前输入都包含到当前为止的完整历史（含中间的
// 工具调用和工具返回），所以最后一次快照就是整个循环的消息记录。
// 系统提示不属于任务记录，跳过。
func SnapshotTranscript(input []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(input))
	for _, m := range input {
		if m == nil || m.Role == schema.System {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MergeTranscript 把 react 循环的消息快照和最终输出合并成任务的完整消息记录。
// 快照覆盖 load 阶段记录的输入（快照是它的超集）；没有快照时保留已有记录，
// 纯对话代理走的就是这条路径。
func MergeTranscript(task *model.Task, transcript []*schema.Message, final *schema.Message) {
	if task == nil {
		return
	}
	if len(transcript) > 0 {
		task.TaskMessages = append([]*schema.Message{}, transcript...)
	}
	if final != nil {
		task.TaskMessages = append(task.TaskMessages, final)
	}
}

// agentAliases 模型输出中常见的代理别名，统一映射到内部代理名
var agentAliases = map[string]string{
	"web_search":         consts.WebSearchAgent,
	"web_search_agent":   consts.WebSearchAgent,
	"social_media":       consts.SocialMediaAgent,
	"social_media_agent": consts.SocialMediaAgent,
	"finance_data":       consts.FinanceDataAgent,
	"finance_data_agent": consts.FinanceDataAgent,
	"sentiment":          consts.SentimentAgent,
	"sentiment_analysis": consts.SentimentAgent,
	"sentiment_agent":    consts.SentimentAgent,
	"comparison":         consts.ComparisonAgent,
	"data_comparison":    consts.ComparisonAgent,
	"comparison_agent":   consts.ComparisonAgent,
	"coding":             consts.CoderAgent,
	"coder":              consts.CoderAgent,
	"coder_agent":        consts.CoderAgent,
	"db_search":          consts.DBSearchAgent,
	"db_search_agent":    consts.DBSearchAgent,
	"document_search":    consts.DBSearchAgent,
	"map":                consts.MapAgent,
	"map_agent":          consts.MapAgent,
	"response_generator": consts.ResponseGenerator,
	"response_generation": consts.ResponseGenerator,
}

// CanonicalAgentName 把模型产出的代理名归一化为内部代理名
func CanonicalAgentName(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if canon, ok := agentAliases[key]; ok {
		return canon, true
	}
	return "", false
}
