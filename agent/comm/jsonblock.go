package comm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Planner 和 Manager 使用"推理文本 + 围栏JSON"的文本协议：
// 模型先输出一段思考过程，再输出一个 ```json 围栏块承载结构化决策。
// 这里是该协议唯一的解码入口，解析失败显式报错，不产出静默的空值。

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// ExtractJSONBlock 从模型原始输出中提取JSON决策块。
// 依次尝试：围栏代码块、裸的首尾花括号/方括号区间。
func ExtractJSONBlock(raw string) (string, error) {
	for _, m := range fencedBlockRe.FindAllStringSubmatch(raw, -1) {
		candidate := strings.TrimSpace(m[1])
		if gjson.Valid(candidate) {
			return candidate, nil
		}
	}

	// 没有围栏块时，尝试截取裸JSON区间
	if block, ok := bareJSONSlice(raw, "{", "}"); ok {
		return block, nil
	}
	if block, ok := bareJSONSlice(raw, "[", "]"); ok {
		return block, nil
	}

	return "", fmt.Errorf("no valid json block found in model output, raw length = %d", len(raw))
}

// bareJSONSlice 截取首个开括号到最后一个闭括号之间的内容
func bareJSONSlice(raw, open, close string) (string, bool) {
	start := strings.Index(raw, open)
	end := strings.LastIndex(raw, close)
	if start < 0 || end <= start {
		return "", false
	}
	candidate := strings.TrimSpace(raw[start : end+1])
	if gjson.Valid(candidate) {
		return candidate, true
	}
	return "", false
}

// DecodeFencedJSON 提取并解码围栏JSON块到目标结构
func DecodeFencedJSON(raw string, v any) error {
	block, err := ExtractJSONBlock(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return fmt.Errorf("decode fenced json failed: %w", err)
	}
	return nil
}
