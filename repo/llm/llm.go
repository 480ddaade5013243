package llm

import (
	"context"

	openai3 "github.com/cloudwego/eino-ext/libs/acl/openai"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/insightlab/insight-agent-go/entity/conf"
)

// NewChatModel 创建自由文本的对话模型，主模型失败时自动用备用模型重试一次
func NewChatModel(ctx context.Context) *FallbackChatModel {
	primary := newOpenAIModel(ctx, conf.GetCfg().Model.DefaultModel, nil)
	fallback := newOpenAIModel(ctx, conf.GetCfg().Model.FallbackModel, nil)
	return NewFallbackChatModel(primary, fallback)
}

// NewStructuredModel 创建结构化输出模型，schema 由样例结构体生成，主备模型共用同一响应格式
func NewStructuredModel(ctx context.Context, name string, sample any) *FallbackChatModel {
	// 定义返回结构
	respSchema, err := openapi3gen.NewSchemaRefForValue(sample, nil)
	if err != nil {
		slog.Fatal("NewStructuredModel failed, gen schema err: %v, name: %s", err, name)
		return nil
	}

	format := &openai3.ChatCompletionResponseFormat{
		Type: openai3.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai3.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Strict: false,
			Schema: respSchema.Value,
		},
	}

	primary := newOpenAIModel(ctx, conf.GetCfg().Model.DefaultModel, format)
	fallback := newOpenAIModel(ctx, conf.GetCfg().Model.FallbackModel, format)
	return NewFallbackChatModel(primary, fallback)
}

// newOpenAIModel 创建单个OpenAI兼容模型
func newOpenAIModel(ctx context.Context, m conf.Model, format *openai3.ChatCompletionResponseFormat) *openai.ChatModel {
	llm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:          m.ModelID,
		BaseURL:        m.BaseURL,
		APIKey:         m.APIKey,
		ResponseFormat: format,
	})
	if err != nil {
		slog.Fatal("newOpenAIModel failed, model: %s, err: %v", m.ModelID, err)
		return nil
	}
	return llm
}
