package llm

import (
	"context"

	"github.com/HildaM/logs/slog"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FallbackChatModel 主备模型包装器。
// 每个调用点的约定：主模型调用抛错时，用完全相同的输入对备用模型重试一次，
// 备用模型也失败则把错误抛给调用方。不做退避，不做第二次重试。
type FallbackChatModel struct {
	primary  ecmodel.ToolCallingChatModel
	fallback ecmodel.ToolCallingChatModel
}

// NewFallbackChatModel 创建主备模型包装器
func NewFallbackChatModel(primary, fallback ecmodel.ToolCallingChatModel) *FallbackChatModel {
	return &FallbackChatModel{
		primary:  primary,
		fallback: fallback,
	}
}

// Generate 同步生成，主模型失败时切换备用模型
func (m *FallbackChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...ecmodel.Option) (*schema.Message, error) {
	out, err := m.primary.Generate(ctx, input, opts...)
	if err == nil {
		return out, nil
	}
	slog.Error("Generate failed on primary model, retrying fallback, err = %+v", err)

	out, fbErr := m.fallback.Generate(ctx, input, opts...)
	if fbErr != nil {
		slog.Error("Generate failed on fallback model, err = %+v", fbErr)
		return nil, fbErr
	}
	return out, nil
}

// Stream 流式生成，仅对首次调用返回的错误做主备切换，流中途错误无法回退
func (m *FallbackChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...ecmodel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := m.primary.Stream(ctx, input, opts...)
	if err == nil {
		return sr, nil
	}
	slog.Error("Stream failed on primary model, retrying fallback, err = %+v", err)

	sr, fbErr := m.fallback.Stream(ctx, input, opts...)
	if fbErr != nil {
		slog.Error("Stream failed on fallback model, err = %+v", fbErr)
		return nil, fbErr
	}
	return sr, nil
}

// WithTools 为主备模型同时绑定工具，返回新的包装器
func (m *FallbackChatModel) WithTools(tools []*schema.ToolInfo) (ecmodel.ToolCallingChatModel, error) {
	primary, err := m.primary.WithTools(tools)
	if err != nil {
		return nil, err
	}
	fallback, err := m.fallback.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return NewFallbackChatModel(primary, fallback), nil
}
