package model

// ChatResp SSE 推送给客户端的标准聊天响应
type ChatResp struct {
	ThreadID       string          `json:"thread_id"`
	Agent          string          `json:"agent"`
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Progress       float64         `json:"progress"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	MessageChunks  string          `json:"message_chunks,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolCalls      []ToolResp      `json:"tool_calls,omitempty"`
	ToolCallChunks []ToolChunkResp `json:"tool_call_chunks,omitempty"`
}

// ToolResp 工具调用信息
type ToolResp struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
	Type string                 `json:"type"`
	ID   string                 `json:"id"`
}

// ToolChunkResp 工具调用分片信息，携带原始参数串
type ToolChunkResp struct {
	Name string `json:"name"`
	Args string `json:"args"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InterruptResp 校验中断时推送的待审载荷
type InterruptResp struct {
	ThreadID      string `json:"thread_id"`
	Feedback      string `json:"feedback"`
	DraftResponse string `json:"draft_response"`
}

// TurnRequest 一次用户轮次的入参
type TurnRequest struct {
	Query         string   `json:"query"`
	PreviousTurns []*QA    `json:"previous_messages,omitempty"`
	DocumentIDs   []string `json:"document_ids,omitempty"`
	ReasoningMode bool     `json:"reasoning_mode,omitempty"`
}

// ResumeRequest 人工评审恢复请求
type ResumeRequest struct {
	ThreadID      string `json:"thread_id"`
	HumanResponse string `json:"human_response"` // yes | no
	Feedback      string `json:"feedback,omitempty"`
}
