package model

import (
	"github.com/cloudwego/eino/schema"
)

// QA 历史轮次的一问一答，对后续节点只读
type QA struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// State 单轮对话的共享状态，由图运行时在节点间串联，节点通过 compose.ProcessState 读写
type State struct {
	// 用户输入的信息
	UserQuery           string   `json:"user_query"`
	FormattedUserQuery  string   `json:"formatted_user_query,omitempty"`
	QueryTags           []string `json:"query_tags,omitempty"`
	PreviousMessages    []*QA    `json:"previous_messages,omitempty"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	PreviousDocumentIDs []string `json:"previous_document_ids,omitempty"`

	// 全局消息记录，只追加不修改
	Messages []*schema.Message `json:"messages,omitempty"`

	// 子图共享变量
	Goto           string  `json:"goto,omitempty"`
	ResearchPlan   *Plan   `json:"research_plan,omitempty"`
	TaskList       []*Task `json:"task_list,omitempty"`
	CurrentTaskIdx int     `json:"current_task_idx"` // -1 表示任务列表尚未开始执行
	DocContext     string  `json:"doc_context,omitempty"`
	Progress       float64 `json:"progress"`
	FinalResponse  string  `json:"final_response,omitempty"`

	// 校验与人工评审
	ValidationResult   *ValidationVerdict `json:"validation_result,omitempty"`
	FeedbackCycleCount int                `json:"feedback_cycle_count"`
	HumanResponse      string             `json:"human_response,omitempty"`
	HumanFeedback      string             `json:"human_feedback,omitempty"`

	// 全局配置变量
	ReasoningMode    bool `json:"reasoning_mode"`
	MaxManagerSteps  int  `json:"max_manager_steps,omitempty"`
	ManagerStepCount int  `json:"manager_step_count,omitempty"`
}

// CurrentTask 返回当前执行中的任务，任务列表未开始或已走完时返回 nil
func (s *State) CurrentTask() *Task {
	if s.CurrentTaskIdx < 0 || s.CurrentTaskIdx >= len(s.TaskList) {
		return nil
	}
	return s.TaskList[s.CurrentTaskIdx]
}

// EffectiveQuery 返回下游节点应使用的查询，优先使用意图分类重写后的查询
func (s *State) EffectiveQuery() string {
	if s.FormattedUserQuery != "" {
		return s.FormattedUserQuery
	}
	return s.UserQuery
}

// BumpProgress 推进进度，保证单轮内单调不减且不超过 100
func (s *State) BumpProgress(delta float64) {
	if delta < 0 {
		return
	}
	s.Progress += delta
	if s.Progress > 100 {
		s.Progress = 100
	}
}

// Task 任务列表中的一个具体任务，由 Executor 创建，执行过程中就地更新
type Task struct {
	TaskName        string            `json:"task_name"`
	AgentName       string            `json:"agent_name"`
	Instructions    string            `json:"instructions"`
	ExpectedOutput  string            `json:"expected_output"`
	RequiredContext []string          `json:"required_context,omitempty"` // 只允许引用更早任务的 task_name
	TaskMessages    []*schema.Message `json:"task_messages,omitempty"`    // 执行后填充的完整消息记录
	RetryCount      int               `json:"retry_count,omitempty"`
	TaskFeedback    string            `json:"task_feedback,omitempty"`
}

// PlanStep 研究计划中的一步
type PlanStep struct {
	StepID string `json:"step_id"`
	Plan   string `json:"plan"`
	Done   bool   `json:"done"`
}

// Plan 有序研究计划，最后一步固定为响应合成步
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// IntentDecision 意图分类的结构化输出
type IntentDecision struct {
	Intent             string   `json:"intent"` // reject | direct_answer | proceed
	ResponseToUser     string   `json:"response_to_user,omitempty"`
	FormattedUserQuery string   `json:"formatted_user_query,omitempty"`
	QueryTags          []string `json:"query_tags,omitempty"`
	NeedsDocLookup     bool     `json:"needs_doc_lookup,omitempty"`
}

// TaskSpec Executor 结构化输出中的单个任务
type TaskSpec struct {
	TaskName        string   `json:"task_name"`
	AgentName       string   `json:"agent_name"`
	Instructions    string   `json:"instructions"`
	ExpectedOutput  string   `json:"expected_output"`
	RequiredContext []string `json:"required_context,omitempty"`
}

// TaskPlan Executor 的结构化输出
type TaskPlan struct {
	Tasks []TaskSpec `json:"tasks"`
}

// ManagerDecision 管理者在推理模式下每次产出的下一个任务
type ManagerDecision struct {
	Done            bool     `json:"done,omitempty"` // 为 true 时管理者认为可以直接进入响应生成
	TaskName        string   `json:"task_name"`
	AgentName       string   `json:"agent_name"`
	Instructions    string   `json:"instructions"`
	ExpectedOutput  string   `json:"expected_output"`
	RequiredContext []string `json:"required_context,omitempty"`
}

// ValidationVerdict 校验者的结构化输出
type ValidationVerdict struct {
	Verdict  string `json:"verdict"` // fully_correct | partially_correct | incorrect
	Feedback string `json:"feedback,omitempty"`
}
