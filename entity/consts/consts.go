package consts

const (
	GraphName = "insight_agent_graph" // 代理图名称，用于标识整个工作流
)

// Agent 名字，同时也是图节点 key 和提示词模板名
const (
	IntentClassifier  = "intent_classifier"  // 意图分类者，判断查询是拒绝、直接回答还是进入研究流程
	Planner           = "planner"            // 计划者，负责把查询拆解为研究计划
	Executor          = "executor"           // 执行器，把抽象计划转换为具体任务列表
	TaskRouter        = "task_router"        // 任务路由器，按任务列表顺序调度各个专业代理
	Manager           = "manager"            // 管理者，推理模式下逐个任务动态调度
	WebSearchAgent    = "web_search_agent"   // 网络搜索代理
	SocialMediaAgent  = "social_media_agent" // 社媒搜索代理
	FinanceDataAgent  = "finance_data_agent" // 金融数据代理
	SentimentAgent    = "sentiment_agent"    // 情绪分析代理
	ComparisonAgent   = "comparison_agent"   // 数据对比代理
	CoderAgent        = "coder_agent"        // 代码执行代理
	DBSearchAgent     = "db_search_agent"    // 文档检索代理
	MapAgent          = "map_agent"          // 地理信息代理
	ResponseGenerator = "response_generator" // 响应生成者，汇总所有任务产出生成最终报告
	Validator         = "validator"          // 校验者，对最终报告进行评审
	HumanReview       = "human_review"       // 人工评审，校验不通过时等待人工决策
)

// GetAgentNameList 返回列表
func GetAgentNameList() []string {
	return []string{
		IntentClassifier,
		Planner,
		Executor,
		TaskRouter,
		Manager,
		WebSearchAgent,
		SocialMediaAgent,
		FinanceDataAgent,
		SentimentAgent,
		ComparisonAgent,
		CoderAgent,
		DBSearchAgent,
		MapAgent,
		ResponseGenerator,
		Validator,
		HumanReview,
	}
}

// GetSpecializedAgentList 返回专业代理列表，任务列表中的 agent_name 只允许取这些值
func GetSpecializedAgentList() []string {
	return []string{
		WebSearchAgent,
		SocialMediaAgent,
		FinanceDataAgent,
		SentimentAgent,
		ComparisonAgent,
		CoderAgent,
		DBSearchAgent,
		MapAgent,
		ResponseGenerator,
	}
}

// 意图分类结果
const (
	IntentReject       = "reject"        // 拒绝查询，直接返回道歉信息
	IntentDirectAnswer = "direct_answer" // 直接回答，无需规划
	IntentProceed      = "proceed"       // 进入研究流程
)

// 人工评审选项
const (
	HumanApprove = "yes" // 人工确认返工，带反馈重新进入规划
	HumanReject  = "no"  // 人工否决返工，按部分正确结束
)

// 校验结论
const (
	VerdictFullyCorrect     = "fully_correct"     // 完全正确
	VerdictPartiallyCorrect = "partially_correct" // 部分正确
	VerdictIncorrect        = "incorrect"         // 不正确
)

// 流程控制边界
const (
	MaxFeedbackCycles      = 3 // 校验反馈循环上限，达到后强制接受结果
	DefaultMaxManagerSteps = 8 // 推理模式下管理者的默认步数上限
)

// 进度常量，progress 在单轮内单调不减，最终报告完成后置为 100
const (
	ProgressIntentStep      = 10.0  // 意图分类通过后的进度增量
	ProgressExecutionBudget = 70.0  // 分配给信息收集任务的进度预算
	ProgressDone            = 100.0 // 终态进度
)

// RejectFallbackResponse 拒绝查询时的兜底回复
const RejectFallbackResponse = "I'm sorry, I can't help with this request. Please try a finance-related question."

// DegradedFailureResponse 整轮失败时的降级回复
const DegradedFailureResponse = "I'm sorry, something went wrong while researching your question. Please try again."

// MaxRetriesFeedback 强制接受时写入的反馈
const MaxRetriesFeedback = "max retries reached"

// ChartSentinel 图表生成工具的失败哨兵值，出现时整个图表块会被剔除
const ChartSentinel = "NO_CHART_GENERATED"
