package conf

// MCPServerConfig MCP服务器配置
type MCPServerConfig struct {
	Command string            `yaml:"command" mapstructure:"command"`             // MCP服务器启动命令
	Args    []string          `yaml:"args" mapstructure:"args"`                   // 命令行参数列表
	Env     map[string]string `yaml:"env,omitempty" mapstructure:"env,omitempty"` // 环境变量映射，可选配置
}

// MCPConfig MCP配置
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers" mapstructure:"servers"` // MCP服务器配置映射，key为服务器名称
}

// Model 单个模型配置
type Model struct {
	ModelID string `yaml:"model_id" mapstructure:"model_id"` // 模型ID
	BaseURL string `yaml:"base_url" mapstructure:"base_url"` // 模型服务的基础URL地址
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`   // 模型服务的API密钥
}

// ModelConfig 模型配置，每个调用点都先用主模型，异常时用备用模型重试一次
type ModelConfig struct {
	DefaultModel  Model `yaml:"default_model" mapstructure:"default_model"`   // 主模型
	FallbackModel Model `yaml:"fallback_model" mapstructure:"fallback_model"` // 备用模型
}

// SettingConfig 应用运行配置
type SettingConfig struct {
	AgentMaxStep      int `yaml:"agent_max_step" mapstructure:"agent_max_step"`             // 专业代理工具循环最大步骤数
	CoderMaxToolCalls int `yaml:"coder_max_tool_calls" mapstructure:"coder_max_tool_calls"` // 代码代理工具调用硬上限
	MaxManagerSteps   int `yaml:"max_manager_steps" mapstructure:"max_manager_steps"`       // 推理模式下管理者最多派发的任务数
	MaxLimitToken     int `yaml:"max_limit_token" mapstructure:"max_limit_token"`           // 最大限制token数
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // 监听地址
}

// AppConfig 应用配置
type AppConfig struct {
	MCP     MCPConfig     `yaml:"mcp" mapstructure:"mcp"`         // MCP服务相关配置
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`     // 大语言模型相关配置
	Setting SettingConfig `yaml:"setting" mapstructure:"setting"` // 应用运行时配置参数
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`   // HTTP服务配置
}
