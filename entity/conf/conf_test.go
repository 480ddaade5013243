package conf

import (
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 示例配置是新环境的起点，这里的值必须是生产默认值
func TestExampleConfigDefaults(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(file.Provider("../../config_example.yaml"), yaml.Parser()))

	var config AppConfig
	require.NoError(t, k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}))

	assert.Equal(t, 25, config.Setting.AgentMaxStep)
	assert.Equal(t, 6, config.Setting.CoderMaxToolCalls)
	assert.Equal(t, 8, config.Setting.MaxManagerSteps)
	assert.Equal(t, ":8888", config.Server.Addr)
}
