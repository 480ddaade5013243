package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlanOrdersStepsNumerically(t *testing.T) {
	raw := "First I need the raw data, then the synthesis.\n\n" +
		"```json\n" +
		`{"2": {"plan": "generate the final response", "done": false},` +
		` "10": {"plan": "compare with competitors", "done": false},` +
		` "1": {"plan": "fetch tesla stock price", "done": false}}` + "\n```"

	plan, err := DecodePlan(raw)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "1", plan.Steps[0].StepID)
	assert.Equal(t, "2", plan.Steps[1].StepID)
	assert.Equal(t, "10", plan.Steps[2].StepID)
	assert.Equal(t, "fetch tesla stock price", plan.Steps[0].Plan)
}

func TestDecodePlanTwoStepShape(t *testing.T) {
	// 简单查询的典型形态：一个取数步 + 一个合成步
	raw := "```json\n" +
		`{"1": {"plan": "retrieve current stock price", "done": false},` +
		` "2": {"plan": "write the cited answer", "done": false}}` + "\n```"

	plan, err := DecodePlan(raw)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
}

func TestDecodePlanNoJSONBlock(t *testing.T) {
	_, err := DecodePlan("I could not come up with a plan, sorry.")
	require.Error(t, err)
}

func TestDecodePlanEmptyStepMap(t *testing.T) {
	_, err := DecodePlan("```json\n{}\n```")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty step map")
}
