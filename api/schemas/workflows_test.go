package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepUnmarshal_RequiredDefaultsToTrue(t *testing.T) {
	var step Step
	require.NoError(t, json.Unmarshal([]byte(`{"kind": "click", "target": "add_user_button"}`), &step))

	assert.Equal(t, StepClick, step.Kind)
	assert.True(t, step.Required, "a step that does not declare required is required")
}

func TestStepUnmarshal_ExplicitRequiredIsKept(t *testing.T) {
	var optional Step
	require.NoError(t, json.Unmarshal([]byte(`{"kind": "click", "required": false}`), &optional))
	assert.False(t, optional.Required)

	var required Step
	require.NoError(t, json.Unmarshal([]byte(`{"kind": "click", "required": true}`), &required))
	assert.True(t, required.Required)
}

func TestStepUnmarshal_OtherFieldsSurvive(t *testing.T) {
	raw := `{
		"kind": "extract_table",
		"target": "user_table",
		"max_attempts": 5,
		"needs": ["confirmation"],
		"result_key": "users"
	}`
	var step Step
	require.NoError(t, json.Unmarshal([]byte(raw), &step))

	assert.Equal(t, StepExtractTable, step.Kind)
	assert.Equal(t, "user_table", step.Target)
	assert.Equal(t, 5, step.MaxAttempts)
	assert.Equal(t, []string{"confirmation"}, step.Needs)
	assert.Equal(t, "users", step.ResultKey)
	assert.True(t, step.Required)
}
