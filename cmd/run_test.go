// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestBuildJobParams_CredentialsAndExtras(t *testing.T) {
	params, err := buildJobParams("admin", "hunter2", "123456", "http://localhost:9999",
		[]string{"email=kara@example.com"}, "")
	require.NoError(t, err)

	assert.Equal(t, "admin", params["username"])
	assert.Equal(t, "hunter2", params["password"])
	assert.Equal(t, "123456", params["challenge_code"])
	assert.Equal(t, "http://localhost:9999", params["base_url"])
	assert.Equal(t, "kara@example.com", params["email"])
}

func TestBuildJobParams_EmptyFlagsAreOmitted(t *testing.T) {
	params, err := buildJobParams("", "", "", "", nil, "")
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestBuildJobParams_RejectsMalformedParam(t *testing.T) {
	_, err := buildJobParams("", "", "", "", []string{"no-equals-sign"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestBuildJobParams_StepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.json")
	raw := `[
		{"kind": "authenticate", "required": true},
		{"kind": "extract_table", "target": "user_table", "required": true, "result_key": "users"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	params, err := buildJobParams("", "", "", "", nil, path)
	require.NoError(t, err)

	steps, ok := params["steps"].([]schemas.Step)
	require.True(t, ok)
	require.Len(t, steps, 2)
	assert.Equal(t, schemas.StepAuthenticate, steps[0].Kind)
	assert.Equal(t, "users", steps[1].ResultKey)
}

func TestBuildJobParams_StepsFileMissing(t *testing.T) {
	_, err := buildJobParams("", "", "", "", nil, filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestNewJobStore_MemoryBackend(t *testing.T) {
	cfg := config.NewDefaultConfig()

	store, cleanup, err := newJobStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, store)

	_, err = store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, schemas.ErrJobNotFound)
}
