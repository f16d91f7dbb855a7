// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// syncBuffer adapts a bytes.Buffer to zapcore.WriteSyncer so tests can
// capture the console stream without touching os.Stdout.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func initForTest(t *testing.T, cfg config.LoggerConfig) *syncBuffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(cfg, zapcore.Lock(buf))
	return buf
}

func TestInitialize_ConsoleFormat(t *testing.T) {
	buf := initForTest(t, config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "test-service",
	})

	GetLogger().Info("console message", zap.String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "console message")
	assert.Contains(t, output, "test-service.")
}

func TestInitialize_JSONFormat(t *testing.T) {
	buf := initForTest(t, config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "test-service",
	})

	GetLogger().Info("json message", zap.String("job_id", "abc"))

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "json message", entry["msg"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInitialize_LevelFiltering(t *testing.T) {
	buf := initForTest(t, config.LoggerConfig{
		Level:       "warn",
		Format:      "json",
		ServiceName: "test-service",
	})

	logger := GetLogger()
	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	buf := initForTest(t, config.LoggerConfig{
		Level:       "extremely-verbose",
		Format:      "json",
		ServiceName: "test-service",
	})

	logger := GetLogger()
	logger.Debug("debug suppressed")
	logger.Info("info visible")

	output := buf.String()
	assert.NotContains(t, output, "debug suppressed")
	assert.Contains(t, output, "info visible")
}

func TestInitialize_OnlyFirstCallWins(t *testing.T) {
	buf := initForTest(t, config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "first",
	})

	// A second initialization must not replace the configured logger.
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.Lock(second))

	GetLogger().Info("routed to first")
	assert.Contains(t, buf.String(), "routed to first")
	assert.Empty(t, second.String())
}

func TestGetLogger_FallbackBeforeInit(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}
