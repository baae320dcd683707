package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"production", Config{Level: "info", Process: "launcher"}, false},
		{"development", Config{Level: "debug", Development: true}, false},
		{"empty level", Config{}, false},
		{"bad level", Config{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestFileOutputCarriesProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	logger, err := New(Config{Level: "info", Process: "desktop-agent", File: path})
	require.NoError(t, err)

	logger.Component("tasksync").Info("tasks synchronized", zap.Int("count", 2))
	logger.Debug("below level")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"process":"desktop-agent"`)
	assert.Contains(t, lines[0], `"component":"tasksync"`)
	assert.Contains(t, lines[0], `"message":"tasks synchronized"`)
}

func TestSetLevelAppliesToChildren(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	child := logger.Component("mailbox")

	assert.False(t, child.Core().Enabled(zapcore.InfoLevel))
	require.NoError(t, logger.SetLevel("debug"))
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))
	assert.Equal(t, "debug", child.Level())

	assert.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, "debug", logger.Level())
}

func TestLevelHandler(t *testing.T) {
	logger, err := New(Config{Level: "info"})
	require.NoError(t, err)
	h := logger.LevelHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/log/level", strings.NewReader(`{"level":"error"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", logger.Level())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/log/level", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"level":"error"`)
}

func TestComponentTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := Wrap(zap.New(core))

	logger.Component("handoff").Info("transition", zap.String("to", "DesktopActive"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "handoff", entries[0].LoggerName)
	assert.Equal(t, "handoff", entries[0].ContextMap()["component"])
	assert.Equal(t, "DesktopActive", entries[0].ContextMap()["to"])
}

func TestNopAndWrapNil(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().Info("dropped")
		Wrap(nil).Component("x").Warn("dropped")
	})
	assert.NoError(t, NewNop().Close())
}
