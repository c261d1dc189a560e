package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoreDriver:          "sqlite",
		SQLitePath:           filepath.Join(t.TempDir(), "app.db"),
		AnalyzerCommand:      "repomix analyze",
		AnalyzerOutputFormat: "json",
		WorkspaceBasePath:    t.TempDir(),
		OllamaChatURL:        "http://127.0.0.1:1",
		OllamaChatModel:      "qwen3",
		HistoryLimit:         10,
		TreeDepth:            3,
	}
}

func TestNew_WiresServices(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "qwen3", a.Model.ModelName())

	_, err = a.Scheduler.GetStatus(context.Background(), "acme", "widgets")
	assert.ErrorIs(t, err, port.ErrNotFound)

	history, err := a.Chat.History(context.Background(), "user1", "https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNew_RejectsBadAnalyzerCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnalyzerCommand = `repomix "unterminated`

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "mongo"

	_, err := New(cfg)
	assert.Error(t, err)
}
