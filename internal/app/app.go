// Package app wires configuration into the stores, adapters and services
// shared by the server and the CLI.
package app

import (
	"fmt"
	"log/slog"

	"github.com/arturoeanton/gitsum/internal/adapter/ai"
	"github.com/arturoeanton/gitsum/internal/adapter/analyzer"
	"github.com/arturoeanton/gitsum/internal/adapter/store"
	"github.com/arturoeanton/gitsum/internal/adapter/vcs"
	"github.com/arturoeanton/gitsum/internal/adapter/workspace"
	"github.com/arturoeanton/gitsum/internal/digest"
	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/internal/prompt"
	"github.com/arturoeanton/gitsum/internal/service"
	"github.com/arturoeanton/gitsum/pkg/config"
)

// App holds the composed services.
type App struct {
	Config    *config.Config
	DB        *store.DB
	Model     port.ModelProvider
	Scheduler *service.Scheduler
	Chat      *service.ChatService
}

// New opens the configured store, applies migrations and builds the services.
func New(cfg *config.Config) (*App, error) {
	db, err := store.Open(cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	slog.Info("store ready", "driver", db.Driver(), "dsn", cfg.DSN())

	a, err := Compose(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Compose builds the services on an already migrated database.
func Compose(cfg *config.Config, db *store.DB) (*App, error) {
	analyze, err := analyzer.NewCommandAnalyzer(cfg.AnalyzerCommand, cfg.AnalyzerOutputFormat)
	if err != nil {
		return nil, fmt.Errorf("configure analyzer: %w", err)
	}

	jobs := store.NewJobRepo(db)
	chats := store.NewChatRepo(db)

	model := ai.NewOllamaProvider(ai.OllamaEndpointConfig{
		BaseURL: cfg.OllamaChatURL,
		Model:   cfg.OllamaChatModel,
		Token:   cfg.OllamaChatToken,
	})

	scheduler := service.NewScheduler(
		jobs,
		vcs.NewGitProvider(cfg.GitBinary),
		analyze,
		workspace.NewTempDirProvider(cfg.WorkspaceBasePath),
		digest.NewCompressor(cfg.TreeDepth),
		service.SchedulerConfig{
			FreshnessWindow:   cfg.FreshnessWindow,
			ToolTimeout:       cfg.ToolTimeout,
			MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		},
	)

	builder := prompt.NewBuilder(cfg.HistoryLimit, cfg.HistoryTokenBudget, cfg.SystemPrompt)
	chat := service.NewChatService(jobs, chats, model, builder, cfg.ModelTimeout)

	return &App{
		Config:    cfg,
		DB:        db,
		Model:     model,
		Scheduler: scheduler,
		Chat:      chat,
	}, nil
}

// Close releases the database handles.
func (a *App) Close() error {
	return a.DB.Close()
}
