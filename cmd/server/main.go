package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/gitsum/internal/app"
	"github.com/arturoeanton/gitsum/internal/handler"
	"github.com/arturoeanton/gitsum/internal/mcp"
	"github.com/arturoeanton/gitsum/internal/middleware"
	"github.com/arturoeanton/gitsum/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting GitSum",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"ollama_chat", cfg.OllamaChatURL,
		"analyzer", cfg.AnalyzerCommand,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Store, adapters and services ─────────────────────────────────────
	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if _, err := a.Scheduler.RecoverInterrupted(context.Background()); err != nil {
		slog.Error("failed to recover interrupted runs", "error", err)
		os.Exit(1)
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	srv := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ModelTimeout + 30*time.Second,
	})

	// Global middleware
	srv.Use(recover.New())
	srv.Use(fiberlogger.New())
	srv.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	srv.Use(middleware.RequestLogger())

	// ── Public Routes ────────────────────────────────────────────────────
	handler.RegisterHealth(srv, cfg.AppName, a.Model.ModelName())

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtMiddleware := middleware.JWTMiddleware(middleware.JWTConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
	})

	api := srv.Group("/api/v1", jwtMiddleware)

	handler.NewStatusHandler(a.Scheduler, 0, 0).Register(api)
	handler.NewRepoHandler(a.Scheduler).Register(api)
	handler.NewChatHandler(a.Chat).Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	var mcpServer *mcp.Server
	if cfg.MCPEnabled {
		mcpServer = mcp.NewServer(a.Scheduler, a.Chat, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	go func() {
		slog.Info("🌐 Fiber listening", "port", cfg.Port)
		if err := srv.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ToolTimeout+time.Minute)
	defer cancel()

	if err := srv.ShutdownWithContext(ctx); err != nil {
		slog.Error("fiber shutdown", "error", err)
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(ctx); err != nil {
			slog.Error("MCP shutdown", "error", err)
		}
	}

	// In-flight runs are never cancelled; wait for them to record their outcome.
	if err := a.Scheduler.Wait(ctx); err != nil {
		slog.Warn("runs still in flight at exit", "error", err)
	}
	slog.Info("bye")
}
