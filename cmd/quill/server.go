package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/quillforge/quill/internal/agent"
	"github.com/quillforge/quill/internal/analytics"
	"github.com/quillforge/quill/internal/api"
	"github.com/quillforge/quill/internal/config"
	"github.com/quillforge/quill/internal/pipeline"
	"github.com/quillforge/quill/internal/provider"
	"github.com/quillforge/quill/internal/storage"
	"github.com/quillforge/quill/internal/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the quill server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running quill server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quill system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "quill.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseDuration(raw string, fallback time.Duration, name string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", name, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "quill version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API token exists before anything binds.
	apiToken, err := config.GetAPIToken(config.NewBackend())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("quill is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("quill is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Spawn the managed provider process if one is configured.
	sup := supervisor.New(strings.Fields(cfg.Provider.Command), cfg.Provider.Dir)
	if sup.Managed() {
		printStep("Starting provider process: %s", cfg.Provider.Command)
		if err := sup.EnsureRunning(); err != nil {
			return fmt.Errorf("starting provider process: %w", err)
		}
	}
	defer sup.Stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the generation stack.
	providerClient := provider.New(cfg.Provider.BaseURL)
	gate := provider.NewGate(
		providerClient,
		parseDuration(cfg.Provider.HealthTimeout, 5*time.Second, "provider.health_timeout"),
		cfg.Provider.RetryAttempts,
		parseDuration(cfg.Provider.RetryGap, 2*time.Second, "provider.retry_gap"),
	)
	machine := agent.NewMachine(store, defaultGenerationConfig(cfg.Generation))
	pipe := pipeline.New(pipeline.Deps{
		Store:             store,
		Machine:           machine,
		Gate:              gate,
		Client:            providerClient,
		Analytics:         analytics.New(store),
		Supervisor:        sup,
		GenerationTimeout: parseDuration(cfg.Provider.GenerationTimeout, 120*time.Second, "provider.generation_timeout"),
		TitleTimeout:      parseDuration(cfg.Provider.TitleTimeout, 30*time.Second, "provider.title_timeout"),
	})

	// Boot sequence: every agent goes through initializing and lands on
	// ready or error depending on the provider probe.
	if err := agent.InitializeAll(ctx, machine, store, gate); err != nil {
		return fmt.Errorf("initializing agents: %w", err)
	}

	deps := api.Deps{
		Store:       store,
		Machine:     machine,
		Pipeline:    pipe,
		Gate:        gate,
		Token:       apiToken,
		BaseContext: ctx,
	}
	handler := api.NewHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Deps: deps})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "quill listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func defaultGenerationConfig(g config.GenerationDefaults) storage.GenerationConfig {
	return storage.GenerationConfig{
		Provider:        g.Provider,
		Model:           g.Model,
		Temperature:     g.Temperature,
		MaxTokens:       g.MaxTokens,
		WordCountMin:    g.WordCountMin,
		WordCountMax:    g.WordCountMax,
		Style:           g.Style,
		Tone:            g.Tone,
		ResearchDepth:   g.ResearchDepth,
		ResearchEnabled: true,
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("quill is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop quill (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to quill (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	var serverUp bool
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status   string `json:"status"`
			Provider string `json:"provider"`
		}
		if resp.StatusCode == 200 && json.NewDecoder(resp.Body).Decode(&health) == nil {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Provider", "%s at %s", health.Provider, cfg.Provider.BaseURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
		resp.Body.Close()
	}

	printStatus("Default model", "%s/%s", cfg.Generation.Provider, cfg.Generation.Model)

	// Show agent counts if the server is running.
	if serverUp {
		if c, err := newAPIClient(); err == nil {
			if agentsResp, err := c.get(ctx, "/agents"); err == nil {
				var agents []struct {
					Status string `json:"status"`
				}
				if decodeJSON(agentsResp, &agents) == nil {
					byStatus := map[string]int{}
					for _, a := range agents {
						byStatus[a.Status]++
					}
					printStatus("Agents", "%d total", len(agents))
					for status, n := range byStatus {
						printStatus("  "+status, "%d", n)
					}
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
