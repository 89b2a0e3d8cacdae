package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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

	"github.com/kalambet/questboard/internal/aggregate"
	"github.com/kalambet/questboard/internal/api"
	"github.com/kalambet/questboard/internal/config"
	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/ollama"
	"github.com/kalambet/questboard/internal/pipeline"
	"github.com/kalambet/questboard/internal/scoring"
	"github.com/kalambet/questboard/internal/storage"
	"github.com/kalambet/questboard/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the questboard server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running questboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show questboard system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout alongside the HTTP API")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "questboard.pid")
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

func runServer(withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.RequireAPIToken(); err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("questboard is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("questboard is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: "questboard",
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flushing traces", "error", err)
		}
	}()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	scorer, err := buildScorer(ctx, cfg, store)
	if err != nil {
		return err
	}
	suggester, err := buildSuggester(cfg)
	if err != nil {
		return err
	}

	agg := aggregate.New(buildSources(cfg)...)
	if len(agg.Sources()) == 0 {
		slog.Warn("no listing sources configured; only POST /quests will add quests")
	}
	pl := pipeline.New(agg, scorer, suggester, store)

	scheduler := pipeline.NewScheduler(pl, cfg.Pipeline.Interval)
	go scheduler.Run(ctx)

	maintainer := pipeline.NewMaintainer(store, cfg.Maintenance.Interval, cfg.Maintenance.CurveMaxAgeDays)
	go maintainer.Run(ctx)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:     store,
		Processor: pl,
		Ingest:    scheduler,
		Gear:      suggester,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           appHandler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:  store,
			Gear:   suggester,
			Ingest: scheduler,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("questboard listening", "addr", addr, "sources", agg.Sources(), "strategy", cfg.Scoring.Strategy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildScorer(ctx context.Context, cfg config.Config, store *storage.Store) (scoring.Scorer, error) {
	if cfg.Scoring.Strategy != config.StrategySemantic {
		return scoring.NewLexical(store, scoring.LexicalOptions{
			MaxModelAge:  cfg.Scoring.ModelMaxAge,
			MinModelDocs: cfg.Scoring.MinModelDocs,
		}), nil
	}

	client := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureEmbedModel(ctx, client, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return nil, err
	}
	sem, err := scoring.NewSemantic(client, cfg.Ollama.EmbedModel, cfg.Scoring.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating semantic scorer: %w", err)
	}
	return sem, nil
}

func buildSuggester(cfg config.Config) (*gear.Suggester, error) {
	if cfg.Gear.TaxonomyFile == "" {
		return gear.NewSuggester(nil), nil
	}
	t, err := gear.LoadTaxonomy(cfg.Gear.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("loading gear taxonomy: %w", err)
	}
	return gear.NewSuggester(t), nil
}

func buildSources(cfg config.Config) []aggregate.Source {
	client := &http.Client{Timeout: 20 * time.Second}
	var sources []aggregate.Source
	if cfg.Sources.BoardURL != "" {
		sources = append(sources, aggregate.NewBoardSource("board", cfg.Sources.BoardURL, client))
	}
	if cfg.Sources.FeedURL != "" {
		sources = append(sources, aggregate.NewFeedSource("feed", cfg.Sources.FeedURL, client))
	}
	if cfg.Sources.BulletinPath != "" {
		sources = append(sources, aggregate.NewBulletinSource("bulletin", cfg.Sources.BulletinPath))
	}
	return sources
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("questboard is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop questboard (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to questboard (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Strategy", "%s", cfg.Scoring.Strategy)
	if cfg.Scoring.Strategy == config.StrategySemantic {
		oc := ollama.New(cfg.Ollama.BaseURL)
		if oc.IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	}

	if running && cfg.Server.APIToken != "" {
		ac := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}
		if resp, err := ac.get(ctx, "/stats"); err == nil {
			var stats storage.CacheStats
			if decodeJSON(resp, &stats) == nil {
				printStatus("Quests", "%d (avg difficulty %.2f)", stats.TotalCount, stats.AvgDifficulty)
				for _, src := range sortedKeys(stats.BySource) {
					printStatus("  "+src, "%d", stats.BySource[src])
				}
			}
		}
		if resp, err := ac.get(ctx, "/ingest"); err == nil {
			var rep pipeline.Report
			if decodeJSON(resp, &rep) == nil {
				printStatus("Last ingest", "%s (%d cached, %d failed)", rep.StartedAt.Local().Format(time.RFC822), rep.Cached, rep.Failed)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
