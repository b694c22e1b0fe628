package main

import (
	"context"
	"encoding/json"
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

	"github.com/soumithganji/DineLytics/internal/api"
	"github.com/soumithganji/DineLytics/internal/catalog"
	"github.com/soumithganji/DineLytics/internal/chat"
	"github.com/soumithganji/DineLytics/internal/config"
	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/ingest"
	"github.com/soumithganji/DineLytics/internal/intent"
	"github.com/soumithganji/DineLytics/internal/pipeline"
	"github.com/soumithganji/DineLytics/internal/resources"
	"github.com/soumithganji/DineLytics/internal/retrieval"
	"github.com/soumithganji/DineLytics/internal/storage"
)

// app is the fully wired chat service. Model, database and sandbox handles
// are built on first use.
type app struct {
	cfg      config.Config
	store    *storage.Store
	res      *resources.Set
	schema   resources.Schema
	resolver *retrieval.Resolver
	indexer  *ingest.Indexer
	router   *chat.Router
}

func openApp(cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	set := resources.NewSet(cfg, store.DB())
	schema := resources.LoadSchema(cfg.Schema.IndexPath)

	completer := resources.Completer{L: set.Completer}
	embedder := retrieval.NewEmbedder(resources.Embedder{L: set.Embedder})
	vectors := resources.Vectors{L: set.Vectors}
	items := resources.Catalog{L: set.Catalog}

	resolver := retrieval.NewResolver(embedder, vectors, items, cfg.Retrieval.TopK).
		WithFallbackLimit(cfg.Retrieval.FallbackLimit)
	pipe := pipeline.New(completer, resolver, resources.Executor{L: set.Executor}, pipeline.Options{
		Collections: schema.Collections,
		Schema:      schema.Text,
	})
	router := chat.NewRouter(intent.NewClassifier(completer), pipe, completer, store, chat.Options{
		WindowSize: cfg.Conversation.WindowSize,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		res:      set,
		schema:   schema,
		resolver: resolver,
		indexer:  ingest.NewIndexer(items, embedder, vectors, 0),
		router:   router,
	}, nil
}

// prefetch builds every handle in the background.
func (a *app) prefetch(ctx context.Context) {
	go func() {
		if err := resources.Prefetch(ctx, a.res.Warmers()...); err != nil {
			slog.Warn("some resources are unavailable; they will be retried on use", "error", err)
		}
	}()
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.res.Close(ctx); err != nil {
		slog.Warn("closing resources", "error", err)
	}
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func (a *app) mcpServer() *server.MCPServer {
	return api.NewMCPServer(api.MCPDeps{
		Store:    a.store,
		Chat:     a.router,
		Resolver: a.resolver,
		Schema:   a.schema.Text,
		Version:  version,
	})
}

// loadValidConfig loads configuration, sets up logging and rejects settings
// that prevent answering questions.
func loadValidConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DineLytics server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running DineLytics server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DineLytics system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dinelytics.pid")
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
	banner()

	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if cfg.API.Token == "" {
		slog.Warn("no API token configured; /v1 endpoints are unauthenticated")
	}

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dinelytics is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dinelytics is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.prefetch(ctx)

	worker := ingest.NewWorker(a.store, a.indexer, 500*time.Millisecond)
	go worker.Run(ctx)

	if withMCP {
		stdioSrv := server.NewStdioServer(a.mcpServer())
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.AppDeps{
			Store: a.store,
			Chat:  a.router,
			Token: cfg.API.Token,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dinelytics listening on %s\n", addr)
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

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("dinelytics is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dinelytics (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dinelytics (PID %d)", pid)
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
	if err := cfg.Validate(); err != nil {
		printStatus("Config", "%s", colorize(colorYellow, "incomplete"))
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(os.Stderr, "    %s\n", line)
		}
	} else {
		printStatus("Config", "ok")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	running := false
	resp, err := client.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", serverURL(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s (%s)", cfg.LLM.Model, cfg.LLM.Provider)
	if engine.NewOllamaEngine(cfg.Ollama.BaseURL, "", cfg.Ollama.EmbedModel, 0).IsRunning(ctx) {
		printStatus("Ollama", "running at %s (embed model %s)", cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	} else {
		printStatus("Ollama", "not running")
	}

	if cfg.Mongo.URI != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		printStatus("Database", "%s", mongoStatus(pingCtx, cfg))
		cancel()
	}

	if running {
		c := &apiClient{baseURL: serverURL(cfg), token: cfg.API.Token, httpClient: client}
		if n, err := countItems(ctx, c, "/v1/threads"); err == nil {
			printStatus("Threads", "%d", n)
		}
		if n, err := countItems(ctx, c, "/v1/interactions?limit=100"); err == nil {
			printStatus("Interactions", "%s", countLabel(n, 100))
		}
	}

	printStatus("Sandbox", "%s", cfg.Sandbox.Mode)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func mongoStatus(ctx context.Context, cfg config.Config) string {
	c, err := catalog.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return "unreachable: " + err.Error()
	}
	defer c.Close(context.Background())
	if err := c.Ping(ctx); err != nil {
		return "unreachable: " + err.Error()
	}
	return "connected to " + cfg.Mongo.Database
}

func countItems(ctx context.Context, c *apiClient, path string) (int, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return 0, err
	}
	var items []json.RawMessage
	if err := decodeJSON(resp, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
