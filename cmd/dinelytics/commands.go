package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/soumithganji/DineLytics/internal/chat"
	"github.com/soumithganji/DineLytics/internal/config"
	"github.com/soumithganji/DineLytics/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively (runs in-process)",
	Long: `Chat interactively. Questions about sales, orders and menu items are
answered from the database; anything else gets a conversational reply.

Examples:
  dinelytics chat
  dinelytics chat --thread 1718900000123456`,
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")

		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.prefetch(ctx)
		return runREPL(ctx, a.router, a.store, os.Stdin, os.Stdout, threadID)
	},
}

func init() {
	chatCmd.Flags().String("thread", "", "thread to continue")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask a single question through the running server, or in-process with --local.

Examples:
  dinelytics ask "how many pizzas did we sell last week?"
  dinelytics ask --thread 1718900000123456 "and the week before?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		threadID, _ := cmd.Flags().GetString("thread")
		local, _ := cmd.Flags().GetBool("local")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := cmd.Context()

		var (
			reply chat.Reply
			err   error
		)
		if local {
			reply, err = askLocal(ctx, threadID, question)
		} else {
			client, cerr := newAPIClient()
			if cerr != nil {
				return cerr
			}
			reply, err = askRemote(ctx, client, threadID, question)
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		}
		fmt.Println(reply.Text)
		if threadID == "" {
			printStatus("Thread", "%s", reply.ThreadID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("thread", "", "thread to continue (default: start a new one)")
	askCmd.Flags().Bool("local", false, "answer in-process instead of through the server")
	askCmd.Flags().Bool("json", false, "print the full reply as JSON")
}

func askLocal(ctx context.Context, threadID, question string) (chat.Reply, error) {
	cfg, err := loadValidConfig()
	if err != nil {
		return chat.Reply{}, err
	}
	a, err := openApp(cfg)
	if err != nil {
		return chat.Reply{}, err
	}
	defer a.close()
	return a.router.HandleTurn(ctx, threadID, question)
}

func askRemote(ctx context.Context, client *apiClient, threadID, question string) (chat.Reply, error) {
	if threadID == "" {
		resp, err := client.post(ctx, "/v1/threads", nil)
		if err != nil {
			return chat.Reply{}, err
		}
		var t struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &t); err != nil {
			return chat.Reply{}, fmt.Errorf("creating thread: %w", err)
		}
		threadID = t.ID
	}

	resp, err := client.post(ctx, "/v1/threads/"+url.PathEscape(threadID)+"/messages", map[string]string{"content": question})
	if err != nil {
		return chat.Reply{}, err
	}
	var reply chat.Reply
	if err := decodeJSON(resp, &reply); err != nil {
		return chat.Reply{}, err
	}
	return reply, nil
}

// --- threads ---

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage chat threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/threads")
		if err != nil {
			return err
		}
		var threads []storage.ThreadSummary
		if err := decodeJSON(resp, &threads); err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return nil
		}
		for _, t := range threads {
			printThreadLine(os.Stdout, t, false)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a thread's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/threads/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var t struct {
			ID           string            `json:"id"`
			Title        string            `json:"title"`
			Messages     []storage.Message `json:"messages"`
			Conversation struct {
				WindowSize int   `json:"window_size"`
				Buffer     []any `json:"buffer"`
			} `json:"conversation"`
		}
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printStatus("Thread", "%s", t.ID)
		printStatus("Window", "%d of %d messages", len(t.Conversation.Buffer), t.Conversation.WindowSize)
		fmt.Println()
		printMessages(os.Stdout, t.Messages)
		return nil
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/v1/threads/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted thread %s", args[0])
		return nil
	},
}

var threadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every thread as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var writer io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		n, err := exportThreads(cmd.Context(), client, writer)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d threads to %s", n, output)
		}
		return nil
	},
}

var threadsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import threads from an export file",
	Long: `Import threads from a JSON export. Both the current format
({"<id>": {"messages": [...], "conversation": {...}}}) and the older
list-of-pairs conversation format are accepted. Existing threads with the
same ID are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := importThreads(cmd.Context(), client, data)
		if err != nil {
			return err
		}
		printSuccess("Imported %d threads", n)
		return nil
	},
}

func init() {
	threadsExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsDeleteCmd, threadsExportCmd, threadsImportCmd)
}

// exportThreads writes the server's thread export to w, indented, and
// returns the number of threads.
func exportThreads(ctx context.Context, client *apiClient, w io.Writer) (int, error) {
	resp, err := client.get(ctx, "/v1/export")
	if err != nil {
		return 0, err
	}
	var recs map[string]json.RawMessage
	if err := decodeJSON(resp, &recs); err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	return len(recs), nil
}

func importThreads(ctx context.Context, client *apiClient, data []byte) (int, error) {
	if !json.Valid(data) {
		return 0, fmt.Errorf("import file is not valid JSON")
	}
	resp, err := client.post(ctx, "/v1/import", json.RawMessage(data))
	if err != nil {
		return 0, err
	}
	var result struct {
		Imported int `json:"imported"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	return result.Imported, nil
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Show handled turns",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		threadID, _ := cmd.Flags().GetString("thread")
		verbose, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if threadID != "" {
			q.Set("thread", threadID)
		}
		resp, err := client.get(cmd.Context(), "/v1/interactions?"+q.Encode())
		if err != nil {
			return err
		}

		var interactions []struct {
			ID            string   `json:"id"`
			CreatedAt     string   `json:"created_at"`
			UserQuery     string   `json:"user_query"`
			WorkingQuery  string   `json:"working_query"`
			Route         string   `json:"route"`
			ResolvedItems []string `json:"resolved_items"`
			GeneratedCode string   `json:"generated_code"`
			Repaired      bool     `json:"repaired"`
			Status        string   `json:"status"`
			Error         string   `json:"error"`
			DurationMS    int64    `json:"duration_ms"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			query := ix.UserQuery
			if len(query) > 80 {
				query = query[:80] + "..."
			}
			status := ix.Status
			if status != storage.StatusCompleted {
				status = colorize(colorRed, status)
			}
			fmt.Printf("%s  %s  %-7s  %s  %s\n",
				colorize(colorCyan, ix.ID[:min(8, len(ix.ID))]),
				ix.CreatedAt,
				ix.Route,
				status,
				query,
			)
			if !verbose {
				continue
			}
			if ix.WorkingQuery != ix.UserQuery {
				fmt.Printf("    rewritten: %s\n", ix.WorkingQuery)
			}
			if len(ix.ResolvedItems) > 0 {
				fmt.Printf("    items: %s\n", strings.Join(ix.ResolvedItems, ", "))
			}
			if ix.Repaired {
				fmt.Println("    program was repaired")
			}
			if ix.Error != "" {
				fmt.Printf("    error: %s\n", ix.Error)
			}
			fmt.Printf("    took %dms\n", ix.DurationMS)
		}
		return nil
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsListCmd.Flags().String("thread", "", "only this thread")
	interactionsListCmd.Flags().BoolP("verbose", "v", false, "show rewrites, resolved items and errors")
	interactionsCmd.AddCommand(interactionsListCmd)
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the menu item similarity index",
	Long: `Embed every product and ordered item name so loose food words
("wings") resolve to stored names ("Buffalo Wings").

Runs in-process by default; --async queues the job on the running server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")
		ctx := cmd.Context()

		if async {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(ctx, "/v1/catalog/index", nil)
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued index job %s", result["id"])
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		printStep("Indexing item names from %s...", cfg.Mongo.Database)
		n, err := a.indexer.IndexCatalog(ctx)
		if err != nil {
			return err
		}
		printSuccess("Indexed %d item names", n)
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("async", false, "queue the job on the running server")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a.prefetch(ctx)
		err = server.NewStdioServer(a.mcpServer()).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colorize(colorBold, "Config file:"), config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, k.EnvVar))
		}
		if err := cfg.Validate(); err != nil {
			printWarning("configuration incomplete:\n%v", err)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
