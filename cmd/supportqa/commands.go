package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/supportqa/internal/config"
	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/ingest"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/pipeline"
	"github.com/kalambet/supportqa/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message to the running assistant",
	Long: `Send a message to the running assistant and print the reply.

Examples:
  supportqa ask "what is the warranty on the DY-CS3000?"
  supportqa ask --session demo "remember that my machine is DY-CS3000"
  supportqa ask --verbose "contact number"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		user, _ := cmd.Flags().GetString("user")
		verbose, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		client.session = session

		resp, err := client.post(cmd.Context(), "/chat", map[string]any{
			"message": strings.Join(args, " "),
			"user_id": user,
		})
		if err != nil {
			return err
		}

		var out pipeline.Response
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
		if verbose {
			printStatus("Intent", "%s", out.Intent)
			printStatus("Status", "%s", colorize(statusColor(out.Status), out.Status))
			printStatus("Mode", "%s", out.Mode)
			if len(out.Sources) > 0 {
				printStatus("Sources", "%s", strings.Join(out.Sources, ", "))
			}
			if len(out.Entities) > 0 {
				printStatus("Entities", "%s", strings.Join(out.Entities, ", "))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "cli", "session identifier")
	askCmd.Flags().String("user", "", "user identifier for remembered facts (default: session)")
	askCmd.Flags().BoolP("verbose", "v", false, "print intent, status and sources")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recent turns of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		client.session = session

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var out struct {
			Turns []memory.Turn `json:"turns"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Turns) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history for this session.")
			return nil
		}
		for _, t := range out.Turns {
			role := colorize(colorCyan, t.Role)
			if t.Role == memory.RoleUser {
				role = colorize(colorBold, t.Role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", role, t.Text)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("session", "cli", "session identifier")
	historyCmd.Flags().Int("limit", 20, "maximum number of turns")
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Build or inspect the knowledge base",
}

var kbBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Extract, chunk and embed documents into the knowledge base",
	Long: `Extract, chunk and embed every .txt, .md, .html and .pdf file under --input.

Entries are stored in the SQLite knowledge_entries table, or written to a
JSON/JSONL corpus file with --out.

Examples:
  supportqa kb build --input ./docs --replace
  supportqa kb build --input ./docs --out corpus.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		out, _ := cmd.Flags().GetString("out")
		replace, _ := cmd.Flags().GetBool("replace")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		if input == "" {
			return fmt.Errorf("--input is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		var store ingest.EntryStore
		if out == "" {
			store = corpus.NewSQLiteStore(a.store.DB())
		}

		printStep("Building knowledge base from %s", input)
		rep, err := ingest.NewBuilder(a.embedder(), store, ingest.Options{
			ChunkSize: chunkSize,
			Replace:   replace,
		}).Build(ctx, input)
		if err != nil {
			return err
		}

		if out != "" {
			v := time.Now().UTC().Format("20060102T150405Z")
			if err := corpus.WriteFile(out, v, rep.Entries); err != nil {
				return fmt.Errorf("writing corpus: %w", err)
			}
			printSuccess("Wrote %d entries to %s", len(rep.Entries), out)
		} else {
			printSuccess("Stored %d entries", len(rep.Entries))
		}
		printStatus("Files", "%d", rep.Files)
		if rep.Skipped > 0 {
			printStatus("Skipped", "%d unsupported", rep.Skipped)
		}
		if rep.Failed > 0 {
			printWarning("%d files could not be read", rep.Failed)
		}
		return nil
	},
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base size, model tokens and contact details",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.loadCorpus(ctx)
		if err != nil {
			return err
		}
		r := a.responder(ctx, c)
		if err := r.Warm(ctx); err != nil {
			return err
		}

		info := r.Contact()
		printStatus("Corpus", "%s", corpusLabel(cfg))
		printStatus("Version", "%s", c.Version())
		printStatus("Entries", "%d", r.CorpusSize())
		printStatus("Model tokens", "%d", r.IndexSize())
		printStatus("Email", "%s", info.Email)
		printStatus("Phone", "%s", info.Phone)
		printStatus("Address", "%s", info.Address)
		if c.Check() != nil {
			printWarning("knowledge base is empty; run supportqa kb build")
		}
		return nil
	},
}

func init() {
	kbBuildCmd.Flags().String("input", "", "directory of source documents")
	kbBuildCmd.Flags().String("out", "", "write a .json or .jsonl corpus file instead of the database")
	kbBuildCmd.Flags().Bool("replace", false, "clear existing entries before storing")
	kbBuildCmd.Flags().Int("chunk-size", ingest.DefaultChunkSize, "maximum characters per entry")
	kbCmd.AddCommand(kbBuildCmd)
	kbCmd.AddCommand(kbStatsCmd)
}

// --- facts ---

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect or reset remembered user facts (admin)",
}

var factsListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List a user's remembered facts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/facts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var facts []storage.Fact
		if err := decodeJSON(resp, &facts); err != nil {
			return err
		}

		if len(facts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No facts stored.")
			return nil
		}
		for _, f := range facts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s  %s\n",
				colorize(colorBold, f.Key), f.Value,
				colorize(colorCyan, f.AddedAt.Format(time.RFC3339)),
			)
		}
		return nil
	},
}

var factsResetCmd = &cobra.Command{
	Use:   "reset <user>",
	Short: "Delete every remembered fact for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/admin/facts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var out struct {
			Deleted int `json:"deleted"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Deleted %d facts for %s", out.Deleted, args[0])
		return nil
	},
}

func init() {
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsResetCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Review the interaction log (admin)",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/admin/interactions?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var interactions []storage.Interaction
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No interactions found.")
			return nil
		}
		for _, ix := range interactions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-14s %s\n",
				colorize(colorCyan, truncateID(ix.ID)),
				ix.CreatedAt.Format(time.RFC3339),
				ix.Status,
				truncate(ix.UserQuery, 80),
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction storage.Interaction
		if err := decodeJSON(resp, &interaction); err != nil {
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("no interaction with id %q", args[0])
			}
			return err
		}
		return printJSON(interaction)
	},
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsListCmd.Flags().Int("offset", 0, "number of interactions to skip")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
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

		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += "  " + colorize(colorYellow, "(from "+k.EnvVar+")")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
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
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
