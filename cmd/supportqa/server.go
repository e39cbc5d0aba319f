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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/supportqa/internal/api"
	"github.com/kalambet/supportqa/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the support assistant HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(host, mcpStdio)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and knowledge base status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "interface to listen on")
	serveCmd.Flags().Bool("mcp-stdio", false, "also serve MCP tools over stdin/stdout")
}

func runServer(host string, mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "supportqa version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.loadCorpus(ctx)
	if err != nil {
		return err
	}
	responder := a.responder(ctx, c)
	if err := responder.Warm(ctx); err != nil {
		return fmt.Errorf("warming caches: %w", err)
	}

	deps := api.ChatDeps{
		Responder:    responder,
		IssueCookies: cfg.Server.SessionCookies,
	}
	if cfg.Server.AdminToken != "" {
		deps.Admin = api.NewAdminHandler(api.AdminDeps{Store: a.store, Token: cfg.Server.AdminToken})
		slog.Info("admin routes enabled")
	}

	addr := net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewChatHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Responder: responder, Version: version})
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
		slog.Info("supportqa listening", "addr", addr)
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

type healthResponse struct {
	Status        string `json:"status"`
	CorpusEntries int    `json:"corpus_entries"`
	ModelTokens   int    `json:"model_tokens"`
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var h healthResponse
		if err := decodeJSON(resp, &h); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Knowledge base", "%s, %d entries, %d model tokens", h.Status, h.CorpusEntries, h.ModelTokens)
		}
	}

	printStatus("Provider", "%s", cfg.Engine.Provider)
	printStatus("Models", "%s (fallback %s), embeddings %s", cfg.Engine.PrimaryModel, cfg.Engine.FallbackModel, cfg.Engine.EmbedModel)
	printStatus("Corpus", "%s", corpusLabel(cfg))
	if cfg.Redis.Addr != "" {
		printStatus("Sessions", "redis at %s (ttl %s)", cfg.Redis.Addr, cfg.Session.TTL)
	} else {
		printStatus("Sessions", "stateless")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func corpusLabel(cfg config.Config) string {
	if cfg.Corpus.Path != "" {
		return cfg.Corpus.Path
	}
	return "sqlite knowledge_entries"
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
