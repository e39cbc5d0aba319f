// Package api exposes the responder over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kalambet/supportqa/internal/contact"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/pipeline"
	"github.com/kalambet/supportqa/internal/retrieval"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Session identification.
const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "session_id"
)

// Responder is the part of pipeline.Responder the transports use.
type Responder interface {
	Respond(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	Search(ctx context.Context, query string) (retrieval.Result, error)
	History(ctx context.Context, sessionKey string, limit int) []memory.Turn
	Contact() contact.Info
	CorpusSize() int
	IndexSize() int
}

// ChatDeps configures the chat handler.
type ChatDeps struct {
	Responder Responder
	// IssueCookies sets a fresh session cookie when a request carries no
	// session header or cookie. Without it, such requests fall back to the
	// client address and user agent.
	IssueCookies bool
	// Admin, when non-nil, is mounted under /admin.
	Admin http.Handler
}

// NewChatHandler returns the public HTTP surface: POST /chat, GET /history,
// GET /contact and GET /health.
func NewChatHandler(deps ChatDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Recover)

	r.Get("/health", handleHealth(deps))
	r.Get("/contact", handleContact(deps))
	r.Get("/history", handleHistory(deps))
	r.Post("/chat", handleChat(deps))
	if deps.Admin != nil {
		r.Mount("/admin", deps.Admin)
	}

	return r
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	FirstTurn bool   `json:"first_turn,omitempty"`
}

func handleChat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		key := sessionKey(w, r, req.SessionID, deps.IssueCookies)
		resp, err := deps.Responder.Respond(r.Context(), pipeline.Request{
			Message:    req.Message,
			SessionKey: key,
			UserID:     req.UserID,
			FirstTurn:  req.FirstTurn,
		})
		switch {
		case errors.Is(err, pipeline.ErrEmptyMessage):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		case err != nil && r.Context().Err() != nil:
			slog.Debug("client went away", "session", key, "error", err)
			return
		case err != nil:
			slog.Error("chat failed", "session", key, "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleHistory(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		key := sessionKey(w, r, "", false)
		turns := deps.Responder.History(r.Context(), key, limit)
		if turns == nil {
			turns = []memory.Turn{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": key,
			"turns":      turns,
		})
	}
}

func handleContact(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Responder.Contact())
	}
}

func handleHealth(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		entries := deps.Responder.CorpusSize()
		if entries == 0 {
			status = pipeline.StatusKBUnavailable
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         status,
			"corpus_entries": entries,
			"model_tokens":   deps.Responder.IndexSize(),
		})
	}
}

// sessionKey resolves the session from the header, the body, then the
// cookie. When none is present it either issues a new cookie or falls back
// to the weak client fingerprint.
func sessionKey(w http.ResponseWriter, r *http.Request, bodyID string, issue bool) string {
	explicit := r.Header.Get(SessionHeader)
	if explicit == "" {
		explicit = bodyID
	}
	var cookie string
	if c, err := r.Cookie(SessionCookie); err == nil {
		cookie = c.Value
	}
	if explicit == "" && cookie == "" && issue {
		cookie = uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    cookie,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return memory.ResolveSessionKey(explicit, cookie, r.RemoteAddr, r.UserAgent())
}

// Recover turns a panic into a JSON 500 without echoing its value.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			httpError(w, http.StatusInternalServerError, "server_error", "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
