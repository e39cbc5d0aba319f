package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/pipeline"
)

func chatReq(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, body io.Reader) (string, string) {
	t.Helper()
	var out struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return out.Error.Type, out.Error.Message
}

func TestChat_OK(t *testing.T) {
	m := newMockResponder()
	h := NewChatHandler(ChatDeps{Responder: m})

	rr := httptest.NewRecorder()
	req := chatReq(`{"message":"cs3000 stitches?","user_id":"u1"}`)
	req.Header.Set(SessionHeader, "s-42")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp pipeline.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != pipeline.StatusAnswered || resp.Reply != m.resp.Reply {
		t.Errorf("resp = %+v", resp)
	}
	got := m.lastRequest()
	if got.SessionKey != "s-42" || got.UserID != "u1" || got.Message != "cs3000 stitches?" {
		t.Errorf("request = %+v", got)
	}
}

func TestChat_SessionResolution(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		cookie string
		want   string
	}{
		{"header wins", "h", `{"message":"hi","session_id":"b"}`, "c", "h"},
		{"body before cookie", "", `{"message":"hi","session_id":"b"}`, "c", "b"},
		{"cookie", "", `{"message":"hi"}`, "c", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockResponder()
			h := NewChatHandler(ChatDeps{Responder: m, IssueCookies: true})

			req := chatReq(tt.body)
			if tt.header != "" {
				req.Header.Set(SessionHeader, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := m.lastRequest().SessionKey; got != tt.want {
				t.Errorf("session = %q, want %q", got, tt.want)
			}
			if len(rr.Result().Cookies()) != 0 {
				t.Error("cookie issued although the client identified itself")
			}
		})
	}
}

func TestChat_IssuesCookie(t *testing.T) {
	m := newMockResponder()
	h := NewChatHandler(ChatDeps{Responder: m, IssueCookies: true})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"message":"hi"}`))

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookie {
		t.Fatalf("cookies = %v", cookies)
	}
	if got := m.lastRequest().SessionKey; got != cookies[0].Value {
		t.Errorf("session = %q, want issued cookie %q", got, cookies[0].Value)
	}
}

func TestChat_FingerprintWithoutCookies(t *testing.T) {
	m := newMockResponder()
	h := NewChatHandler(ChatDeps{Responder: m})

	req := chatReq(`{"message":"hi"}`)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("User-Agent", "curl/8")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if len(rr.Result().Cookies()) != 0 {
		t.Error("cookie issued with IssueCookies off")
	}
	want := memory.ResolveSessionKey("", "", "10.0.0.1:9999", "curl/8")
	if got := m.lastRequest().SessionKey; got != want {
		t.Errorf("session = %q, want %q", got, want)
	}
}

func TestChat_BadRequests(t *testing.T) {
	m := newMockResponder()
	m.err = pipeline.ErrEmptyMessage
	h := NewChatHandler(ChatDeps{Responder: m})

	for _, body := range []string{`not json`, `{"message":"   "}`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, chatReq(body))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
			continue
		}
		if typ, _ := decodeError(t, rr.Body); typ != "invalid_request_error" {
			t.Errorf("body %q: error type = %q", body, typ)
		}
	}
}

func TestChat_InternalErrorHidesDetail(t *testing.T) {
	m := newMockResponder()
	m.err = errBoom
	h := NewChatHandler(ChatDeps{Responder: m})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"message":"hi"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	typ, msg := decodeError(t, rr.Body)
	if typ != "server_error" || strings.Contains(msg, "boom") {
		t.Errorf("error = %q %q", typ, msg)
	}
}

func TestChat_ClientGone(t *testing.T) {
	m := newMockResponder()
	m.err = context.Canceled
	h := NewChatHandler(ChatDeps{Responder: m})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"message":"hi"}`).WithContext(ctx))

	if rr.Body.Len() != 0 {
		t.Errorf("expected no body for a cancelled request, got %s", rr.Body.String())
	}
}

func TestChat_PanicRecovered(t *testing.T) {
	m := newMockResponder()
	m.panicMsg = "secret internals"
	h := NewChatHandler(ChatDeps{Responder: m})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"message":"hi"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret internals") {
		t.Error("panic value leaked to client")
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	h := NewChatHandler(ChatDeps{Responder: newMockResponder()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestHistory(t *testing.T) {
	m := newMockResponder()
	m.history = []memory.Turn{
		{Role: memory.RoleUser, Text: "one"},
		{Role: memory.RoleAssistant, Text: "two"},
		{Role: memory.RoleUser, Text: "three"},
	}
	h := NewChatHandler(ChatDeps{Responder: m})

	req := httptest.NewRequest(http.MethodGet, "/history?limit=2", nil)
	req.Header.Set(SessionHeader, "s1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out struct {
		SessionID string        `json:"session_id"`
		Turns     []memory.Turn `json:"turns"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.SessionID != "s1" || len(out.Turns) != 2 || out.Turns[1].Text != "three" {
		t.Errorf("out = %+v", out)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	h := NewChatHandler(ChatDeps{Responder: newMockResponder()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history", nil))
	if !strings.Contains(rr.Body.String(), `"turns":[]`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestContact(t *testing.T) {
	h := NewChatHandler(ChatDeps{Responder: newMockResponder()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contact", nil))

	var out map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["email"] != "help@example.com" || out["phone"] != "1800-000-111" {
		t.Errorf("contact = %v", out)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{3, "ok"},
		{0, pipeline.StatusKBUnavailable},
	}
	for _, tt := range tests {
		m := newMockResponder()
		m.size = tt.size
		h := NewChatHandler(ChatDeps{Responder: m})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		var out struct {
			Status  string `json:"status"`
			Entries int    `json:"corpus_entries"`
			Tokens  int    `json:"model_tokens"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Status != tt.want || out.Entries != tt.size || out.Tokens != tt.size*2 {
			t.Errorf("size %d: health = %+v", tt.size, out)
		}
	}
}

func TestAdminNotMountedWithoutHandler(t *testing.T) {
	h := NewChatHandler(ChatDeps{Responder: newMockResponder()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/interactions", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
