package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/matheus3301/mailmirror/internal/auth"
	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/notify"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/provider/providertest"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/zap"
)

var secret = []byte("http-test-secret-0123456789")

type env struct {
	db     *store.DB
	fake   *providertest.Fake
	engine *intsync.Engine
	srv    *Server
	token  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := providertest.New()
	b := bus.New()
	engine := intsync.NewEngine(db, fake, b, zap.NewNop(), intsync.Options{})
	hub := notify.NewHub(engine, b, zap.NewNop())
	t.Cleanup(hub.Close)

	verifier, err := auth.NewHS256(secret, "owner")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(engine, hub, verifier, Options{AccountEmail: "me@example.com", Keepalive: time.Hour}, zap.NewNop())
	return &env{db: db, fake: fake, engine: engine, srv: srv, token: sign(t, "owner")}
}

func sign(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Subject(sub).Expiration(time.Now().Add(time.Hour)).Build()
	if err != nil {
		t.Fatal(err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func (e *env) seed(t *testing.T, handle, threadID string) {
	t.Helper()
	if err := e.db.UpsertOrigin(context.Background(), &store.Origin{Handle: handle, ExternalThreadID: threadID, Subject: "Hello"}); err != nil {
		t.Fatal(err)
	}
}

func (e *env) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, body
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(id, from string, minutes int) provider.Message {
	return provider.Message{ID: id, Subject: "Hello", Body: "body " + id, From: from, To: "x@example.com", SentAt: t0.Add(time.Duration(minutes) * time.Minute)}
}

func TestUnauthenticated(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"foreign subject", "Bearer " + sign(t, "someone-else")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestHealthzNeedsNoToken(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSyncAndMessages(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "T1")
	e.fake.Add("T1", msg("m2", "Other <o@example.com>", 2), msg("m1", "Me <me@example.com>", 1))

	rec, body := e.do(t, http.MethodPost, "/api/threads/h1/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d: %s", rec.Code, rec.Body)
	}
	if body["syncedCount"] != float64(2) || body["totalMessages"] != float64(2) {
		t.Fatalf("sync body = %v", body)
	}

	rec, body = e.do(t, http.MethodPost, "/api/threads/h1/poll")
	if rec.Code != http.StatusOK || body["syncedCount"] != float64(0) {
		t.Fatalf("poll = %d %v", rec.Code, body)
	}

	rec, body = e.do(t, http.MethodGet, "/api/threads/h1/messages")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages status = %d", rec.Code)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["externalMessageId"] != "m1" || first["isSent"] != true {
		t.Errorf("first message = %v", first)
	}
	if second := msgs[1].(map[string]any); second["isSent"] != false {
		t.Errorf("second message isSent = %v", second["isSent"])
	}
}

func TestSyncWithoutThreadID(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "")
	rec, body := e.do(t, http.MethodPost, "/api/threads/h1/sync")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(body["error"].(string), intsync.ErrNoThreadID.Error()) {
		t.Errorf("error = %v", body["error"])
	}
	if rec, _ := e.do(t, http.MethodPost, "/api/threads/h1/mark-read"); rec.Code != http.StatusBadRequest {
		t.Errorf("mark-read status = %d, want 400", rec.Code)
	}
}

func TestProviderUnavailable(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "T1")
	e.fake.Fail("T1", fmt.Errorf("%w: quota", provider.ErrProviderUnavailable))
	if rec, _ := e.do(t, http.MethodPost, "/api/threads/h1/sync"); rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestMessagesUnknownHandle(t *testing.T) {
	e := newEnv(t)
	if rec, _ := e.do(t, http.MethodGet, "/api/threads/nope/messages"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestThreadsLeaveAndSearch(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "T1")
	e.fake.Add("T1", msg("m1", "Other <o@example.com>", 1))
	e.fake.Add("T1", provider.Message{ID: "m2", Subject: "Invoice", Body: "payment overdue", From: "o@example.com", SentAt: t0.Add(time.Hour), Unread: true})

	rec, body := e.do(t, http.MethodGet, "/api/threads")
	if rec.Code != http.StatusOK {
		t.Fatalf("threads status = %d", rec.Code)
	}
	threads := body["threads"].([]any)
	if len(threads) != 1 {
		t.Fatalf("got %d threads", len(threads))
	}
	th := threads[0].(map[string]any)
	if th["handle"] != "h1" || th["unreadCount"] != float64(1) || th["fromEmail"] != "o@example.com" {
		t.Errorf("thread = %v", th)
	}

	rec, body = e.do(t, http.MethodGet, "/api/search?q=overdue")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	results := body["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["externalMessageId"] != "m2" {
		t.Fatalf("results = %v", results)
	}
	if rec, _ := e.do(t, http.MethodGet, "/api/search"); rec.Code != http.StatusBadRequest {
		t.Errorf("empty search status = %d, want 400", rec.Code)
	}
	if rec, _ := e.do(t, http.MethodGet, "/api/search?q=%22unbalanced"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed search status = %d, want 400", rec.Code)
	}

	rec, body = e.do(t, http.MethodDelete, "/api/threads/h1")
	if rec.Code != http.StatusOK || body["deleted"] != float64(2) {
		t.Fatalf("leave = %d %v", rec.Code, body)
	}
	rec, body = e.do(t, http.MethodDelete, "/api/threads/h1")
	if rec.Code != http.StatusOK || body["deleted"] != float64(0) {
		t.Fatalf("second leave = %d %v", rec.Code, body)
	}
}

func TestCheckUpdates(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "T1")
	e.fake.Add("T1", msg("m1", "o@example.com", 1))
	if _, err := e.engine.Sync(context.Background(), "h1"); err != nil {
		t.Fatal(err)
	}
	e.fake.Add("T1", msg("m2", "o@example.com", 2))

	rec, body := e.do(t, http.MethodGet, "/api/threads/check-updates")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["hasUpdates"] != true || body["totalThreads"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("x: %w", intsync.ErrNoThreadID), http.StatusBadRequest},
		{intsync.ErrNotFound, http.StatusNotFound},
		{provider.ErrThreadNotFound, http.StatusNotFound},
		{provider.ErrProviderUnavailable, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusCode(tt.err); got != tt.want {
			t.Errorf("statusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type sse struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sse {
	t.Helper()
	var ev sse
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func openStream(t *testing.T, e *env, ts *httptest.Server, handle string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/threads/"+handle+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp, bufio.NewReader(resp.Body)
}

func TestStreamNotFound(t *testing.T) {
	e := newEnv(t)
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	resp, r := openStream(t, e, ts, "ghost")
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ev := readEvent(t, r); ev.name != "not_found" {
		t.Fatalf("event = %+v, want not_found", ev)
	}
}

func TestStreamPushesUpdates(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "h1", "T1")
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	resp, r := openStream(t, e, ts, "h1")
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	if ev := readEvent(t, r); ev.name != "connected" {
		t.Fatalf("first event = %+v", ev)
	}
	ev := readEvent(t, r)
	if ev.name != "update" || !strings.Contains(ev.data, `"messages":[]`) {
		t.Fatalf("initial update = %+v", ev)
	}

	e.fake.Add("T1", msg("m1", "o@example.com", 1))
	if _, err := e.engine.Sync(context.Background(), "h1"); err != nil {
		t.Fatal(err)
	}
	ev = readEvent(t, r)
	if ev.name != "update" || !strings.Contains(ev.data, `"externalMessageId":"m1"`) {
		t.Fatalf("update after sync = %+v", ev)
	}
}
