package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/acme/ganttsync/internal/db"
	gsync "github.com/acme/ganttsync/internal/sync"
)

const testOrigin = "https://localhost:53000"

// setupTestServer wires a real store, processor and reader behind an
// httptest server.
func setupTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server, *db.DB) {
	t.Helper()

	dbc := db.DefaultConfig()
	dbc.Path = filepath.Join(t.TempDir(), "test.db")
	store, err := db.Open(dbc)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Broadcast = false
	if mutate != nil {
		mutate(cfg)
	}
	s := New(cfg, gsync.New(store, nil), gsync.NewReader(store, nil))
	if s.Hub() != nil {
		s.Hub().Start()
		t.Cleanup(s.Hub().Stop)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, store
}

func postBatch(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url+"/api", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

func TestAPI_AddThenLoad(t *testing.T) {
	_, ts, _ := setupTestServer(t, nil)

	out := postBatch(t, ts.URL, `{"requestId":7,"tasks":{"added":[{"name":"Design","startDate":"2026-01-05T00:00:00Z"}]}}`)
	if out["success"] != true {
		t.Fatalf("success = %v, want true", out["success"])
	}
	if out["requestId"] != float64(7) {
		t.Errorf("requestId = %v, want 7", out["requestId"])
	}
	row := out["tasks"].(map[string]any)["rows"].([]any)[0].(map[string]any)
	id := row["id"].(string)

	resp, err := http.Get(ts.URL + "/data")
	if err != nil {
		t.Fatalf("GET /data failed: %v", err)
	}
	defer resp.Body.Close()

	var load struct {
		Success bool `json:"success"`
		Tasks   struct {
			Rows []map[string]any `json:"rows"`
		} `json:"tasks"`
		Dependencies struct {
			Rows []map[string]any `json:"rows"`
		} `json:"dependencies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&load); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !load.Success {
		t.Fatal("load success = false")
	}
	if len(load.Tasks.Rows) != 1 || load.Tasks.Rows[0]["id"] != id {
		t.Errorf("tasks = %v, want one row with id %s", load.Tasks.Rows, id)
	}
	if load.Tasks.Rows[0]["startDate"] != "2026-01-05 00:00:00" {
		t.Errorf("startDate = %v, want normalized", load.Tasks.Rows[0]["startDate"])
	}
	if load.Dependencies.Rows == nil {
		t.Error("dependencies.rows = null, want []")
	}
}

func TestAPI_MalformedBodyAnswers200(t *testing.T) {
	_, ts, _ := setupTestServer(t, nil)

	for _, body := range []string{`not json`, `[1,2,3]`, `{"tasks":{"added":"x"}}`} {
		out := postBatch(t, ts.URL, body)
		if out["success"] != false {
			t.Errorf("body %q: success = %v, want false", body, out["success"])
		}
		if _, ok := out["requestId"]; ok {
			t.Errorf("body %q: requestId present", body)
		}
	}
}

func TestAPI_BodyLimit(t *testing.T) {
	_, ts, _ := setupTestServer(t, func(c *Config) { c.MaxBodyBytes = 64 })

	big := `{"tasks":{"added":[{"name":"` + strings.Repeat("x", 200) + `"}]}}`
	out := postBatch(t, ts.URL, big)
	if out["success"] != false {
		t.Errorf("success = %v, want false for oversized body", out["success"])
	}
}

func TestData_StorageFailure(t *testing.T) {
	_, ts, store := setupTestServer(t, nil)
	store.Close()

	resp, err := http.Get(ts.URL + "/data")
	if err != nil {
		t.Fatalf("GET /data failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	want := `{"success":false,"tasks":{"rows":[],"removed":[]},"dependencies":{"rows":[],"removed":[]}}`
	if strings.TrimSpace(string(body)) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, ts, _ := setupTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /api failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Allow-Origin = %q, want %q", got, testOrigin)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q, want POST listed", got)
	}
}

func TestCORS_OtherOriginNotAllowed(t *testing.T) {
	_, ts, _ := setupTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/data", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /data failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestHealth(t *testing.T) {
	_, ts, _ := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out["status"] != "ok" || out["clients"] != float64(0) {
		t.Errorf("health = %v", out)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return msg
}

func TestBroadcast_SyncNotice(t *testing.T) {
	s, ts, _ := setupTestServer(t, func(c *Config) {
		c.Broadcast = true
		c.AllowedOrigin = "*"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeHello {
		t.Fatalf("first message type = %q, want hello", msg.Type)
	}
	for s.Hub().ClientCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	// A batch with nothing to apply is not announced.
	postBatch(t, ts.URL, `{"requestId":"quiet"}`)
	postBatch(t, ts.URL, `{"requestId":"secret","tasks":{"removed":[{"id":"gone"}]}}`)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSync {
		t.Fatalf("type = %q, want sync", msg.Type)
	}
	var data map[string]any
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Unmarshal data failed: %v", err)
	}
	if _, ok := data["requestId"]; ok {
		t.Error("notice carries requestId")
	}
	removed := data["tasks"].(map[string]any)["removed"].([]any)
	if len(removed) != 1 {
		t.Errorf("tasks.removed = %v, want one stub", removed)
	}
}

func TestWSOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://localhost:53000", "localhost:53000"},
		{"*", "*"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		got := wsOrigins(tt.in)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("wsOrigins(%q) = %v, want [%s]", tt.in, got, tt.want)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, gsync.New(nil, nil), gsync.NewReader(nil, nil))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}
