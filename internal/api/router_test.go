package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/lucidflow/internal/api/middleware"
	"github.com/eldtechnologies/lucidflow/internal/chat"
	"github.com/eldtechnologies/lucidflow/internal/credential"
	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/fetch"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/handlers"
	"github.com/eldtechnologies/lucidflow/internal/llm"
	"github.com/eldtechnologies/lucidflow/internal/models"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

type testServer struct {
	*httptest.Server
	store   *store.MemoryStore
	manager *graph.Manager
	mock    *llm.Mock
	creds   *credential.MemoryStore
	bus     *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	bus := events.NewBus()
	manager := graph.NewManager(st, bus, zerolog.Nop(), 0)
	mock := llm.NewMock()
	creds := credential.NewMemoryStore()

	fetchers := fetch.NewRegistry()
	fetchers.Register("webpage", fetch.FetcherFunc(func(ctx context.Context, ref string) (string, error) {
		return "page body of " + ref, nil
	}))

	h := handlers.NewHandler(handlers.Deps{
		Manager:      manager,
		Store:        st,
		Fetchers:     fetchers,
		Generator:    mock,
		Credentials:  creds,
		Bus:          bus,
		Mode:         chat.ModeTurns,
		Model:        "test-model",
		Instructions: "Be brief.",
		Logger:       zerolog.Nop(),
	})

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), h, RouterConfig{Credentials: creds}))
	t.Cleanup(func() {
		srv.Close()
		_ = manager.Close(context.Background())
	})

	return &testServer{Server: srv, store: st, manager: manager, mock: mock, creds: creds, bus: bus}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) addNode(t *testing.T, session, id string, msgs ...models.Message) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/sessions/"+session+"/nodes", map[string]interface{}{
		"id":   id,
		"data": map[string]interface{}{"label": "Node " + id, "chatData": msgs},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

func (s *testServer) connect(t *testing.T, session, source, target string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/sessions/"+session+"/edges", map[string]string{
		"source": source, "target": target,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var edge models.Edge
	require.NoError(t, json.Unmarshal(body, &edge))
	return edge.ID
}

func msg(id, sender, text string) models.Message {
	return models.Message{ID: id, Sender: sender, Message: models.StringPtr(text)}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pass", health.Checks["memory"].Status)
	assert.Equal(t, "mock", health.Checks["model"].Message)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestRejectsNonJSONBody(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/sessions/s1/nodes", strings.NewReader("id=a"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestNodeAndEdgeLifecycle(t *testing.T) {
	s := newTestServer(t)

	s.addNode(t, "s1", "a")
	s.addNode(t, "s1", "b")
	edgeID := s.connect(t, "s1", "a", "b")
	assert.NotEmpty(t, edgeID)

	resp, body := s.do(t, http.MethodGet, "/sessions/s1/nodes/b/upstream?includeSelf=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up handlers.UpstreamResponse
	require.NoError(t, json.Unmarshal(body, &up))
	assert.Equal(t, []string{"a", "b"}, up.Nodes)

	resp, _ = s.do(t, http.MethodDelete, "/sessions/s1/nodes/a", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/sessions/s1/edges", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body), "edges touching a removed node go with it")

	resp, body = s.do(t, http.MethodGet, "/sessions/s1/nodes/b/upstream", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &up))
	assert.Empty(t, up.Nodes)
}

func TestNodeErrors(t *testing.T) {
	s := newTestServer(t)
	s.addNode(t, "s1", "a")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"duplicate node", http.MethodPost, "/sessions/s1/nodes", map[string]string{"id": "a"}, http.StatusConflict},
		{"node id with dot segment", http.MethodPost, "/sessions/s1/nodes", map[string]string{"id": "a..b"}, http.StatusBadRequest},
		{"node id with slash", http.MethodPost, "/sessions/s1/nodes", map[string]string{"id": "a/b"}, http.StatusBadRequest},
		{"edge id with dot segment", http.MethodPost, "/sessions/s1/edges", map[string]string{"id": "e..1", "source": "a", "target": "a"}, http.StatusBadRequest},
		{"unknown node", http.MethodGet, "/sessions/s1/nodes/zzz", nil, http.StatusNotFound},
		{"edge to unknown node", http.MethodPost, "/sessions/s1/edges", map[string]string{"source": "a", "target": "zzz"}, http.StatusNotFound},
		{"edge without target", http.MethodPost, "/sessions/s1/edges", map[string]string{"source": "a"}, http.StatusBadRequest},
		{"temperature out of range", http.MethodPost, "/sessions/s1/nodes", map[string]interface{}{"data": map[string]interface{}{"temperature": 5}}, http.StatusBadRequest},
		{"move unknown node", http.MethodPut, "/sessions/s1/nodes/zzz/position", map[string]float64{"x": 1, "y": 2}, http.StatusNotFound},
		{"append to unknown node", http.MethodPost, "/sessions/s1/nodes/zzz/chat", map[string]string{"sender": "user"}, http.StatusNotFound},
		{"replace unknown node", http.MethodPut, "/sessions/s1/nodes/zzz/chat", map[string]interface{}{"messages": []models.Message{}}, http.StatusNotFound},
		{"context for unknown node", http.MethodPost, "/sessions/s1/nodes/zzz/context", nil, http.StatusNotFound},
		{"bad includeSelf", http.MethodGet, "/sessions/s1/nodes/a/upstream?includeSelf=maybe", nil, http.StatusBadRequest},
		{"bad context mode", http.MethodPost, "/sessions/s1/nodes/a/context", map[string]string{"mode": "interleaved"}, http.StatusBadRequest},
		{"empty send", http.MethodPost, "/sessions/s1/nodes/a/send", map[string]string{"text": ""}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestGeneratedIDs(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/nodes", map[string]interface{}{
		"data": map[string]interface{}{"label": "  Untitled\x07 "},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var node models.Node
	require.NoError(t, json.Unmarshal(body, &node))
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "Untitled", node.Data.Label)

	resp, body = s.do(t, http.MethodPost, "/sessions/s1/nodes/"+node.ID+"/chat", map[string]string{
		"sender": "user", "message": "hello",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var m models.Message
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Len(t, m.ID, 26, "message ids are ULIDs")
	assert.NotZero(t, m.CreatedAt)
}

func TestBuildContext(t *testing.T) {
	s := newTestServer(t)

	s.addNode(t, "s1", "a", msg("01", "user", "A1"), msg("02", "model", "A2"))
	s.addNode(t, "s1", "b", msg("03", "user", "B1"))
	s.connect(t, "s1", "a", "b")

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/nodes/b/context", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var c chat.Context
	require.NoError(t, json.Unmarshal(body, &c))
	assert.Equal(t, "Be brief.", c.SystemInstructions)
	require.Len(t, c.Turns, 3)
	assert.Equal(t, models.NewTurn(models.RoleUser, "A1"), c.Turns[0])
	assert.Equal(t, models.NewTurn(models.RoleModel, "A2"), c.Turns[1])
	assert.Equal(t, models.NewTurn(models.RoleUser, "B1"), c.Turns[2])

	resp, body = s.do(t, http.MethodPost, "/sessions/s1/nodes/b/context", map[string]string{
		"mode": "merged", "systemInstructions": "Custom.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &c))
	assert.Equal(t, "Custom.", c.SystemInstructions)
	require.NotEmpty(t, c.Turns)
	assert.Contains(t, c.Turns[0].Text(), "[source: Node a (a)]")
}

func TestSendMessageWithHeaderKey(t *testing.T) {
	s := newTestServer(t)
	s.mock.RequireKey = true
	s.addNode(t, "s1", "a")

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/nodes/a/send", map[string]interface{}{
		"text": "hi", "record": true,
	}, middleware.HeaderModelKey, "sk-test-header")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res chat.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "Mock response to: hi", res.Result)
	assert.Equal(t, "sk-test-header", s.mock.LastRequest().APIKey)
	assert.Equal(t, "test-model", s.mock.LastRequest().Model)

	resp, body = s.do(t, http.MethodGet, "/sessions/s1/nodes/a/chat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text())
	assert.Equal(t, "Mock response to: hi", msgs[1].Text())
}

func TestSendMessageWithoutKey(t *testing.T) {
	s := newTestServer(t)
	s.mock.RequireKey = true
	s.addNode(t, "s1", "a")

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/nodes/a/send", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))
}

func TestStoredCredential(t *testing.T) {
	s := newTestServer(t)
	s.mock.RequireKey = true
	s.addNode(t, "s1", "a")

	resp, body := s.do(t, http.MethodPut, "/credentials", map[string]string{"key": "sk-stored-key"},
		middleware.HeaderClient, "editor-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotContains(t, string(body), "sk-stored-key")

	resp, body = s.do(t, http.MethodPost, "/sessions/s1/nodes/a/send", map[string]string{"text": "hi"},
		middleware.HeaderClient, "editor-1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "sk-stored-key", s.mock.LastRequest().APIKey)

	resp, _ = s.do(t, http.MethodDelete, "/credentials/editor-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := s.creds.Get(context.Background(), "editor-1")
	assert.ErrorIs(t, err, credential.ErrNoCredential)

	resp, _ = s.do(t, http.MethodGet, "/sessions/s1", nil, middleware.HeaderClient, "not a valid id!")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionPersistence(t *testing.T) {
	s := newTestServer(t)
	s.addNode(t, "s1", "a")

	resp, _ := s.do(t, http.MethodPut, "/sessions/s1/viewport", map[string]float64{"x": 10, "y": 20, "zoom": 1.5})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/sessions/s1/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := s.store.Load(context.Background(), "s1")
	require.NoError(t, err)
	var stored models.Session
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Len(t, stored.Nodes, 1)
	require.NotNil(t, stored.Viewport)
	assert.Equal(t, 1.5, stored.Viewport.Zoom)

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/load", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loaded handlers.LoadResponse
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.True(t, loaded.Found)
	assert.Equal(t, 1, loaded.Nodes)

	resp, _ = s.do(t, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	data, err = s.store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, data)

	resp, body = s.do(t, http.MethodGet, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap handlers.SessionResponse
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Empty(t, snap.Nodes)
}

func TestPostEvent(t *testing.T) {
	s := newTestServer(t)

	var mu sync.Mutex
	var got []events.Event
	s.bus.Subscribe(func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}, events.KindNodeSelected)

	resp, body := s.do(t, http.MethodPost, "/sessions/s1/events", map[string]interface{}{
		"kind":    "node:selected",
		"payload": map[string]string{"nodeId": "a", "nodeType": "agent"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, events.NodeSelected{NodeID: "a", NodeType: "agent"}, got[0])
	mu.Unlock()

	resp, _ = s.do(t, http.MethodPost, "/sessions/s1/events", map[string]string{"kind": "graph:node-added"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "graph events are not relayed")

	resp, _ = s.do(t, http.MethodPost, "/sessions/s1/events", map[string]string{"kind": "node:exploded"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.addNode(t, "s1", "a")

	resp, body := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `path="/sessions/{session}/nodes"`)
	assert.NotContains(t, string(body), `path="/sessions/s1/nodes"`)
}

func TestSessionStats(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/sessions/empty/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var empty handlers.StatsResponse
	require.NoError(t, json.Unmarshal(body, &empty))
	assert.Zero(t, empty.TotalNodes)
	assert.Empty(t, empty.LastActivity)
	assert.NotNil(t, empty.RecentMessages)

	recent := msg("01B", "user", strings.Repeat("x", 300))
	recent.CreatedAt = time.Now().UnixMilli()
	s.addNode(t, "s1", "a", msg("01A", "user", "hi"), recent)
	s.addNode(t, "s1", "b")
	s.connect(t, "s1", "a", "b")

	resp, body = s.do(t, http.MethodGet, "/sessions/s1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var stats handlers.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 2, stats.TotalNodes)
	assert.Equal(t, 1, stats.TotalEdges)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, "just now", stats.LastActivity)
	require.Len(t, stats.TopNodes, 2)
	assert.Equal(t, "a", stats.TopNodes[0].ID)
	require.Len(t, stats.RecentMessages, 2)
	assert.Equal(t, "01B", stats.RecentMessages[0].ID)
	assert.Len(t, stats.RecentMessages[0].Body, 200)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	s.addNode(t, "s1", "a", msg("01A", "user", "quarterly revenue report"), msg("01B", "model", "revenue grew"))
	s.addNode(t, "s1", "b", msg("01C", "user", "unrelated notes"))

	resp, body := s.do(t, http.MethodGet, "/sessions/s1/search?q=revenue+report", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out handlers.SearchResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 2, out.Total)
	assert.Equal(t, "01A", out.Results[0].MessageID)
	assert.Equal(t, "a", out.Results[0].NodeID)

	resp, body = s.do(t, http.MethodGet, "/sessions/s1/search?q=notes&node=a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Zero(t, out.Total)

	resp, _ = s.do(t, http.MethodGet, "/sessions/s1/search", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/sessions/s1/search?q=notes&node=missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
