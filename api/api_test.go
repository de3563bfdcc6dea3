package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/core"
	"github.com/kinome/kinome-toolbox/store"
	"github.com/kinome/kinome-toolbox/store/mockstore"
	"github.com/kinome/kinome-toolbox/userdb"
)

type testServer struct {
	engine  *gin.Engine
	dialer  *mockstore.Dialer
	emitter *core.SimpleEmitter
}

var grants = []userdb.Grant{
	{
		Database: "kinome",
		Collections: []userdb.CollectionGrant{
			{Name: "samples", Read: true, Write: true},
			{Name: "published", Read: true},
		},
	},
}

func newTestServer(t *testing.T, key string) *testServer {
	gin.SetMode(gin.TestMode)

	dialer := mockstore.NewDialer()
	registry := metrics.NewRegistry()
	cache := store.NewConnectionCache(dialer, registry)
	t.Cleanup(cache.Close)

	gateway := core.NewGateway(core.NewGate(userdb.NewSingleUser(key, grants)), cache, core.NewIdentifiers("kinome"), registry)
	emitter := core.NewSimpleEmitter()
	gateway.SetBroadcaster(emitter)

	engine := gin.New()
	Init(engine, gateway, emitter, Options{
		Users:    "users",
		Cookie:   "session",
		Registry: registry,
	})

	dialer.Database("kinome").Put("samples",
		bson.M{"_id": "a", "name": "first"},
		bson.M{"_id": "b", "name": "second"},
	)

	return &testServer{
		engine:  engine,
		dialer:  dialer,
		emitter: emitter,
	}
}

func (s *testServer) do(method string, target string, contentType string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	return w
}

type response struct {
	Success bool                     `json:"success"`
	Data    []map[string]interface{} `json:"data"`
	Message string                   `json:"message"`
	Links   core.Links               `json:"links"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestList(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("GET", "/2.0.0/kinome/samples", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var r response
	decode(t, w, &r)
	assert.Equal(t, []map[string]interface{}{{"_id": "a"}, {"_id": "b"}}, r.Data)
	assert.Equal(t, "Successfully connected and queried database", r.Message)
	assert.Equal(t, "http://example.com/2.0.0/kinome/samples", r.Links.Self)
	assert.NotContains(t, w.Body.String(), `"success"`)

	w = s.do("GET", "/2.0.0/kinome/samples?all=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &r)
	require.Len(t, r.Data, 2)
	assert.Equal(t, "first", r.Data[0]["name"])
}

func TestGet(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("GET", "/2.0.0/kinome/samples/b", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var r response
	decode(t, w, &r)
	require.Len(t, r.Data, 1)
	assert.Equal(t, "second", r.Data[0]["name"])
}

func TestErrors(t *testing.T) {
	cases := map[string]struct {
		method      string
		target      string
		contentType string
		body        string
		code        int
	}{
		"unknown database":      {"GET", "/2.0.0/secret/things", "", "", http.StatusForbidden},
		"unknown collection":    {"GET", "/2.0.0/kinome/things", "", "", http.StatusForbidden},
		"read only":             {"POST", "/2.0.0/kinome/published", "application/json", `{"a":1}`, http.StatusForbidden},
		"wrong content type":    {"POST", "/2.0.0/kinome/samples", "text/plain", `{"a":1}`, http.StatusForbidden},
		"malformed body":        {"POST", "/2.0.0/kinome/samples", "application/json", `{"a":`, http.StatusBadRequest},
		"empty body":            {"POST", "/2.0.0/kinome/samples", "application/json", "", http.StatusBadRequest},
		"array body":            {"POST", "/2.0.0/kinome/samples", "application/json", `[1,2]`, http.StatusBadRequest},
		"malformed legacy id":   {"PATCH", "/2.0.0/kinome/samples/a", "application/json", `{"a":1}`, http.StatusForbidden},
		"patch no content type": {"PATCH", "/2.0.0/kinome/samples/0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d", "", `{"a":1}`, http.StatusForbidden},
	}

	for name, c := range cases {
		s := newTestServer(t, "")

		w := s.do(c.method, c.target, c.contentType, c.body)
		assert.Equal(t, c.code, w.Code, name)

		var envelope core.ErrorEnvelope
		decode(t, w, &envelope)
		assert.Equal(t, c.code, envelope.Error.Code, name)
		assert.True(t, strings.HasPrefix(envelope.Error.Message, strconv.Itoa(c.code)+": "), name)

		assert.Equal(t, 0, s.dialer.Database("kinome").Calls(), name)
	}
}

func TestApiKey(t *testing.T) {
	s := newTestServer(t, "sesame")

	// Operations can't tell a missing identity from a failing oracle.
	w := s.do("GET", "/2.0.0/kinome/samples", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do("GET", "/2.0.0/kinome/samples?api_key=wrong", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do("GET", "/auth/kinome/samples?api_key=wrong", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do("GET", "/2.0.0/kinome/samples?api_key=sesame", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInsert(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("POST", "/2.0.0/kinome/samples", "Application/JSON", `{"name":"third","level":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var r response
	decode(t, w, &r)
	assert.True(t, r.Success)
	assert.Equal(t, "Successfully posted object", r.Message)
	require.Len(t, r.Data, 1)
	assert.Equal(t, true, r.Data[0]["acknowledged"])
	assert.NotEmpty(t, r.Data[0]["insertedId"])

	docs := s.dialer.Database("kinome").Documents("samples")
	require.Len(t, docs, 3)
	assert.Equal(t, "third", docs[2]["name"])
}

func TestInsertNested(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("POST", "/2.0.0/kinome/samples", "application/json", `{"name":"nested","meta":{"lab":"a","runs":[1,2]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	docs := s.dialer.Database("kinome").Documents("samples")
	require.Len(t, docs, 3)
	assert.Equal(t, map[string]interface{}{"lab": "a", "runs": []interface{}{float64(1), float64(2)}}, docs[2]["meta"])
}

func TestPatch(t *testing.T) {
	s := newTestServer(t, "")

	// Only the legacy database uses free-form identifiers.
	w := s.do("PATCH", "/2.0.0/kinome/samples/0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d", "application/json", `{"state":"done"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var r response
	decode(t, w, &r)
	assert.True(t, r.Success)
	assert.Equal(t, float64(0), r.Data[0]["matchedCount"])

	s.dialer.Database("kinome").Put("samples", bson.M{"_id": "0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d", "state": "new"})

	w = s.do("PATCH", "/2.0.0/kinome/samples/0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d", "application/json", `{"state":"done"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &r)
	assert.Equal(t, float64(1), r.Data[0]["matchedCount"])

	docs := s.dialer.Database("kinome").Documents("samples")
	assert.Equal(t, "done", docs[2]["state"])
}

func TestCors(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest("OPTIONS", "/2.0.0/kinome/samples", nil)
	req.Header.Set("Origin", "https://kinome.example")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://kinome.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestCorsSimpleRequest(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/2.0.0/kinome/samples", nil)
	req.Header.Set("Origin", "https://kinome.example")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://kinome.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	s.dialer.Database("users").Fail = mockstore.ErrDial
	w = s.do("GET", "/health", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, "")

	s.do("GET", "/2.0.0/kinome/samples", "", "")

	w := s.do("GET", "/debug/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var m map[string]interface{}
	decode(t, w, &m)
	assert.Contains(t, m, "gateway.list")
	assert.Contains(t, m, "store.dial.attempts")
}

func TestPermissionEndpoints(t *testing.T) {
	s := newTestServer(t, "sesame")

	w := s.do("GET", "/auth/kinome/samples?api_key=sesame", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var permissions userdb.Permissions
	decode(t, w, &permissions)
	assert.Equal(t, grants, permissions.Grants)

	w = s.do("GET", "/auth/kinome/samples", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do("GET", "/test", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	decode(t, w, &status)
	assert.Equal(t, false, status["logged_in"])
}

func TestChangeFeed(t *testing.T) {
	s := newTestServer(t, "")

	server := httptest.NewServer(s.engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/changes/kinome/samples"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	req, err := http.NewRequest("POST", server.URL+"/2.0.0/kinome/samples", strings.NewReader(`{"name":"fourth"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message struct {
		Type    string      `json:"type"`
		Payload core.Change `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&message))

	assert.Equal(t, core.OperationInsert, message.Type)
	assert.Equal(t, "kinome", message.Payload.Database)
	assert.Equal(t, "samples", message.Payload.Collection)
}

func TestChangeFeedUnauthorized(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do("GET", "/changes/secret/things", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
