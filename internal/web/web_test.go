package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"route-tracker/internal/render"
	"route-tracker/internal/route"
	"route-tracker/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticMarkers map[string]orb.Point

func (m staticMarkers) Positions() map[string]orb.Point { return m }

func newTestServer(t *testing.T) (*Server, *render.Recorder, *Hub) {
	t.Helper()
	r, err := route.Normalize(route.Single(orb.LineString{{0, 0}, {0, 1}}))
	require.NoError(t, err)
	rec := render.NewRecorder()
	hub := NewHub("s1", zaptest.NewLogger(t))
	sess := tracking.NewSession(tracking.SessionConfig{ID: "s1", Route: r}, nil, render.Fanout{rec, hub}, hub.Alert, zaptest.NewLogger(t), nil)
	t.Cleanup(hub.Close)
	return NewServer(sess, rec, staticMarkers{"bus-1": {7.5, 45}}, hub, zaptest.NewLogger(t)), rec, hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPostFixThenSession(t *testing.T) {
	s, rec, _ := newTestServer(t)
	router := s.Router()

	w := do(t, router, http.MethodPost, "/api/session/fix", `{"lat":0.5,"lon":0.00015}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fix struct {
		Point    []float64 `json:"point"`
		Snapped  bool      `json:"snapped"`
		Distance float64   `json:"distance_m"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fix))
	assert.True(t, fix.Snapped)
	assert.InDelta(t, 0, fix.Point[0], 1e-9)
	assert.Less(t, fix.Distance, tracking.DefaultThreshold)
	assert.NotNil(t, rec.Snapshot().Position)

	w = do(t, router, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Session string                     `json:"session"`
		Layers  map[string]json.RawMessage `json:"layers"`
		Camera  struct {
			Zoom float64 `json:"zoom"`
		} `json:"camera"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.Session)
	assert.Contains(t, body.Layers, render.LayerUser)
	assert.Contains(t, body.Layers, render.LayerTrail)
	assert.Equal(t, tracking.DefaultZoom, body.Camera.Zoom)
}

func TestPostFixValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	router := s.Router()
	for _, body := range []string{`{}`, `{"lat":91,"lon":0}`, `{"lat":0}`, `not json`} {
		w := do(t, router, http.MethodPost, "/api/session/fix", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestGetMarkers(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s.Router(), http.MethodGet, "/api/markers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"markers":{"bus-1":[7.5,45]}}`, w.Body.String())
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	s, _, hub := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	do(t, s.Router(), http.MethodPost, "/api/session/fix", `{"lat":0.5,"lon":0.01}`)

	var types []string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(types) < 4 {
		var m render.Message
		require.NoError(t, conn.ReadJSON(&m))
		types = append(types, m.Type+":"+m.Layer)
	}
	assert.Equal(t, []string{"alert:", "layer:user", "layer:user-trail", "camera:"}, types)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
