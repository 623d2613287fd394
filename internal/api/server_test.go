package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/sketch"
	"github.com/char5742/keyball-ribbon/internal/store"
)

func newTestServer(t *testing.T, withStore bool) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Render.Width = 160
	cfg.Render.Height = 120

	var s *Server
	if withStore {
		st, err := store.Init(filepath.Join(t.TempDir(), "rec.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		s = NewServer(cfg, 0, st)
	} else {
		s = NewServer(cfg, 0, nil)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// dragRightEvents は (0,0) で押下し、1フレームごとに右へ 10 ずつ動かすイベント列
func dragRightEvents(frames int) []sketch.Event {
	events := []sketch.Event{{Kind: sketch.EventDown}}
	for i := 1; i <= frames; i++ {
		events = append(events,
			sketch.Event{Kind: sketch.EventDrag, X: float64(10 * i)},
			sketch.Event{Kind: sketch.EventTick},
		)
	}
	return events
}

func createSession(t *testing.T, ts *httptest.Server, mode string) string {
	t.Helper()
	var created map[string]string
	status := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"mode": mode}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created["id"])
	return created["id"]
}

func TestHealthAndIndex(t *testing.T) {
	_, ts := newTestServer(t, false)

	var health map[string]string
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
}

func TestSessions_EventsAndState(t *testing.T) {
	s, ts := newTestServer(t, false)
	id := createSession(t, ts, "ribbon")

	var frame sketch.Frame
	status := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": dragRightEvents(7)}, &frame)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, sketch.ModeRibbon, frame.Mode)
	assert.Equal(t, 7, frame.Frame)
	assert.True(t, frame.Ready)
	assert.Len(t, frame.Quads, 3)

	var state sketch.Frame
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/state", nil, &state))
	assert.Equal(t, 7, state.Frame)
	assert.InDelta(t, 15.0, state.Output.PerpLength, 1e-9)

	list := s.Sessions().List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 7, list[0].Frame)
}

func TestSessions_InvalidEventsAreRejected(t *testing.T) {
	_, ts := newTestServer(t, false)
	id := createSession(t, ts, "stroke")

	var body map[string]string
	status := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": []sketch.Event{{Kind: sketch.EventTick}, {Kind: "jump"}}}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	// 不正なイベントを含む要求は1件も処理されない
	var state sketch.Frame
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/state", nil, &state))
	assert.Equal(t, 0, state.Frame)
}

func TestSessions_NotFoundAndDelete(t *testing.T) {
	_, ts := newTestServer(t, false)

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+"/api/sessions/missing/state", nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"mode": "spiral"}, nil))

	id := createSession(t, ts, "")
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil, nil))
}

func TestSessions_FramePNG(t *testing.T) {
	_, ts := newTestServer(t, false)
	id := createSession(t, ts, "stroke")
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": dragRightEvents(6)}, nil))

	resp, err := http.Get(ts.URL + "/api/sessions/" + id + "/frame.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestSessions_WebSocket(t *testing.T) {
	_, ts := newTestServer(t, false)
	id := createSession(t, ts, "ribbon")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"events": dragRightEvents(5)}))
	var frame sketch.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, 5, frame.Frame)
	assert.True(t, frame.Ready)

	require.NoError(t, conn.WriteJSON(map[string]any{"events": []sketch.Event{{Kind: sketch.EventTick}}}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, 6, frame.Frame)

	// 不正なイベントはエラーとして返り、接続は維持される
	require.NoError(t, conn.WriteJSON(map[string]any{"events": []sketch.Event{{Kind: "jump"}}}))
	var errBody map[string]any
	require.NoError(t, conn.ReadJSON(&errBody))
	assert.Contains(t, errBody, "error")
}

func TestRecordings_RecordAndReplay(t *testing.T) {
	_, ts := newTestServer(t, true)
	id := createSession(t, ts, "ribbon")

	events := dragRightEvents(7)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": events[:5]}, nil))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": events[5:]}, nil))

	var recordings []store.Recording
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/recordings", nil, &recordings))
	require.Len(t, recordings, 1)
	assert.Equal(t, id, recordings[0].ID)
	assert.Equal(t, len(events), recordings[0].Events)

	var replay struct {
		ID     string       `json:"id"`
		Events int          `json:"events"`
		Frame  sketch.Frame `json:"frame"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/recordings/"+id+"/replay", nil, &replay))
	assert.NotEqual(t, id, replay.ID)
	assert.Equal(t, len(events), replay.Events)
	assert.Equal(t, 7, replay.Frame.Frame)
	assert.Len(t, replay.Frame.Quads, 3)

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/api/recordings/missing/replay", nil, nil))
}

func TestRecordings_Delete(t *testing.T) {
	_, ts := newTestServer(t, true)
	id := createSession(t, ts, "stroke")
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/events",
		map[string]any{"events": dragRightEvents(3)}, nil))

	var body map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, ts.URL+"/api/recordings/"+id, nil, &body))
	assert.Equal(t, "success", body["status"])

	var recordings []store.Recording
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/recordings", nil, &recordings))
	assert.Empty(t, recordings)

	// 削除済みの記録は再生も削除もできない
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/api/recordings/"+id+"/replay", nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, ts.URL+"/api/recordings/"+id, nil, nil))

	// セッション自体は残る
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/state", nil, nil))
}

func TestRecordings_DisabledWithoutStore(t *testing.T) {
	_, ts := newTestServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, ts.URL+"/api/recordings", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodDelete, ts.URL+"/api/recordings/any", nil, nil))
}

func TestConfig_UpdateValidates(t *testing.T) {
	s, ts := newTestServer(t, false)

	cfg := *config.DefaultConfig()
	cfg.Filter.WindowSize = 8
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, ts.URL+"/api/config", cfg, nil))
	assert.Equal(t, 8, s.GetConfig().Filter.WindowSize)

	cfg.Render.FPS = 0
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, ts.URL+"/api/config", cfg, nil))
	assert.Equal(t, 8, s.GetConfig().Filter.WindowSize)

	var got config.Config
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/config", nil, &got))
	assert.Equal(t, 8, got.Filter.WindowSize)
}

func TestConfig_Save(t *testing.T) {
	_, ts := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "saved", "config.toml")

	var body map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/config/save", map[string]string{"path": path}, &body))
	assert.Equal(t, path, body["path"])

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), loaded)
}
