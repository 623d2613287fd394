package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/features"
	"github.com/char5742/keyball-ribbon/internal/sketch"
	"github.com/char5742/keyball-ribbon/internal/store"
)

//go:embed static/index.html
var indexHTML []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	router.HandleFunc("GET /{$}", s.handleIndex)

	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)
	router.HandleFunc("PUT /api/devices/preferred", s.handleSetPreferredDevices)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// セッション関連のエンドポイント
	router.HandleFunc("POST /api/sessions", s.handleCreateSession)
	router.HandleFunc("GET /api/sessions", s.handleListSessions)
	router.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	router.HandleFunc("POST /api/sessions/{id}/events", s.handleSessionEvents)
	router.HandleFunc("GET /api/sessions/{id}/state", s.handleSessionState)
	router.HandleFunc("GET /api/sessions/{id}/frame.png", s.handleSessionFrame)
	router.HandleFunc("GET /api/sessions/{id}/ws", s.handleSessionSocket)

	// 記録関連のエンドポイント
	router.HandleFunc("GET /api/recordings", s.handleListRecordings)
	router.HandleFunc("DELETE /api/recordings/{id}", s.handleDeleteRecording)
	router.HandleFunc("POST /api/recordings/{id}/replay", s.handleReplayRecording)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	newConfig := config.DefaultConfig()

	if err := json.NewDecoder(r.Body).Decode(newConfig); err != nil {
		writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}
	if err := newConfig.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "設定が不正です: "+err.Error())
		return
	}

	s.UpdateConfig(newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&saveRequest); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	configPath := saveRequest.Path
	if configPath == "" {
		// デフォルトパスを使用
		userConfigDir, err := config.GetDefaultConfigDir()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = filepath.Join(userConfigDir, "config.toml")
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := features.GetDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// 優先デバイス設定ハンドラ
func (s *Server) handleSetPreferredDevices(w http.ResponseWriter, r *http.Request) {
	var request struct {
		KeyboardDevice string `json:"keyboard_device"`
		MouseDevice    string `json:"mouse_device"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	cfg := *s.GetConfig()
	cfg.DevicePrefs.PreferredKeyboardDevice = request.KeyboardDevice
	cfg.DevicePrefs.PreferredMouseDevice = request.MouseDevice
	s.UpdateConfig(&cfg)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	if s.live.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}

	mode, err := sketch.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.live.Start(mode); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの起動に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "session": LiveSessionID})
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	if !s.live.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}

	if err := s.live.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの停止に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if s.live.IsRunning() {
		status = "running"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"cursor": s.live.Cursor(),
	})
}

// セッション作成ハンドラ
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
			return
		}
	}

	mode, err := sketch.ParseMode(request.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.sessions.Create(sketch.NewSession(sketch.OptionsFromConfig(s.GetConfig(), mode)))
	if s.recorder != nil {
		if err := s.recorder.CreateRecording(r.Context(), id, mode); err != nil {
			log.Printf("記録の作成に失敗しました[id=%s]: %v", id, err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "mode": string(mode)})
}

// セッション一覧取得ハンドラ
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

// セッション削除ハンドラ
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// イベント投入ハンドラ
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Events []sketch.Event `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	id := r.PathValue("id")
	frame, err := s.applyEvents(r.Context(), id, request.Events)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// セッション状態取得ハンドラ
func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	frame, err := s.sessions.Snapshot(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// フレーム画像取得ハンドラ
func (s *Server) handleSessionFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.sessions.Snapshot(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.renderer().WritePNG(w, frame); err != nil {
		log.Printf("フレームの描画に失敗しました: %v", err)
	}
}

// WebSocket ハンドラ。受け取ったイベント列ごとに最新の状態を返す
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Snapshot(id); err != nil {
		writeSessionError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket のアップグレードに失敗しました: %v", err)
		return
	}
	defer conn.Close()

	for {
		var request struct {
			Events []sketch.Event `json:"events"`
		}
		if err := conn.ReadJSON(&request); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket の読み込みに失敗しました: %v", err)
			}
			return
		}

		frame, err := s.applyEvents(r.Context(), id, request.Events)
		if err != nil {
			if errors.Is(err, errSessionNotFound) {
				return
			}
			if werr := conn.WriteJSON(map[string]string{"error": err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("WebSocket の書き込みに失敗しました: %v", err)
			return
		}
	}
}

// 記録一覧取得ハンドラ
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "記録は無効です")
		return
	}
	recordings, err := s.recorder.Recordings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "記録一覧の取得に失敗しました: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordings)
}

// 記録削除ハンドラ。記録済みのイベントも一緒に消える
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "記録は無効です")
		return
	}

	id := r.PathValue("id")
	err := s.recorder.DeleteRecording(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "記録の削除に失敗しました: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 記録再生ハンドラ。記録済みのイベントを新しいセッションに流し込む
func (s *Server) handleReplayRecording(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "記録は無効です")
		return
	}

	id := r.PathValue("id")
	rec, err := s.recorder.Recording(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "記録の読み込みに失敗しました: "+err.Error())
		return
	}
	mode := sketch.Mode(rec.Mode)

	events, err := s.recorder.Events(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "記録の読み込みに失敗しました: "+err.Error())
		return
	}

	session := sketch.NewSession(sketch.OptionsFromConfig(s.GetConfig(), mode))
	sessionID := s.sessions.Create(session)
	frame, err := s.sessions.Apply(sessionID, events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "記録の再生に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     sessionID,
		"events": len(events),
		"frame":  frame,
	})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// applyEvents はイベントを処理し、記録が有効なら追記する
func (s *Server) applyEvents(ctx context.Context, id string, events []sketch.Event) (sketch.Frame, error) {
	frame, err := s.sessions.Apply(id, events)
	if err != nil {
		return frame, err
	}
	if s.recorder != nil && id != LiveSessionID && len(events) > 0 {
		if err := s.recorder.AppendEvents(ctx, id, events); err != nil {
			log.Printf("イベントの記録に失敗しました[id=%s]: %v", id, err)
		}
	}
	return frame, nil
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, errSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
