package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/render"
	"github.com/char5742/keyball-ribbon/internal/sketch"
	"github.com/char5742/keyball-ribbon/internal/store"
)

// Recorder はセッションの入力イベントを記録する先
type Recorder interface {
	CreateRecording(ctx context.Context, id string, mode sketch.Mode) error
	AppendEvents(ctx context.Context, id string, events []sketch.Event) error
	Events(ctx context.Context, id string) ([]sketch.Event, error)
	Recording(ctx context.Context, id string) (*store.Recording, error)
	Recordings(ctx context.Context) ([]store.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
}

// Server はAPIサーバーを表す構造体
type Server struct {
	server   *http.Server
	cfg      *config.Config
	mutex    sync.RWMutex
	port     int
	sessions *Registry
	recorder Recorder
	live     *LiveService
}

// NewServer は新しいAPIサーバーを作成する。recorder が nil の場合は記録しない
func NewServer(cfg *config.Config, port int, recorder Recorder) *Server {
	s := &Server{
		cfg:      cfg,
		port:     port,
		sessions: NewRegistry(),
		recorder: recorder,
	}
	s.live = NewLiveService(cfg, s.sessions)
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する
func (s *Server) Start() error {
	// HTTPサーバーの設定
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	// サーバーの起動
	log.Printf("APIサーバーを開始します: http://localhost:%d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	if s.live.IsRunning() {
		_ = s.live.Stop()
	}
	if s.server != nil {
		log.Println("APIサーバーを停止します...")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Sessions はセッションの一覧を返す
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// Live はデバイス入力サービスを返す
func (s *Server) Live() *LiveService {
	return s.live
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg
}

// UpdateConfig は設定を更新する。既存のセッションは作成時の設定のまま動き続ける
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mutex.Lock()
	s.cfg = cfg
	s.mutex.Unlock()
	s.live.UpdateConfig(cfg)
}

func (s *Server) renderer() *render.Renderer {
	return render.NewRenderer(s.GetConfig().Render)
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("JSONエンコードエラー: %v", err)
		}
	}
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	writeJSON(w, status, response)
}
