package api

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/char5742/keyball-ribbon/internal/sketch"
)

var errSessionNotFound = errors.New("セッションが見つかりません")

// SessionInfo はセッション一覧の1件
type SessionInfo struct {
	ID        string      `json:"id"`
	Mode      sketch.Mode `json:"mode"`
	Frame     int         `json:"frame"`
	CreatedAt time.Time   `json:"created_at"`
}

// sessionEntry はセッション本体と、それを直列化するロック
type sessionEntry struct {
	mu        sync.Mutex
	session   *sketch.Session
	createdAt time.Time
}

// Apply はイベントをまとめて処理し、処理後の状態を返す。
// 不正なイベントが含まれる場合は1件も処理しない
func (e *sessionEntry) Apply(events []sketch.Event) (sketch.Frame, error) {
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return sketch.Frame{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range events {
		if err := e.session.Handle(ev); err != nil {
			return e.session.Snapshot(), err
		}
	}
	return e.session.Snapshot(), nil
}

// Snapshot は現在の状態を返す
func (e *sessionEntry) Snapshot() sketch.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot()
}

// Registry は ID ごとにセッションを保持する
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// NewRegistry は空のレジストリを作成する
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*sessionEntry)}
}

// Create は新しい ID でセッションを登録し、その ID を返す
func (r *Registry) Create(session *sketch.Session) string {
	id := uuid.NewString()
	r.Put(id, session)
	return id
}

// Put は ID を指定してセッションを登録する。既存のものは置き換える
func (r *Registry) Put(id string, session *sketch.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &sessionEntry{session: session, createdAt: time.Now()}
}

func (r *Registry) get(id string) (*sessionEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return e, nil
}

// Apply は指定したセッションにイベントを流し込む
func (r *Registry) Apply(id string, events []sketch.Event) (sketch.Frame, error) {
	e, err := r.get(id)
	if err != nil {
		return sketch.Frame{}, err
	}
	return e.Apply(events)
}

// Snapshot は指定したセッションの状態を返す
func (r *Registry) Snapshot(id string) (sketch.Frame, error) {
	e, err := r.get(id)
	if err != nil {
		return sketch.Frame{}, err
	}
	return e.Snapshot(), nil
}

// Delete はセッションを削除する
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return errSessionNotFound
	}
	delete(r.entries, id)
	return nil
}

// List は作成順にセッションの一覧を返す
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	entries := make(map[string]*sessionEntry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(entries))
	for id, e := range entries {
		f := e.Snapshot()
		out = append(out, SessionInfo{ID: id, Mode: f.Mode, Frame: f.Frame, CreatedAt: e.createdAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
