// Package store はセッションの入力イベントを SQLite に記録し、再生用に読み出す。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // ドライバの登録

	"github.com/char5742/keyball-ribbon/internal/sketch"
)

// ErrNotFound は指定した記録が存在しない場合のエラー
var ErrNotFound = errors.New("記録が見つかりません")

// Recording は1セッション分の記録の概要
type Recording struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	Events    int       `json:"events"`
}

// Store は SQLite による記録先
type Store struct {
	db *sql.DB
}

// Init はデータベースを開き、テーブルを作成する
func Init(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("データベースのディレクトリ作成に失敗しました: %w", err)
	}

	// foreign_keys は接続ごとの設定なので DSN で指定する
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("データベースを開けませんでした: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースに接続できませんでした: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s の設定に失敗しました: %w", pragma, err)
		}
	}
	// 書き込みの競合を避けるため接続は1本に限定する
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗しました: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			key TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (recording_id, seq)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close はデータベースを閉じる
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRecording は新しい記録を作成する
func (s *Store) CreateRecording(ctx context.Context, id string, mode sketch.Mode) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO recordings (id, mode, created_at) VALUES (?, ?, ?)",
		id, string(mode), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("記録の作成に失敗しました: %w", err)
	}
	return nil
}

// AppendEvents は記録の末尾にイベントを追加する
func (s *Store) AppendEvents(ctx context.Context, id string, events []sketch.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE recording_id = ?", id).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO events (recording_id, seq, kind, x, y, key) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, id, next+int64(i), string(ev.Kind), ev.X, ev.Y, ev.Key); err != nil {
			return fmt.Errorf("イベントの保存に失敗しました: %w", err)
		}
	}
	return tx.Commit()
}

// Events は記録されたイベントを順番に返す
func (s *Store) Events(ctx context.Context, id string) ([]sketch.Event, error) {
	if _, err := s.Recording(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, x, y, key FROM events WHERE recording_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []sketch.Event
	for rows.Next() {
		var ev sketch.Event
		var kind string
		if err := rows.Scan(&kind, &ev.X, &ev.Y, &ev.Key); err != nil {
			return nil, err
		}
		ev.Kind = sketch.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Recording は1件の記録の概要を返す
func (s *Store) Recording(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.mode, r.created_at, COUNT(e.seq)
		FROM recordings r LEFT JOIN events e ON e.recording_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, id)

	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Recordings は新しい順に記録の一覧を返す
func (s *Store) Recordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.mode, r.created_at, COUNT(e.seq)
		FROM recordings r LEFT JOIN events e ON e.recording_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteRecording は記録とそのイベントを削除する
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*Recording, error) {
	var rec Recording
	var created int64
	if err := row.Scan(&rec.ID, &rec.Mode, &created, &rec.Events); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}
