package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/char5742/keyball-ribbon/internal/api"
	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/render"
	"github.com/char5742/keyball-ribbon/internal/sketch"
	"github.com/char5742/keyball-ribbon/internal/store"
	"github.com/char5742/keyball-ribbon/internal/trace"
)

// runTrace は YAML トレースを再生して PNG を書き出す。dbPath があれば記録として保存する
func runTrace(cfg *config.Config, tracePath, outDir string, every int, dbPath string) error {
	tr, err := trace.Load(tracePath)
	if err != nil {
		return err
	}
	mode, err := sketch.ParseMode(tr.Mode)
	if err != nil {
		return err
	}
	events := tr.Events()

	if err := exportFrames(cfg, mode, events, outDir, every); err != nil {
		return err
	}

	if dbPath == "" {
		return nil
	}
	st, err := store.Init(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	id := uuid.NewString()
	if err := st.CreateRecording(ctx, id, mode); err != nil {
		return err
	}
	if err := st.AppendEvents(ctx, id, events); err != nil {
		return err
	}
	log.Printf("トレースを記録しました: %s", id)
	return nil
}

// runReplay はデータベースの記録を再生し、PNG とトレースを書き出す
func runReplay(cfg *config.Config, dbPath, id, outDir string, every int) error {
	if dbPath == "" {
		return fmt.Errorf("データベースのパスが指定されていません")
	}
	st, err := store.Init(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	rec, err := st.Recording(ctx, id)
	if err != nil {
		return err
	}
	events, err := st.Events(ctx, id)
	if err != nil {
		return err
	}
	mode := sketch.Mode(rec.Mode)

	if err := exportFrames(cfg, mode, events, outDir, every); err != nil {
		return err
	}

	tracePath := filepath.Join(outDir, "trace.yaml")
	if err := trace.Save(tracePath, trace.FromEvents(id, mode, events)); err != nil {
		return err
	}
	log.Printf("トレースを書き出しました: %s", tracePath)
	return nil
}

// exportFrames はイベント列を新しいセッションで再生し、フレームを PNG に書き出す
func exportFrames(cfg *config.Config, mode sketch.Mode, events []sketch.Event, outDir string, every int) error {
	session := sketch.NewSession(sketch.OptionsFromConfig(cfg, mode))
	renderer := render.NewRenderer(cfg.Render)

	written := 0
	var last sketch.Frame
	err := trace.Replay(session, events, func(f sketch.Frame) error {
		last = f
		if every < 1 || f.Frame%every != 0 {
			return nil
		}
		written++
		return renderer.SavePNG(framePath(outDir, f.Frame), f)
	})
	if err != nil {
		return err
	}

	// 最後のフレームは必ず書き出す
	if last.Frame > 0 && (every < 1 || last.Frame%every != 0) {
		written++
		if err := renderer.SavePNG(framePath(outDir, last.Frame), last); err != nil {
			return err
		}
	}
	log.Printf("%d 枚のフレームを書き出しました: %s", written, outDir)
	return nil
}

func framePath(outDir string, frame int) string {
	return filepath.Join(outDir, fmt.Sprintf("frame_%05d.png", frame))
}

// writeLiveFrames はデバイス入力セッションの最新フレームを定期的に書き出す
func writeLiveFrames(cfg *config.Config, registry *api.Registry, path string) {
	renderer := render.NewRenderer(cfg.Render)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		f, err := registry.Snapshot(api.LiveSessionID)
		if err != nil {
			continue
		}
		if err := renderer.SavePNG(path, f); err != nil {
			log.Printf("フレームの書き出しに失敗しました: %v", err)
		}
	}
}
