package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// 連続した書き込みをまとめるための待ち時間
const reloadDelay = 200 * time.Millisecond

// Watch は設定ファイルを監視し、変更されるたびに読み込み直して onChange を呼び出す。
// エディタによる置き換え保存にも対応するため、ファイルではなくディレクトリを監視する。
// ctx がキャンセルされるまでブロックする。
func Watch(ctx context.Context, configPath string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の作成に失敗しました: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("ディレクトリの監視に失敗しました: %w", err)
	}
	log.Printf("設定ファイルの監視を開始: %s", target)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := LoadConfig(target)
			if err != nil {
				log.Printf("設定ファイルの再読み込みに失敗しました: %v", err)
				continue
			}
			log.Println("設定ファイルを再読み込みしました")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("ファイル監視エラー: %v", err)
		}
	}
}
