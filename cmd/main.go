package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"

	"github.com/char5742/keyball-ribbon/internal/api"
	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/sketch"
	"github.com/char5742/keyball-ribbon/internal/store"
)

func main() {
	// .env があれば環境変数として読み込む
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".env の読み込みに失敗しました: %v", err)
	}

	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーモードで起動します")
	configPath := flag.String("config", os.Getenv("KEYBALL_RIBBON_CONFIG"), "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	port := flag.Int("port", envInt("KEYBALL_RIBBON_PORT", 8080), "APIサーバーのポート番号")
	openBrowser := flag.Bool("open", false, "APIサーバー起動後にブラウザで開きます")
	live := flag.Bool("live", false, "APIサーバーモードでデバイス入力も開始します")
	modeName := flag.String("mode", "ribbon", "描画モード (ribbon, stroke, bounce, gradient)")
	tracePath := flag.String("trace", "", "YAML トレースを再生して PNG を書き出します")
	replayID := flag.String("replay", "", "データベースの記録を再生して PNG を書き出します")
	outDir := flag.String("out", "frames", "PNG の出力先ディレクトリ")
	every := flag.Int("every", 1, "何フレームごとに PNG を書き出すか (0 は最後のフレームのみ)")
	dbPath := flag.String("db", "", "記録用データベースのパス (指定しない場合は設定ファイルの値)")
	flag.Parse()

	// デフォルト設定ファイルパスの設定
	defaultConfigPath := ""
	configDir, err := config.GetDefaultConfigDir()
	if err == nil {
		defaultConfigPath = filepath.Join(configDir, "config.toml")
	}

	// 設定ファイルパスの決定
	cfgPath := defaultConfigPath
	if *configPath != "" {
		cfgPath = *configPath
	}

	// 設定ファイルの読み込み
	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
			cfg = config.DefaultConfig()
		} else {
			fmt.Printf("設定ファイルを読み込みました: %s\n", cfgPath)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	mode, err := sketch.ParseMode(*modeName)
	if err != nil {
		log.Fatal(err)
	}

	if *dbPath == "" {
		*dbPath = cfg.Store.Path
	}

	switch {
	case *tracePath != "":
		fmt.Printf("トレースを再生します: %s\n", *tracePath)
		if err := runTrace(cfg, *tracePath, *outDir, *every, *dbPath); err != nil {
			log.Fatalf("トレースの再生に失敗しました: %v", err)
		}
	case *replayID != "":
		fmt.Printf("記録を再生します: %s\n", *replayID)
		if err := runReplay(cfg, *dbPath, *replayID, *outDir, *every); err != nil {
			log.Fatalf("記録の再生に失敗しました: %v", err)
		}
	case *useApi:
		// APIモードで実行
		fmt.Printf("APIサーバーモードで起動します (ポート: %d)...\n", *port)
		runApiServer(cfg, cfgPath, *port, *dbPath, mode, *live, *openBrowser)
	default:
		// CLIモードで実行
		fmt.Println("CLIモードで起動します...")
		runCLI(cfg, mode, *outDir)
	}
}

// APIサーバーモードでの実行
func runApiServer(cfg *config.Config, cfgPath string, port int, dbPath string, mode sketch.Mode, live, openBrowser bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder api.Recorder
	var st *store.Store
	if dbPath != "" {
		var err error
		st, err = store.Init(dbPath)
		if err != nil {
			log.Fatalf("データベースの初期化に失敗しました: %v", err)
		}
		recorder = st
		log.Printf("入力イベントを記録します: %s", dbPath)
	}

	// APIサーバーを作成
	server := api.NewServer(cfg, port, recorder)

	// 設定ファイルの変更を反映
	if cfgPath != "" {
		go func() {
			if err := config.Watch(ctx, cfgPath, server.UpdateConfig); err != nil {
				log.Printf("設定ファイルの監視を終了しました: %v", err)
			}
		}()
	}

	if live {
		if err := server.Live().Start(mode); err != nil {
			log.Printf("デバイス入力サービスの起動に失敗しました: %v", err)
		}
	}

	handleSignals(func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("APIサーバーの停止に失敗しました: %v", err)
		}
		if st != nil {
			st.Close()
		}
	})

	if openBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := browser.OpenURL(fmt.Sprintf("http://localhost:%d/", port)); err != nil {
				log.Printf("ブラウザを開けませんでした: %v", err)
			}
		}()
	}

	// サーバー起動
	if err := server.Start(); err != nil {
		log.Fatalf("APIサーバーの起動に失敗しました: %v", err)
	}
	// Shutdown 後はシグナルハンドラが終了させるまで待つ
	select {}
}

// CLIモードでの実行
func runCLI(cfg *config.Config, mode sketch.Mode, outDir string) {
	// デバイス入力サービスを作成
	registry := api.NewRegistry()
	service := api.NewLiveService(cfg, registry)

	// サービス開始
	if err := service.Start(mode); err != nil {
		fmt.Printf("デバイス入力サービスの起動に失敗しました: %v\n", err)
		os.Exit(1)
	}

	handleSignals(func() {
		if err := service.Stop(); err != nil {
			log.Printf("サービスの停止に失敗しました: %v", err)
		}
	})

	// 1秒ごとに最新のフレームを書き出す
	path := filepath.Join(outDir, "live.png")
	fmt.Printf("最新のフレームを %s に書き出します\n", path)
	writeLiveFrames(cfg, registry, path)
}

func handleSignals(cleanup func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("シャットダウンします...")
		if cleanup != nil {
			cleanup()
		}
		os.Exit(0)
	}()
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("%s の値が不正です: %q", key, v)
		return def
	}
	return n
}
