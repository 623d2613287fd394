package api

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/features"
	"github.com/char5742/keyball-ribbon/internal/sketch"
)

// LiveSessionID はデバイス入力で動くセッションの ID
const LiveSessionID = "live"

// DeviceOpener は設定に従って入力デバイスを開く。キーボードは nil でもよい
type DeviceOpener func(cfg *config.Config) (features.Mouse, features.Keyboard, error)

// LiveService は実際のマウスとキーボードからスケッチを動かすサービス
type LiveService struct {
	cfg          *config.Config
	registry     *Registry
	open         DeviceOpener
	stopChan     chan struct{}
	done         chan struct{}
	running      bool
	statusMutex  sync.RWMutex
	mouse        features.Mouse
	keyboard     features.Keyboard
	cursor       orb.Point
	updateConfig chan *config.Config
}

// NewLiveService は新しいサービスを作成する
func NewLiveService(cfg *config.Config, registry *Registry) *LiveService {
	return &LiveService{
		cfg:          cfg,
		registry:     registry,
		open:         openDevices,
		updateConfig: make(chan *config.Config, 1),
	}
}

// SetDeviceOpener はデバイスの開き方を差し替える
func (s *LiveService) SetDeviceOpener(open DeviceOpener) {
	s.open = open
}

// Start はデバイスを開き、入力ループを開始する
func (s *LiveService) Start(mode sketch.Mode) error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return fmt.Errorf("サービスは既に実行中です")
	}

	// 停止中に届いた設定は s.cfg に反映済みなので、古い通知は捨てる
	select {
	case <-s.updateConfig:
	default:
	}

	cfg := s.cfg
	mouse, keyboard, err := s.open(cfg)
	if err != nil {
		return err
	}
	if cfg.Input.GrabMouse {
		if err := mouse.Grab(); err != nil {
			mouse.Close()
			if keyboard != nil {
				keyboard.Close()
			}
			return err
		}
	}
	s.mouse = mouse
	s.keyboard = keyboard

	s.registry.Put(LiveSessionID, sketch.NewSession(sketch.OptionsFromConfig(cfg, mode)))

	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.runLoop(cfg)

	return nil
}

// Stop は入力ループを停止し、完了を待つ
func (s *LiveService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return fmt.Errorf("サービスは実行されていません")
	}
	close(s.stopChan)
	s.running = false
	done := s.done
	s.statusMutex.Unlock()

	<-done
	return nil
}

// UpdateConfig は設定を更新する。実行中なら次のフレームから反映し、
// 停止中なら次の Start で使う
func (s *LiveService) UpdateConfig(cfg *config.Config) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.cfg = cfg
	if !s.running {
		return
	}

	select {
	case s.updateConfig <- cfg:
		// 設定更新チャネルに送信成功
	default:
		// チャネルがブロックされている場合は古い設定を破棄して新しい設定を送信
		select {
		case <-s.updateConfig:
		default:
		}
		s.updateConfig <- cfg
	}
}

// Cursor は最後のフレームでのカーソル位置を返す
func (s *LiveService) Cursor() orb.Point {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.cursor
}

func (s *LiveService) setCursor(pos orb.Point) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()
	s.cursor = pos
}

// IsRunning はサービスが実行中かどうかを返す
func (s *LiveService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// readMotions はマウスの入力をチャネルに流す。Close されると終了する
func readMotions(mouse features.Mouse, out chan<- features.Motion) {
	defer close(out)
	for {
		m, err := mouse.ReadMotion()
		if err != nil {
			log.Printf("マウスの読み込みを終了します: %v", err)
			return
		}
		out <- m
	}
}

// runLoop は入力とフレーム更新のメインループ
func (s *LiveService) runLoop(cfg *config.Config) {
	motionCh := make(chan features.Motion, 64)
	go readMotions(s.mouse, motionCh)
	var motions <-chan features.Motion = motionCh

	defer func() {
		// サービス終了時にデバイスをクローズ
		if s.mouse != nil {
			s.mouse.Close()
		}
		if s.keyboard != nil {
			s.keyboard.Close()
		}
		// 読み込み側の終了を待つ
		for range motionCh {
		}
		log.Println("デバイス入力サービスを停止しました")
		close(s.done)
	}()

	// 設定値を取得するための関数（設定更新に対応）
	getCfg := func() *config.Config {
		select {
		case newCfg := <-s.updateConfig:
			log.Println("設定を更新しました")
			cfg = newCfg
		default:
		}
		return cfg
	}

	bound := orb.Bound{Max: orb.Point{float64(cfg.Render.Width), float64(cfg.Render.Height)}}
	cursor := features.NewCursor(bound, cfg.Input.MouseDeltaFactor)
	s.setCursor(cursor.Position())
	ticker := time.NewTicker(time.Second / time.Duration(cfg.Render.FPS))
	defer ticker.Stop()

	var (
		pressed    bool
		keyWasDown bool
	)

	apply := func(events ...sketch.Event) {
		if _, err := s.registry.Apply(LiveSessionID, events); err != nil {
			log.Printf("イベントの処理に失敗しました: %v", err)
		}
	}

	log.Println("デバイス入力を開始しました...")

	for {
		select {
		case <-s.stopChan:
			return

		case m, ok := <-motions:
			if !ok {
				motions = nil
				continue
			}
			pos := cursor.Move(m.DX, m.DY)
			switch m.Button {
			case features.ButtonPressed:
				pressed = true
				apply(sketch.Event{Kind: sketch.EventDown, X: pos.X(), Y: pos.Y()})
			case features.ButtonReleased:
				pressed = false
				apply(sketch.Event{Kind: sketch.EventUp})
			default:
				if pressed && (m.DX != 0 || m.DY != 0) {
					apply(sketch.Event{Kind: sketch.EventDrag, X: pos.X(), Y: pos.Y()})
				}
			}

		case <-ticker.C:
			cfg = getCfg()
			if s.keyboard != nil {
				down, err := s.keyboard.Pressed(cfg.Input.ClearKey)
				if err == nil && down && !keyWasDown {
					apply(sketch.Event{Kind: sketch.EventKey, Key: "space"})
				}
				keyWasDown = down
			}
			apply(sketch.Event{Kind: sketch.EventTick})
			s.setCursor(cursor.Position())
		}
	}
}

// openDevices は優先デバイスまたは最初に見つかったマウスとキーボードを開く
func openDevices(cfg *config.Config) (features.Mouse, features.Keyboard, error) {
	devices, err := features.GetDevices()
	if err != nil {
		return nil, nil, fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}

	mouseDevice, ok := features.SelectDevice(devices, features.DeviceTypeMouse, cfg.DevicePrefs.PreferredMouseDevice)
	if !ok {
		return nil, nil, fmt.Errorf("マウスデバイスが見つかりませんでした")
	}
	log.Printf("使用するマウス: %s", mouseDevice.Name)

	mouse, err := features.CreateMouse(mouseDevice.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("マウスデバイスのオープンに失敗しました[path=%s]: %w", mouseDevice.Path, err)
	}

	keyboardDevice, ok := features.SelectDevice(devices, features.DeviceTypeKeyboard, cfg.DevicePrefs.PreferredKeyboardDevice)
	if !ok {
		log.Println("キーボードが見つからないため、消去キーは無効です")
		return mouse, nil, nil
	}
	log.Printf("使用するキーボード: %s", keyboardDevice.Name)

	keyboard, err := features.CreateKeyboard(keyboardDevice.Path)
	if err != nil {
		log.Printf("キーボードデバイスのオープンに失敗しました: %v", err)
		return mouse, nil, nil
	}
	return mouse, keyboard, nil
}
