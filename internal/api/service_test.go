package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/features"
	"github.com/char5742/keyball-ribbon/internal/sketch"
)

type fakeMouse struct {
	motions   chan features.Motion
	closeOnce sync.Once
	closed    chan struct{}
	grabbed   bool
}

func newFakeMouse() *fakeMouse {
	return &fakeMouse{motions: make(chan features.Motion, 16), closed: make(chan struct{})}
}

func (m *fakeMouse) ReadMotion() (features.Motion, error) {
	select {
	case mo := <-m.motions:
		return mo, nil
	case <-m.closed:
		return features.Motion{}, io.EOF
	}
}

func (m *fakeMouse) Grab() error    { m.grabbed = true; return nil }
func (m *fakeMouse) Release() error { m.grabbed = false; return nil }
func (m *fakeMouse) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

type fakeKeyboard struct {
	mu      sync.Mutex
	pressed bool
	closed  bool
}

func (k *fakeKeyboard) setPressed(v bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pressed = v
}

func (k *fakeKeyboard) Pressed(code int) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pressed && code == features.KeySpace, nil
}

func (k *fakeKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

func newTestLiveService(t *testing.T, mouse *fakeMouse, keyboard *fakeKeyboard) (*LiveService, *Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Render.FPS = 100
	cfg.Input.GrabMouse = true

	registry := NewRegistry()
	svc := NewLiveService(cfg, registry)
	svc.SetDeviceOpener(func(*config.Config) (features.Mouse, features.Keyboard, error) {
		if keyboard == nil {
			return mouse, nil, nil
		}
		return mouse, keyboard, nil
	})
	return svc, registry
}

func TestLiveService_DrivesLiveSession(t *testing.T) {
	mouse := newFakeMouse()
	keyboard := &fakeKeyboard{}
	svc, registry := newTestLiveService(t, mouse, keyboard)

	require.NoError(t, svc.Start(sketch.ModeRibbon))
	assert.True(t, svc.IsRunning())
	assert.True(t, mouse.grabbed)
	assert.Error(t, svc.Start(sketch.ModeRibbon))

	mouse.motions <- features.Motion{Button: features.ButtonPressed}
	for i := 0; i < 6; i++ {
		mouse.motions <- features.Motion{DX: 10}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		f, err := registry.Snapshot(LiveSessionID)
		return err == nil && f.Pressed && f.Ready && len(f.Quads) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// 消去キーで描画済みの四角形が消える
	mouse.motions <- features.Motion{Button: features.ButtonReleased}
	keyboard.setPressed(true)
	assert.Eventually(t, func() bool {
		f, err := registry.Snapshot(LiveSessionID)
		return err == nil && !f.Pressed && len(f.Quads) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	assert.True(t, keyboard.closed)
	select {
	case <-mouse.closed:
	default:
		t.Fatal("マウスがクローズされていません")
	}
	assert.Error(t, svc.Stop())
}

func TestLiveService_WithoutKeyboard(t *testing.T) {
	mouse := newFakeMouse()
	svc, registry := newTestLiveService(t, mouse, nil)

	require.NoError(t, svc.Start(sketch.ModeStroke))
	assert.Eventually(t, func() bool {
		f, err := registry.Snapshot(LiveSessionID)
		return err == nil && f.Mode == sketch.ModeStroke && f.Frame > 0
	}, 2*time.Second, 10*time.Millisecond)

	// 読み込みが先に終わっても停止できる
	mouse.Close()
	require.NoError(t, svc.Stop())
}

func TestLiveService_OpenFailure(t *testing.T) {
	svc := NewLiveService(config.DefaultConfig(), NewRegistry())
	svc.SetDeviceOpener(func(*config.Config) (features.Mouse, features.Keyboard, error) {
		return nil, nil, errors.New("no device")
	})

	assert.Error(t, svc.Start(sketch.ModeRibbon))
	assert.False(t, svc.IsRunning())
}

func TestLiveService_StartUsesUpdatedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Render.FPS = 100
	srv := NewServer(cfg, 0, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	updated := *cfg
	updated.DevicePrefs.PreferredMouseDevice = "Keyball44 Mouse"
	updated.Render.Width = 320
	updated.Render.Height = 240
	srv.UpdateConfig(&updated)

	mouse := newFakeMouse()
	var preferred string
	srv.Live().SetDeviceOpener(func(c *config.Config) (features.Mouse, features.Keyboard, error) {
		preferred = c.DevicePrefs.PreferredMouseDevice
		return mouse, nil, nil
	})

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/service/start?mode=stroke", nil, nil))
	t.Cleanup(func() { srv.Live().Stop() })
	assert.Equal(t, "Keyball44 Mouse", preferred)

	// カーソルは更新後のキャンバスの中央から始まる
	var status struct {
		Status string    `json:"status"`
		Cursor orb.Point `json:"cursor"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/service/status", nil, &status))
	assert.Equal(t, "running", status.Status)
	assert.Eventually(t, func() bool {
		return srv.Live().Cursor() == orb.Point{160, 120}
	}, 2*time.Second, 10*time.Millisecond)

	mouse.motions <- features.Motion{DX: 10, DY: -5}
	assert.Eventually(t, func() bool {
		return srv.Live().Cursor() == orb.Point{170, 115}
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/service/status", nil, &status))
	assert.Equal(t, orb.Point{170, 115}, status.Cursor)
}

func TestLiveService_RestartDropsStaleConfig(t *testing.T) {
	mouse := newFakeMouse()
	keyboard := &fakeKeyboard{}
	svc, registry := newTestLiveService(t, mouse, keyboard)
	require.NoError(t, svc.Start(sketch.ModeRibbon))

	// 実行中に消去キーを別のキーへ変更してすぐ止める
	stale := *config.DefaultConfig()
	stale.Render.FPS = 100
	stale.Input.ClearKey = 1
	svc.UpdateConfig(&stale)
	require.NoError(t, svc.Stop())

	// 停止中の変更が次の起動で使われ、古い通知で上書きされない
	fresh := stale
	fresh.Input.ClearKey = features.KeySpace
	fresh.DevicePrefs.PreferredMouseDevice = "Keyball44 Mouse"
	svc.UpdateConfig(&fresh)

	mouse = newFakeMouse()
	var preferred string
	svc.SetDeviceOpener(func(c *config.Config) (features.Mouse, features.Keyboard, error) {
		preferred = c.DevicePrefs.PreferredMouseDevice
		return mouse, keyboard, nil
	})
	require.NoError(t, svc.Start(sketch.ModeBounce))
	defer svc.Stop()
	assert.Equal(t, "Keyball44 Mouse", preferred)

	mouse.motions <- features.Motion{Button: features.ButtonPressed}
	assert.Eventually(t, func() bool {
		f, err := registry.Snapshot(LiveSessionID)
		return err == nil && len(f.Balls) > 3
	}, 2*time.Second, 10*time.Millisecond)

	mouse.motions <- features.Motion{Button: features.ButtonReleased}
	time.Sleep(50 * time.Millisecond)
	keyboard.setPressed(true)
	assert.Eventually(t, func() bool {
		f, err := registry.Snapshot(LiveSessionID)
		return err == nil && len(f.Balls) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
