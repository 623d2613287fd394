package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Filter      FilterConfig      `toml:"filter" json:"filter"`
	Ribbon      RibbonConfig      `toml:"ribbon" json:"ribbon"`
	Stroke      StrokeConfig      `toml:"stroke" json:"stroke"`
	Bounce      BounceConfig      `toml:"bounce" json:"bounce"`
	Gradient    GradientConfig    `toml:"gradient" json:"gradient"`
	Render      RenderConfig      `toml:"render" json:"render"`
	Input       InputConfig       `toml:"input" json:"input"`
	DevicePrefs DevicePrefsConfig `toml:"device_prefs" json:"device_prefs"`
	Store       StoreConfig       `toml:"store" json:"store"`
}

// FilterConfig は方向平滑化フィルターの設定
type FilterConfig struct {
	WindowSize     int     `toml:"window_size" json:"window_size"`
	NoiseFloor     float64 `toml:"noise_floor" json:"noise_floor"`
	LengthOffset   float64 `toml:"length_offset" json:"length_offset"`
	DirectionScale float64 `toml:"direction_scale" json:"direction_scale"`
}

// RibbonConfig はリボン (フェードする四角形の軌跡) の設定
type RibbonConfig struct {
	Fade       float64 `toml:"fade" json:"fade"`
	DepthScale float64 `toml:"depth_scale" json:"depth_scale"`
	DepthStep  float64 `toml:"depth_step" json:"depth_step"`
	MinAlpha   float64 `toml:"min_alpha" json:"min_alpha"`
	Color      string  `toml:"color" json:"color"`
}

// StrokeConfig は垂線ストロークの設定
type StrokeConfig struct {
	WidthDivisor float64 `toml:"width_divisor" json:"width_divisor"`
	MaxSegments  int     `toml:"max_segments" json:"max_segments"`
}

// BounceConfig は跳ねるボールの設定
type BounceConfig struct {
	Radius   float64 `toml:"radius" json:"radius"`
	Speed    float64 `toml:"speed" json:"speed"`
	Gravity  float64 `toml:"gravity" json:"gravity"`
	Damping  float64 `toml:"damping" json:"damping"`
	MaxBalls int     `toml:"max_balls" json:"max_balls"`
	Color    string  `toml:"color" json:"color"`
}

// GradientConfig は入れ子のグラデーションタイルの設定
type GradientConfig struct {
	TileSize    float64 `toml:"tile_size" json:"tile_size"`
	MinTileSize float64 `toml:"min_tile_size" json:"min_tile_size"`
	MaxTileSize float64 `toml:"max_tile_size" json:"max_tile_size"`
	From        string  `toml:"from" json:"from"`
	To          string  `toml:"to" json:"to"`
}

// RenderConfig は描画の設定
type RenderConfig struct {
	Width       int     `toml:"width" json:"width"`
	Height      int     `toml:"height" json:"height"`
	FPS         int     `toml:"fps" json:"fps"`
	FieldOfView float64 `toml:"field_of_view" json:"field_of_view"`
	Background  string  `toml:"background" json:"background"`
}

// InputConfig はデバイス入力の設定
type InputConfig struct {
	MouseDeltaFactor float64 `toml:"mouse_delta_factor" json:"mouse_delta_factor"`
	ClearKey         int     `toml:"clear_key" json:"clear_key"`
	GrabMouse        bool    `toml:"grab_mouse" json:"grab_mouse"`
}

// DevicePrefsConfig はデバイス設定の設定
type DevicePrefsConfig struct {
	PreferredKeyboardDevice string `toml:"preferred_keyboard_device" json:"preferred_keyboard_device"`
	PreferredMouseDevice    string `toml:"preferred_mouse_device" json:"preferred_mouse_device"`
}

// StoreConfig は記録用データベースの設定。Path が空なら記録しない
type StoreConfig struct {
	Path string `toml:"path" json:"path"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Filter: FilterConfig{
			WindowSize:     5,
			NoiseFloor:     2.0,
			LengthOffset:   5.0,
			DirectionScale: 35.0,
		},
		Ribbon: RibbonConfig{
			Fade:       0.992,
			DepthScale: 1.01,
			DepthStep:  0.5,
			MinAlpha:   0.0001,
			Color:      "#ccccff",
		},
		Stroke: StrokeConfig{
			WidthDivisor: 5.0,
			MaxSegments:  4096,
		},
		Bounce: BounceConfig{
			Radius:   5.0,
			Speed:    5.0,
			Gravity:  0.15,
			Damping:  0.8,
			MaxBalls: 2048,
			Color:    "#ffffff",
		},
		Gradient: GradientConfig{
			TileSize:    32,
			MinTileSize: 8,
			MaxTileSize: 128,
			From:        "#1a0033",
			To:          "#ff00ff",
		},
		Render: RenderConfig{
			Width:       640,
			Height:      480,
			FPS:         30,
			FieldOfView: 60,
			Background:  "#000000",
		},
		Input: InputConfig{
			MouseDeltaFactor: 1.0,
			ClearKey:         57, // KEY_SPACE
			GrabMouse:        false,
		},
		DevicePrefs: DevicePrefsConfig{
			PreferredKeyboardDevice: "",
			PreferredMouseDevice:    "",
		},
		Store: StoreConfig{
			Path: "",
		},
	}
}

// Validate は設定値の整合性を確認する
func (c *Config) Validate() error {
	var errs []error
	if c.Filter.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("filter.window_size は1以上である必要があります: %d", c.Filter.WindowSize))
	}
	if c.Filter.NoiseFloor < 0 {
		errs = append(errs, fmt.Errorf("filter.noise_floor は0以上である必要があります: %v", c.Filter.NoiseFloor))
	}
	if c.Render.Width < 1 || c.Render.Height < 1 {
		errs = append(errs, fmt.Errorf("render のサイズが不正です: %dx%d", c.Render.Width, c.Render.Height))
	}
	if c.Render.FPS < 1 {
		errs = append(errs, fmt.Errorf("render.fps は1以上である必要があります: %d", c.Render.FPS))
	}
	if c.Render.FieldOfView <= 0 || c.Render.FieldOfView >= 180 {
		errs = append(errs, fmt.Errorf("render.field_of_view は0より大きく180未満である必要があります: %v", c.Render.FieldOfView))
	}
	if c.Stroke.WidthDivisor <= 0 {
		errs = append(errs, fmt.Errorf("stroke.width_divisor は0より大きい必要があります: %v", c.Stroke.WidthDivisor))
	}
	if c.Stroke.MaxSegments < 1 {
		errs = append(errs, fmt.Errorf("stroke.max_segments は1以上である必要があります: %d", c.Stroke.MaxSegments))
	}
	// 減衰しないと四角形が消えずに増え続ける
	if c.Ribbon.Fade <= 0 || c.Ribbon.Fade >= 1 {
		errs = append(errs, fmt.Errorf("ribbon.fade は0より大きく1未満である必要があります: %v", c.Ribbon.Fade))
	}
	if c.Ribbon.MinAlpha <= 0 {
		errs = append(errs, fmt.Errorf("ribbon.min_alpha は0より大きい必要があります: %v", c.Ribbon.MinAlpha))
	}
	if c.Bounce.Radius <= 0 {
		errs = append(errs, fmt.Errorf("bounce.radius は0より大きい必要があります: %v", c.Bounce.Radius))
	}
	if c.Bounce.Damping <= 0 || c.Bounce.Damping > 1 {
		errs = append(errs, fmt.Errorf("bounce.damping は0より大きく1以下である必要があります: %v", c.Bounce.Damping))
	}
	if c.Bounce.MaxBalls < 1 {
		errs = append(errs, fmt.Errorf("bounce.max_balls は1以上である必要があります: %d", c.Bounce.MaxBalls))
	}
	if c.Gradient.MinTileSize < 2 || c.Gradient.MaxTileSize < c.Gradient.MinTileSize {
		errs = append(errs, fmt.Errorf("gradient のタイルサイズの範囲が不正です: %v-%v", c.Gradient.MinTileSize, c.Gradient.MaxTileSize))
	}
	if c.Gradient.TileSize < c.Gradient.MinTileSize || c.Gradient.TileSize > c.Gradient.MaxTileSize {
		errs = append(errs, fmt.Errorf("gradient.tile_size は範囲内である必要があります: %v", c.Gradient.TileSize))
	}
	return errors.Join(errs...)
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keyball-ribbon"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	// 設定ファイルの読み込み
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}

	if err := config.Validate(); err != nil {
		return DefaultConfig(), err
	}

	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
