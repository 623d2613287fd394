package sketch

import (
	"fmt"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/char5742/keyball-ribbon/internal/bounce"
	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/gradient"
	"github.com/char5742/keyball-ribbon/internal/ribbon"
	"github.com/char5742/keyball-ribbon/internal/smoothing"
)

// Mode は描画するスケッチの種類
type Mode string

const (
	// ModeRibbon はフェードしながら奥へ消えていく四角形の軌跡
	ModeRibbon Mode = "ribbon"
	// ModeStroke は描き足されていく垂線
	ModeStroke Mode = "stroke"
	// ModeBounce は押している間ポインタから生まれ、重力で落ちて壁で跳ねるボール
	ModeBounce Mode = "bounce"
	// ModeGradient はキャンバス全体を覆う入れ子のグラデーションタイル
	ModeGradient Mode = "gradient"
)

// ParseMode は文字列をモードに変換する。空文字はリボンとして扱う
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRibbon:
		return ModeRibbon, nil
	case ModeStroke, ModeBounce, ModeGradient:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("不明なモードです: %q", s)
	}
}

// Options はセッションの設定
type Options struct {
	Mode               Mode
	Filter             smoothing.Options
	DirectionScale     float64
	Ribbon             ribbon.Params
	StrokeWidthDivisor float64
	MaxSegments        int
	Bounce             bounce.Params
	MaxBalls           int
	Gradient           GradientOptions
	Bounds             orb.Bound // キャンバスの範囲。ボールが跳ね返る壁になる
	Seed               uint64
}

// GradientOptions はグラデーションタイルの設定
type GradientOptions struct {
	TileSize    float64
	MinTileSize float64
	MaxTileSize float64
	From        gg.RGBA
	To          gg.RGBA
}

// OptionsFromConfig は設定ファイルの内容からセッションの設定を作る
func OptionsFromConfig(cfg *config.Config, mode Mode) Options {
	params := ribbon.Params{
		Fade:       cfg.Ribbon.Fade,
		DepthScale: cfg.Ribbon.DepthScale,
		DepthStep:  cfg.Ribbon.DepthStep,
		MinAlpha:   cfg.Ribbon.MinAlpha,
		Color:      gg.Hex(cfg.Ribbon.Color),
	}
	return Options{
		Mode: mode,
		Filter: smoothing.Options{
			WindowSize:   cfg.Filter.WindowSize,
			NoiseFloor:   cfg.Filter.NoiseFloor,
			LengthOffset: cfg.Filter.LengthOffset,
		},
		DirectionScale:     cfg.Filter.DirectionScale,
		Ribbon:             params,
		StrokeWidthDivisor: cfg.Stroke.WidthDivisor,
		MaxSegments:        cfg.Stroke.MaxSegments,
		Bounce: bounce.Params{
			Radius:  cfg.Bounce.Radius,
			Speed:   cfg.Bounce.Speed,
			Gravity: cfg.Bounce.Gravity,
			Damping: cfg.Bounce.Damping,
			Color:   gg.Hex(cfg.Bounce.Color),
		},
		MaxBalls: cfg.Bounce.MaxBalls,
		Gradient: GradientOptions{
			TileSize:    cfg.Gradient.TileSize,
			MinTileSize: cfg.Gradient.MinTileSize,
			MaxTileSize: cfg.Gradient.MaxTileSize,
			From:        gg.Hex(cfg.Gradient.From),
			To:          gg.Hex(cfg.Gradient.To),
		},
		Bounds: orb.Bound{Max: orb.Point{float64(cfg.Render.Width), float64(cfg.Render.Height)}},
		Seed:   1,
	}
}

// Frame は描画用に取り出したセッションの状態
type Frame struct {
	Mode     Mode             `json:"mode"`
	Frame    int              `json:"frame"`
	Pointer  orb.Point        `json:"pointer"`
	Pressed  bool             `json:"pressed"`
	Ready    bool             `json:"ready"`
	Output   smoothing.Output `json:"output"`
	Tail     orb.Point        `json:"tail"`
	Plus     orb.Point        `json:"plus"`
	Minus    orb.Point        `json:"minus"`
	Quads    []ribbon.Quad    `json:"quads,omitempty"`
	Segments []ribbon.Segment `json:"segments,omitempty"`
	Balls    []bounce.Ball    `json:"balls,omitempty"`
	Ball     *gg.RGBA         `json:"ball_color,omitempty"`
	Tiles    *Tiles           `json:"tiles,omitempty"`
}

// Tiles はグラデーションタイルの描画に必要な値
type Tiles struct {
	Size float64 `json:"size"`
	From gg.RGBA `json:"from"`
	To   gg.RGBA `json:"to"`
}

// Session はホストの入力イベントをフィルターとスケッチに橋渡しする。
// 並行呼び出しには対応していないため、呼び出し側で直列化すること。
type Session struct {
	opts    Options
	filter  *smoothing.Filter
	trail   *ribbon.Trail
	strokes *ribbon.Strokes
	balls   *bounce.Balls
	pointer orb.Point
	pressed bool
	frame   int
}

// NewSession は新しいセッションを作成する
func NewSession(opts Options) *Session {
	if opts.Mode == "" {
		opts.Mode = ModeRibbon
	}
	return &Session{
		opts:    opts,
		filter:  smoothing.NewFilter(opts.Filter),
		trail:   ribbon.NewTrail(opts.Ribbon),
		strokes: ribbon.NewStrokes(opts.MaxSegments, opts.StrokeWidthDivisor, opts.Seed),
		balls:   bounce.NewBalls(opts.Bounce, opts.Bounds, opts.MaxBalls, opts.Seed),
	}
}

// Mode はセッションのモードを返す
func (s *Session) Mode() Mode {
	return s.opts.Mode
}

// Handle はイベントを1件処理する
func (s *Session) Handle(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Kind {
	case EventDown:
		s.pointer = orb.Point{ev.X, ev.Y}
		s.pressed = true
		s.filter.Begin(s.pointer)
	case EventDrag:
		s.pointer = orb.Point{ev.X, ev.Y}
	case EventUp:
		// 入力が途切れたので履歴を捨てる
		s.pressed = false
		s.filter.Reset()
	case EventKey:
		if isClearKey(ev.Key) {
			s.Clear()
		}
	case EventTick:
		s.Tick()
	}
	return nil
}

// Tick は1フレーム分の更新を行う
func (s *Session) Tick() {
	s.frame++

	if s.pressed {
		s.filter.Update(s.pointer)
	}
	s.trail.Step()
	s.balls.Step()

	if s.pressed && s.opts.Mode == ModeBounce {
		// 1フレームに1個。向きが定まるまでは右へ投げる
		dir := 1.0
		if s.filter.Ready() {
			dir = s.filter.Output().Direction.X()
		}
		s.balls.Spawn(s.pointer, dir)
	}

	if !s.pressed || !s.filter.Updated() {
		return
	}

	out := s.filter.Output()
	plus, minus := out.Perpendiculars(s.pointer)
	switch s.opts.Mode {
	case ModeRibbon:
		s.trail.Extend(plus, minus, s.filter.Ready())
	case ModeStroke:
		if s.filter.Ready() {
			s.strokes.Add(plus, minus, out.PerpLength)
		}
	}
}

// Clear は描画済みの内容を消去する
func (s *Session) Clear() {
	s.trail.Clear()
	s.strokes.Clear()
	s.balls.Clear()
}

// Snapshot は現在の状態を取り出す
func (s *Session) Snapshot() Frame {
	out := s.filter.Output()
	plus, minus := out.Perpendiculars(s.pointer)
	f := Frame{
		Mode:    s.opts.Mode,
		Frame:   s.frame,
		Pointer: s.pointer,
		Pressed: s.pressed,
		Ready:   s.filter.Ready(),
		Output:  out,
		Tail:    out.Tail(s.pointer, s.opts.DirectionScale),
		Plus:    plus,
		Minus:   minus,
	}
	switch s.opts.Mode {
	case ModeRibbon:
		f.Quads = s.trail.Quads()
	case ModeStroke:
		f.Segments = s.strokes.Segments()
	case ModeBounce:
		f.Balls = s.balls.Balls()
		c := s.balls.Color()
		f.Ball = &c
	case ModeGradient:
		g := s.opts.Gradient
		f.Tiles = &Tiles{
			Size: gradient.TileSize(g.TileSize, out.PerpLength, g.MinTileSize, g.MaxTileSize),
			From: g.From,
			To:   g.To,
		}
	}
	return f
}

func isClearKey(key string) bool {
	return key == " " || key == "space"
}
