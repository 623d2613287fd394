package smoothing

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// DefaultWindowSize は移動平均に使うサンプル数
	DefaultWindowSize = 5
	// DefaultNoiseFloor はこれ以下の L1 移動量を無視する閾値
	DefaultNoiseFloor = 2.0
	// DefaultLengthOffset は垂線の長さに加える定数
	DefaultLengthOffset = 5.0

	// 正規化時にゼロベクトルとみなす長さ
	epsilon = 1e-9
)

// Options はフィルターのパラメータ
type Options struct {
	WindowSize   int
	NoiseFloor   float64
	LengthOffset float64
}

// DefaultOptions はデフォルトのパラメータを返します
func DefaultOptions() Options {
	return Options{
		WindowSize:   DefaultWindowSize,
		NoiseFloor:   DefaultNoiseFloor,
		LengthOffset: DefaultLengthOffset,
	}
}

// Output はフィルターが1フレームごとに出力する平滑化済みの値
type Output struct {
	// Direction は方向ウィンドウの平均。正規化はしないので長さは 1 以下になります
	Direction  orb.Point `json:"direction"`
	Angle      float64   `json:"angle"`
	AnglePlus  float64   `json:"angle_plus"`
	AngleMinus float64   `json:"angle_minus"`
	PerpLength float64   `json:"perp_length"`
}

// Filter はポインタ位置の列から移動方向と垂線の長さを平滑化します。
// 並行呼び出しには対応していません。
type Filter struct {
	opts       Options
	directions *Window[orb.Point]
	lengths    *Window[float64]
	last       orb.Point
	out        Output
	updated    bool
}

// NewFilter は新しいフィルターを作成します
func NewFilter(opts Options) *Filter {
	if opts.WindowSize < 1 {
		opts.WindowSize = DefaultWindowSize
	}
	return &Filter{
		opts:       opts,
		directions: NewWindow[orb.Point](opts.WindowSize),
		lengths:    NewWindow[float64](opts.WindowSize),
	}
}

// Update は現在のポインタ位置を取り込み、平滑化済みの値を返します。
// 前回の位置からの L1 移動量が NoiseFloor 以下の場合は何も更新せず、前回の値を返します。
func (f *Filter) Update(pos orb.Point) Output {
	dx := pos.X() - f.last.X()
	dy := pos.Y() - f.last.Y()
	l1 := math.Abs(dx) + math.Abs(dy)
	if l1 <= f.opts.NoiseFloor {
		f.updated = false
		return f.out
	}

	f.directions.Push(normalize(dx, dy))
	mean := meanPoint(f.directions)

	angle := math.Atan2(mean.X(), mean.Y())

	f.lengths.Push(l1 + f.opts.LengthOffset)

	f.out = Output{
		Direction:  mean,
		Angle:      angle,
		AnglePlus:  angle + math.Pi/2,
		AngleMinus: angle - math.Pi/2,
		PerpLength: meanFloat(f.lengths),
	}
	f.last = pos
	f.updated = true

	return f.out
}

// Output は最後に計算した値を返します
func (f *Filter) Output() Output {
	return f.out
}

// Updated は直前の Update で値が更新されたかどうかを返します
func (f *Filter) Updated() bool {
	return f.updated
}

// Ready は方向ウィンドウが満杯になったかどうかを返します
func (f *Filter) Ready() bool {
	return f.directions.Full()
}

// Len は方向ウィンドウに溜まっているサンプル数を返します
func (f *Filter) Len() int {
	return f.directions.Len()
}

// Reset はウィンドウと出力を破棄します。最後の位置は保持します。
// リセット後の最初の Update は1サンプルだけで平均を取るため、新規作成したフィルターと同じ結果になります。
func (f *Filter) Reset() {
	f.directions.Clear()
	f.lengths.Clear()
	f.out = Output{}
	f.updated = false
}

// Begin は新しいジェスチャーの開始点から計測し直します
func (f *Filter) Begin(pos orb.Point) {
	f.Reset()
	f.last = pos
}

// Perpendiculars は pos から左右に伸びる2本の垂線の端点を返します
func (o Output) Perpendiculars(pos orb.Point) (plus, minus orb.Point) {
	plus = orb.Point{
		pos.X() + math.Sin(o.AnglePlus)*o.PerpLength,
		pos.Y() + math.Cos(o.AnglePlus)*o.PerpLength,
	}
	minus = orb.Point{
		pos.X() + math.Sin(o.AngleMinus)*o.PerpLength,
		pos.Y() + math.Cos(o.AngleMinus)*o.PerpLength,
	}
	return plus, minus
}

// Tail は pos から移動方向と逆向きに scale 倍だけ戻った点を返します
func (o Output) Tail(pos orb.Point, scale float64) orb.Point {
	return orb.Point{
		pos.X() - o.Direction.X()*scale,
		pos.Y() - o.Direction.Y()*scale,
	}
}

func normalize(dx, dy float64) orb.Point {
	n := math.Hypot(dx, dy)
	if n < epsilon {
		return orb.Point{}
	}
	return orb.Point{dx / n, dy / n}
}

func meanPoint(w *Window[orb.Point]) orb.Point {
	if w.Len() == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	w.Each(func(p orb.Point) {
		sx += p.X()
		sy += p.Y()
	})
	n := float64(w.Len())
	return orb.Point{sx / n, sy / n}
}

func meanFloat(w *Window[float64]) float64 {
	if w.Len() == 0 {
		return 0
	}
	var sum float64
	w.Each(func(v float64) {
		sum += v
	})
	return sum / float64(w.Len())
}
