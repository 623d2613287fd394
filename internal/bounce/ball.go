// Package bounce は重力で落ち、壁で跳ね返るボールの群れを扱う。
package bounce

import (
	"math/rand/v2"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/char5742/keyball-ribbon/internal/smoothing"
)

// Params はボールの物理パラメータ
type Params struct {
	Radius  float64
	Speed   float64 // 生成時の速度 (各軸)
	Gravity float64 // 1フレームごとに下向きに加える速度
	Damping float64 // 壁に当たったときに速度へ掛ける係数
	Color   gg.RGBA
}

// DefaultParams はデフォルトのパラメータを返す
func DefaultParams() Params {
	return Params{
		Radius:  5,
		Speed:   5,
		Gravity: 0.15,
		Damping: 0.8,
		Color:   gg.RGB(1, 1, 1),
	}
}

// Ball は1個のボール
type Ball struct {
	Position  orb.Point `json:"position"`
	Velocity  orb.Point `json:"velocity"`
	Gravity   orb.Point `json:"-"`
	Radius    float64   `json:"radius"`
	Variation float64   `json:"-"`
}

// NewBall は pos に速度 (dir·Speed, −Speed) のボールを作る。
// variation は速度、重力、減衰にかかる個体差の倍率
func NewBall(pos orb.Point, dir float64, variation float64, p Params) Ball {
	return Ball{
		Position:  pos,
		Velocity:  orb.Point{dir * p.Speed * variation, -p.Speed * variation},
		Gravity:   orb.Point{0, p.Gravity * variation},
		Radius:    p.Radius,
		Variation: variation,
	}
}

// Step は1フレーム進める。壁の外に出ていれば押し戻して反射させ、
// その後に重力を加えて移動する
func (b *Ball) Step(bound orb.Bound, damping float64) {
	x, y := b.Position[0], b.Position[1]
	vx, vy := b.Velocity[0], b.Velocity[1]
	minX, maxX := bound.Min[0]+b.Radius, bound.Max[0]-b.Radius
	minY, maxY := bound.Min[1]+b.Radius, bound.Max[1]-b.Radius

	if x > maxX || x < minX {
		vx = -vx
		if x > maxX {
			x = maxX
		}
		if x < minX {
			x = minX
		}
		vx *= damping * b.Variation
		vy *= damping * b.Variation
	}

	if y > maxY || y < minY {
		vy = -vy
		if y > maxY {
			y = maxY
		}
		if y < minY {
			y = minY
		}
		vx *= damping * b.Variation
		vy *= damping * b.Variation
	}

	vx += b.Gravity[0]
	vy += b.Gravity[1]
	b.Velocity = orb.Point{vx, vy}
	b.Position = orb.Point{x + vx, y + vy}
}

// Balls は一定数までのボールを保持する。上限を超えると古いものから消える
type Balls struct {
	params Params
	bound  orb.Bound
	balls  *smoothing.Window[*Ball]
	rnd    *rand.Rand
}

// NewBalls はキャンバス bound 内で跳ねるボールの群れを作成する
func NewBalls(params Params, bound orb.Bound, maxBalls int, seed uint64) *Balls {
	return &Balls{
		params: params,
		bound:  bound,
		balls:  smoothing.NewWindow[*Ball](maxBalls),
		rnd:    rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
	}
}

// Spawn は pos に新しいボールを追加する。dir が負なら左向きに飛び出す
func (bs *Balls) Spawn(pos orb.Point, dir float64) Ball {
	sign := 1.0
	if dir < 0 {
		sign = -1
	}
	variation := 0.9 + bs.rnd.Float64()*0.2
	b := NewBall(pos, sign, variation, bs.params)
	bs.balls.Push(&b)
	return b
}

// Step はすべてのボールを1フレーム進める
func (bs *Balls) Step() {
	bs.balls.Each(func(b *Ball) {
		b.Step(bs.bound, bs.params.Damping)
	})
}

// Balls は古い順にボールのコピーを返す
func (bs *Balls) Balls() []Ball {
	out := make([]Ball, 0, bs.balls.Len())
	bs.balls.Each(func(b *Ball) {
		out = append(out, *b)
	})
	return out
}

// Color はボールの色
func (bs *Balls) Color() gg.RGBA {
	return bs.params.Color
}

// Len は保持しているボールの数
func (bs *Balls) Len() int {
	return bs.balls.Len()
}

// Clear はすべてのボールを消す
func (bs *Balls) Clear() {
	bs.balls.Clear()
}
