package ribbon

import (
	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
)

// Vertex は奥行きを持つ頂点。Z は画面手前が 0 で、奥に行くほど負になる
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Params はリボンの減衰と後退の係数
type Params struct {
	Fade       float64 // 1フレームごとにアルファへ掛ける係数
	DepthScale float64 // 1フレームごとに Z へ掛ける係数
	DepthStep  float64 // 1フレームごとに Z から引く量
	MinAlpha   float64 // これを下回ると消える
	Color      gg.RGBA
}

// DefaultParams はデフォルトの係数を返す
func DefaultParams() Params {
	return Params{
		Fade:       0.992,
		DepthScale: 1.01,
		DepthStep:  0.5,
		MinAlpha:   0.0001,
		Color:      gg.RGBA{R: 0.8, G: 0.8, B: 1.0, A: 1.0},
	}
}

// Quad はリボンを構成する1枚の四角形
type Quad struct {
	Vertices [4]Vertex `json:"vertices"`
	Color    gg.RGBA   `json:"color"`
	Dead     bool      `json:"-"`
}

// NewQuad は画面上 (Z=0) の4点から四角形を作る
func NewQuad(a, b, c, d orb.Point, color gg.RGBA) Quad {
	return Quad{
		Vertices: [4]Vertex{
			{X: a.X(), Y: a.Y()},
			{X: b.X(), Y: b.Y()},
			{X: c.X(), Y: c.Y()},
			{X: d.X(), Y: d.Y()},
		},
		Color: color,
	}
}

// Step は1フレーム分だけ四角形を薄くし、奥へ後退させる
func (q *Quad) Step(p Params) {
	q.Color.A *= p.Fade
	for i := range q.Vertices {
		q.Vertices[i].Z = q.Vertices[i].Z*p.DepthScale - p.DepthStep
	}
	if q.Color.A < p.MinAlpha {
		q.Dead = true
	}
}
