package features

import "github.com/paulmach/orb"

// Cursor は相対移動量を積み上げて、キャンバス内の絶対座標に変換する
type Cursor struct {
	pos    orb.Point
	bound  orb.Bound
	factor float64
}

// NewCursor はキャンバスの中央から始まるカーソルを作成する
func NewCursor(bound orb.Bound, factor float64) *Cursor {
	if factor == 0 {
		factor = 1
	}
	return &Cursor{pos: bound.Center(), bound: bound, factor: factor}
}

// Move は移動量に係数を掛けて加算し、キャンバス内に収めた位置を返す
func (c *Cursor) Move(dx, dy int32) orb.Point {
	c.pos = orb.Point{
		clamp(c.pos.X()+float64(dx)*c.factor, c.bound.Min.X(), c.bound.Max.X()),
		clamp(c.pos.Y()+float64(dy)*c.factor, c.bound.Min.Y(), c.bound.Max.Y()),
	}
	return c.pos
}

// Position は現在位置を返す
func (c *Cursor) Position() orb.Point {
	return c.pos
}

// clamp は値を最小値と最大値の間に制限する
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
