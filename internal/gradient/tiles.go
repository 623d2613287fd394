// Package gradient はキャンバスを正方形のタイルで敷き詰め、各タイルを
// 1px ずつ縮む入れ子の矩形に分ける。矩形ごとにグラデーションの向きが
// 90 度ずつ回転する。
package gradient

import (
	"math"

	"github.com/paulmach/orb"
)

// Layer は入れ子の矩形1枚と、そのグラデーションの始点と終点
type Layer struct {
	Bound orb.Bound
	Start orb.Point
	End   orb.Point
}

// Nest は rect を内側へ 1px ずつ縮めた矩形を外側から順に返す。
// 幅と高さのどちらかが 1 以下になったところで止まる
func Nest(rect orb.Bound) []Layer {
	var layers []Layer
	for count := 0; ; count++ {
		x1, y1 := rect.Min[0], rect.Min[1]
		x2, y2 := rect.Max[0], rect.Max[1]

		l := Layer{Bound: rect}
		switch count % 4 {
		case 0:
			l.Start, l.End = orb.Point{x1, y1}, orb.Point{x2, y1}
		case 1:
			l.Start, l.End = orb.Point{x2, y1}, orb.Point{x2, y2}
		case 2:
			l.Start, l.End = orb.Point{x2, y2}, orb.Point{x1, y2}
		case 3:
			l.Start, l.End = orb.Point{x1, y2}, orb.Point{x1, y1}
		}
		layers = append(layers, l)

		rect = orb.Bound{Min: orb.Point{x1 + 1, y1 + 1}, Max: orb.Point{x2 - 1, y2 - 1}}
		if rect.Max[0]-rect.Min[0] <= 1 || rect.Max[1]-rect.Min[1] <= 1 {
			return layers
		}
	}
}

// Tiles は width x height のキャンバスを覆うタイルを返す。
// タイルの中心は size の格子点に置かれ、端では半分はみ出す
func Tiles(width, height int, size float64) []orb.Bound {
	if size <= 0 {
		return nil
	}
	countX := int(math.Ceil(float64(width) / size))
	countY := int(math.Ceil(float64(height) / size))
	half := size / 2

	tiles := make([]orb.Bound, 0, (countX+1)*(countY+1))
	for x := 0; x <= countX; x++ {
		for y := 0; y <= countY; y++ {
			cx, cy := float64(x)*size, float64(y)*size
			tiles = append(tiles, orb.Bound{
				Min: orb.Point{cx - half, cy - half},
				Max: orb.Point{cx + half, cy + half},
			})
		}
	}
	return tiles
}

// TileSize は平滑化された長さからタイルの大きさを決める。
// 長さが 0 (まだ入力がない) なら base をそのまま使う
func TileSize(base, perpLength, min, max float64) float64 {
	if perpLength <= 0 {
		return base
	}
	return math.Max(min, math.Min(max, perpLength*2))
}
