package ribbon

import (
	"math/rand/v2"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/char5742/keyball-ribbon/internal/smoothing"
)

// Segment は垂線1本分の線分
type Segment struct {
	A     orb.Point `json:"a"`
	B     orb.Point `json:"b"`
	Width float64   `json:"width"`
	Color gg.RGBA   `json:"color"`
}

// Strokes は描き足されていく線分を保持する。上限を超えると古いものから消える
type Strokes struct {
	segments     *smoothing.Window[Segment]
	widthDivisor float64
	rnd          *rand.Rand
}

// NewStrokes は線分の集合を作成する。seed は色の乱数に使う
func NewStrokes(maxSegments int, widthDivisor float64, seed uint64) *Strokes {
	if widthDivisor <= 0 {
		widthDivisor = 5
	}
	return &Strokes{
		segments:     smoothing.NewWindow[Segment](maxSegments),
		widthDivisor: widthDivisor,
		rnd:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Add は a から b への線分をランダムな色で追加する。太さは perpLength に比例する
func (s *Strokes) Add(a, b orb.Point, perpLength float64) Segment {
	seg := Segment{
		A:     a,
		B:     b,
		Width: perpLength / s.widthDivisor,
		Color: gg.RGB(s.rnd.Float64(), s.rnd.Float64(), s.rnd.Float64()),
	}
	s.segments.Push(seg)
	return seg
}

// Segments は古い順に線分を返す
func (s *Strokes) Segments() []Segment {
	return s.segments.Values()
}

// Len は保持している線分の数
func (s *Strokes) Len() int {
	return s.segments.Len()
}

// Clear は画面を消去する
func (s *Strokes) Clear() {
	s.segments.Clear()
}
