package ribbon

import "github.com/paulmach/orb"

// Trail は移動に沿って伸びる四角形の列を管理する
type Trail struct {
	params  Params
	quads   []Quad
	prevA   orb.Point
	prevB   orb.Point
	hasPrev bool
}

// NewTrail は空の軌跡を作成する
func NewTrail(params Params) *Trail {
	return &Trail{params: params}
}

// Step はすべての四角形を1フレーム進め、消えたものを取り除く
func (t *Trail) Step() {
	live := t.quads[:0]
	for i := range t.quads {
		t.quads[i].Step(t.params)
		if !t.quads[i].Dead {
			live = append(live, t.quads[i])
		}
	}
	// 取り除いた分の参照を切る
	for i := len(live); i < len(t.quads); i++ {
		t.quads[i] = Quad{}
	}
	t.quads = live
}

// Extend は新しい垂線の端点 a, b を受け取る。
// emit が true で前回の端点があれば、前回の端点とつないだ四角形を追加する。
func (t *Trail) Extend(a, b orb.Point, emit bool) {
	if emit && t.hasPrev {
		t.quads = append(t.quads, NewQuad(a, b, t.prevB, t.prevA, t.params.Color))
	}
	t.prevA, t.prevB = a, b
	t.hasPrev = true
}

// Quads は古い順に四角形のコピーを返す
func (t *Trail) Quads() []Quad {
	out := make([]Quad, len(t.quads))
	copy(out, t.quads)
	return out
}

// Len は生存している四角形の数を返す
func (t *Trail) Len() int {
	return len(t.quads)
}

// Clear はすべての四角形と前回の端点を破棄する
func (t *Trail) Clear() {
	t.quads = nil
	t.hasPrev = false
}
