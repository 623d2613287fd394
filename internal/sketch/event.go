package sketch

import (
	"fmt"
	"math"
)

// EventKind はホストから届く入力イベントの種類
type EventKind string

const (
	// EventDown はポインタが押された (ジェスチャー開始)
	EventDown EventKind = "down"
	// EventDrag はポインタが押されたまま移動した
	EventDrag EventKind = "drag"
	// EventUp はポインタが離された (ジェスチャー終了)
	EventUp EventKind = "up"
	// EventKey はキーが押された
	EventKey EventKind = "key"
	// EventTick は1フレーム経過
	EventTick EventKind = "tick"
)

// Event は1件の入力イベント
type Event struct {
	Kind EventKind `json:"kind" yaml:"kind"`
	X    float64   `json:"x,omitempty" yaml:"x,omitempty"`
	Y    float64   `json:"y,omitempty" yaml:"y,omitempty"`
	Key  string    `json:"key,omitempty" yaml:"key,omitempty"`
}

// Validate はイベントの種類と座標を確認する。座標は有限でなければならない
func (e Event) Validate() error {
	if !isFinite(e.X) || !isFinite(e.Y) {
		return fmt.Errorf("%s イベントの座標が有限ではありません: (%v, %v)", e.Kind, e.X, e.Y)
	}
	switch e.Kind {
	case EventDown, EventDrag, EventUp, EventTick:
		return nil
	case EventKey:
		if e.Key == "" {
			return fmt.Errorf("key イベントにキーが指定されていません")
		}
		return nil
	default:
		return fmt.Errorf("不明なイベント種別です: %q", e.Kind)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
