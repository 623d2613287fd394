// Package trace は記録済みのポインタ操作を YAML で読み書きし、セッションに再生する。
package trace

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/char5742/keyball-ribbon/internal/sketch"
)

// Entry はトレース内の1行。Repeat は同じイベントを繰り返す回数 (0 と 1 は1回)
type Entry struct {
	sketch.Event `yaml:",inline"`
	Repeat       int `yaml:"repeat,omitempty"`
}

// Trace は一連の入力イベント
type Trace struct {
	Name    string  `yaml:"name"`
	Mode    string  `yaml:"mode,omitempty"`
	Entries []Entry `yaml:"events"`
}

// Parse は YAML からトレースを読み込む
func Parse(data []byte) (*Trace, error) {
	var tr Trace
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("トレースの解析に失敗しました: %w", err)
	}
	if _, err := sketch.ParseMode(tr.Mode); err != nil {
		return nil, err
	}
	for i, e := range tr.Entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("イベント #%d: %w", i, err)
		}
		if e.Repeat < 0 {
			return nil, fmt.Errorf("イベント #%d: repeat が負の値です: %d", i, e.Repeat)
		}
	}
	return &tr, nil
}

// Load はファイルからトレースを読み込む
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Save はトレースを YAML ファイルに保存する
func Save(path string, tr *Trace) error {
	data, err := yaml.Marshal(tr)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FromEvents はイベント列からトレースを作る
func FromEvents(name string, mode sketch.Mode, events []sketch.Event) *Trace {
	tr := &Trace{Name: name, Mode: string(mode)}
	for _, ev := range events {
		tr.Entries = append(tr.Entries, Entry{Event: ev})
	}
	return tr
}

// Events は Repeat を展開したイベント列を返す
func (tr *Trace) Events() []sketch.Event {
	var out []sketch.Event
	for _, e := range tr.Entries {
		n := e.Repeat
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, e.Event)
		}
	}
	return out
}

// Replay はトレースをセッションに流し込む。tick のたびに onFrame を呼び出す
func Replay(s *sketch.Session, events []sketch.Event, onFrame func(sketch.Frame) error) error {
	for i, ev := range events {
		if err := s.Handle(ev); err != nil {
			return fmt.Errorf("イベント #%d の処理に失敗しました: %w", i, err)
		}
		if ev.Kind != sketch.EventTick || onFrame == nil {
			continue
		}
		if err := onFrame(s.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}
