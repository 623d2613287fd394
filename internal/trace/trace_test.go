package trace

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/sketch"
)

const sample = `
name: right-swipe
mode: stroke
events:
  - kind: down
    x: 0
    y: 0
  - kind: drag
    x: 10
  - kind: tick
  - kind: drag
    x: 20
  - kind: tick
    repeat: 3
  - kind: key
    key: space
  - kind: up
`

func TestParse(t *testing.T) {
	tr, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "right-swipe", tr.Name)
	assert.Equal(t, "stroke", tr.Mode)
	require.Len(t, tr.Entries, 7)
	assert.Equal(t, sketch.EventDrag, tr.Entries[1].Kind)
	assert.Equal(t, 10.0, tr.Entries[1].X)
	assert.Equal(t, 3, tr.Entries[4].Repeat)
	assert.Equal(t, "space", tr.Entries[5].Key)

	events := tr.Events()
	assert.Len(t, events, 9)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("name: x\nmode: spiral\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("events:\n  - kind: hover\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("events:\n  - kind: tick\n    repeat: -2\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("events: [unterminated"))
	assert.Error(t, err)
}

func TestParse_RejectsNonFinitePositions(t *testing.T) {
	for _, v := range []string{".nan", ".inf", "-.inf"} {
		data := "events:\n  - kind: down\n  - kind: drag\n    x: " + v + "\n  - kind: tick\n"
		_, err := Parse([]byte(data))
		assert.Error(t, err, v)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "swipe.yaml")
	events := []sketch.Event{
		{Kind: sketch.EventDown, X: 5, Y: 5},
		{Kind: sketch.EventDrag, X: 25, Y: 5},
		{Kind: sketch.EventTick},
		{Kind: sketch.EventUp},
	}

	require.NoError(t, Save(path, FromEvents("swipe", sketch.ModeRibbon, events)))

	tr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "swipe", tr.Name)
	assert.Equal(t, events, tr.Events())
}

func TestReplay_CallsOnFramePerTick(t *testing.T) {
	tr, err := Parse([]byte(sample))
	require.NoError(t, err)

	s := sketch.NewSession(sketch.OptionsFromConfig(config.DefaultConfig(), sketch.ModeStroke))
	var frames []int
	err = Replay(s, tr.Events(), func(f sketch.Frame) error {
		frames = append(frames, f.Frame)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, frames)
}

func TestReplay_StopsOnError(t *testing.T) {
	tr, err := Parse([]byte(sample))
	require.NoError(t, err)

	s := sketch.NewSession(sketch.OptionsFromConfig(config.DefaultConfig(), sketch.ModeRibbon))
	stop := errors.New("stop")
	calls := 0
	err = Replay(s, tr.Events(), func(sketch.Frame) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLoad_BundledSwirl(t *testing.T) {
	tr, err := Load(filepath.Join("..", "..", "traces", "swirl.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "swirl", tr.Name)

	s := sketch.NewSession(sketch.OptionsFromConfig(config.DefaultConfig(), sketch.ModeRibbon))
	var last sketch.Frame
	require.NoError(t, Replay(s, tr.Events(), func(f sketch.Frame) error {
		last = f
		return nil
	}))

	assert.Equal(t, 72, last.Frame)
	assert.False(t, last.Pressed)
	// 12 回の移動のうち、窓が埋まってからの 8 回分が残っている
	assert.Len(t, last.Quads, 8)
}
