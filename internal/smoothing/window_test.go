package smoothing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_PushEvictsOldest(t *testing.T) {
	w := NewWindow[int](3)

	for i := 1; i <= 3; i++ {
		_, evicted := w.Push(i)
		assert.False(t, evicted)
	}
	assert.True(t, w.Full())
	assert.Equal(t, []int{1, 2, 3}, w.Values())

	old, evicted := w.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, w.Values())
	assert.Equal(t, 3, w.Len())
}

func TestWindow_NeverExceedsCapacity(t *testing.T) {
	w := NewWindow[float64](DefaultWindowSize)
	for i := 0; i < DefaultWindowSize+50; i++ {
		w.Push(float64(i))
		assert.LessOrEqual(t, w.Len(), DefaultWindowSize)
	}
	assert.Equal(t, []float64{50, 51, 52, 53, 54}, w.Values())
}

func TestWindow_Clear(t *testing.T) {
	w := NewWindow[string](2)
	w.Push("a")
	w.Push("b")
	w.Push("c")
	w.Clear()

	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Values())

	w.Push("d")
	assert.Equal(t, []string{"d"}, w.Values())
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow[int](0)
	assert.Equal(t, 1, w.Cap())
	w.Push(1)
	w.Push(2)
	assert.Equal(t, []int{2}, w.Values())
}
