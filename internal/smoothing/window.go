package smoothing

// Window は直近 N 個のサンプルを保持する固定長の FIFO バッファです。
// 容量を超えて追加すると最も古いサンプルが取り除かれます。
type Window[T any] struct {
	data []T
	head int // 最も古いサンプルの位置
	size int
}

// NewWindow は容量 capacity のウィンドウを作成します。capacity が 1 未満の場合は 1 として扱います。
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{data: make([]T, capacity)}
}

// Push はサンプルを追加します。
// 容量を超えた場合は最も古いサンプルを取り除き、それを返します。
func (w *Window[T]) Push(v T) (evicted T, ok bool) {
	if w.size < len(w.data) {
		w.data[(w.head+w.size)%len(w.data)] = v
		w.size++
		return evicted, false
	}

	evicted = w.data[w.head]
	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	return evicted, true
}

// Len は保持しているサンプル数を返します
func (w *Window[T]) Len() int {
	return w.size
}

// Cap はウィンドウの容量を返します
func (w *Window[T]) Cap() int {
	return len(w.data)
}

// Full はウィンドウが満杯かどうかを返します
func (w *Window[T]) Full() bool {
	return w.size == len(w.data)
}

// Each は古い順にサンプルを走査します
func (w *Window[T]) Each(fn func(v T)) {
	for i := 0; i < w.size; i++ {
		fn(w.data[(w.head+i)%len(w.data)])
	}
}

// Values は古い順に並べたサンプルのコピーを返します
func (w *Window[T]) Values() []T {
	out := make([]T, 0, w.size)
	w.Each(func(v T) {
		out = append(out, v)
	})
	return out
}

// Clear はすべてのサンプルを破棄します
func (w *Window[T]) Clear() {
	var zero T
	for i := range w.data {
		w.data[i] = zero
	}
	w.head = 0
	w.size = 0
}
