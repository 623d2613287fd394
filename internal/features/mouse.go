package features

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ButtonChange はボタンの状態変化
type ButtonChange int

const (
	ButtonNone ButtonChange = iota
	ButtonPressed
	ButtonReleased
)

// Motion は SYN_REPORT で区切られた1回分のマウス入力
type Motion struct {
	DX     int32
	DY     int32
	Button ButtonChange
}

// マウス入力を扱うインターフェース
type Mouse interface {
	// 次の入力をブロックして待つ。Close されるとエラーを返す
	ReadMotion() (Motion, error)
	// マウス操作を専有する
	Grab() error
	// マウス操作の専有を解除する
	Release() error
	Close() error
}

type evdevMouse struct {
	file    *os.File
	reader  *motionReader
	grabbed bool
}

// 指定されたパスでマウスを作成する
func CreateMouse(path string) (Mouse, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &evdevMouse{file: f, reader: newMotionReader(f)}, nil
}

func (m *evdevMouse) ReadMotion() (Motion, error) {
	return m.reader.ReadMotion()
}

func (m *evdevMouse) Grab() error {
	if m.grabbed {
		return nil
	}
	if err := ioctlSetInt(m.file, EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	m.grabbed = true
	return nil
}

func (m *evdevMouse) Release() error {
	if !m.grabbed {
		return nil
	}
	if err := ioctlSetInt(m.file, EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	m.grabbed = false
	return nil
}

func (m *evdevMouse) Close() error {
	_ = m.Release()
	return m.file.Close()
}

// motionReader は evdev のイベント列を Motion にまとめる
type motionReader struct {
	r   io.Reader
	buf []byte
}

func newMotionReader(r io.Reader) *motionReader {
	return &motionReader{r: r, buf: make([]byte, eventSize)}
}

func (mr *motionReader) ReadMotion() (Motion, error) {
	var m Motion
	for {
		if _, err := io.ReadFull(mr.r, mr.buf); err != nil {
			return m, err
		}
		e, err := decodeEvent(mr.buf)
		if err != nil {
			return m, err
		}

		switch e.Type {
		case Rel:
			switch e.Code {
			case RelX:
				m.DX += e.Value
			case RelY:
				m.DY += e.Value
			}
		case Key:
			if e.Code != MouseBtnLeft {
				continue
			}
			// 1 は押下、0 は解放。2 (オートリピート) は無視する
			switch e.Value {
			case 1:
				m.Button = ButtonPressed
			case 0:
				m.Button = ButtonReleased
			}
		case Syn:
			if e.Code == SynReport {
				return m, nil
			}
		}
	}
}

// ioctlSetInt は Fd() を使わずに ioctl を発行する。
// Fd() はファイルをブロッキングモードに戻してしまい、Close で読み込みを中断できなくなる
func ioctlSetInt(f *os.File, req uint, value int) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), req, value)
	}); err != nil {
		return err
	}
	return ioctlErr
}
