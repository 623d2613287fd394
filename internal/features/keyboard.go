package features

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const keyMax = 0x2ff

// キーボードからの入力を処理するインターフェース
type Keyboard interface {
	// 指定したキーコードが押されているかを返す
	Pressed(code int) (bool, error)
	Close() error
}

type evdevKeyboard struct {
	file *os.File
}

// 監視するデバイスのパスを指定してキーボードを作成する
func CreateKeyboard(path string) (Keyboard, error) {
	// デバイスを読み取り、非ブロッキングモードで開く
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return &evdevKeyboard{file: f}, nil
}

func (k *evdevKeyboard) Pressed(code int) (bool, error) {
	bits, err := readKeyBits(k.file)
	if err != nil {
		return false, err
	}
	return keyBitSet(bits, code), nil
}

func (k *evdevKeyboard) Close() error {
	return k.file.Close()
}

// readKeyBits は EVIOCGKEY で押下中のキーのビットマップを取得する
func readKeyBits(file *os.File) ([]byte, error) {
	keyBits := make([]byte, keyMax/8+1)

	rc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}
	var errno syscall.Errno
	if err := rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(
			unix.SYS_IOCTL,
			fd,
			uintptr(EVIOCGKEY),
			uintptr(unsafe.Pointer(&keyBits[0])),
		)
	}); err != nil {
		return nil, err
	}
	if errno != 0 {
		return nil, errno
	}
	return keyBits, nil
}

// keyBitSet はビットマップ上でキーが押されているかを返す
func keyBitSet(bits []byte, code int) bool {
	if code < 0 || code/8 >= len(bits) {
		return false
	}
	return bits[code/8]&(1<<(code%8)) != 0
}
