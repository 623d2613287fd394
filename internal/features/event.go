package features

import (
	"encoding/binary"
	"fmt"
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント

	RelX = 0x0 // X軸の相対移動
	RelY = 0x1 // Y軸の相対移動

	SynReport    = 0     // イベント報告の同期
	MouseBtnLeft = 0x110 // マウス左ボタン

	KeySpace = 57 // スペースキー
)

// ioctl の定数
const (
	EVIOCGRAB = 0x40044590 // デバイスの排他制御用のIOCTL
	EVIOCGKEY = 0x80604518 // キー状態の取得 (KEY_MAX/8+1 バイト)
)

// eventSize は 64bit 環境での input_event のサイズ
const eventSize = 24

// Event は入力イベントを表す構造体
type Event struct {
	Sec   int64  // イベント発生時刻 (秒)
	Usec  int64  // イベント発生時刻 (マイクロ秒)
	Type  uint16 // イベントタイプ
	Code  uint16 // イベントコード
	Value int32  // イベント値
}

// decodeEvent は input_event のバイト列をデコードする
func decodeEvent(buf []byte) (Event, error) {
	if len(buf) < eventSize {
		return Event{}, fmt.Errorf("イベントのサイズが不足しています: %d", len(buf))
	}
	return Event{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}, nil
}
