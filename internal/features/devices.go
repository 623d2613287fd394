package features

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// デバイスを探すディレクトリ
const inputByIDDir = "/dev/input/by-id"

type Device struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Type DeviceType `json:"type"`
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeKeyboard:
		return "keyboard"
	case DeviceTypeMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// MarshalText は JSON で種類を文字列として出力するために使う
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// GetDevices は現在接続されているデバイスを取得する
func GetDevices() ([]Device, error) {
	return ScanDevices(inputByIDDir)
}

// ScanDevices は dir 以下のシンボリックリンクからキーボードとマウスを検出する
func ScanDevices(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 絶対パスを構築
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}

		if strings.Contains(entry.Name(), "kbd") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
		if strings.Contains(entry.Name(), "mouse") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})
	return devices, nil
}

// SelectDevice は優先デバイス名に一致するデバイス、なければ最初に見つかった同種のデバイスを返す
func SelectDevice(devices []Device, typ DeviceType, preferred string) (Device, bool) {
	var first *Device
	for i := range devices {
		if devices[i].Type != typ {
			continue
		}
		if preferred != "" && devices[i].Name == preferred {
			return devices[i], true
		}
		if first == nil {
			first = &devices[i]
		}
	}
	if first == nil {
		return Device{}, false
	}
	return *first, true
}
