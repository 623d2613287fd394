// Package render はスケッチのフレームを gg でラスタライズし、PNG として出力する。
package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/gogpu/gg"

	"github.com/char5742/keyball-ribbon/internal/bounce"
	"github.com/char5742/keyball-ribbon/internal/config"
	"github.com/char5742/keyball-ribbon/internal/gradient"
	"github.com/char5742/keyball-ribbon/internal/ribbon"
	"github.com/char5742/keyball-ribbon/internal/sketch"
)

// Renderer はフレームを画像に描画する
type Renderer struct {
	width      int
	height     int
	eye        float64 // Z=0 の平面が等倍になる視点までの距離
	background gg.RGBA
}

// NewRenderer は描画設定からレンダラーを作成する
func NewRenderer(cfg config.RenderConfig) *Renderer {
	fov := cfg.FieldOfView * math.Pi / 180
	return &Renderer{
		width:      cfg.Width,
		height:     cfg.Height,
		eye:        float64(cfg.Height) / 2 / math.Tan(fov/2),
		background: gg.Hex(cfg.Background),
	}
}

// Size は出力画像のサイズを返す
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Project は奥行きを持つ頂点を画面座標に透視投影する
func (r *Renderer) Project(v ribbon.Vertex) (float64, float64) {
	cx := float64(r.width) / 2
	cy := float64(r.height) / 2
	depth := r.eye - v.Z
	if depth <= 0 {
		depth = 1e-6
	}
	s := r.eye / depth
	return cx + (v.X-cx)*s, cy + (v.Y-cy)*s
}

// Draw はフレームを描画したコンテキストを返す。呼び出し側で Close すること
func (r *Renderer) Draw(f sketch.Frame) (*gg.Context, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.ClearWithColor(r.background)

	if f.Tiles != nil {
		if err := r.drawTiles(dc, *f.Tiles); err != nil {
			dc.Close()
			return nil, err
		}
	}
	for _, q := range f.Quads {
		if err := r.drawQuad(dc, q); err != nil {
			dc.Close()
			return nil, err
		}
	}
	for _, seg := range f.Segments {
		if err := r.drawSegment(dc, seg); err != nil {
			dc.Close()
			return nil, err
		}
	}
	if f.Ball != nil {
		for _, b := range f.Balls {
			if err := r.drawBall(dc, b, *f.Ball); err != nil {
				dc.Close()
				return nil, err
			}
		}
	}
	return dc, nil
}

func (r *Renderer) drawQuad(dc *gg.Context, q ribbon.Quad) error {
	dc.SetRGBA(q.Color.R, q.Color.G, q.Color.B, q.Color.A)
	for i, v := range q.Vertices {
		x, y := r.Project(v)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("四角形の塗りつぶしに失敗しました: %w", err)
	}
	return nil
}

func (r *Renderer) drawSegment(dc *gg.Context, seg ribbon.Segment) error {
	dc.SetRGBA(seg.Color.R, seg.Color.G, seg.Color.B, seg.Color.A)
	dc.SetLineWidth(seg.Width)
	dc.DrawLine(seg.A.X(), seg.A.Y(), seg.B.X(), seg.B.Y())
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("線分の描画に失敗しました: %w", err)
	}
	return nil
}

func (r *Renderer) drawBall(dc *gg.Context, b bounce.Ball, c gg.RGBA) error {
	dc.SetRGBA(c.R, c.G, c.B, c.A)
	dc.DrawCircle(b.Position.X(), b.Position.Y(), b.Radius)
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("ボールの描画に失敗しました: %w", err)
	}
	return nil
}

// drawTiles はキャンバスをタイルで敷き詰め、各タイルの入れ子の矩形を外側から順に塗る
func (r *Renderer) drawTiles(dc *gg.Context, t sketch.Tiles) error {
	for _, tile := range gradient.Tiles(r.width, r.height, t.Size) {
		for _, l := range gradient.Nest(tile) {
			min, max := l.Bound.Min, l.Bound.Max
			dc.DrawRectangle(min.X(), min.Y(), max.X()-min.X(), max.Y()-min.Y())
			dc.SetFillBrush(gg.NewLinearGradientBrush(l.Start.X(), l.Start.Y(), l.End.X(), l.End.Y()).
				AddColorStop(0, t.From).
				AddColorStop(1, t.To))
			if err := dc.Fill(); err != nil {
				return fmt.Errorf("グラデーションの描画に失敗しました: %w", err)
			}
		}
	}
	return nil
}

// WritePNG はフレームを PNG として w に書き込む
func (r *Renderer) WritePNG(w io.Writer, f sketch.Frame) error {
	dc, err := r.Draw(f)
	if err != nil {
		return err
	}
	defer dc.Close()
	return dc.EncodePNG(w)
}

// SavePNG はフレームを PNG ファイルとして保存する
func (r *Renderer) SavePNG(path string, f sketch.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("出力ファイルの作成に失敗しました: %w", err)
	}
	if err := r.WritePNG(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
