// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"reflect"

	"audiolens/internal/source"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Glow passes drawn under the line: width multiplier and alpha.
var glowPasses = [...]struct {
	scale float64
	alpha uint8
}{
	{4, 0x20},
	{2.5, 0x48},
}

// Renderer draws frames with a fixed style. The rasterisers are reused
// between frames; a Renderer is not safe for concurrent use.
type Renderer struct {
	style    Style
	pal      palette
	z        *vector.Rasterizer
	gradient verticalGradient
}

// NewRenderer validates style and returns a renderer for it.
func NewRenderer(style Style) (*Renderer, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}
	pal, _ := style.palette()
	return &Renderer{style: style, pal: pal, z: vector.NewRasterizer(0, 0)}, nil
}

// Style returns the style the renderer draws with.
func (r *Renderer) Style() Style {
	return r.style
}

// Draw renders frame onto dst with style.
func Draw(dst draw.Image, frame source.Frame, style Style) error {
	r, err := NewRenderer(style)
	if err != nil {
		return err
	}
	return r.Draw(dst, frame)
}

// Draw paints the full plot over dst's bounds. The output depends only on
// the frame, the bounds and the style.
func (r *Renderer) Draw(dst draw.Image, frame source.Frame) error {
	if isNil(dst) {
		return ErrNoSurface
	}
	bounds := dst.Bounds()
	if bounds.Empty() {
		return ErrNoSurface
	}
	if frame.SampleRate <= 0 {
		return fmt.Errorf("render: invalid sample rate %g", frame.SampleRate)
	}
	if !(frame.MinDecibels < frame.MaxDecibels) {
		return fmt.Errorf("render: invalid decibel range [%g, %g]", frame.MinDecibels, frame.MaxDecibels)
	}

	w, h := bounds.Dx(), bounds.Dy()
	plot := Layout(frame, w, h)

	draw.Draw(dst, bounds, image.NewUniform(r.pal.background), image.Point{}, draw.Src)

	if len(plot.Line) > 0 {
		if r.style.Glow {
			for _, pass := range glowPasses {
				r.stroke(dst, bounds, plot.Line, r.style.LineWidth*pass.scale, withAlpha(r.pal.line, pass.alpha))
			}
		}
		r.stroke(dst, bounds, plot.Line, r.style.LineWidth, opaque(r.pal.line))
		r.fill(dst, bounds, plot)
	}

	face := basicfont.Face7x13
	for _, l := range plot.FreqLabels {
		drawText(dst, bounds, face, r.pal.label, l.Text, l.X, l.Y, true)
	}
	for _, l := range plot.DbLabels {
		drawText(dst, bounds, face, r.pal.label, l.Text, l.X, l.Y, false)
	}
	drawText(dst, bounds, face, r.pal.title, r.style.Title, 10, 25, false)
	return nil
}

// stroke rasterises the polyline as one quad per segment plus a square
// at every vertex to close the joints. Every contour winds the same way
// so overlapping coverage adds instead of cancelling.
func (r *Renderer) stroke(dst draw.Image, bounds image.Rectangle, pts []Point, width float64, c color.NRGBA) {
	z := r.z
	z.Reset(bounds.Dx(), bounds.Dy())
	half := width / 2

	for i, p := range pts {
		square(z, p, half)
		if i == 0 {
			continue
		}
		q := pts[i-1]
		dx, dy := p.X-q.X, p.Y-q.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		z.MoveTo(float32(q.X-nx), float32(q.Y-ny))
		z.LineTo(float32(p.X-nx), float32(p.Y-ny))
		z.LineTo(float32(p.X+nx), float32(p.Y+ny))
		z.LineTo(float32(q.X+nx), float32(q.Y+ny))
		z.ClosePath()
	}
	z.Draw(dst, bounds, image.NewUniform(c), image.Point{})
}

func square(z *vector.Rasterizer, p Point, half float64) {
	z.MoveTo(float32(p.X-half), float32(p.Y-half))
	z.LineTo(float32(p.X+half), float32(p.Y-half))
	z.LineTo(float32(p.X+half), float32(p.Y+half))
	z.LineTo(float32(p.X-half), float32(p.Y+half))
	z.ClosePath()
}

// fill shades the area between the line and the bottom edge, closing the
// path at the bottom-right corner and below the first point.
func (r *Renderer) fill(dst draw.Image, bounds image.Rectangle, plot Plot) {
	z := r.z
	z.Reset(bounds.Dx(), bounds.Dy())
	h := float32(plot.Height)

	first := plot.Line[0]
	z.MoveTo(float32(first.X), float32(first.Y))
	for _, p := range plot.Line[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.LineTo(float32(plot.Width), h)
	z.LineTo(float32(first.X), h)
	z.ClosePath()

	r.gradient.reset(r.pal.line, plot.Height)
	z.Draw(dst, bounds, &r.gradient, image.Point{})
}

func drawText(dst draw.Image, bounds image.Rectangle, face font.Face, c color.NRGBA, text string, x, y float64, centre bool) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	dotX := fixed.Int26_6(math.Round((x + float64(bounds.Min.X)) * 64))
	if centre {
		dotX -= d.MeasureString(text) / 2
	}
	d.Dot = fixed.Point26_6{
		X: dotX,
		Y: fixed.Int26_6(math.Round((y + float64(bounds.Min.Y)) * 64)),
	}
	d.DrawString(text)
}

// verticalGradient fades the line colour from fillAlpha at the top row to
// transparent at the bottom. Coordinates are relative to the plot.
type verticalGradient struct {
	rows   []color.NRGBA
	height int
}

func (g *verticalGradient) reset(c colorful.Color, height int) {
	if cap(g.rows) < height {
		g.rows = make([]color.NRGBA, height)
	}
	g.rows = g.rows[:height]
	g.height = height
	base := opaque(c)
	for y := range g.rows {
		t := (float64(y) + 0.5) / float64(height)
		row := base
		row.A = uint8(math.Round(fillAlpha * (1 - t)))
		g.rows[y] = row
	}
}

func (g *verticalGradient) ColorModel() color.Model { return color.NRGBAModel }

func (g *verticalGradient) Bounds() image.Rectangle {
	return image.Rect(math.MinInt32, 0, math.MaxInt32, g.height)
}

func (g *verticalGradient) At(_, y int) color.Color {
	if y < 0 || y >= g.height {
		return color.NRGBA{}
	}
	return g.rows[y]
}

func isNil(dst draw.Image) bool {
	if dst == nil {
		return true
	}
	v := reflect.ValueOf(dst)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
