// SPDX-License-Identifier: MIT
package render

import (
	"errors"
	"fmt"
	"image/color"

	"audiolens/internal/config"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrNoSurface is returned when there is nothing to draw on.
var ErrNoSurface = errors.New("render: no drawing surface")

// Default palette.
const (
	DefaultColor      = "#1DB954"
	DefaultBackground = "#121212"
	DefaultLabelColor = "#A0A0A0"
	DefaultTitleColor = "#FFFFFF"
	DefaultTitle      = "Spectrum"
)

// fillAlpha is the gradient opacity directly under the line.
const fillAlpha = 0x90

// Style controls the look of a plot. Colours are #RRGGBB strings.
type Style struct {
	Color      string
	Background string
	LabelColor string
	TitleColor string
	Title      string
	LineWidth  float64
	Glow       bool
}

// DefaultStyle returns the standard palette with a 2px glowing line.
func DefaultStyle() Style {
	return Style{
		Color:      DefaultColor,
		Background: DefaultBackground,
		LabelColor: DefaultLabelColor,
		TitleColor: DefaultTitleColor,
		Title:      DefaultTitle,
		LineWidth:  2,
		Glow:       true,
	}
}

// StyleFromConfig applies the render section on top of DefaultStyle.
func StyleFromConfig(cfg config.RenderConfig) Style {
	s := DefaultStyle()
	if cfg.Color != "" {
		s.Color = cfg.Color
	}
	if cfg.Title != "" {
		s.Title = cfg.Title
	}
	if cfg.LineWidth > 0 {
		s.LineWidth = float64(cfg.LineWidth)
	}
	s.Glow = cfg.Glow
	return s
}

// palette is a Style with parsed colours.
type palette struct {
	line       colorful.Color
	background color.NRGBA
	label      color.NRGBA
	title      color.NRGBA
}

func (s Style) palette() (palette, error) {
	var p palette
	var err error
	if p.line, err = parseHex("color", s.Color); err != nil {
		return p, err
	}
	bg, err := parseHex("background", s.Background)
	if err != nil {
		return p, err
	}
	label, err := parseHex("label color", s.LabelColor)
	if err != nil {
		return p, err
	}
	title, err := parseHex("title color", s.TitleColor)
	if err != nil {
		return p, err
	}
	p.background = opaque(bg)
	p.label = opaque(label)
	p.title = opaque(title)
	return p, nil
}

// Validate reports malformed colours or a non-positive line width.
func (s Style) Validate() error {
	if _, err := s.palette(); err != nil {
		return err
	}
	if s.LineWidth <= 0 {
		return fmt.Errorf("render: line width must be positive, got %g", s.LineWidth)
	}
	return nil
}

func parseHex(field, hex string) (colorful.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("render: invalid %s %q: %w", field, hex, err)
	}
	return c, nil
}

func opaque(c colorful.Color) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

func withAlpha(c colorful.Color, alpha uint8) color.NRGBA {
	n := opaque(c)
	n.A = alpha
	return n
}
