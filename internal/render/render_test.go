// SPDX-License-Identifier: MIT
package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"audiolens/internal/source"
	"audiolens/pkg/utils"
)

const (
	testWidth  = 800
	testHeight = 300
)

func testFrame(bins int, sampleRate float64, db float32) source.Frame {
	return source.Frame{
		Time:        make([]float32, bins),
		Freq:        utils.FillDecibels(bins, db),
		SampleRate:  sampleRate,
		MinDecibels: -90,
		MaxDecibels: -10,
	}
}

func peakFrame() source.Frame {
	f := testFrame(2048, 44100, -90)
	for i := 40; i < 60; i++ {
		f.Freq[i] = -20
	}
	for i := 400; i < 420; i++ {
		f.Freq[i] = -45
	}
	return f
}

func TestFreqToX(t *testing.T) {
	tests := []struct {
		freq, want float64
	}{
		{20, 0},
		{22050, testWidth},
		{math.Sqrt(20 * 22050), testWidth / 2},
	}
	for _, tt := range tests {
		if got := FreqToX(tt.freq, 22050, testWidth); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FreqToX(%g) = %g, want %g", tt.freq, got, tt.want)
		}
	}
}

func TestDbToY(t *testing.T) {
	tests := []struct {
		db, want float64
	}{
		{-10, 0},
		{-90, testHeight},
		{-50, testHeight / 2},
	}
	for _, tt := range tests {
		if got := DbToY(tt.db, -90, -10, testHeight); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DbToY(%g) = %g, want %g", tt.db, got, tt.want)
		}
	}
}

func TestFormatFrequency(t *testing.T) {
	tests := map[float64]string{
		60:    "60",
		250:   "250",
		1000:  "1k",
		2500:  "2.5k",
		16000: "16k",
	}
	for freq, want := range tests {
		if got := FormatFrequency(freq); got != want {
			t.Errorf("FormatFrequency(%g) = %q, want %q", freq, got, want)
		}
	}
}

func TestLayout_Line(t *testing.T) {
	plot := Layout(peakFrame(), testWidth, testHeight)

	// Bin 1 is 10.8 Hz at 44.1 kHz with 2048 bins, so only it is dropped.
	if len(plot.Line) != 2046 {
		t.Fatalf("line has %d points, want 2046", len(plot.Line))
	}
	for i := 1; i < len(plot.Line); i++ {
		if plot.Line[i].X <= plot.Line[i-1].X {
			t.Fatalf("line not ascending at %d", i)
		}
	}
	last := plot.Line[len(plot.Line)-1]
	if last.X > testWidth || last.Y != testHeight {
		t.Errorf("last point = %+v", last)
	}
	// Bin 40 is the first raised bin; it is Line[38].
	if y := plot.Line[38].Y; math.Abs(y-DbToY(-20, -90, -10, testHeight)) > 1e-9 {
		t.Errorf("raised bin y = %g", y)
	}
}

func TestLayout_Labels(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		minDb      float64
		maxDb      float64
		wantFreq   []string
		wantDb     []string
	}{
		{"Full range", 44100, -90, -10,
			[]string{"60", "100", "250", "500", "1k", "2k", "5k", "10k", "16k"},
			[]string{"-10", "-30", "-50", "-70", "-90"}},
		{"Low sample rate", 22050, -90, -10,
			[]string{"60", "100", "250", "500", "1k", "2k", "5k", "10k"},
			[]string{"-10", "-30", "-50", "-70", "-90"}},
		{"Narrow range", 8000, -60, -20,
			[]string{"60", "100", "250", "500", "1k", "2k"},
			[]string{"-30", "-50"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := testFrame(1024, tt.sampleRate, -90)
			frame.MinDecibels, frame.MaxDecibels = tt.minDb, tt.maxDb
			plot := Layout(frame, testWidth, testHeight)

			if got := labelTexts(plot.FreqLabels); !equalStrings(got, tt.wantFreq) {
				t.Errorf("frequency labels = %v, want %v", got, tt.wantFreq)
			}
			if got := labelTexts(plot.DbLabels); !equalStrings(got, tt.wantDb) {
				t.Errorf("dB labels = %v, want %v", got, tt.wantDb)
			}
			for _, l := range plot.FreqLabels {
				if l.Y != testHeight-10 {
					t.Errorf("label %s at y=%g, want %d", l.Text, l.Y, testHeight-10)
				}
			}
			for _, l := range plot.DbLabels {
				if want := DbToY(l.Value, tt.minDb, tt.maxDb, testHeight) + 4; l.X != 5 || l.Y != want {
					t.Errorf("label %s at (%g, %g), want (5, %g)", l.Text, l.X, l.Y, want)
				}
			}
		})
	}
}

func TestLayout_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		frame source.Frame
	}{
		{"Empty", source.Frame{SampleRate: 44100, MinDecibels: -90, MaxDecibels: -10}},
		{"Zero sample rate", testFrame(64, 0, -50)},
		{"Inverted range", source.Frame{Freq: make([]float32, 64), SampleRate: 44100, MinDecibels: -10, MaxDecibels: -90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if plot := Layout(tt.frame, testWidth, testHeight); len(plot.Line) != 0 {
				t.Errorf("line has %d points, want none", len(plot.Line))
			}
		})
	}
}

func TestLayout_NonFiniteClamped(t *testing.T) {
	frame := testFrame(64, 44100, -50)
	frame.Freq[10] = float32(math.NaN())
	frame.Freq[11] = float32(math.Inf(-1))
	frame.Freq[12] = float32(math.Inf(1))
	for _, p := range Layout(frame, testWidth, testHeight).Line {
		if math.IsNaN(p.Y) || p.Y < 0 || p.Y > testHeight {
			t.Fatalf("point %+v outside the plot", p)
		}
	}
}

func TestDraw_Deterministic(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	b := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))

	if err := Draw(a, peakFrame(), DefaultStyle()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	r, err := NewRenderer(DefaultStyle())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	// A renderer reused after a different frame must not carry state over.
	_ = r.Draw(b, testFrame(512, 8000, -30))
	if err := r.Draw(b, peakFrame()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical inputs produced different pixels")
	}
}

func TestDraw_Pixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	if err := Draw(img, testFrame(2048, 44100, -10), DefaultStyle()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	bg := color.RGBA{0x12, 0x12, 0x12, 0xff}

	// The line sits on the top edge, so the whole plot is filled.
	upper := img.RGBAAt(testWidth/2, 50)
	lower := img.RGBAAt(testWidth/2, 250)
	if upper.G <= lower.G || lower.G < bg.G {
		t.Errorf("gradient not fading: y=50 %v, y=250 %v", upper, lower)
	}
	if upper == bg {
		t.Error("fill not drawn")
	}

	// Title text is drawn in white left of x=80 above the baseline.
	if !regionHas(img, image.Rect(10, 12, 80, 26), func(c color.RGBA) bool { return c.R > 0xc0 && c.B > 0xc0 }) {
		t.Error("title not drawn")
	}
}

func TestStroke_SolidAcrossJoints(t *testing.T) {
	r, err := NewRenderer(DefaultStyle())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	pts := []Point{{10, 50}, {50, 50}, {90, 50}}
	r.stroke(img, img.Bounds(), pts, 10, color.NRGBA{G: 0xff, A: 0xff})

	for _, x := range []int{12, 30, 48, 50, 52, 70, 88} {
		if got := img.RGBAAt(x, 50); got.G < 0xf0 {
			t.Errorf("pixel (%d, 50) = %v, want line colour", x, got)
		}
	}
}

func TestDraw_LineUnbroken(t *testing.T) {
	style := DefaultStyle()
	style.Glow = false
	frame := testFrame(2048, 44100, -50)
	img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	if err := Draw(img, frame, style); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	plot := Layout(frame, testWidth, testHeight)
	y := int(plot.Line[0].Y)
	isLine := func(c color.RGBA) bool {
		near := func(a, b uint8) bool { return math.Abs(float64(a)-float64(b)) <= 8 }
		return near(c.R, 0x1d) && near(c.G, 0xb9) && near(c.B, 0x54)
	}
	// Start clear of the dB labels on the left edge.
	start := max(int(math.Ceil(plot.Line[0].X)), 40)
	end := int(plot.Line[len(plot.Line)-1].X)
	for x := start; x < end; x++ {
		if !regionHas(img, image.Rect(x, y-2, x+1, y+3), isLine) {
			t.Fatalf("column %d has no line pixel near y=%d", x, y)
		}
	}
}

func TestDraw_FloorFrameLeavesBackground(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	if err := Draw(img, testFrame(2048, 44100, -90), DefaultStyle()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if got := img.RGBAAt(testWidth-1, 0); got != (color.RGBA{0x12, 0x12, 0x12, 0xff}) {
		t.Errorf("top-right pixel = %v, want background", got)
	}
}

func TestDraw_SubImage(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 400, 200))
	sub := canvas.SubImage(image.Rect(100, 50, 300, 150)).(*image.RGBA)
	if err := Draw(sub, peakFrame(), DefaultStyle()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if got := canvas.RGBAAt(10, 10); got != (color.RGBA{}) {
		t.Errorf("pixel outside the sub-image changed to %v", got)
	}
	if got := canvas.RGBAAt(299, 50); got.A == 0 {
		t.Error("sub-image not painted")
	}
}

func TestDraw_Errors(t *testing.T) {
	var typedNil *image.RGBA
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	if err := Draw(nil, peakFrame(), DefaultStyle()); !errors.Is(err, ErrNoSurface) {
		t.Errorf("nil surface error = %v, want ErrNoSurface", err)
	}
	if err := Draw(typedNil, peakFrame(), DefaultStyle()); !errors.Is(err, ErrNoSurface) {
		t.Errorf("typed nil surface error = %v, want ErrNoSurface", err)
	}
	if err := Draw(image.NewRGBA(image.Rectangle{}), peakFrame(), DefaultStyle()); !errors.Is(err, ErrNoSurface) {
		t.Errorf("empty surface error = %v, want ErrNoSurface", err)
	}

	bad := DefaultStyle()
	bad.Color = "green"
	if err := Draw(img, peakFrame(), bad); err == nil {
		t.Error("expected error for invalid colour")
	}
	bad = DefaultStyle()
	bad.LineWidth = 0
	if err := Draw(img, peakFrame(), bad); err == nil {
		t.Error("expected error for zero line width")
	}
	if err := Draw(img, testFrame(64, 0, -50), DefaultStyle()); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestWritePNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	if err := Draw(img, peakFrame(), DefaultStyle()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := WritePNG(path, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func BenchmarkDraw(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
	frame := testFrame(2048, 44100, -60)
	copy(frame.Freq, utils.FillDecibels(200, -25))
	r, err := NewRenderer(DefaultStyle())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		_ = r.Draw(img, frame)
	}
}

func labelTexts(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Text
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func regionHas(img *image.RGBA, r image.Rectangle, pred func(color.RGBA) bool) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if pred(img.RGBAAt(x, y)) {
				return true
			}
		}
	}
	return false
}
