// SPDX-License-Identifier: MIT

// Package render draws a spectrum frame as a log-frequency plot: a glowing
// line over a gradient fill, reference labels and a title.
package render

import (
	"math"
	"strconv"

	"audiolens/internal/source"
)

// MinFrequency is the lowest frequency plotted.
const MinFrequency = 20.0

// Reference labels, drawn only when inside the axis range.
var (
	FrequencyLabels = []float64{60, 100, 250, 500, 1000, 2000, 5000, 10000, 16000}
	DecibelLabels   = []float64{-10, -30, -50, -70, -90}
)

// FreqToX maps a frequency onto a logarithmic axis spanning
// [MinFrequency, nyquist] over width.
func FreqToX(freq, nyquist, width float64) float64 {
	logMin := math.Log10(MinFrequency)
	pos := (math.Log10(freq) - logMin) / (math.Log10(nyquist) - logMin)
	return pos * width
}

// DbToY maps a decibel value onto a linear axis where maxDb is the top
// edge and minDb the bottom edge.
func DbToY(db, minDb, maxDb, height float64) float64 {
	return (1 - (db-minDb)/(maxDb-minDb)) * height
}

// Point is a position in plot coordinates, origin top-left.
type Point struct {
	X, Y float64
}

// Label is a reference text anchored at X, Y.
type Label struct {
	Text  string
	Value float64
	X, Y  float64
}

// Plot is the geometry of one frame.
type Plot struct {
	Width, Height int
	Line          []Point // Ascending frequency, bins below MinFrequency dropped.
	FreqLabels    []Label // Centred on X, baseline at Y.
	DbLabels      []Label // Left-aligned at X, baseline at Y.
}

// Layout computes the plot geometry for frame at the given size. It has no
// side effects and allocates only the returned slices.
func Layout(frame source.Frame, width, height int) Plot {
	plot := Plot{Width: width, Height: height}
	w, h := float64(width), float64(height)
	nyquist := frame.SampleRate / 2
	minDb, maxDb := frame.MinDecibels, frame.MaxDecibels
	if nyquist <= MinFrequency || !(minDb < maxDb) {
		return plot
	}

	bins := len(frame.Freq)
	plot.Line = make([]Point, 0, bins)
	for i := 1; i < bins; i++ {
		freq := float64(i) * nyquist / float64(bins)
		if freq < MinFrequency {
			continue
		}
		db := float64(frame.Freq[i])
		if math.IsNaN(db) {
			db = minDb
		}
		db = math.Min(math.Max(db, minDb), maxDb)
		plot.Line = append(plot.Line, Point{
			X: FreqToX(freq, nyquist, w),
			Y: DbToY(db, minDb, maxDb, h),
		})
	}

	for _, freq := range FrequencyLabels {
		if freq < nyquist {
			plot.FreqLabels = append(plot.FreqLabels, Label{
				Text:  FormatFrequency(freq),
				Value: freq,
				X:     FreqToX(freq, nyquist, w),
				Y:     h - 10,
			})
		}
	}
	for _, db := range DecibelLabels {
		if db >= minDb && db <= maxDb {
			plot.DbLabels = append(plot.DbLabels, Label{
				Text:  strconv.FormatFloat(db, 'f', -1, 64),
				Value: db,
				X:     5,
				Y:     DbToY(db, minDb, maxDb, h) + 4,
			})
		}
	}
	return plot
}

// FormatFrequency renders 250 as "250" and 2000 as "2k".
func FormatFrequency(freq float64) string {
	if freq < 1000 {
		return strconv.FormatFloat(freq, 'f', -1, 64)
	}
	return strconv.FormatFloat(freq/1000, 'f', -1, 64) + "k"
}
