// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Tempo search window in beats per minute.
const (
	MinBPM = 60
	MaxBPM = 200
)

// DetectTempo estimates a tempo from the autocorrelation of one buffer.
//
// Candidate lags run from floor(sr*60/MaxBPM) up to, but excluding,
// floor(sr*60/MinBPM), and never beyond half the buffer. The lag with the
// largest positive correlation wins; among exact ties the smaller lag wins.
// No state is carried between calls. ok is false when no lag correlates
// positively, which includes silence and buffers shorter than twice the
// smallest lag.
func DetectTempo(timeData []float32, sampleRate float64) (bpm float64, ok bool) {
	return detectTempo(toFloat64(timeData), sampleRate)
}

func detectTempo(x []float64, sampleRate float64) (float64, bool) {
	n := len(x)
	if n == 0 || sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return 0, false
	}

	minPeriod, maxPeriod := lagWindow(sampleRate)

	var bestCorrelation float64
	bestPeriod := 0
	for period := minPeriod; period < maxPeriod && 2*period < n; period++ {
		correlation := floats.Dot(x[:n-period], x[period:])
		if correlation > bestCorrelation {
			bestCorrelation = correlation
			bestPeriod = period
		}
	}

	if bestPeriod == 0 {
		return 0, false
	}
	return sampleRate * 60 / float64(bestPeriod), true
}

// lagWindow returns the half-open lag range for the BPM window. Lag 0 is
// always excluded: it is the signal's energy, not a period.
func lagWindow(sampleRate float64) (minPeriod, maxPeriod int) {
	minPeriod = int(math.Floor(sampleRate * 60 / MaxBPM))
	maxPeriod = int(math.Floor(sampleRate * 60 / MinBPM))
	if minPeriod < 1 {
		minPeriod = 1
	}
	return minPeriod, maxPeriod
}
