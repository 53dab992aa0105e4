// SPDX-License-Identifier: MIT

// Package analysis derives loudness, peak level, dynamic range, tempo and
// musical key from one pair of time-domain and frequency-domain buffers.
// Every function here is pure and allocation-bounded by the buffer length,
// so the scheduler can call it several times per second.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LufsOffset approximates integrated-loudness calibration from RMS. The
// result is a rough meter reading, not an ITU-R BS.1770 measurement.
const LufsOffset = 0.691

// Analyze computes a Snapshot. freq must be encoded in rng; see DetectKey.
// Silent input yields RMS 0, Peak 0, Lufs and Dbfs -Inf, DynamicRange 0 and
// no tempo or key.
func Analyze(timeData, freqData []float32, sampleRate float64, rng DecibelRange) Snapshot {
	samples := toFloat64(timeData)

	rms := rmsOf(samples)
	peak := peakOf(samples)
	snap := Snapshot{
		RMS:          rms,
		Peak:         peak,
		Lufs:         LUFS(rms),
		Dbfs:         DBFS(peak),
		DynamicRange: DynamicRange(peak, rms),
	}

	if bpm, ok := detectTempo(samples, sampleRate); ok {
		snap.Tempo = &bpm
	}
	if key, ok := DetectKey(freqData, sampleRate, rng); ok {
		snap.Key = &key
	}
	return snap
}

// RMS returns sqrt(mean(x^2)), or 0 for an empty buffer.
func RMS(timeData []float32) float64 {
	return rmsOf(toFloat64(timeData))
}

// Peak returns max(|x|), or 0 for an empty buffer.
func Peak(timeData []float32) float64 {
	return peakOf(toFloat64(timeData))
}

// LUFS returns 20*log10(rms) - LufsOffset, or -Inf when rms is 0.
func LUFS(rms float64) float64 {
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20*math.Log10(rms) - LufsOffset
}

// DBFS returns 20*log10(peak), or -Inf when peak is 0.
func DBFS(peak float64) float64 {
	if peak == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// DynamicRange returns the crest factor dBFS(peak) - 20*log10(rms). A
// non-finite difference is reported as 0.
func DynamicRange(peak, rms float64) float64 {
	dr := DBFS(peak) - 20*math.Log10(rms)
	if math.IsNaN(dr) || math.IsInf(dr, 0) {
		return 0
	}
	return dr
}

func rmsOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

func peakOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x)))
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, s := range src {
		dst[i] = float64(s)
	}
	return dst
}
