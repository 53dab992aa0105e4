// SPDX-License-Identifier: MIT

// Package utils generates deterministic float32 test signals in [-1, 1] for
// analyser, metrics and renderer tests.
package utils

import "math"

// Silence returns size zero samples.
func Silence(size int) []float32 {
	return make([]float32, size)
}

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with the 2nd and 3rd harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateImpulseTrain returns size samples with a unit impulse every period
// samples, starting at offset.
func GenerateImpulseTrain(size, period, offset int) []float32 {
	buffer := make([]float32, size)
	if period <= 0 {
		return buffer
	}
	for i := offset; i < size; i += period {
		if i >= 0 {
			buffer[i] = 1
		}
	}
	return buffer
}

// FillDecibels returns size values set to db.
func FillDecibels(size int, db float32) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = db
	}
	return buffer
}

// BinForFrequency returns the bin index whose centre i*(sampleRate/2)/bins is
// nearest to freq.
func BinForFrequency(freq, sampleRate float64, bins int) int {
	binWidth := sampleRate / 2 / float64(bins)
	return int(math.Round(freq / binWidth))
}

// FindPeakBin returns the index of the largest value in [startBin, endBin].
func FindPeakBin(values []float32, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}
	return peakBin
}
