// SPDX-License-Identifier: MIT
package analysis

import "math"

// Frequency window for chroma accumulation. Sub-bass noise and high
// harmonics outside it destabilise the pitch-class estimate.
const (
	KeyMinFrequency = 80.0
	KeyMaxFrequency = 5000.0
)

// a4PitchClass maps the A440 reference to pitch class 9 so that 0 is C.
const a4PitchClass = 9

// DetectKey accumulates a 12-bin chroma vector from a dB spectrum and
// returns the pitch class with the most energy.
//
// Bin i has centre frequency i*(sampleRate/2)/len(freqData); DC is skipped,
// as is every bin outside [KeyMinFrequency, KeyMaxFrequency]. Each bin adds
// its linear magnitude 10^(dB/20) to round(12*log2(f/440))+9 mod 12.
//
// The frame source and this function share a contract: freqData is encoded
// in rng. Values at or below rng.Min are the encoder's floor and carry no
// energy, so a silent spectrum has no key. Non-finite values are ignored.
// When rng is not valid only non-finite values are ignored. Ties go to the
// lowest pitch class.
func DetectKey(freqData []float32, sampleRate float64, rng DecibelRange) (PitchClass, bool) {
	n := len(freqData)
	if n == 0 || sampleRate <= 0 {
		return 0, false
	}

	floor := math.Inf(-1)
	if rng.Valid() {
		floor = rng.Min
	}

	var chroma [12]float64
	binWidth := sampleRate / (2 * float64(n))
	for i := 1; i < n; i++ {
		freq := float64(i) * binWidth
		if freq < KeyMinFrequency || freq > KeyMaxFrequency {
			continue
		}
		db := float64(freqData[i])
		if math.IsNaN(db) || math.IsInf(db, 0) || db <= floor {
			continue
		}
		chroma[PitchClassOf(freq)] += math.Pow(10, db/20)
	}

	best := -1
	var maxEnergy float64
	for i, energy := range chroma {
		if energy > maxEnergy {
			maxEnergy = energy
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return PitchClass(best), true
}

// PitchClassOf returns the equal-tempered pitch class nearest to freq.
// freq must be positive.
func PitchClassOf(freq float64) PitchClass {
	semitones := int(math.Round(12 * math.Log2(freq/440)))
	return PitchClass(((semitones+a4PitchClass)%12 + 12) % 12)
}
