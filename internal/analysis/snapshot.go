// SPDX-License-Identifier: MIT
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
)

// PitchClass is one of the 12 note names ignoring octave, 0 = C.
type PitchClass int

// Pitch classes in chromatic order.
const (
	C PitchClass = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B
)

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// String returns the note name, or "N/A" outside 0-11.
func (p PitchClass) String() string {
	if p < C || p > B {
		return "N/A"
	}
	return pitchClassNames[p]
}

// ParsePitchClass is the inverse of String.
func ParsePitchClass(name string) (PitchClass, error) {
	for i, n := range pitchClassNames {
		if n == name {
			return PitchClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pitch class %q", name)
}

// DecibelRange is the floor and ceiling the frame source used to encode the
// frequency buffer. Values at or below Min carry no energy.
type DecibelRange struct {
	Min float64
	Max float64
}

// Valid reports whether Min < Max and both are finite.
func (r DecibelRange) Valid() bool {
	return !math.IsInf(r.Min, 0) && !math.IsInf(r.Max, 0) && r.Min < r.Max
}

// Snapshot is one analysis result. It is a value: copy it freely.
//
// Lufs and Dbfs are math.Inf(-1) for silent input. DynamicRange is always
// finite. Tempo and Key are nil when no periodicity or dominant pitch class
// was found.
type Snapshot struct {
	RMS          float64
	Peak         float64
	Lufs         float64
	Dbfs         float64
	DynamicRange float64
	Tempo        *float64
	Key          *PitchClass
}

// TempoBPM returns the tempo and whether one was detected.
func (s Snapshot) TempoBPM() (float64, bool) {
	if s.Tempo == nil {
		return 0, false
	}
	return *s.Tempo, true
}

// KeyClass returns the pitch class and whether one was detected.
func (s Snapshot) KeyClass() (PitchClass, bool) {
	if s.Key == nil {
		return 0, false
	}
	return *s.Key, true
}

type snapshotJSON struct {
	RMS          *float64 `json:"rms"`
	Peak         *float64 `json:"peak"`
	Lufs         *float64 `json:"lufs"`
	Dbfs         *float64 `json:"dbfs"`
	Tempo        *float64 `json:"tempo"`
	Key          *string  `json:"key"`
	DynamicRange *float64 `json:"dynamicRange"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON encodes non-finite values and absent tempo/key as null, since
// JSON has no representation for infinity.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		RMS:          finite(s.RMS),
		Peak:         finite(s.Peak),
		Lufs:         finite(s.Lufs),
		Dbfs:         finite(s.Dbfs),
		DynamicRange: finite(s.DynamicRange),
	}
	if s.Tempo != nil {
		out.Tempo = finite(*s.Tempo)
	}
	if s.Key != nil {
		name := s.Key.String()
		out.Key = &name
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores null loudness values as negative infinity.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	orNegInf := func(v *float64) float64 {
		if v == nil {
			return math.Inf(-1)
		}
		return *v
	}
	orZero := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}
	*s = Snapshot{
		RMS:          orZero(in.RMS),
		Peak:         orZero(in.Peak),
		Lufs:         orNegInf(in.Lufs),
		Dbfs:         orNegInf(in.Dbfs),
		DynamicRange: orZero(in.DynamicRange),
		Tempo:        in.Tempo,
	}
	if in.Key != nil {
		pc, err := ParsePitchClass(*in.Key)
		if err != nil {
			return err
		}
		s.Key = &pc
	}
	return nil
}
