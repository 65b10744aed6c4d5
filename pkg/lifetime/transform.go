// Package lifetime derives the per-pixel protein lifetime image from the
// pulse and chase fluorescence channels of an aligned section.
package lifetime

import (
	"errors"
	"fmt"
	"math"

	"roilifetime/pkg/imageio"
)

// ErrTooFewChannels is returned when the raw image lacks the pulse or chase channel
var ErrTooFewChannels = errors.New("image has too few channels")

// MinChannels is the channel count of an aligned pulse/chase export
const MinChannels = 4

// Calibration holds the instrument constants of the transform. Values are
// copied into the transform so a Calibration can be shared freely.
type Calibration struct {
	PulseCorrection float64
	PulseSlope      float64
	ChaseCorrection float64
	ChaseSlope      float64
	TimeConstant    float64
	Epsilon         float64
	PulseChannel    int
	ChaseChannel    int
}

// DefaultCalibration returns the constants of the current instrument
func DefaultCalibration() Calibration {
	return Calibration{
		PulseCorrection: 67.7,
		PulseSlope:      1169.1,
		ChaseCorrection: 67.7,
		ChaseSlope:      1169.1,
		TimeConstant:    3,
		Epsilon:         1e-9,
		PulseChannel:    3,
		ChaseChannel:    2,
	}
}

// Derived is the three-plane output of Transform. Pulse and Chase carry the
// raw channel intensities; Lifetime carries the derived metric.
type Derived struct {
	Height int
	Width  int

	Pulse    []float64
	Chase    []float64
	Lifetime []float64
}

// Plane returns the plane for channel index 0 (pulse), 1 (chase) or 2 (lifetime)
func (d *Derived) Plane(ch int) []float64 {
	switch ch {
	case 0:
		return d.Pulse
	case 1:
		return d.Chase
	case 2:
		return d.Lifetime
	}
	return nil
}

// Transform converts a raw image into pulse, chase and lifetime planes
func Transform(img *imageio.Stack, cal Calibration) (*Derived, error) {
	if img.Channels < MinChannels {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrTooFewChannels, MinChannels, img.Channels)
	}
	if cal.PulseChannel >= img.Channels || cal.ChaseChannel >= img.Channels {
		return nil, fmt.Errorf("%w: pulse channel %d and chase channel %d with %d channels",
			ErrTooFewChannels, cal.PulseChannel, cal.ChaseChannel, img.Channels)
	}

	size := img.Height * img.Width
	out := &Derived{
		Height:   img.Height,
		Width:    img.Width,
		Pulse:    make([]float64, size),
		Chase:    make([]float64, size),
		Lifetime: make([]float64, size),
	}

	for i := 0; i < size; i++ {
		base := i * img.Channels
		chase := img.Data[base+cal.ChaseChannel]
		pulse := img.Data[base+cal.PulseChannel]

		out.Pulse[i] = pulse
		out.Chase[i] = chase
		out.Lifetime[i] = cal.Pixel(pulse, chase)
	}

	return out, nil
}

// Pixel computes the lifetime of a single pixel from raw intensities
func (c Calibration) Pixel(pulse, chase float64) float64 {
	pulseNorm := normalize(pulse, c.PulseCorrection, c.PulseSlope)
	chaseNorm := normalize(chase, c.ChaseCorrection, c.ChaseSlope)

	total := chaseNorm + pulseNorm
	fractionRatio := pulseNorm + total + c.Epsilon

	return math.Abs(c.TimeConstant / math.Log(1/fractionRatio))
}

// normalize converts intensity to concentration, clamping background to zero
func normalize(raw, correction, slope float64) float64 {
	v := (raw - correction) / slope
	if v < 0 {
		return 0
	}
	return v
}
