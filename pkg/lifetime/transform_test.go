package lifetime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roilifetime/pkg/imageio"
)

// createTestStack builds a 4-channel image with constant chase and pulse channels
func createTestStack(height, width int, chase, pulse float64) *imageio.Stack {
	s := imageio.NewStack(height, width, 4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s.Set(y, x, 2, chase)
			s.Set(y, x, 3, pulse)
		}
	}
	return s
}

func TestTransformAtCorrectionUsesEpsilon(t *testing.T) {
	cal := DefaultCalibration()
	img := createTestStack(3, 2, cal.ChaseCorrection, cal.PulseCorrection)

	out, err := Transform(img, cal)
	require.NoError(t, err)

	want := math.Abs(3 / math.Log(1/1e-9))
	for i, v := range out.Lifetime {
		assert.False(t, math.IsNaN(v), "pixel %d is NaN", i)
		assert.InDelta(t, want, v, 1e-12)
	}
}

func TestTransformClampsBackground(t *testing.T) {
	cal := DefaultCalibration()
	below := createTestStack(1, 1, 0, 0)
	atCorrection := createTestStack(1, 1, cal.ChaseCorrection, cal.PulseCorrection)

	a, err := Transform(below, cal)
	require.NoError(t, err)
	b, err := Transform(atCorrection, cal)
	require.NoError(t, err)

	assert.Equal(t, b.Lifetime[0], a.Lifetime[0])
}

func TestTransformKeepsRawChannels(t *testing.T) {
	img := createTestStack(2, 2, 500, 900)

	out, err := Transform(img, DefaultCalibration())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Height)
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 900.0, out.Pulse[3])
	assert.Equal(t, 500.0, out.Chase[3])
	assert.Equal(t, out.Lifetime, out.Plane(2))
}

func TestTransformFormula(t *testing.T) {
	cal := Calibration{
		PulseCorrection: 10, PulseSlope: 100,
		ChaseCorrection: 20, ChaseSlope: 50,
		TimeConstant: 2, Epsilon: 1e-9,
		PulseChannel: 3, ChaseChannel: 2,
	}
	img := createTestStack(1, 1, 45, 30)

	out, err := Transform(img, cal)
	require.NoError(t, err)

	pulseNorm := (30.0 - 10) / 100
	chaseNorm := (45.0 - 20) / 50
	ratio := pulseNorm + (pulseNorm + chaseNorm) + 1e-9
	assert.InDelta(t, math.Abs(2/math.Log(1/ratio)), out.Lifetime[0], 1e-12)
}

func TestTransformRatioOfOneIsInfinite(t *testing.T) {
	cal := Calibration{PulseSlope: 1, ChaseSlope: 1, TimeConstant: 3, PulseChannel: 3, ChaseChannel: 2}
	img := createTestStack(1, 1, 0, 0.5)

	out, err := Transform(img, cal)
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.Lifetime[0], 1))
}

func TestTransformRejectsTooFewChannels(t *testing.T) {
	img := imageio.NewStack(2, 2, 3)

	_, err := Transform(img, DefaultCalibration())
	assert.ErrorIs(t, err, ErrTooFewChannels)
}

func TestTransformRejectsChannelOutOfRange(t *testing.T) {
	cal := DefaultCalibration()
	cal.PulseChannel = 5
	img := imageio.NewStack(1, 1, 4)

	_, err := Transform(img, cal)
	assert.ErrorIs(t, err, ErrTooFewChannels)
}
