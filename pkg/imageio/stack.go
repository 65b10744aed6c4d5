// Package imageio decodes aligned microscopy images into multi-channel
// floating point stacks.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
)

// ErrUnsupportedImage is returned for pixel layouts that cannot be mapped to channels
var ErrUnsupportedImage = errors.New("unsupported image layout")

// Stack is a height x width x channels image stored row-major with the
// channel index varying fastest
type Stack struct {
	Height   int
	Width    int
	Channels int
	Data     []float64
}

// NewStack allocates a zeroed stack
func NewStack(height, width, channels int) *Stack {
	return &Stack{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float64, height*width*channels),
	}
}

// At returns the value of channel ch at (row, col)
func (s *Stack) At(row, col, ch int) float64 {
	return s.Data[(row*s.Width+col)*s.Channels+ch]
}

// Set stores v in channel ch at (row, col)
func (s *Stack) Set(row, col, ch int, v float64) {
	s.Data[(row*s.Width+col)*s.Channels+ch] = v
}

// Plane copies one channel out as a row-major height*width slice
func (s *Stack) Plane(ch int) []float64 {
	out := make([]float64, s.Height*s.Width)
	for i := range out {
		out[i] = s.Data[i*s.Channels+ch]
	}
	return out
}

// Load decodes the image at path. TIFF and PNG are supported. The stack has
// one channel per stored sample, so an RGB file yields three channels even
// though the PNG decoder reports an opaque alpha.
func Load(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s *Stack
	switch {
	case isTIFF(data):
		s, err = decodeTIFF(data)
	case isPNG(data):
		s, err = decodePNG(data)
	default:
		err = fmt.Errorf("%w: unknown file format", ErrUnsupportedImage)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return s, nil
}

const pngSignature = "\x89PNG\r\n\x1a\n"

// PNG color types from the IHDR chunk
const (
	pngGray      = 0
	pngRGB       = 2
	pngPalette   = 3
	pngGrayAlpha = 4
	pngRGBA      = 6
)

func isPNG(data []byte) bool {
	return len(data) >= len(pngSignature) && string(data[:len(pngSignature)]) == pngSignature
}

// decodePNG maps the stored samples of a PNG to channels. The color type
// byte sits at a fixed offset in the IHDR chunk that must come first.
func decodePNG(data []byte) (*Stack, error) {
	if len(data) < 26 || string(data[12:16]) != "IHDR" {
		return nil, fmt.Errorf("%w: missing IHDR chunk", ErrUnsupportedImage)
	}

	var samples int
	switch data[25] {
	case pngGray:
		samples = 1
	case pngGrayAlpha:
		samples = 2
	case pngRGB:
		samples = 3
	case pngRGBA:
		samples = 4
	default:
		return nil, fmt.Errorf("%w: PNG color type %d", ErrUnsupportedImage, data[25])
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return fromImage(img, samples)
}

// fromImage copies the first samples of every pixel of img into a stack.
// One sample reads the gray level, two read gray and alpha, three read RGB
// and four read RGBA. Samples are raw, never premultiplied, so the last
// channel can carry data rather than opacity.
func fromImage(img image.Image, samples int) (*Stack, error) {
	at, ok := rawSamples(img)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedImage, img)
	}

	var pick []int
	switch samples {
	case 1:
		pick = []int{0}
	case 2:
		pick = []int{0, 3}
	case 3:
		pick = []int{0, 1, 2}
	case 4:
		pick = []int{0, 1, 2, 3}
	default:
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupportedImage, samples)
	}

	bounds := img.Bounds()
	s := NewStack(bounds.Dy(), bounds.Dx(), len(pick))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			px := at(bounds.Min.X+x, bounds.Min.Y+y)
			for ch, src := range pick {
				s.Set(y, x, ch, px[src])
			}
		}
	}
	return s, nil
}

// rawSamples returns an accessor yielding R, G, B, A without premultiplying.
// Gray images report their level in the color slots and full alpha.
func rawSamples(img image.Image) (func(x, y int) [4]float64, bool) {
	switch src := img.(type) {
	case *image.NRGBA64:
		return func(x, y int) [4]float64 {
			c := src.NRGBA64At(x, y)
			return [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
		}, true
	case *image.RGBA64:
		return func(x, y int) [4]float64 {
			c := src.RGBA64At(x, y)
			return [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
		}, true
	case *image.NRGBA:
		return func(x, y int) [4]float64 {
			c := src.NRGBAAt(x, y)
			return [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
		}, true
	case *image.RGBA:
		return func(x, y int) [4]float64 {
			c := src.RGBAAt(x, y)
			return [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
		}, true
	case *image.Gray16:
		return func(x, y int) [4]float64 {
			v := float64(src.Gray16At(x, y).Y)
			return [4]float64{v, v, v, 65535}
		}, true
	case *image.Gray:
		return func(x, y int) [4]float64 {
			v := float64(src.GrayAt(x, y).Y)
			return [4]float64{v, v, v, 255}
		}, true
	}
	return nil, false
}
