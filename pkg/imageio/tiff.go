package imageio

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"
)

// Baseline and extension tags read from the first image directory
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionPackBits   = 32773
	compressionDeflateOld = 32946
)

const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

const (
	photometricPalette = 3
	planarContiguous   = 1
	planarSeparate     = 2
	predictorNone      = 1
	predictorDiff      = 2
)

// errShortTIFF marks offsets or counts that point past the end of the file
var errShortTIFF = errors.New("truncated TIFF")

func isTIFF(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	magic := string(data[:4])
	return magic == "II*\x00" || magic == "MM\x00*"
}

// tiffLayout describes how the samples of one image are stored
type tiffLayout struct {
	order  binary.ByteOrder
	width  int
	height int

	samples int
	bits    int
	format  int

	compression int
	predictor   int
	planar      int

	// chunks are strips or tiles of chunkWidth x chunkHeight pixels,
	// laid out across x down per plane
	chunkWidth  int
	chunkHeight int
	across      int
	down        int
	offsets     []uint64
	counts      []uint64
}

// decodeTIFF reads the first image of a TIFF file keeping every sample per
// pixel as its own channel. Contiguous and separate planar layouts, strips
// and tiles, and uncompressed, LZW, Deflate and PackBits data are supported.
func decodeTIFF(data []byte) (*Stack, error) {
	l, err := parseTIFF(data)
	if err != nil {
		return nil, err
	}

	s := NewStack(l.height, l.width, l.samples)
	planes, chunkSamples := 1, l.samples
	if l.planar == planarSeparate {
		planes, chunkSamples = l.samples, 1
	}
	bytesPerSample := l.bits / 8
	rowBytes := l.chunkWidth * chunkSamples * bytesPerSample
	perPlane := l.across * l.down

	for p := 0; p < planes; p++ {
		for i := 0; i < perPlane; i++ {
			idx := p*perPlane + i
			x0 := (i % l.across) * l.chunkWidth
			y0 := (i / l.across) * l.chunkHeight
			rows := min(l.chunkHeight, l.height-y0)

			off, n := l.offsets[idx], l.counts[idx]
			if off > uint64(len(data)) || n > uint64(len(data))-off {
				return nil, fmt.Errorf("%w: chunk %d", errShortTIFF, idx)
			}

			buf, err := l.decompress(data[off : off+n])
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", idx, err)
			}
			if len(buf) < rows*rowBytes {
				return nil, fmt.Errorf("%w: chunk %d has %d bytes, need %d", errShortTIFF, idx, len(buf), rows*rowBytes)
			}

			if l.predictor == predictorDiff {
				l.undoDifferencing(buf, rows, chunkSamples)
			}

			for r := 0; r < rows; r++ {
				row := buf[r*rowBytes:]
				for x := 0; x < l.chunkWidth && x0+x < l.width; x++ {
					for c := 0; c < chunkSamples; c++ {
						pos := (x*chunkSamples + c) * bytesPerSample
						ch := c
						if l.planar == planarSeparate {
							ch = p
						}
						s.Set(y0+r, x0+x, ch, l.sample(row[pos:pos+bytesPerSample]))
					}
				}
			}
		}
	}
	return s, nil
}

func parseTIFF(data []byte) (*tiffLayout, error) {
	if !isTIFF(data) {
		return nil, fmt.Errorf("%w: not a TIFF file", ErrUnsupportedImage)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if data[0] == 'M' {
		order = binary.BigEndian
	}

	tags, err := readIFD(data, order, uint64(order.Uint32(data[4:8])))
	if err != nil {
		return nil, err
	}
	first := func(tag uint16, def uint64) uint64 {
		if v := tags[tag]; len(v) > 0 {
			return v[0]
		}
		return def
	}

	l := &tiffLayout{
		order:       order,
		width:       int(first(tagImageWidth, 0)),
		height:      int(first(tagImageLength, 0)),
		samples:     int(first(tagSamplesPerPixel, 1)),
		format:      int(first(tagSampleFormat, sampleUint)),
		compression: int(first(tagCompression, compressionNone)),
		predictor:   int(first(tagPredictor, predictorNone)),
		planar:      int(first(tagPlanarConfig, planarContiguous)),
	}
	if l.width <= 0 || l.height <= 0 || l.samples <= 0 {
		return nil, fmt.Errorf("%w: %dx%d with %d samples", ErrUnsupportedImage, l.width, l.height, l.samples)
	}
	if first(tagPhotometric, 1) == photometricPalette {
		return nil, fmt.Errorf("%w: palette TIFF", ErrUnsupportedImage)
	}

	bits := tags[tagBitsPerSample]
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits {
		if b != bits[0] {
			return nil, fmt.Errorf("%w: mixed bits per sample %v", ErrUnsupportedImage, bits)
		}
	}
	l.bits = int(bits[0])

	switch {
	case l.format == sampleFloat && (l.bits == 32 || l.bits == 64):
	case (l.format == sampleUint || l.format == sampleInt) &&
		(l.bits == 8 || l.bits == 16 || l.bits == 32 || l.bits == 64):
	default:
		return nil, fmt.Errorf("%w: %d-bit samples of format %d", ErrUnsupportedImage, l.bits, l.format)
	}
	if l.planar != planarContiguous && l.planar != planarSeparate {
		return nil, fmt.Errorf("%w: planar configuration %d", ErrUnsupportedImage, l.planar)
	}
	if l.predictor != predictorNone && (l.predictor != predictorDiff || l.format == sampleFloat) {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedImage, l.predictor)
	}

	if _, tiled := tags[tagTileWidth]; tiled {
		l.chunkWidth = int(first(tagTileWidth, 0))
		l.chunkHeight = int(first(tagTileLength, 0))
		l.offsets, l.counts = tags[tagTileOffsets], tags[tagTileByteCounts]
	} else {
		l.chunkWidth = l.width
		l.chunkHeight = int(min(first(tagRowsPerStrip, uint64(l.height)), uint64(l.height)))
		l.offsets, l.counts = tags[tagStripOffsets], tags[tagStripByteCounts]
	}
	if l.chunkWidth <= 0 || l.chunkHeight <= 0 {
		return nil, fmt.Errorf("%w: chunk size %dx%d", ErrUnsupportedImage, l.chunkWidth, l.chunkHeight)
	}
	l.across = (l.width + l.chunkWidth - 1) / l.chunkWidth
	l.down = (l.height + l.chunkHeight - 1) / l.chunkHeight

	want := l.across * l.down
	if l.planar == planarSeparate {
		want *= l.samples
	}
	if len(l.offsets) < want || len(l.counts) < want {
		return nil, fmt.Errorf("%w: %d chunk offsets for %d chunks", errShortTIFF, len(l.offsets), want)
	}
	return l, nil
}

// readIFD returns the integer-valued entries of the directory at off
func readIFD(data []byte, order binary.ByteOrder, off uint64) (map[uint16][]uint64, error) {
	if off+2 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: directory offset %d", errShortTIFF, off)
	}
	n := uint64(order.Uint16(data[off:]))
	if off+2+n*12 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: directory with %d entries", errShortTIFF, n)
	}

	tags := make(map[uint16][]uint64, n)
	for i := uint64(0); i < n; i++ {
		entry := data[off+2+i*12:]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		count := uint64(order.Uint32(entry[4:8]))

		var size uint64
		switch typ {
		case 1, 6: // BYTE, SBYTE
			size = 1
		case 3, 8: // SHORT, SSHORT
			size = 2
		case 4, 9: // LONG, SLONG
			size = 4
		default:
			continue
		}

		raw := entry[8:12]
		if total := size * count; total > 4 {
			at := uint64(order.Uint32(raw))
			if at > uint64(len(data)) || total > uint64(len(data))-at {
				return nil, fmt.Errorf("%w: tag %d", errShortTIFF, tag)
			}
			raw = data[at : at+total]
		}

		vals := make([]uint64, count)
		for j := range vals {
			switch size {
			case 1:
				vals[j] = uint64(raw[j])
			case 2:
				vals[j] = uint64(order.Uint16(raw[j*2:]))
			case 4:
				vals[j] = uint64(order.Uint32(raw[j*4:]))
			}
		}
		tags[tag] = vals
	}
	return tags, nil
}

func (l *tiffLayout) decompress(chunk []byte) ([]byte, error) {
	switch l.compression {
	case compressionNone:
		return chunk, nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(chunk), lzw.MSB, 8)
		defer r.Close()
		return readLenient(r)
	case compressionDeflate, compressionDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLenient(r)
	case compressionPackBits:
		return unpackBits(chunk)
	}
	return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedImage, l.compression)
}

// readLenient reads r to the end. Writers commonly omit the end-of-data
// code, so a truncated stream keeps what was decoded; decodeTIFF checks
// the length.
func readLenient(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return out, nil
}

func unpackBits(chunk []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(chunk))
	out := make([]byte, 0, len(chunk)*2)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		switch code := int(int8(b)); {
		case code >= 0:
			lit := make([]byte, code+1)
			if _, err := io.ReadFull(br, lit); err != nil {
				return nil, err
			}
			out = append(out, lit...)
		case code == -128:
		default:
			v, err := br.ReadByte()
			if err != nil {
				return nil, err
			}
			for j := 0; j < 1-code; j++ {
				out = append(out, v)
			}
		}
	}
}

// undoDifferencing reverses horizontal predictor 2 in place
func (l *tiffLayout) undoDifferencing(buf []byte, rows, samples int) {
	bytesPerSample := l.bits / 8
	rowBytes := l.chunkWidth * samples * bytesPerSample
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for x := 1; x < l.chunkWidth; x++ {
			for c := 0; c < samples; c++ {
				cur := (x*samples + c) * bytesPerSample
				prev := cur - samples*bytesPerSample
				switch l.bits {
				case 8:
					row[cur] += row[prev]
				case 16:
					l.order.PutUint16(row[cur:], l.order.Uint16(row[cur:])+l.order.Uint16(row[prev:]))
				case 32:
					l.order.PutUint32(row[cur:], l.order.Uint32(row[cur:])+l.order.Uint32(row[prev:]))
				case 64:
					l.order.PutUint64(row[cur:], l.order.Uint64(row[cur:])+l.order.Uint64(row[prev:]))
				}
			}
		}
	}
}

func (l *tiffLayout) sample(b []byte) float64 {
	switch l.bits {
	case 8:
		if l.format == sampleInt {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 16:
		v := l.order.Uint16(b)
		if l.format == sampleInt {
			return float64(int16(v))
		}
		return float64(v)
	case 32:
		v := l.order.Uint32(b)
		switch l.format {
		case sampleFloat:
			return float64(math.Float32frombits(v))
		case sampleInt:
			return float64(int32(v))
		}
		return float64(v)
	}
	v := l.order.Uint64(b)
	switch l.format {
	case sampleFloat:
		return math.Float64frombits(v)
	case sampleInt:
		return float64(int64(v))
	}
	return float64(v)
}
