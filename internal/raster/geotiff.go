package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TIFF tags read by OpenGeoTIFF.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
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
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

const (
	compressionNone        = 1
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatIEEEFloat  = 3
	planarContiguous       = 1
	planarSeparate         = 2
	maxDecodedBlockSamples = 1 << 26
)

// GeoTIFF is a classic (non-Big) TIFF opened for windowed band-0 reads.
// Reads use ReadAt and are safe for concurrent use.
type GeoTIFF struct {
	f     *os.File
	order binary.ByteOrder
	grid  Grid

	bits, format, spp   int
	compression         int
	predictor           int
	planar              int
	blockW, blockH      int
	blocksAcross        int
	blocksDown          int
	offsets, byteCounts []uint64
	tiled               bool
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   [4]byte
}

// OpenGeoTIFF opens path and parses its first image directory.
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	t := &GeoTIFF{f: f}
	if err := t.parse(); err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "raster: parse %s", path)
	}
	return t, nil
}

// Grid implements Raster.
func (t *GeoTIFF) Grid() Grid { return t.grid }

// Close implements Raster.
func (t *GeoTIFF) Close() error { return t.f.Close() }

func (t *GeoTIFF) parse() error {
	var hdr [8]byte
	if _, err := t.f.ReadAt(hdr[:], 0); err != nil {
		return eris.Wrap(err, "read header")
	}
	switch string(hdr[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return eris.New("not a TIFF file")
	}
	switch magic := t.order.Uint16(hdr[2:4]); magic {
	case 42:
	case 43:
		return eris.New("BigTIFF is not supported")
	default:
		return eris.Errorf("bad TIFF magic %d", magic)
	}

	ifdOff := int64(t.order.Uint32(hdr[4:8]))
	var cnt [2]byte
	if _, err := t.f.ReadAt(cnt[:], ifdOff); err != nil {
		return eris.Wrap(err, "read IFD")
	}
	n := int(t.order.Uint16(cnt[:]))
	buf := make([]byte, 12*n)
	if _, err := t.f.ReadAt(buf, ifdOff+2); err != nil {
		return eris.Wrap(err, "read IFD entries")
	}
	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := buf[12*i : 12*i+12]
		var ent ifdEntry
		ent.typ = t.order.Uint16(e[2:4])
		ent.count = t.order.Uint32(e[4:8])
		copy(ent.raw[:], e[8:12])
		entries[t.order.Uint16(e[0:2])] = ent
	}

	width, err := t.uintTag(entries, tagImageWidth, 0)
	if err != nil {
		return err
	}
	height, err := t.uintTag(entries, tagImageLength, 0)
	if err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return eris.New("missing image dimensions")
	}
	bits, _ := t.uintTag(entries, tagBitsPerSample, 1)
	format, _ := t.uintTag(entries, tagSampleFormat, sampleFormatUint)
	spp, _ := t.uintTag(entries, tagSamplesPerPixel, 1)
	compression, _ := t.uintTag(entries, tagCompression, compressionNone)
	predictor, _ := t.uintTag(entries, tagPredictor, predictorNone)
	planar, _ := t.uintTag(entries, tagPlanarConfig, planarContiguous)
	t.bits, t.format, t.spp = int(bits), int(format), int(spp)
	t.compression, t.predictor, t.planar = int(compression), int(predictor), int(planar)

	if err := t.checkSupported(); err != nil {
		return err
	}

	if _, ok := entries[tagTileWidth]; ok {
		tw, _ := t.uintTag(entries, tagTileWidth, 0)
		th, _ := t.uintTag(entries, tagTileLength, 0)
		if tw == 0 || th == 0 {
			return eris.New("invalid tile size")
		}
		t.tiled = true
		t.blockW, t.blockH = int(tw), int(th)
		if t.offsets, err = t.uintsTag(entries, tagTileOffsets); err != nil {
			return err
		}
		if t.byteCounts, err = t.uintsTag(entries, tagTileByteCounts); err != nil {
			return err
		}
	} else {
		rps, _ := t.uintTag(entries, tagRowsPerStrip, height)
		if rps == 0 || rps > height {
			rps = height
		}
		t.blockW, t.blockH = int(width), int(rps)
		if t.offsets, err = t.uintsTag(entries, tagStripOffsets); err != nil {
			return err
		}
		if t.byteCounts, err = t.uintsTag(entries, tagStripByteCounts); err != nil {
			return err
		}
	}
	t.blocksAcross = (int(width) + t.blockW - 1) / t.blockW
	t.blocksDown = (int(height) + t.blockH - 1) / t.blockH
	if len(t.offsets) < t.blocksAcross*t.blocksDown || len(t.byteCounts) < len(t.offsets) {
		return eris.Errorf("expected %d blocks, found %d offsets", t.blocksAcross*t.blocksDown, len(t.offsets))
	}

	t.grid = Grid{Width: int(width), Height: int(height)}
	scale, err := t.floatsTag(entries, tagModelPixelScale)
	if err != nil || len(scale) < 2 {
		return eris.New("missing ModelPixelScale tag")
	}
	tie, err := t.floatsTag(entries, tagModelTiepoint)
	if err != nil || len(tie) < 6 {
		return eris.New("missing ModelTiepoint tag")
	}
	t.grid.ResX = scale[0]
	t.grid.ResY = -scale[1]
	t.grid.OriginX = tie[3] - tie[0]*t.grid.ResX
	t.grid.OriginY = tie[4] - tie[1]*t.grid.ResY

	if s, err := t.asciiTag(entries, tagGDALNoData); err == nil && s != "" {
		if v, perr := strconv.ParseFloat(s, 64); perr == nil {
			t.grid.NoData = v
			t.grid.HasNoData = true
		}
	}
	return nil
}

func (t *GeoTIFF) checkSupported() error {
	switch t.compression {
	case compressionNone, compressionDeflate, compressionDeflateOld:
	default:
		return eris.Errorf("unsupported compression %d", t.compression)
	}
	if t.predictor != predictorNone && t.predictor != predictorHorizontal {
		return eris.Errorf("unsupported predictor %d", t.predictor)
	}
	if t.spp < 1 {
		return eris.New("invalid samples per pixel")
	}
	switch t.format {
	case sampleFormatUint, sampleFormatInt:
		if t.bits != 8 && t.bits != 16 && t.bits != 32 {
			return eris.Errorf("unsupported integer sample size %d", t.bits)
		}
	case sampleFormatIEEEFloat:
		if t.bits != 32 && t.bits != 64 {
			return eris.Errorf("unsupported float sample size %d", t.bits)
		}
		if t.predictor == predictorHorizontal {
			return eris.New("horizontal predictor on float samples is not supported")
		}
	default:
		return eris.Errorf("unsupported sample format %d", t.format)
	}
	return nil
}

// ReadWindow implements Raster.
func (t *GeoTIFF) ReadWindow(w Window) ([]float64, error) {
	if w.Empty() {
		return nil, nil
	}
	if w.X0 < 0 || w.Y0 < 0 || w.X0+w.W > t.grid.Width || w.Y0+w.H > t.grid.Height {
		return nil, eris.Errorf("raster: window %+v outside %dx%d image", w, t.grid.Width, t.grid.Height)
	}

	out := make([]float64, w.W*w.H)
	size := t.bits / 8
	pixelStride := size
	if t.planar == planarContiguous {
		pixelStride = size * t.spp
	}

	bx0, bx1 := w.X0/t.blockW, (w.X0+w.W-1)/t.blockW
	by0, by1 := w.Y0/t.blockH, (w.Y0+w.H-1)/t.blockH
	for by := by0; by <= by1; by++ {
		for bx := bx0; bx <= bx1; bx++ {
			block, err := t.readBlock(by*t.blocksAcross + bx)
			if err != nil {
				return nil, err
			}
			rowStride := t.blockW * pixelStride
			// Intersection of the window with this block, in image pixels.
			ix0 := max(w.X0, bx*t.blockW)
			ix1 := min(w.X0+w.W, (bx+1)*t.blockW)
			iy0 := max(w.Y0, by*t.blockH)
			iy1 := min(w.Y0+w.H, (by+1)*t.blockH)
			for y := iy0; y < iy1; y++ {
				rowOff := (y - by*t.blockH) * rowStride
				for x := ix0; x < ix1; x++ {
					off := rowOff + (x-bx*t.blockW)*pixelStride
					if off+size > len(block) {
						return nil, eris.Errorf("raster: block %d truncated", by*t.blocksAcross+bx)
					}
					out[(y-w.Y0)*w.W+(x-w.X0)] = t.sample(block[off:])
				}
			}
		}
	}
	return out, nil
}

// readBlock returns the decoded bytes of block i of band 0.
func (t *GeoTIFF) readBlock(i int) ([]byte, error) {
	off, n := t.offsets[i], t.byteCounts[i]
	raw := make([]byte, n)
	if _, err := t.f.ReadAt(raw, int64(off)); err != nil && err != io.EOF {
		return nil, eris.Wrapf(err, "raster: read block %d", i)
	}

	data := raw
	if t.compression != compressionNone {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "raster: inflate block %d", i)
		}
		limit := int64(maxDecodedBlockSamples) * int64(t.bits/8) * int64(t.spp)
		data, err = io.ReadAll(io.LimitReader(zr, limit))
		_ = zr.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "raster: inflate block %d", i)
		}
	}

	if t.predictor == predictorHorizontal {
		t.undoPredictor(data)
	}
	return data, nil
}

// undoPredictor reverses horizontal differencing in place, row by row.
func (t *GeoTIFF) undoPredictor(data []byte) {
	size := t.bits / 8
	spp := 1
	if t.planar == planarContiguous {
		spp = t.spp
	}
	rowBytes := t.blockW * spp * size
	for row := 0; row+rowBytes <= len(data); row += rowBytes {
		r := data[row : row+rowBytes]
		for i := spp * size; i < len(r); i += size {
			prev := i - spp*size
			switch size {
			case 1:
				r[i] += r[prev]
			case 2:
				t.order.PutUint16(r[i:], t.order.Uint16(r[i:])+t.order.Uint16(r[prev:]))
			case 4:
				t.order.PutUint32(r[i:], t.order.Uint32(r[i:])+t.order.Uint32(r[prev:]))
			}
		}
	}
}

func (t *GeoTIFF) sample(b []byte) float64 {
	switch t.format {
	case sampleFormatIEEEFloat:
		if t.bits == 32 {
			return float64(math.Float32frombits(t.order.Uint32(b)))
		}
		return math.Float64frombits(t.order.Uint64(b))
	case sampleFormatInt:
		switch t.bits {
		case 8:
			return float64(int8(b[0]))
		case 16:
			return float64(int16(t.order.Uint16(b)))
		default:
			return float64(int32(t.order.Uint32(b)))
		}
	default:
		switch t.bits {
		case 8:
			return float64(b[0])
		case 16:
			return float64(t.order.Uint16(b))
		default:
			return float64(t.order.Uint32(b))
		}
	}
}

// typeSize returns the byte size of a TIFF field type.
func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 0
	}
}

// payload returns the value bytes of e, following the offset when they do
// not fit inline.
func (t *GeoTIFF) payload(e ifdEntry) ([]byte, error) {
	size := typeSize(e.typ)
	if size == 0 {
		return nil, eris.Errorf("unsupported field type %d", e.typ)
	}
	n := int(e.count) * size
	if n <= 4 {
		return e.raw[:n], nil
	}
	buf := make([]byte, n)
	if _, err := t.f.ReadAt(buf, int64(t.order.Uint32(e.raw[:]))); err != nil {
		return nil, eris.Wrap(err, "read field payload")
	}
	return buf, nil
}

func (t *GeoTIFF) uintsTag(entries map[uint16]ifdEntry, tag uint16) ([]uint64, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, eris.Errorf("missing tag %d", tag)
	}
	b, err := t.payload(e)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case 1:
			out[i] = uint64(b[i])
		case 3:
			out[i] = uint64(t.order.Uint16(b[2*i:]))
		case 4:
			out[i] = uint64(t.order.Uint32(b[4*i:]))
		default:
			return nil, eris.Errorf("tag %d: type %d is not an unsigned integer", tag, e.typ)
		}
	}
	return out, nil
}

func (t *GeoTIFF) uintTag(entries map[uint16]ifdEntry, tag uint16, def uint64) (uint64, error) {
	if _, ok := entries[tag]; !ok {
		return def, nil
	}
	vals, err := t.uintsTag(entries, tag)
	if err != nil || len(vals) == 0 {
		return def, err
	}
	return vals[0], nil
}

func (t *GeoTIFF) floatsTag(entries map[uint16]ifdEntry, tag uint16) ([]float64, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, eris.Errorf("missing tag %d", tag)
	}
	if e.typ != 12 {
		return nil, eris.Errorf("tag %d: expected DOUBLE, got type %d", tag, e.typ)
	}
	b, err := t.payload(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(t.order.Uint64(b[8*i:]))
	}
	return out, nil
}

func (t *GeoTIFF) asciiTag(entries map[uint16]ifdEntry, tag uint16) (string, error) {
	e, ok := entries[tag]
	if !ok {
		return "", eris.Errorf("missing tag %d", tag)
	}
	if e.typ != 2 {
		return "", eris.Errorf("tag %d: expected ASCII, got type %d", tag, e.typ)
	}
	b, err := t.payload(e)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00")), nil
}
