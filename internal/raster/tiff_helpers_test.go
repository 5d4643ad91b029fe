package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// testTIFF describes a little-endian int16 GeoTIFF written by writeTestTIFF.
type testTIFF struct {
	width, height int
	values        []int16 // row-major
	rowsPerStrip  int     // strips when tileSize == 0
	tileSize      int
	deflate       bool
	predictor     bool
	nodata        string
	originX       float64
	originY       float64
	res           float64
}

type tiffField struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

func shorts(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func longs(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func doubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

// encodeBlock packs the given block rows, applying the predictor and deflate.
func (tt testTIFF) encodeBlock(x0, y0, bw, bh int) []byte {
	raw := make([]byte, 0, 2*bw*bh)
	for y := y0; y < y0+bh; y++ {
		row := make([]int16, bw)
		for x := x0; x < x0+bw; x++ {
			if x < tt.width && y < tt.height {
				row[x-x0] = tt.values[y*tt.width+x]
			}
		}
		if tt.predictor {
			for i := len(row) - 1; i > 0; i-- {
				row[i] -= row[i-1]
			}
		}
		for _, v := range row {
			raw = binary.LittleEndian.AppendUint16(raw, uint16(v))
		}
	}
	if !tt.deflate {
		return raw
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(raw)
	_ = zw.Close()
	return buf.Bytes()
}

func writeTestTIFF(t *testing.T, dir, name string, tt testTIFF) string {
	t.Helper()
	buf := make([]byte, 8)
	copy(buf, "II")
	binary.LittleEndian.PutUint16(buf[2:], 42)

	var offsets, counts []uint32
	addBlock := func(b []byte) {
		offsets = append(offsets, uint32(len(buf)))
		counts = append(counts, uint32(len(b)))
		buf = append(buf, b...)
	}

	var fields []tiffField
	if tt.tileSize > 0 {
		ts := tt.tileSize
		for y := 0; y < tt.height; y += ts {
			for x := 0; x < tt.width; x += ts {
				addBlock(tt.encodeBlock(x, y, ts, ts))
			}
		}
		fields = append(fields,
			tiffField{tagTileWidth, 3, 1, shorts(uint16(ts))},
			tiffField{tagTileLength, 3, 1, shorts(uint16(ts))},
			tiffField{tagTileOffsets, 4, uint32(len(offsets)), longs(offsets...)},
			tiffField{tagTileByteCounts, 4, uint32(len(counts)), longs(counts...)},
		)
	} else {
		rps := tt.rowsPerStrip
		if rps == 0 {
			rps = tt.height
		}
		for y := 0; y < tt.height; y += rps {
			addBlock(tt.encodeBlock(0, y, tt.width, min(rps, tt.height-y)))
		}
		fields = append(fields,
			tiffField{tagRowsPerStrip, 3, 1, shorts(uint16(rps))},
			tiffField{tagStripOffsets, 4, uint32(len(offsets)), longs(offsets...)},
			tiffField{tagStripByteCounts, 4, uint32(len(counts)), longs(counts...)},
		)
	}

	compression := uint16(compressionNone)
	if tt.deflate {
		compression = compressionDeflate
	}
	predictor := uint16(predictorNone)
	if tt.predictor {
		predictor = predictorHorizontal
	}
	fields = append(fields,
		tiffField{tagImageWidth, 4, 1, longs(uint32(tt.width))},
		tiffField{tagImageLength, 4, 1, longs(uint32(tt.height))},
		tiffField{tagBitsPerSample, 3, 1, shorts(16)},
		tiffField{tagCompression, 3, 1, shorts(compression)},
		tiffField{tagSamplesPerPixel, 3, 1, shorts(1)},
		tiffField{tagPredictor, 3, 1, shorts(predictor)},
		tiffField{tagSampleFormat, 3, 1, shorts(sampleFormatInt)},
		tiffField{tagModelPixelScale, 12, 3, doubles(tt.res, tt.res, 0)},
		tiffField{tagModelTiepoint, 12, 6, doubles(0, 0, 0, tt.originX, tt.originY, 0)},
	)
	if tt.nodata != "" {
		s := append([]byte(tt.nodata), 0)
		fields = append(fields, tiffField{tagGDALNoData, 2, uint32(len(s)), s})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Out-of-line payloads go before the IFD.
	inline := make([][4]byte, len(fields))
	for i, f := range fields {
		if len(f.data) <= 4 {
			copy(inline[i][:], f.data)
			continue
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		binary.LittleEndian.PutUint32(inline[i][:], uint32(len(buf)))
		buf = append(buf, f.data...)
	}
	if len(buf)%2 == 1 {
		buf = append(buf, 0)
	}
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(buf)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(fields)))
	for i, f := range fields {
		buf = binary.LittleEndian.AppendUint16(buf, f.tag)
		buf = binary.LittleEndian.AppendUint16(buf, f.typ)
		buf = binary.LittleEndian.AppendUint32(buf, f.count)
		buf = append(buf, inline[i][:]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, 0)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

// gradient returns width*height values v(x, y) = 100*y + x.
func gradient(width, height int) []int16 {
	vals := make([]int16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			vals[y*width+x] = int16(100*y + x)
		}
	}
	return vals
}
