package imageserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ExportRequest describes an exportImage call.
type ExportRequest struct {
	// BBox is xmin, ymin, xmax, ymax in SpatialReference units.
	BBox          [4]float64
	Width, Height int
	// SpatialReference of BBox and of the output image; zero means WebMercatorWKID.
	SpatialReference int
	RenderingRule    *RenderingRule
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ExportImage renders the bbox as a transparent PNG and returns its bytes.
func (c *Client) ExportImage(ctx context.Context, r ExportRequest) ([]byte, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, eris.Errorf("imageserver: invalid image size %dx%d", r.Width, r.Height)
	}
	sr := r.SpatialReference
	if sr == 0 {
		sr = WebMercatorWKID
	}
	form := url.Values{
		"bbox":        {formatBBox(r.BBox)},
		"bboxSR":      {strconv.Itoa(sr)},
		"imageSR":     {strconv.Itoa(sr)},
		"size":        {fmt.Sprintf("%d,%d", r.Width, r.Height)},
		"format":      {"png"},
		"transparent": {"true"},
		"f":           {"image"},
	}
	rule, err := r.RenderingRule.Encode()
	if err != nil {
		return nil, err
	}
	if rule != "" {
		form.Set("renderingRule", rule)
	}

	const op = "exportImage"
	req, err := c.newRequest(ctx, http.MethodGet, op, form)
	if err != nil {
		return nil, err
	}
	body, contentType, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(body, pngMagic) {
		// ArcGIS reports export failures as a JSON body.
		if strings.Contains(contentType, "json") || bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
			var discard struct{}
			if err := c.decodeJSON(body, op, &discard); err != nil {
				return nil, err
			}
		}
		return nil, c.upstream(http.StatusOK, eris.Errorf("imageserver: %s returned non-PNG body (%s)", op, contentType))
	}
	return body, nil
}

func formatBBox(b [4]float64) string {
	parts := make([]string, 4)
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
