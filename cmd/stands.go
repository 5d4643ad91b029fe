package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/standscan/internal/geometry"
)

// addStandFlags registers the stand input flags shared by the analysis commands.
func addStandFlags(cmd *cobra.Command) {
	cmd.Flags().String("geojson", "", "GeoJSON file with stand polygons")
	cmd.Flags().String("shp", "", "shapefile with stand polygons")
	cmd.Flags().String("xlsx", "", "also write an XLSX report to this path")
	cmd.MarkFlagsMutuallyExclusive("geojson", "shp")
	cmd.MarkFlagsOneRequired("geojson", "shp")
}

// readStands loads stands from the --geojson or --shp flag.
func readStands(cmd *cobra.Command) ([]geometry.Stand, error) {
	if path, _ := cmd.Flags().GetString("shp"); path != "" {
		return geometry.ReadShapefile(path)
	}
	path, _ := cmd.Flags().GetString("geojson")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return geometry.DecodeGeoJSON(data)
}

func standName(s geometry.Stand) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
