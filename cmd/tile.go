package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/tiles"
)

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Render a trafficability PNG for a Web Mercator bbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		bboxArg, _ := cmd.Flags().GetString("bbox")
		sizeArg, _ := cmd.Flags().GetString("size")
		out, _ := cmd.Flags().GetString("out")

		bbox, err := tiles.ParseBBox(bboxArg)
		if err != nil {
			return err
		}
		width, height, err := tiles.ParseSize(sizeArg)
		if err != nil {
			return err
		}

		e, err := initEnv(cfg, "tile")
		if err != nil {
			return err
		}
		defer e.Close()

		data, _, err := e.Tiles.RenderBBox(cmd.Context(), bbox, width, height)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", out)
		}
		zap.L().Info("tile: written", zap.String("path", out), zap.Int("bytes", len(data)))
		return nil
	},
}

func init() {
	tileCmd.Flags().String("bbox", "", "xmin,ymin,xmax,ymax in EPSG:3857")
	tileCmd.Flags().String("size", "256,256", "image width,height in pixels")
	tileCmd.Flags().String("out", "tile.png", "output PNG path")
	_ = tileCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(tileCmd)
}
