package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/standscan/internal/projection"
)

var seasonCmd = &cobra.Command{
	Use:   "season",
	Short: "Report seasonal ground conditions from recent precipitation",
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")

		e, err := initEnv(cfg, "season")
		if err != nil {
			return err
		}
		defer e.Close()
		if e.Season == nil {
			return eris.New("season: weather lookups are disabled (weather.enabled)")
		}

		res, err := e.Season.Context(cmd.Context(), projection.Geographic{Lat: lat, Lon: lon})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	seasonCmd.Flags().Float64("lat", 0, "latitude (WGS84)")
	seasonCmd.Flags().Float64("lon", 0, "longitude (WGS84)")
	_ = seasonCmd.MarkFlagRequired("lat")
	_ = seasonCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(seasonCmd)
}
