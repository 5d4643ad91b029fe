package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/report"
	"github.com/sells-group/standscan/internal/volume"
)

type standVolume struct {
	Stand  string         `json:"stand"`
	Result *volume.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Estimate timber volume per species for stand polygons",
	RunE: func(cmd *cobra.Command, args []string) error {
		stands, err := readStands(cmd)
		if err != nil {
			return err
		}
		e, err := initEnv(cfg, "volume")
		if err != nil {
			return err
		}
		defer e.Close()

		out := make([]standVolume, 0, len(stands))
		rows := make([]report.Stand, 0, len(stands))
		for _, s := range stands {
			row := standVolume{Stand: standName(s)}
			polygon, err := s.Polygon()
			if err == nil {
				row.Result, err = e.Volume.Estimate(cmd.Context(), polygon)
			}
			if err != nil {
				zap.L().Error("volume: stand failed", zap.String("stand", row.Stand), zap.Error(err))
				row.Error = err.Error()
			}
			out = append(out, row)
			rows = append(rows, report.Stand{Name: row.Stand, Volume: row.Result})
		}

		if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
			if err := report.Save(path, rows); err != nil {
				return err
			}
			zap.L().Info("volume: report written", zap.String("path", path))
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	addStandFlags(volumeCmd)
	rootCmd.AddCommand(volumeCmd)
}
