package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/report"
	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/trafficability"
)

type standTrafficability struct {
	Stand  string                 `json:"stand"`
	Result *trafficability.Result `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

var trafficabilityCmd = &cobra.Command{
	Use:   "trafficability",
	Short: "Classify ground trafficability for stand polygons",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts trafficability.Options
		opts.TotalVolume, _ = cmd.Flags().GetFloat64("total-volume")
		if s, _ := cmd.Flags().GetString("season"); s != "" {
			c, err := season.ParseCategory(s)
			if err != nil {
				return err
			}
			opts.Season = c
		}

		stands, err := readStands(cmd)
		if err != nil {
			return err
		}
		e, err := initEnv(cfg, "trafficability")
		if err != nil {
			return err
		}
		defer e.Close()

		out := make([]standTrafficability, 0, len(stands))
		rows := make([]report.Stand, 0, len(stands))
		for _, s := range stands {
			row := standTrafficability{Stand: standName(s)}
			polygon, err := s.Polygon()
			if err == nil {
				row.Result, err = e.Trafficability.Analyze(cmd.Context(), polygon, opts)
			}
			if err != nil {
				zap.L().Error("trafficability: stand failed", zap.String("stand", row.Stand), zap.Error(err))
				row.Error = err.Error()
			}
			out = append(out, row)
			rows = append(rows, report.Stand{Name: row.Stand, Trafficability: row.Result})
		}

		if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
			if err := report.Save(path, rows); err != nil {
				return err
			}
			zap.L().Info("trafficability: report written", zap.String("path", path))
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	addStandFlags(trafficabilityCmd)
	trafficabilityCmd.Flags().Float64("total-volume", 0, "stand volume in m³sk for forwarder load estimates")
	trafficabilityCmd.Flags().String("season", "", "override the seasonal category (dry, normal, wet)")
	rootCmd.AddCommand(trafficabilityCmd)
}
