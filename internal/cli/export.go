package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var (
	exportSymbol    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write one asset's stored history to CSV and/or a PNG chart",
	Example: "  pricewatch export --symbol GOLD --from 2024-01-01 --csv out/gold.csv --png out/gold.png",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			Symbol:    strings.ToUpper(strings.TrimSpace(exportSymbol)),
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "", "Asset symbol, e.g. BTC or GOLD")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Window start (inclusive); defaults to 7 days before --to")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Window end (exclusive); defaults to now")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "PNG chart output path")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "CSV output path")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Downsample to at most this many points (0 uses export.max_data_points)")
	_ = exportCmd.MarkFlagRequired("symbol")
}
