package cli

import (
	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch one snapshot and print it without persisting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{JSON: checkJSON})
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the snapshot as JSON")
}
