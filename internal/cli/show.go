package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var (
	showLimit         int
	showLatest        bool
	showNotifications bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent prices or notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:         showLimit,
			Latest:        showLatest,
			Notifications: showNotifications,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showLatest, "latest", false, "Show only the newest price per asset")
	showCmd.Flags().BoolVar(&showNotifications, "notifications", false, "Show the notification log instead of prices")
}
