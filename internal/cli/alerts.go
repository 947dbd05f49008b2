package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var (
	alertSymbol    string
	alertThreshold string
	alertCondition string
	alertEmail     string
	alertListLimit int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage alert rules directly in the database",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an active alert rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := decimal.NewFromString(alertThreshold)
		if err != nil {
			return fmt.Errorf("invalid --threshold value: %w", err)
		}
		return getApp().AddAlert(cmd.Context(), app.AlertInput{
			Symbol:    alertSymbol,
			Threshold: threshold,
			Condition: alertCondition,
			Email:     alertEmail,
		})
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertListLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ListAlerts(cmd.Context(), alertListLimit)
	},
}

var alertsReactivateCmd = &cobra.Command{
	Use:   "reactivate <id>",
	Short: "Re-arm a triggered alert rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		return getApp().ReactivateAlert(cmd.Context(), id)
	},
}

func init() {
	alertsAddCmd.Flags().StringVar(&alertSymbol, "symbol", "", "Asset symbol (e.g. BTC, GOLD)")
	alertsAddCmd.Flags().StringVar(&alertThreshold, "threshold", "", "Threshold price in the asset currency")
	alertsAddCmd.Flags().StringVar(&alertCondition, "condition", "above", "above or below")
	alertsAddCmd.Flags().StringVar(&alertEmail, "email", "", "Destination email address")
	_ = alertsAddCmd.MarkFlagRequired("symbol")
	_ = alertsAddCmd.MarkFlagRequired("threshold")
	_ = alertsAddCmd.MarkFlagRequired("email")

	alertsListCmd.Flags().IntVar(&alertListLimit, "limit", 50, "Number of rules to display")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsReactivateCmd)
}
