package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var (
	simulateSymbol    string
	simulatePrice     string
	simulateThreshold string
	simulateCondition string
	simulateEmail     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格触发并通过配置的通道发送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return errors.New("--price 必须是数字")
		}
		threshold, err := decimal.NewFromString(simulateThreshold)
		if err != nil {
			return errors.New("--threshold 必须是数字")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			AlertInput: app.AlertInput{
				Symbol:    simulateSymbol,
				Threshold: threshold,
				Condition: simulateCondition,
				Email:     simulateEmail,
			},
			Price: price,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTC", "资产代码")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "模拟触发价格")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "", "告警阈值")
	simulateCmd.Flags().StringVar(&simulateCondition, "condition", "above", "above 或 below")
	simulateCmd.Flags().StringVar(&simulateEmail, "email", "", "收件地址")
	_ = simulateCmd.MarkFlagRequired("price")
	_ = simulateCmd.MarkFlagRequired("threshold")
	_ = simulateCmd.MarkFlagRequired("email")
}
