package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shipping-bot/internal/app"
	"shipping-bot/internal/service"
)

var (
	exportFrom       string
	exportTo         string
	exportStep       string
	exportPNGPath    string
	exportCSVPath    string
	exportMaxPoints  int
	exportCarriers   []string
	exportConditions []string
)

var exportCmd = &cobra.Command{
	Use:   "export <destination>",
	Short: "Export quotes across a weight range as CSV and/or PNG chart",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := service.ParseWeight(exportFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		to, err := service.ParseWeight(exportTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		step, err := decimal.NewFromString(exportStep)
		if err != nil {
			return fmt.Errorf("invalid --step value: %w", err)
		}
		conditions, err := parseConditionFlags(exportConditions)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Destination: strings.Join(args, " "),
			From:        from,
			To:          to,
			Step:        step,
			Conditions:  conditions,
			Carriers:    exportCarriers,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			MaxPoints:   exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "0.5kg", "Lightest weight (inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "30kg", "Heaviest weight (inclusive)")
	exportCmd.Flags().StringVar(&exportStep, "step", "0.5", "Weight increment in kg")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum weights to price (defaults to config)")
	exportCmd.Flags().StringSliceVar(&exportCarriers, "carriers", nil, "Only export these carrier codes (comma-separated)")
	exportCmd.Flags().StringArrayVar(&exportConditions, "condition", nil, "Delivery attribute as key=value (repeatable)")
}
