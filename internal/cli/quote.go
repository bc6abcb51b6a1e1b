package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shipping-bot/internal/app"
	"shipping-bot/internal/refdata"
	"shipping-bot/internal/service"
)

var (
	quoteCarriers   []string
	quoteLimit      int
	quoteConditions []string
	quoteExplain    bool
	quoteNotify     bool
	quoteRealtime   bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote <weight> <destination>",
	Short: "Rank carrier offers for a parcel",
	Long: `Rank carrier offers for a parcel.

The weight accepts kg or g suffixes ("2kg", "500g", "1,5"). A single
free-text argument such as "2kg Australie" is also accepted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination, weight, err := parseQuoteArgs(args)
		if err != nil {
			return err
		}
		if quoteLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		conditions, err := parseConditionFlags(quoteConditions)
		if err != nil {
			return err
		}

		opts := app.QuoteOptions{
			Destination: destination,
			WeightKg:    weight,
			Conditions:  conditions,
			Carriers:    quoteCarriers,
			Limit:       quoteLimit,
			Realtime:    quoteRealtime,
			Notify:      quoteNotify,
			Explain:     quoteExplain,
		}

		return getApp().Quote(cmd.Context(), opts)
	},
}

func init() {
	quoteCmd.Flags().StringSliceVar(&quoteCarriers, "carriers", nil, "Only show these carrier codes (comma-separated)")
	quoteCmd.Flags().IntVar(&quoteLimit, "limit", 0, "Maximum offers to display (defaults to config)")
	quoteCmd.Flags().StringArrayVar(&quoteConditions, "condition", nil, "Delivery attribute as key=value (repeatable)")
	quoteCmd.Flags().BoolVar(&quoteExplain, "explain", false, "Show why each service was priced or skipped")
	quoteCmd.Flags().BoolVar(&quoteNotify, "notify", false, "Send the result to the configured chat")
	quoteCmd.Flags().BoolVar(&quoteRealtime, "realtime", false, "Include live carrier API rates")
}

func parseQuoteArgs(args []string) (string, decimal.Decimal, error) {
	if len(args) == 1 {
		q, err := service.ParseQuery(args[0])
		if err != nil {
			return "", decimal.Decimal{}, err
		}
		return q.Destination, q.WeightKg, nil
	}
	weight, err := service.ParseWeight(args[0])
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	return strings.Join(args[1:], " "), weight, nil
}

func parseConditionFlags(values []string) (refdata.Conditions, error) {
	out := refdata.Conditions{}
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --condition %q: expected key=value", v)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
