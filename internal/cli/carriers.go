package cli

import (
	"github.com/spf13/cobra"
)

var carriersCmd = &cobra.Command{
	Use:   "carriers",
	Short: "List loaded carriers and their service counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Carriers(cmd.Context())
	},
}
