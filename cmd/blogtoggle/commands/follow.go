package commands

import (
	"net/url"

	"blogtoggle/internal/toggle"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(followCmd)
}

var followCmd = &cobra.Command{
	Use:   "follow <username>",
	Short: "Toggles whether the logged in user follows another user.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		handler := toggle.Follow.WithLabels(cfg.Labels.Follow)
		return press(cmd.Context(), cmd.OutOrStdout(), cfg, "/users/"+url.PathEscape(args[0]), handler)
	},
}
