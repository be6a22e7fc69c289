package commands

import (
	"fmt"
	"strconv"

	"blogtoggle/internal/toggle"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(favoriteCmd)
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <article-id>",
	Short: "Toggles whether the logged in user has favorited an article.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid article id '%s'", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		handler := toggle.Favorite.WithLabels(cfg.Labels.Favorite)
		return press(cmd.Context(), cmd.OutOrStdout(), cfg, fmt.Sprintf("/articles/%d", id), handler)
	},
}
