package commands

import (
	"context"
	"fmt"
	"os"

	"blogtoggle/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	verbose    *bool
	configPath *string
	overrides  Config
)

var rootCmd = &cobra.Command{
	Use:   "blogtoggle",
	Short: "blogtoggle presses the favorite and follow buttons of the blog, or serves a local copy of it.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	verbose = flags.BoolP("verbose", "v", false, "Enable debug logging.")
	configPath = flags.String("config", "blogtoggle.json5", "The config file to read, looked up from the cwd upwards.")
	flags.StringVar(&overrides.BaseUrl, "base-url", "", "The blog's base url, overrides the config.")
	flags.StringVar(&overrides.Username, "username", "", "The user to log in as, overrides the config.")
	flags.StringVar(&overrides.Password, "password", "", "The password to log in with, overrides the config.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
