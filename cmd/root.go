package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"balloon/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "balloon",
	Short: "Drawing dimension extraction and CMM report matching",
	Long: `Balloon numbers the dimension callouts of an engineering drawing and
reconciles CMM measurement reports against them.

  extract    PDF drawing → numbered features (session file)
  dimension  one callout → structured specification
  report     CMM report → normalized measurement records
  match      session + report → actual, deviation and PASS/FAIL per feature
  ocr        page image → recognized text`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: applyLogLevel,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Debug().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (trace, debug, info, warn, error)")
}

func applyLogLevel(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		return nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}
