package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/output"
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Check a sweep configuration file",
	Example: `  ccsweep validate -c sweep.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		return validateConfig(cmd.OutOrStdout(), configFile)
	},
}

func validateConfig(w io.Writer, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	cells := len(cfg.Services) * len(cfg.Algorithms) * len(cfg.Loads)
	_, err = fmt.Fprintf(w, "%s %s is valid: %d services × %d algorithms × %d loads = %d cells\n",
		output.SuccessIcon(noColor), configFile, len(cfg.Services), len(cfg.Algorithms), len(cfg.Loads), cells)
	return err
}

func init() {
	validateCmd.Flags().StringP("config", "c", "", "Sweep configuration file (YAML or JSON)")
	_ = validateCmd.MarkFlagRequired("config")
}
