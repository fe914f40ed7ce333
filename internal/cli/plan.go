package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/output"
	"github.com/wesleyorama2/ccsweep/internal/service"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the cells a sweep would run, in order",
	Long: `Print every cell of the matrix in traversal order with its test name,
output file and benchmark command. The remote host is not contacted.`,
	Example: `  ccsweep plan -c sweep.yaml
  ccsweep plan -c sweep.yaml --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		format, _ := cmd.Flags().GetString("format")
		return writePlan(cmd.OutOrStdout(), configFile, format)
	},
}

func writePlan(w io.Writer, configFile, format string) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	defs, loads := service.FromConfig(cfg)
	bench := service.BenchFromConfig(cfg)
	root := cfg.DataRoot()

	var plan []output.PlanCell
	for _, cell := range service.Matrix(defs, cfg.Algorithms, loads) {
		plan = append(plan, output.PlanCell{
			TestName:   cell.TestName(),
			Folder:     cell.Folder(root),
			OutputPath: cell.OutputPath(root),
			Command:    service.BenchmarkCommand(bench, cell.Service, cell.Load, cell.ArtifactPath(root)),
		})
	}
	return output.WritePlan(w, f, plan)
}

func init() {
	planCmd.Flags().StringP("config", "c", "", "Sweep configuration file (YAML or JSON)")
	planCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	_ = planCmd.MarkFlagRequired("config")
}
