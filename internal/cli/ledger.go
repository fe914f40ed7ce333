package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/ledger"
	"github.com/wesleyorama2/ccsweep/internal/output"
)

type ledgerOptions struct {
	ConfigFile string
	DBPath     string
	SweepID    string
	All        bool
	Abandoned  bool
	Format     string
	NoColor    bool
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recorded sweeps and the status of their cells",
	Long: `Show the run ledger. By default the most recent sweep is listed with
one line per cell; abandoned cells are the gaps in the data set.`,
	Example: `  ccsweep ledger -c sweep.yaml
  ccsweep ledger --db results/ledger.db --abandoned
  ccsweep ledger -c sweep.yaml --all --format junit > sweeps.xml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := ledgerOptions{NoColor: noColor}
		opts.ConfigFile, _ = cmd.Flags().GetString("config")
		opts.DBPath, _ = cmd.Flags().GetString("db")
		opts.SweepID, _ = cmd.Flags().GetString("sweep")
		opts.All, _ = cmd.Flags().GetBool("all")
		opts.Abandoned, _ = cmd.Flags().GetBool("abandoned")
		opts.Format, _ = cmd.Flags().GetString("format")
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			opts.Format = string(output.FormatJSON)
		}
		return showLedger(cmd.OutOrStdout(), opts)
	},
}

func showLedger(w io.Writer, opts ledgerOptions) error {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	path, err := ledgerPath(opts)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no ledger at %s: %w", path, err)
	}
	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeps, err := selectSweeps(store, opts)
	if err != nil {
		return err
	}

	reports := make([]output.LedgerReport, 0, len(sweeps))
	for _, sw := range sweeps {
		entries, err := store.Entries(sw.ID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		if opts.Abandoned {
			entries = ledger.Filter(entries, ledger.StatusAbandoned)
		}
		reports = append(reports, output.LedgerReport{Sweep: sw, Entries: entries})
	}

	return output.WriteLedger(w, format, reports, opts.NoColor)
}

func ledgerPath(opts ledgerOptions) (string, error) {
	switch {
	case opts.DBPath != "":
		return opts.DBPath, nil
	case opts.ConfigFile != "":
		cfg, err := config.LoadConfig(opts.ConfigFile)
		if err != nil {
			return "", err
		}
		if cfg.Ledger.Disabled {
			return "", fmt.Errorf("the ledger is disabled in %s", opts.ConfigFile)
		}
		return cfg.LedgerPath(), nil
	default:
		return "", errors.New("either --config or --db is required")
	}
}

func selectSweeps(store *ledger.Store, opts ledgerOptions) ([]ledger.Sweep, error) {
	switch {
	case opts.SweepID != "":
		sw, err := store.Sweep(opts.SweepID)
		if err != nil {
			return nil, err
		}
		return []ledger.Sweep{*sw}, nil
	case opts.All:
		return store.Sweeps()
	default:
		sw, err := store.Latest()
		if err != nil {
			return nil, err
		}
		return []ledger.Sweep{*sw}, nil
	}
}

func init() {
	ledgerCmd.Flags().StringP("config", "c", "", "Sweep configuration file whose ledger to read")
	ledgerCmd.Flags().String("db", "", "Ledger database file")
	ledgerCmd.Flags().String("sweep", "", "Show this sweep instead of the latest")
	ledgerCmd.Flags().Bool("all", false, "Show every recorded sweep")
	ledgerCmd.Flags().Bool("abandoned", false, "Only list abandoned cells")
	ledgerCmd.Flags().Bool("json", false, "Shorthand for --format json")
	ledgerCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml, junit)")
	ledgerCmd.MarkFlagsMutuallyExclusive("config", "db")
	ledgerCmd.MarkFlagsMutuallyExclusive("sweep", "all")
}
