package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/executor"
	"github.com/wesleyorama2/ccsweep/internal/ledger"
	"github.com/wesleyorama2/ccsweep/internal/output"
	"github.com/wesleyorama2/ccsweep/internal/packager"
	"github.com/wesleyorama2/ccsweep/internal/retry"
	"github.com/wesleyorama2/ccsweep/internal/service"
	"github.com/wesleyorama2/ccsweep/internal/sweep"
)

type runOptions struct {
	ConfigFile string
	DryRun     bool
	NoPackage  bool
	Quiet      bool
	NoColor    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark sweep described by a configuration file",
	Long: `Run every cell of the service × algorithm × load matrix.

Services are stopped, started and switched through the container on the
remote host. Each cell is retried up to the configured budget and then
abandoned; a failed lifecycle step aborts the sweep. When the sweep
completes the data tree is archived and, if configured, uploaded.`,
	Example: `  ccsweep run -c sweep.yaml
  ccsweep run -c sweep.yaml --dry-run
  ccsweep run -c sweep.yaml --no-package --level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noPackage, _ := cmd.Flags().GetBool("no-package")
		quiet, _ := cmd.Flags().GetBool("quiet")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSweep(ctx, cmd.OutOrStdout(), runOptions{
			ConfigFile: configFile,
			DryRun:     dryRun,
			NoPackage:  noPackage,
			Quiet:      quiet,
			NoColor:    noColor,
		})
	},
}

func runSweep(ctx context.Context, w io.Writer, opts runOptions) error {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  w,
		NoColor: opts.NoColor,
		Quiet:   opts.Quiet,
	})

	env, err := newEnvironment(cfg, w, opts.DryRun)
	if err != nil {
		return err
	}
	defer env.close()

	defs, loads := service.FromConfig(cfg)
	runner, err := sweep.NewRunner(sweep.Options{
		Name:        cfg.Name,
		Local:       env.local,
		Remote:      env.remote,
		Container:   env.container,
		ContainerID: cfg.Container.ID,
		Services:    defs,
		Algorithms:  cfg.Algorithms,
		Loads:       loads,
		DataRoot:    env.dataRoot,
		Bench:       service.BenchFromConfig(cfg),
		Retry: retry.Policy{
			MaxRetry: cfg.Retry.GetMaxRetry(),
			Delay:    cfg.Retry.GetDelay(),
		},
		Congestion: sweep.Congestion{
			Parameter: cfg.Congestion.Parameter,
			Verify:    !cfg.Congestion.SkipVerify && !opts.DryRun,
		},
		Reporter: console,
		Recorder: env.recorder,
	})
	if err != nil {
		return err
	}

	console.PrintHeader(cfg.Name, len(defs), len(cfg.Algorithms), len(loads))
	sum, err := runner.Run(ctx)
	console.PrintSummary(sum)
	if err != nil {
		return err
	}

	if opts.DryRun || opts.NoPackage {
		return nil
	}

	packageResults(ctx, console, cfg, sum.SweepID)
	return nil
}

// packageResults archives the data tree and uploads the archive. Failures
// are reported and logged but never change the exit status; the raw results
// stay on disk either way. It returns the archive path, or "" when there is
// no archive.
func packageResults(ctx context.Context, console *output.Console, cfg *config.SweepConfig, sweepID string) string {
	pkgOpts := packager.FromConfig(cfg, sweepID)
	pkgOpts.Reporter = console
	archive, err := packager.New(pkgOpts).Package(ctx)
	if err == nil {
		return archive
	}

	console.Failure(err)
	msg := "packaging failed"
	var uploadErr *packager.UploadError
	if errors.As(err, &uploadErr) {
		msg = "upload failed"
	}
	grip.Error(message.WrapError(err, message.Fields{
		"message":  msg,
		"archive":  archive,
		"data":     cfg.DataRoot(),
		"sweep_id": sweepID,
	}))
	return archive
}

// environment holds the executors and ledger a sweep runs with.
type environment struct {
	local     executor.LocalRunner
	remote    executor.RemoteRunner
	container executor.ContainerRunner
	recorder  sweep.Recorder
	dataRoot  string

	closers []func() error
}

func newEnvironment(cfg *config.SweepConfig, w io.Writer, dryRun bool) (*environment, error) {
	if dryRun {
		return newDryRunEnvironment(cfg, w)
	}

	remote := executor.NewRemote(executor.RemoteOptions{
		Host:           cfg.Remote.Host,
		Port:           cfg.Remote.Port,
		User:           cfg.Remote.User,
		KeyFile:        cfg.Remote.KeyFile,
		KnownHostsFile: cfg.Remote.KnownHostsFile,
		ConnectTimeout: cfg.Remote.ConnectTimeout.GetDuration(config.DefaultConnectTimeout),
	})

	env := &environment{
		local:     executor.NewLocal(),
		remote:    remote,
		container: executor.NewContainerRelay(remote, cfg.Container.Runtime, cfg.Container.Shell),
		dataRoot:  cfg.DataRoot(),
		closers:   []func() error{remote.Close},
	}

	if cfg.Ledger.Disabled {
		return env, nil
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "running without a ledger",
			"path":    cfg.LedgerPath(),
		}))
		return env, nil
	}
	env.recorder = store
	env.closers = append(env.closers, store.Close)
	return env, nil
}

func (e *environment) close() {
	catcher := grip.NewBasicCatcher()
	for _, fn := range e.closers {
		catcher.Add(fn())
	}
	grip.Warning(message.WrapError(catcher.Resolve(), "releasing sweep resources"))
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Sweep configuration file (YAML or JSON)")
	runCmd.Flags().Bool("dry-run", false, "Print every command instead of running it")
	runCmd.Flags().Bool("no-package", false, "Skip archiving and uploading the results")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
	_ = runCmd.MarkFlagRequired("config")
}
