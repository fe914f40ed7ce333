// Package sweep runs the benchmark matrix against the remote host.
//
// Services form the outer loop, algorithms the middle loop and load profiles
// the inner loop. Every remote change goes through a RemoteState so that the
// ordering rules are checked, not just followed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"

	"github.com/wesleyorama2/ccsweep/internal/executor"
	"github.com/wesleyorama2/ccsweep/internal/ledger"
	"github.com/wesleyorama2/ccsweep/internal/retry"
	"github.com/wesleyorama2/ccsweep/internal/service"
)

// Congestion selects how algorithms are applied on the remote host.
type Congestion struct {
	// Parameter is the kernel parameter, e.g. net.ipv4.tcp_congestion_control
	Parameter string

	// Verify reads the parameter back after writing it
	Verify bool
}

// Options configures a Runner.
type Options struct {
	Name string

	Local       executor.LocalRunner
	Remote      executor.RemoteRunner
	Container   executor.ContainerRunner
	ContainerID string

	Services   []service.Definition
	Algorithms []string
	Loads      []service.LoadProfile
	DataRoot   string
	Bench      service.Bench

	Retry      retry.Policy
	Congestion Congestion

	// Reporter and Recorder are optional
	Reporter Reporter
	Recorder Recorder
}

// CellResult is the outcome of one matrix cell.
type CellResult struct {
	Cell     service.Cell
	TestName string
	Attempts int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether any attempt succeeded.
func (r CellResult) Succeeded() bool { return r.Err == nil }

// Summary describes a finished, or aborted, sweep.
type Summary struct {
	SweepID   string
	Name      string
	Started   time.Time
	Finished  time.Time
	Succeeded []CellResult
	Abandoned []CellResult
}

// Total is the number of cells that ran to a conclusion.
func (s *Summary) Total() int { return len(s.Succeeded) + len(s.Abandoned) }

// Runner executes a sweep. It is not safe for concurrent use.
type Runner struct {
	opts  Options
	cells []service.Cell
}

// NewRunner checks the options and builds a runner.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Local == nil:
		return nil, errors.New("local executor is required")
	case opts.Remote == nil:
		return nil, errors.New("remote executor is required")
	case opts.Container == nil:
		return nil, errors.New("container executor is required")
	case opts.ContainerID == "":
		return nil, errors.New("container id is required")
	case len(opts.Services) == 0 || len(opts.Algorithms) == 0 || len(opts.Loads) == 0:
		return nil, errors.New("the matrix needs at least one service, algorithm and load profile")
	case opts.DataRoot == "":
		return nil, errors.New("data root is required")
	}

	if opts.Congestion.Parameter == "" {
		opts.Congestion.Parameter = "net.ipv4.tcp_congestion_control"
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}

	return &Runner{
		opts:  opts,
		cells: service.Matrix(opts.Services, opts.Algorithms, opts.Loads),
	}, nil
}

// Cells returns the matrix in traversal order.
func (r *Runner) Cells() []service.Cell {
	return r.cells
}

// Prepare creates the folder of every cell. Existing folders are fine.
func (r *Runner) Prepare() error {
	r.opts.Reporter.Preparing(r.opts.DataRoot, len(r.cells))

	catcher := grip.NewBasicCatcher()
	for _, cell := range r.cells {
		catcher.Wrapf(os.MkdirAll(cell.Folder(r.opts.DataRoot), 0755), "creating folder for %s", cell.TestName())
	}
	return catcher.Resolve()
}

// Run prepares the output tree and executes every cell. Cells whose attempts
// are all exhausted are abandoned and the sweep moves on; a failed lifecycle
// transition aborts the sweep with a *TransitionError. The summary is
// returned even on error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		SweepID: uuid.New().String(),
		Name:    r.opts.Name,
		Started: time.Now(),
	}
	r.beginSweep(sum)
	defer r.finishSweep(sum)

	if err := r.Prepare(); err != nil {
		return sum, fmt.Errorf("preparing output directories: %w", err)
	}

	state := NewRemoteState()
	stopAll := service.StopAllCommand(r.opts.Services)
	r.opts.Reporter.StoppingAll(stopAll)
	err := state.StopAll(func() error {
		_, err := r.opts.Container.Run(ctx, r.opts.ContainerID, stopAll)
		return err
	})
	if err != nil {
		return sum, &TransitionError{Stage: StageStopAll, Cause: err}
	}

	for _, def := range r.opts.Services {
		if err := r.runService(ctx, state, def, sum); err != nil {
			return sum, err
		}
	}

	grip.Info(message.Fields{
		"message":   "sweep finished",
		"sweep_id":  sum.SweepID,
		"succeeded": len(sum.Succeeded),
		"abandoned": len(sum.Abandoned),
		"duration":  time.Since(sum.Started).String(),
	})
	return sum, nil
}

func (r *Runner) runService(ctx context.Context, state *RemoteState, def service.Definition, sum *Summary) error {
	r.opts.Reporter.StartingService(def)
	err := state.StartService(def.Name, func() error {
		_, err := r.opts.Container.Run(ctx, r.opts.ContainerID, def.StartCommand)
		return err
	})
	if err != nil {
		return &TransitionError{Stage: StageStart, Service: def.Name, Cause: err}
	}

	for _, algo := range r.opts.Algorithms {
		r.opts.Reporter.SettingAlgorithm(def.Name, algo)
		if err := state.SetAlgorithm(algo, func() error { return r.setAlgorithm(ctx, algo) }); err != nil {
			return &TransitionError{Stage: StageSetAlgorithm, Service: def.Name, Algorithm: algo, Cause: err}
		}

		for _, load := range r.opts.Loads {
			cell := service.Cell{Service: def, Algorithm: algo, Load: load}
			if err := state.RequireActive(def.Name, algo); err != nil {
				return &TransitionError{Stage: StageRun, Service: def.Name, Algorithm: algo, Cause: err}
			}
			if err := r.runCell(ctx, cell, sum); err != nil {
				return err
			}
		}
	}

	r.opts.Reporter.StoppingService(def)
	err = state.StopService(def.Name, func() error {
		_, err := r.opts.Container.Run(ctx, r.opts.ContainerID, def.StopCommand)
		return err
	})
	if err != nil {
		return &TransitionError{Stage: StageStop, Service: def.Name, Cause: err}
	}
	return nil
}

func (r *Runner) setAlgorithm(ctx context.Context, algo string) error {
	param := r.opts.Congestion.Parameter
	if _, err := r.opts.Remote.Run(ctx, shellquote.Join("sysctl", "-w", param+"="+algo)); err != nil {
		return err
	}
	if !r.opts.Congestion.Verify {
		return nil
	}

	out, err := r.opts.Remote.Run(ctx, shellquote.Join("sysctl", "-n", param))
	if err != nil {
		return fmt.Errorf("reading back %s: %w", param, err)
	}
	if got := strings.TrimSpace(string(out)); got != algo {
		return fmt.Errorf("%s is %q after setting it to %q", param, got, algo)
	}
	return nil
}

// runCell executes one cell under the retry policy. Only cancellation is
// returned as an error; exhausted cells are recorded as abandoned.
func (r *Runner) runCell(ctx context.Context, cell service.Cell, sum *Summary) error {
	root := r.opts.DataRoot
	outPath := cell.OutputPath(root)
	argv := service.BenchmarkCommand(r.opts.Bench, cell.Service, cell.Load, cell.ArtifactPath(root))

	policy := r.opts.Retry
	policy.OnFailure = func(attempt int, err error, willRetry bool) {
		grip.Warning(message.WrapError(err, message.Fields{
			"message":    "benchmark attempt failed",
			"test":       cell.TestName(),
			"attempt":    attempt,
			"will_retry": willRetry,
		}))
		if willRetry {
			r.opts.Reporter.AttemptFailed(cell, attempt, err, policy.Delay)
		}
	}

	res := CellResult{Cell: cell, TestName: cell.TestName(), Started: time.Now()}
	res.Attempts, res.Err = policy.Do(ctx, func(attempt int) error {
		r.opts.Reporter.RunningAttempt(cell, attempt, policy.Attempts())
		return r.runAttempt(ctx, argv, outPath)
	})
	res.Finished = time.Now()

	if ctx.Err() != nil {
		return fmt.Errorf("sweep interrupted during %s: %w", res.TestName, ctx.Err())
	}

	if res.Err == nil {
		sum.Succeeded = append(sum.Succeeded, res)
	} else {
		grip.Warning(message.Fields{
			"message":   "abandoned cell",
			"sweep_id":  sum.SweepID,
			"test":      res.TestName,
			"service":   cell.Service.Name,
			"algorithm": cell.Algorithm,
			"requests":  cell.Load.Requests,
			"conc":      cell.Load.Concurrency,
			"attempts":  res.Attempts,
			"error":     res.Err.Error(),
		})
		sum.Abandoned = append(sum.Abandoned, res)
	}
	r.opts.Reporter.CellFinished(res)
	r.record(sum.SweepID, res)
	return nil
}

// runAttempt truncates the output file and streams the benchmark into it.
func (r *Runner) runAttempt(ctx context.Context, argv []string, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}

	_, runErr := r.opts.Local.Run(ctx, argv, f)
	closeErr := f.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing output file: %w", closeErr)
	}
	return nil
}

func (r *Runner) beginSweep(sum *Summary) {
	if r.opts.Recorder == nil {
		return
	}
	err := r.opts.Recorder.BeginSweep(ledger.Sweep{
		ID:       sum.SweepID,
		Name:     sum.Name,
		DataRoot: r.opts.DataRoot,
		Cells:    len(r.cells),
		Started:  sum.Started,
	})
	grip.Warning(message.WrapError(err, message.Fields{
		"message":  "could not register sweep in ledger",
		"sweep_id": sum.SweepID,
	}))
}

func (r *Runner) finishSweep(sum *Summary) {
	sum.Finished = time.Now()
	if r.opts.Recorder == nil {
		return
	}
	grip.Warning(message.WrapError(r.opts.Recorder.FinishSweep(sum.SweepID, sum.Finished), message.Fields{
		"message":  "could not finish sweep in ledger",
		"sweep_id": sum.SweepID,
	}))
}

func (r *Runner) record(sweepID string, res CellResult) {
	if r.opts.Recorder == nil {
		return
	}

	entry := ledger.Entry{
		SweepID:      sweepID,
		TestName:     res.TestName,
		Service:      res.Cell.Service.Name,
		Algorithm:    res.Cell.Algorithm,
		Requests:     res.Cell.Load.Requests,
		Concurrency:  res.Cell.Load.Concurrency,
		Status:       ledger.StatusSucceeded,
		Attempts:     res.Attempts,
		OutputPath:   res.Cell.OutputPath(r.opts.DataRoot),
		ArtifactPath: res.Cell.ArtifactPath(r.opts.DataRoot),
		Started:      res.Started,
		Finished:     res.Finished,
	}
	if res.Err != nil {
		entry.Status = ledger.StatusAbandoned
		entry.Error = res.Err.Error()
	}

	grip.Warning(message.WrapError(r.opts.Recorder.Record(entry), message.Fields{
		"message": "could not record cell in ledger",
		"test":    res.TestName,
	}))
}
