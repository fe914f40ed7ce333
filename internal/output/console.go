// Package output renders sweep progress for the operator and formats ledger
// contents.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wesleyorama2/ccsweep/internal/service"
	"github.com/wesleyorama2/ccsweep/internal/sweep"
)

const rule = "━"

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool
	Quiet       bool
}

// Console prints one line per stage as the sweep advances. It implements
// sweep.Reporter and packager.Reporter.
type Console struct {
	w       io.Writer
	scheme  *ColorScheme
	noColor bool
	quiet   bool

	total int
	done  int
}

// NewConsole creates a console writer. Colors are used only on a terminal
// that supports them, unless forced.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	useColors := !cfg.NoColor && (cfg.ForceColors || UseColors(cfg.Writer, false))
	scheme := NoColorScheme()
	if useColors {
		scheme = DefaultColorScheme().forceColors()
	}

	return &Console{
		w:       cfg.Writer,
		scheme:  scheme,
		noColor: !useColors,
		quiet:   cfg.Quiet,
	}
}

// PrintHeader prints the sweep banner.
func (c *Console) PrintHeader(name string, services, algorithms, loads int) {
	line := strings.Repeat(rule, 56)
	c.writeln(c.scheme.Stage.Sprint(line))
	c.writeln(fmt.Sprintf("%s  %d services × %d algorithms × %d loads = %d cells",
		c.scheme.Highlight.Sprint(name), services, algorithms, loads, services*algorithms*loads))
	c.writeln(c.scheme.Stage.Sprint(line))
}

// Preparing implements sweep.Reporter.
func (c *Console) Preparing(dataRoot string, cells int) {
	c.total = cells
	c.done = 0
	c.stage(fmt.Sprintf("Preparing %d cell folders under %s", cells, dataRoot))
}

// StoppingAll implements sweep.Reporter.
func (c *Console) StoppingAll(command string) {
	c.stage("Stopping all services: " + c.scheme.Dim.Sprint(command))
}

// StartingService implements sweep.Reporter.
func (c *Console) StartingService(def service.Definition) {
	c.stage(fmt.Sprintf("Starting %s %s", c.scheme.Service.Sprint(def.Name), c.scheme.Dim.Sprint(def.TargetURL)))
}

// SettingAlgorithm implements sweep.Reporter.
func (c *Console) SettingAlgorithm(serviceName, algorithm string) {
	c.writeln(fmt.Sprintf("  ↻ %s: congestion control → %s", serviceName, c.scheme.Algorithm.Sprint(algorithm)))
}

// RunningAttempt implements sweep.Reporter.
func (c *Console) RunningAttempt(cell service.Cell, attempt, attempts int) {
	progress := fmt.Sprintf("[%d/%d]", c.done+1, c.total)
	line := fmt.Sprintf("    ▷ %s %s", c.scheme.Dim.Sprint(progress), c.scheme.Cell.Sprint(cell.TestName()))
	if attempts > 1 {
		line += c.scheme.Dim.Sprintf(" (attempt %d/%d)", attempt+1, attempts)
	}
	c.writeln(line)
}

// AttemptFailed implements sweep.Reporter.
func (c *Console) AttemptFailed(cell service.Cell, attempt int, err error, retryIn time.Duration) {
	c.writeln(fmt.Sprintf("    %s attempt %d of %s failed: %s; retrying in %s",
		WarningIcon(c.noColor), attempt+1, cell.TestName(),
		c.scheme.Warn.Sprint(firstLine(err)), formatDuration(retryIn)))
}

// CellFinished implements sweep.Reporter.
func (c *Console) CellFinished(res sweep.CellResult) {
	c.done++
	elapsed := formatDuration(res.Finished.Sub(res.Started))
	if res.Succeeded() {
		c.writeln(fmt.Sprintf("    %s %s %s", SuccessIcon(c.noColor), res.TestName, c.scheme.Dim.Sprint(elapsed)))
		return
	}
	c.writeln(fmt.Sprintf("    %s %s abandoned after %d attempts: %s",
		ErrorIcon(c.noColor), c.scheme.Error.Sprint(res.TestName), res.Attempts, firstLine(res.Err)))
}

// StoppingService implements sweep.Reporter.
func (c *Console) StoppingService(def service.Definition) {
	c.stage("Stopping " + c.scheme.Service.Sprint(def.Name))
}

// Archiving implements packager.Reporter.
func (c *Console) Archiving(archivePath string) {
	c.stage("Archiving results to " + archivePath)
}

// Uploading implements packager.Reporter.
func (c *Console) Uploading(method, archivePath string) {
	c.stage(fmt.Sprintf("Uploading %s via %s", archivePath, method))
}

// Uploaded implements packager.Reporter.
func (c *Console) Uploaded(location string) {
	if location == "" {
		return
	}
	c.writeln(fmt.Sprintf("  %s uploaded: %s", SuccessIcon(c.noColor), c.scheme.Highlight.Sprint(location)))
}

// PrintSummary prints the outcome of a sweep. The abandoned cells are listed
// so gaps in the data are visible.
func (c *Console) PrintSummary(sum *sweep.Summary) {
	if sum == nil {
		return
	}
	line := strings.Repeat(rule, 56)

	status := c.scheme.Success.Sprint("COMPLETE")
	if len(sum.Abandoned) > 0 {
		status = c.scheme.Warn.Sprint("INCOMPLETE")
	}

	c.writeln("")
	c.writeln(c.scheme.Stage.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Highlight.Sprint(sum.Name), status))
	c.writeln(c.scheme.Stage.Sprint(line))
	c.writeln(fmt.Sprintf("Sweep:      %s", sum.SweepID))
	c.writeln(fmt.Sprintf("Duration:   %s", formatDuration(sum.Finished.Sub(sum.Started))))
	c.writeln(fmt.Sprintf("Succeeded:  %s", c.scheme.Success.Sprint(len(sum.Succeeded))))
	c.writeln(fmt.Sprintf("Abandoned:  %s", c.abandonedCount(len(sum.Abandoned))))

	for _, res := range sum.Abandoned {
		c.writeln(fmt.Sprintf("  %s %s (%d attempts): %s", ErrorIcon(c.noColor), res.TestName, res.Attempts, firstLine(res.Err)))
	}
}

// Failure prints a fatal or packaging error.
func (c *Console) Failure(err error) {
	if err == nil {
		return
	}
	c.writeln(fmt.Sprintf("%s %s", ErrorIcon(c.noColor), c.scheme.Error.Sprint(err.Error())))
}

func (c *Console) abandonedCount(n int) string {
	if n == 0 {
		return c.scheme.Success.Sprint(n)
	}
	return c.scheme.Error.Sprint(n)
}

func (c *Console) stage(msg string) {
	c.writeln(c.scheme.Stage.Sprint("▶ ") + msg)
}

func (c *Console) writeln(s string) {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.w, s)
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}
