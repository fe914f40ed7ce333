package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/ccsweep/internal/service"
	"github.com/wesleyorama2/ccsweep/internal/sweep"
)

var testCell = service.Cell{
	Service:   service.Definition{Name: "nginx", TargetURL: "https://www.netlab.com/x"},
	Algorithm: "bbr",
	Load:      service.LoadProfile{Requests: 100, Concurrency: 10},
}

func newTestConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewConsole(ConsoleConfig{Writer: &buf, NoColor: true}), &buf
}

func TestConsole_StageLines(t *testing.T) {
	c, buf := newTestConsole()

	c.Preparing("/tmp/data", 4)
	c.StoppingAll("service nginx stop; service apache2 stop")
	c.StartingService(testCell.Service)
	c.SettingAlgorithm("nginx", "bbr")
	c.RunningAttempt(testCell, 0, 2)
	c.AttemptFailed(testCell, 0, errors.New("exit status 22\nmore detail"), 10*time.Second)
	c.RunningAttempt(testCell, 1, 2)
	c.CellFinished(sweep.CellResult{Cell: testCell, TestName: testCell.TestName(), Attempts: 2})
	c.StoppingService(testCell.Service)

	out := buf.String()
	assert.Contains(t, out, "▶ Preparing 4 cell folders under /tmp/data")
	assert.Contains(t, out, "▶ Stopping all services: service nginx stop; service apache2 stop")
	assert.Contains(t, out, "▶ Starting nginx https://www.netlab.com/x")
	assert.Contains(t, out, "congestion control → bbr")
	assert.Contains(t, out, "[1/4] nginx_bbr_100r10c (attempt 1/2)")
	assert.Contains(t, out, "⚠ attempt 1 of nginx_bbr_100r10c failed: exit status 22; retrying in 10.0s")
	assert.NotContains(t, out, "more detail")
	assert.Contains(t, out, "✓ nginx_bbr_100r10c")
	assert.Contains(t, out, "▶ Stopping nginx")
	assert.NotContains(t, out, "\x1b[", "no escape codes without color")
}

func TestConsole_ProgressCounter(t *testing.T) {
	c, buf := newTestConsole()
	c.Preparing("/d", 2)

	c.RunningAttempt(testCell, 0, 1)
	c.CellFinished(sweep.CellResult{TestName: "a"})
	c.RunningAttempt(testCell, 0, 1)

	out := buf.String()
	assert.Contains(t, out, "[1/2] nginx_bbr_100r10c\n")
	assert.Contains(t, out, "[2/2] nginx_bbr_100r10c\n")
}

func TestConsole_AbandonedCell(t *testing.T) {
	c, buf := newTestConsole()
	c.CellFinished(sweep.CellResult{TestName: "nginx_bbr_100r10c", Attempts: 2, Err: errors.New("connection reset")})
	assert.Contains(t, buf.String(), "✗ nginx_bbr_100r10c abandoned after 2 attempts: connection reset")
}

func TestConsole_Summary(t *testing.T) {
	c, buf := newTestConsole()
	start := time.Now()
	c.PrintSummary(&sweep.Summary{
		SweepID:   "abc",
		Name:      "lab",
		Started:   start,
		Finished:  start.Add(90 * time.Second),
		Succeeded: []sweep.CellResult{{TestName: "ok"}},
		Abandoned: []sweep.CellResult{{TestName: "nginx_bbr_100r10c", Attempts: 2, Err: errors.New("boom")}},
	})

	out := buf.String()
	assert.Contains(t, out, "lab - INCOMPLETE")
	assert.Contains(t, out, "Duration:   1m 30s")
	assert.Contains(t, out, "Succeeded:  1")
	assert.Contains(t, out, "Abandoned:  1")
	assert.Contains(t, out, "✗ nginx_bbr_100r10c (2 attempts): boom")
}

func TestConsole_ForceColors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, ForceColors: true})
	c.StoppingService(testCell.Service)
	assert.Contains(t, buf.String(), "\x1b[")

	buf.Reset()
	c = NewConsole(ConsoleConfig{Writer: &buf, ForceColors: true, NoColor: true})
	c.StoppingService(testCell.Service)
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true})
	c.Preparing("/d", 1)
	c.PrintSummary(&sweep.Summary{})
	assert.Empty(t, buf.String())
}

func TestConsole_PackagingLines(t *testing.T) {
	c, buf := newTestConsole()
	c.Archiving("/out/data.tar.gz")
	c.Uploading("s3", "/out/data.tar.gz")
	c.Uploaded("https://bucket.s3.amazonaws.com/ccsweep/abc/data.tar.gz")
	c.Uploaded("")
	c.Failure(errors.New("uploading failed"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"▶ Archiving results to /out/data.tar.gz",
		"▶ Uploading /out/data.tar.gz via s3",
		"  ✓ uploaded: https://bucket.s3.amazonaws.com/ccsweep/abc/data.tar.gz",
		"✗ uploading failed",
	}, lines)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestColorSchemes(t *testing.T) {
	for _, scheme := range []*ColorScheme{DefaultColorScheme(), NoColorScheme()} {
		for _, c := range scheme.all() {
			assert.NotNil(t, c)
		}
	}
	assert.Equal(t, "plain", NoColorScheme().Error.Sprint("plain"))
	assert.Equal(t, "✓", SuccessIcon(true))
	assert.Equal(t, "✗", ErrorIcon(true))
	assert.Equal(t, "⚠", WarningIcon(true))
}

func TestUseColors(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, UseColors(&buf, false), "buffers are not terminals")
	assert.False(t, UseColors(&buf, true))
}
