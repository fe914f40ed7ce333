package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/ledger"
	"github.com/wesleyorama2/ccsweep/internal/output"
)

const testConfig = `name: lab
outputDir: results
target:
  server: www.netlab.com
  path: /sample-3s.mp3
remote:
  host: 192.168.0.15
  user: root
  keyFile: /nonexistent/id_ed25519
container:
  id: 29df
services:
  - name: nginx
    start: service nginx start
    stop: service nginx stop
  - name: caddy
    start: caddy start
    stop: caddy stop
algorithms: [cubic, bbr]
loads:
  - requests: 100
    concurrency: 10
retry:
  maxRetry: 0
  delay: 1ms
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestValidateConfig(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, validateConfig(&buf, writeConfig(t, testConfig)))
		assert.Contains(t, buf.String(), "is valid: 2 services × 2 algorithms × 1 loads = 4 cells")
	})
	t.Run("Invalid", func(t *testing.T) {
		body := strings.Replace(testConfig, "algorithms: [cubic, bbr]", "algorithms: [cubic, cubic]", 1)
		err := validateConfig(&bytes.Buffer{}, writeConfig(t, body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate algorithm")
	})
	t.Run("Missing", func(t *testing.T) {
		err := validateConfig(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestWritePlan(t *testing.T) {
	path := writeConfig(t, testConfig)

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePlan(&buf, path, "text"))

		out := buf.String()
		order := []string{
			"nginx_cubic_100r10c",
			"nginx_bbr_100r10c",
			"caddy_cubic_100r10c",
			"caddy_bbr_100r10c",
		}
		last := -1
		for _, name := range order {
			idx := strings.Index(out, name)
			require.GreaterOrEqual(t, idx, 0, "missing %s", name)
			assert.Greater(t, idx, last, "%s out of order", name)
			last = idx
		}
		assert.Contains(t, out, "ab -n 100 -c 10")
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePlan(&buf, path, "json"))

		var cells []output.PlanCell
		require.NoError(t, json.Unmarshal(buf.Bytes(), &cells))
		require.Len(t, cells, 4)

		root := filepath.Join(filepath.Dir(path), "results", "data")
		assert.Equal(t, filepath.Join(root, "nginx", "cubic", "100r10c"), cells[0].Folder)
		assert.Equal(t, filepath.Join(cells[0].Folder, "nginx_cubic_100r10c_out.txt"), cells[0].OutputPath)
		assert.Equal(t, "https://www.netlab.com/sample-3s.mp3", cells[0].Command[len(cells[0].Command)-1])
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		assert.Error(t, writePlan(&bytes.Buffer{}, path, "junit"))
		assert.Error(t, writePlan(&bytes.Buffer{}, path, "csv"))
	})

	t.Run("DoesNotTouchDisk", func(t *testing.T) {
		require.NoError(t, writePlan(&bytes.Buffer{}, path, "text"))
		_, err := os.Stat(filepath.Join(filepath.Dir(path), "results"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestRunSweep_DryRun(t *testing.T) {
	path := writeConfig(t, testConfig)

	var buf bytes.Buffer
	err := runSweep(t.Context(), &buf, runOptions{ConfigFile: path, DryRun: true, NoColor: true})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[ssh root@192.168.0.15] docker exec 29df bash -c")
	assert.Contains(t, out, "sysctl -w")
	assert.Contains(t, out, "=bbr")
	assert.Contains(t, out, "[local] ab -n 100 -c 10")
	assert.Contains(t, out, "COMPLETE")
	assert.NotContains(t, out, "INCOMPLETE")
	assert.Equal(t, 4, strings.Count(out, "[local] "))

	// nothing is written next to the config: no data tree, ledger or archive
	_, err = os.Stat(filepath.Join(filepath.Dir(path), "results"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunSweep_Quiet(t *testing.T) {
	var buf bytes.Buffer
	err := runSweep(t.Context(), &buf, runOptions{ConfigFile: writeConfig(t, testConfig), DryRun: true, Quiet: true})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "COMPLETE")
}

func TestRunSweep_BadConfig(t *testing.T) {
	err := runSweep(t.Context(), &bytes.Buffer{}, runOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func seedLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.BeginSweep(ledger.Sweep{ID: "old", Name: "lab", Cells: 1, Started: base}))
	require.NoError(t, store.Record(ledger.Entry{SweepID: "old", TestName: "nginx_cubic_100r10c", Status: ledger.StatusSucceeded, Attempts: 1}))

	require.NoError(t, store.BeginSweep(ledger.Sweep{ID: "new", Name: "lab", Cells: 2, Started: base.Add(time.Hour)}))
	require.NoError(t, store.Record(ledger.Entry{SweepID: "new", TestName: "nginx_bbr_100r10c", Status: ledger.StatusSucceeded, Attempts: 1}))
	require.NoError(t, store.Record(ledger.Entry{SweepID: "new", TestName: "caddy_bbr_100r10c", Status: ledger.StatusAbandoned, Attempts: 2, Error: "exit status 22"}))
	return path
}

func TestShowLedger(t *testing.T) {
	db := seedLedger(t)

	t.Run("LatestByDefault", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showLedger(&buf, ledgerOptions{DBPath: db, NoColor: true}))
		assert.Contains(t, buf.String(), "nginx_bbr_100r10c")
		assert.Contains(t, buf.String(), "exit status 22")
		assert.NotContains(t, buf.String(), "nginx_cubic_100r10c")
	})

	t.Run("AbandonedAsJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showLedger(&buf, ledgerOptions{DBPath: db, Abandoned: true, Format: "json"}))

		var reports []output.LedgerReport
		require.NoError(t, json.Unmarshal(buf.Bytes(), &reports))
		require.Len(t, reports, 1)
		require.Len(t, reports[0].Entries, 1)
		assert.Equal(t, "caddy_bbr_100r10c", reports[0].Entries[0].TestName)
	})

	t.Run("BySweep", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showLedger(&buf, ledgerOptions{DBPath: db, SweepID: "old", NoColor: true}))
		assert.Contains(t, buf.String(), "nginx_cubic_100r10c")
	})

	t.Run("All", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, showLedger(&buf, ledgerOptions{DBPath: db, All: true, Format: "yaml"}))
		assert.Contains(t, buf.String(), "id: old")
		assert.Contains(t, buf.String(), "id: new")
	})

	t.Run("UnknownSweep", func(t *testing.T) {
		err := showLedger(&bytes.Buffer{}, ledgerOptions{DBPath: db, SweepID: "nope"})
		assert.True(t, errors.Is(err, ledger.ErrNotFound))
	})

	t.Run("NoSource", func(t *testing.T) {
		assert.Error(t, showLedger(&bytes.Buffer{}, ledgerOptions{}))
	})

	t.Run("MissingFile", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "none.db")
		assert.Error(t, showLedger(&bytes.Buffer{}, ledgerOptions{DBPath: missing}))
		_, err := os.Stat(missing)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestShowLedger_FromConfig(t *testing.T) {
	path := writeConfig(t, testConfig)
	err := showLedger(&bytes.Buffer{}, ledgerOptions{ConfigFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.Join("results", "ledger.db"))

	disabled := writeConfig(t, testConfig+"ledger:\n  disabled: true\n")
	err = showLedger(&bytes.Buffer{}, ledgerOptions{ConfigFile: disabled})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetArgs([]string{"validate", "--no-color", "--level", "error", "-c", writeConfig(t, testConfig)})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetArgs(nil)
	})

	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, buf.String(), "4 cells")
}

func TestLoggingSetup(t *testing.T) {
	assert.NoError(t, loggingSetup("ccsweep-test", "debug"))
	assert.NoError(t, loggingSetup("ccsweep-test", "info"))
}

func TestExampleConfigIsValid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, validateConfig(&buf, filepath.Join("..", "..", "examples", "sweep.yaml")))
	assert.Contains(t, buf.String(), "18 cells")
}

func TestPackageResults_FailuresAreReported(t *testing.T) {
	tests := []struct {
		name        string
		pkg         string
		wantArchive bool
		wantOutput  string
	}{
		{
			name:       "ArchiveFails",
			pkg:        "package:\n  compress: true\n  archiveCommand: \"false\"\n",
			wantOutput: "archiving",
		},
		{
			name:        "UploadFails",
			pkg:         "package:\n  compress: true\n  archiveCommand: \"true\"\n  upload: true\n  uploadCommand: \"false\"\n",
			wantArchive: true,
			wantOutput:  "uploading",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadConfig(writeConfig(t, testConfig+tt.pkg))
			require.NoError(t, err)
			require.NoError(t, os.MkdirAll(filepath.Join(cfg.DataRoot(), "nginx"), 0755))

			var buf bytes.Buffer
			console := output.NewConsole(output.ConsoleConfig{Writer: &buf, NoColor: true})
			archive := packageResults(t.Context(), console, cfg, "sweep-1")

			if tt.wantArchive {
				assert.Equal(t, cfg.ArchivePath(), archive)
			} else {
				assert.Empty(t, archive)
			}
			assert.Contains(t, buf.String(), tt.wantOutput)
			assert.DirExists(t, filepath.Join(cfg.DataRoot(), "nginx"), "raw results are kept")
		})
	}
}
