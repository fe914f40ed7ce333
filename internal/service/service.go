// Package service holds the static description of a sweep: the services
// under test, the load profiles, and the names and paths derived from them.
package service

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wesleyorama2/ccsweep/internal/config"
)

// Definition is a service that can be started and stopped inside the
// container and benchmarked at TargetURL.
type Definition struct {
	Name         string
	StartCommand string
	StopCommand  string
	TargetURL    string
}

// LoadProfile is one benchmark intensity point.
type LoadProfile struct {
	Requests    int
	Concurrency int
}

// Label is the folder and test-name suffix for the profile, e.g. "2000r100c".
func (l LoadProfile) Label() string {
	return strconv.Itoa(l.Requests) + "r" + strconv.Itoa(l.Concurrency) + "c"
}

// Bench describes the external benchmarking tool.
type Bench struct {
	Binary string
	// Args are inserted after the load flags and before the artifact flag
	Args []string
}

// Cell is one (service, algorithm, load) combination of the matrix.
type Cell struct {
	Service   Definition
	Algorithm string
	Load      LoadProfile
}

// TestName identifies the cell in file names and logs.
func (c Cell) TestName() string {
	return TestName(c.Service, c.Algorithm, c.Load)
}

// Folder is the directory holding the cell's output.
func (c Cell) Folder(dataRoot string) string {
	return filepath.Join(dataRoot, c.Service.Name, c.Algorithm, c.Load.Label())
}

// OutputPath is where the benchmark's stdout is captured.
func (c Cell) OutputPath(dataRoot string) string {
	return filepath.Join(c.Folder(dataRoot), c.TestName()+"_out.txt")
}

// ArtifactPath is where the benchmark tool writes its CSV result.
func (c Cell) ArtifactPath(dataRoot string) string {
	return filepath.Join(c.Folder(dataRoot), c.TestName()+".csv")
}

// TestName derives "<service>_<algorithm>_<R>r<C>c". Names never contain
// "_", so distinct inputs give distinct names.
func TestName(def Definition, algorithm string, load LoadProfile) string {
	return def.Name + "_" + algorithm + "_" + load.Label()
}

// BenchmarkCommand builds the argv for one benchmark execution.
func BenchmarkCommand(bench Bench, def Definition, load LoadProfile, artifactPath string) []string {
	binary := bench.Binary
	if binary == "" {
		binary = config.DefaultBenchmarkBinary
	}

	argv := make([]string, 0, 8+len(bench.Args))
	argv = append(argv, binary,
		"-n", strconv.Itoa(load.Requests),
		"-c", strconv.Itoa(load.Concurrency),
	)
	argv = append(argv, bench.Args...)
	argv = append(argv, "-e", artifactPath, def.TargetURL)
	return argv
}

// StopAllCommand joins the distinct stop commands of defs into one shell
// line, in definition order.
func StopAllCommand(defs []Definition) string {
	seen := make(map[string]bool, len(defs))
	cmds := make([]string, 0, len(defs))
	for _, def := range defs {
		cmd := strings.TrimSpace(def.StopCommand)
		if cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		cmds = append(cmds, cmd)
	}
	return strings.Join(cmds, "; ")
}

// Matrix enumerates every cell in traversal order: services outer,
// algorithms middle, loads inner.
func Matrix(defs []Definition, algorithms []string, loads []LoadProfile) []Cell {
	cells := make([]Cell, 0, len(defs)*len(algorithms)*len(loads))
	for _, def := range defs {
		for _, algo := range algorithms {
			for _, load := range loads {
				cells = append(cells, Cell{Service: def, Algorithm: algo, Load: load})
			}
		}
	}
	return cells
}

// FromConfig builds definitions, resolving each URL template against the
// configured target.
func FromConfig(cfg *config.SweepConfig) ([]Definition, []LoadProfile) {
	vars := map[string]string{
		"server": cfg.Target.Server,
		"path":   cfg.Target.Path,
	}

	defs := make([]Definition, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		tmpl := svc.URL
		if tmpl == "" {
			tmpl = config.DefaultServiceURLTemplate
		}
		defs = append(defs, Definition{
			Name:         svc.Name,
			StartCommand: svc.Start,
			StopCommand:  svc.Stop,
			TargetURL:    config.ResolveTemplate(tmpl, vars),
		})
	}

	loads := make([]LoadProfile, 0, len(cfg.Loads))
	for _, l := range cfg.Loads {
		loads = append(loads, LoadProfile{Requests: l.Requests, Concurrency: l.Concurrency})
	}
	return defs, loads
}

// BenchFromConfig returns the benchmark tool description.
func BenchFromConfig(cfg *config.SweepConfig) Bench {
	return Bench{Binary: cfg.Benchmark.Binary, Args: cfg.Benchmark.Args}
}
