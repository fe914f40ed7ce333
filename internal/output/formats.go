package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/ccsweep/internal/ledger"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
	// FormatJUnit outputs in JUnit XML format, one test case per cell
	FormatJUnit OutputFormat = "junit"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatJUnit:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, yaml or junit)", s)
	}
}

// LedgerReport is one sweep and its recorded cells.
type LedgerReport struct {
	Sweep   ledger.Sweep   `json:"sweep" yaml:"sweep"`
	Entries []ledger.Entry `json:"entries" yaml:"entries"`
}

// PlanCell is one planned benchmark execution.
type PlanCell struct {
	TestName   string   `json:"testName" yaml:"testName"`
	Folder     string   `json:"folder" yaml:"folder"`
	OutputPath string   `json:"outputPath" yaml:"outputPath"`
	Command    []string `json:"command" yaml:"command"`
}

// JUnitTestSuites represents the root element containing all test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// WriteLedger renders ledger reports in the requested format.
func WriteLedger(w io.Writer, format OutputFormat, reports []LedgerReport, noColor bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reports)
	case FormatJUnit:
		return writeJUnit(w, reports)
	case FormatText, "":
		return writeLedgerText(w, reports, noColor)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeLedgerText(w io.Writer, reports []LedgerReport, noColor bool) error {
	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}

	var buf strings.Builder
	for i, r := range reports {
		if i > 0 {
			buf.WriteString("\n")
		}
		finished := "unfinished"
		if !r.Sweep.Finished.IsZero() {
			finished = r.Sweep.Finished.Format("2006-01-02 15:04:05")
		}
		buf.WriteString(fmt.Sprintf("%s %s  started %s, %s, %d cells\n",
			scheme.Highlight.Sprint(r.Sweep.ID), r.Sweep.Name,
			r.Sweep.Started.Format("2006-01-02 15:04:05"), finished, r.Sweep.Cells))

		for _, e := range r.Entries {
			icon := SuccessIcon(noColor)
			if e.Status == ledger.StatusAbandoned {
				icon = ErrorIcon(noColor)
			}
			buf.WriteString(fmt.Sprintf("  %s %-40s %-10s attempts=%d", icon, e.TestName, e.Status, e.Attempts))
			if e.Error != "" {
				buf.WriteString("  " + scheme.Error.Sprint(strings.SplitN(e.Error, "\n", 2)[0]))
			}
			buf.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, buf.String())
	return err
}

func writeJUnit(w io.Writer, reports []LedgerReport) error {
	suites := JUnitTestSuites{}
	for _, r := range reports {
		suite := JUnitTestSuite{
			Name:      r.Sweep.Name + " " + r.Sweep.ID,
			Timestamp: r.Sweep.Started.Format("2006-01-02T15:04:05"),
		}
		if !r.Sweep.Finished.IsZero() {
			suite.Time = r.Sweep.Finished.Sub(r.Sweep.Started).Seconds()
		}

		for _, e := range r.Entries {
			tc := JUnitTestCase{
				Name:      e.TestName,
				Classname: e.Service + "." + e.Algorithm,
				Time:      e.Finished.Sub(e.Started).Seconds(),
			}
			if e.Status == ledger.StatusAbandoned {
				suite.Failures++
				tc.Failure = &JUnitFailure{
					Message: fmt.Sprintf("abandoned after %d attempts", e.Attempts),
					Type:    "AbandonedCell",
					Content: e.Error,
				}
			}
			suite.TestCases = append(suite.TestCases, tc)
		}
		suite.Tests = len(suite.TestCases)
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suites); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WritePlan renders the planned cells.
func WritePlan(w io.Writer, format OutputFormat, cells []PlanCell) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cells)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cells)
	case FormatText, "":
		var buf strings.Builder
		for i, c := range cells {
			buf.WriteString(fmt.Sprintf("%3d. %s\n", i+1, c.TestName))
			buf.WriteString(fmt.Sprintf("     output:  %s\n", c.OutputPath))
			buf.WriteString(fmt.Sprintf("     command: %s\n", shellquote.Join(c.Command...)))
		}
		_, err := io.WriteString(w, buf.String())
		return err
	default:
		return fmt.Errorf("format %q is not supported for plans", format)
	}
}
