package sweep

import (
	"time"

	"github.com/wesleyorama2/ccsweep/internal/ledger"
	"github.com/wesleyorama2/ccsweep/internal/service"
)

// Reporter is told about each stage as it begins.
type Reporter interface {
	Preparing(dataRoot string, cells int)
	StoppingAll(command string)
	StartingService(def service.Definition)
	SettingAlgorithm(serviceName, algorithm string)
	RunningAttempt(cell service.Cell, attempt, attempts int)
	AttemptFailed(cell service.Cell, attempt int, err error, retryIn time.Duration)
	CellFinished(result CellResult)
	StoppingService(def service.Definition)
}

// Recorder persists cell outcomes. *ledger.Store satisfies it.
type Recorder interface {
	BeginSweep(sw ledger.Sweep) error
	Record(e ledger.Entry) error
	FinishSweep(id string, finished time.Time) error
}

type nopReporter struct{}

func (nopReporter) Preparing(string, int) {}
func (nopReporter) StoppingAll(string) {}
func (nopReporter) StartingService(service.Definition) {}
func (nopReporter) SettingAlgorithm(string, string) {}
func (nopReporter) RunningAttempt(service.Cell, int, int) {}
func (nopReporter) AttemptFailed(service.Cell, int, error, time.Duration) {}
func (nopReporter) CellFinished(CellResult) {}
func (nopReporter) StoppingService(service.Definition) {}
