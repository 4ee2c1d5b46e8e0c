package types

// RunStatus is the lifecycle state of a backtest run as reported by the backend.
type RunStatus string

const (
	// RunStatusPending indicates the run is queued but not yet executing.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is executing on the backend.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the run finished successfully.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the run finished with an error.
	RunStatusFailed RunStatus = "failed"
)

// Terminal reports whether no further status change is expected from the backend.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Valid reports whether s is one of the four known lifecycle states.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// BacktestConfig is the value object describing how a backtest is run.
// It is immutable once a run has started; the workspace keeps an editable
// draft per open strategy tab.
type BacktestConfig struct {
	// StartCapital is the starting capital in CNY 10k units.
	StartCapital float64 `json:"start_capital" yaml:"start_capital" validate:"gt=0"`
	// StartDate is the first trading day in YYYYMMDD form.
	StartDate string `json:"start_date" yaml:"start_date" validate:"required,len=8,numeric"`
	// EndDate is the last trading day in YYYYMMDD form.
	EndDate string `json:"end_date" yaml:"end_date" validate:"required,len=8,numeric"`
	// Frequency is the bar frequency, e.g. "1d".
	Frequency string `json:"frequency" yaml:"frequency" validate:"required"`
	// CommissionRate is the commission multiplier passed through to the simulator.
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
	// StandardSymbol is the benchmark index symbol, e.g. "000001.SH".
	StandardSymbol string `json:"standard_symbol" yaml:"standard_symbol"`
	// MatchingType selects the backend matching-engine mode.
	MatchingType int `json:"matching_type" yaml:"matching_type"`
}
