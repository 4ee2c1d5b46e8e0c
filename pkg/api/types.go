package api

import (
	"github.com/moznion/go-optional"
	"github.com/wlwd13303/panda-quantflow/internal/types"
)

// Strategy is a persisted strategy as the backend returns it. Depending on the
// backend revision the primary key arrives as "id" or "_id"; Key resolves it.
type Strategy struct {
	ID            string                `json:"id,omitempty"`
	MongoID       string                `json:"_id,omitempty"`
	Name          string                `json:"name"`
	Code          string                `json:"code"`
	Description   string                `json:"description,omitempty"`
	CreatedAt     string                `json:"created_at,omitempty"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
	DefaultConfig *types.BacktestConfig `json:"default_backtest_config,omitempty"`
	BacktestCount int                   `json:"backtest_count,omitempty"`
}

// Key returns the externally usable strategy identifier.
func (s Strategy) Key() string {
	if s.ID != "" {
		return s.ID
	}

	return s.MongoID
}

// SaveStrategyRequest is the create/update payload. An empty ID creates a new
// strategy; a non-empty ID updates the existing one.
type SaveStrategyRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description,omitempty"`
}

// StartBacktestRequest bundles everything the backend simulator needs to
// launch a run. The account/margin parameters are opaque to this client and
// passed through verbatim.
type StartBacktestRequest struct {
	StrategyCode       string  `json:"strategy_code" validate:"required"`
	StrategyName       string  `json:"strategy_name" validate:"required"`
	StartDate          string  `json:"start_date" validate:"required,len=8,numeric"`
	EndDate            string  `json:"end_date" validate:"required,len=8,numeric"`
	StartCapital       float64 `json:"start_capital" validate:"gt=0"`
	CommissionRate     float64 `json:"commission_rate"`
	Frequency          string  `json:"frequency" validate:"required"`
	StandardSymbol     string  `json:"standard_symbol"`
	MatchingType       int     `json:"matching_type"`
	AccountID          string  `json:"account_id"`
	AccountType        int     `json:"account_type"`
	Slippage           float64 `json:"slippage"`
	MarginRate         float64 `json:"margin_rate"`
	StartFutureCapital float64 `json:"start_future_capital"`
	StartFundCapital   float64 `json:"start_fund_capital"`
}

// BacktestRun is a run record from the backtest list endpoint. The run id is
// the externally meaningful primary key for status and deletion operations;
// it is distinct from the storage-assigned "_id".
type BacktestRun struct {
	MongoID        string                   `json:"_id,omitempty"`
	RunID          string                   `json:"run_id,omitempty"`
	StrategyName   string                   `json:"strategy_name"`
	Status         types.RunStatus          `json:"status"`
	Error          string                   `json:"error,omitempty"`
	BackProfit     optional.Option[float64] `json:"back_profit,omitempty"`
	BackProfitYear optional.Option[float64] `json:"back_profit_year,omitempty"`
	Sharpe         optional.Option[float64] `json:"sharpe,omitempty"`
	MaxDrawdown    optional.Option[float64] `json:"max_drawdown,omitempty"`
	StartDate      string                   `json:"start_date,omitempty"`
	EndDate        string                   `json:"end_date,omitempty"`
	CreatedAt      string                   `json:"created_at"`
	UpdatedAt      string                   `json:"updated_at,omitempty"`
	StrategyID     string                   `json:"strategy_id,omitempty"`
	CodeSnapshot   string                   `json:"strategy_code_snapshot,omitempty"`
	Config         *types.BacktestConfig    `json:"config,omitempty"`
}

// Key returns the externally addressable run identifier.
func (r BacktestRun) Key() string {
	if r.RunID != "" {
		return r.RunID
	}

	return r.MongoID
}

// Progress is the poll response for an in-flight run.
type Progress struct {
	Progress float64                 `json:"progress"`
	Status   types.RunStatus         `json:"status"`
	Error    optional.Option[string] `json:"error,omitempty"`
}

// Record is a loosely shaped row from the legacy detailed endpoints. Field
// names vary across backend revisions; internal/merge resolves them through
// ordered alias tables.
type Record map[string]any

// Page is one page of legacy records.
type Page struct {
	Items []Record
	Total int
}

// RunPage is one page of backtest run records.
type RunPage struct {
	Items []BacktestRun
	Total int
}

// MonitorStats carries the backend record counts for a run.
type MonitorStats struct {
	AccountCount  int `json:"account_count"`
	TradeCount    int `json:"trade_count"`
	PositionCount int `json:"position_count"`
	ProfitCount   int `json:"profit_count"`
}

// MonitorAccount is the latest account state in a monitor snapshot.
type MonitorAccount struct {
	Date        string  `json:"date,omitempty"`
	TotalAsset  float64 `json:"total_asset,omitempty"`
	Available   float64 `json:"available,omitempty"`
	MarketValue float64 `json:"market_value,omitempty"`
	Profit      float64 `json:"profit,omitempty"`
	ProfitRate  float64 `json:"profit_rate,omitempty"`
}

// MonitorTrade is a recent trade in a monitor snapshot. Side is optional on
// the wire: zero means buy, anything else defers to the textual direction.
type MonitorTrade struct {
	Date      string               `json:"date,omitempty"`
	Time      string               `json:"time,omitempty"`
	Symbol    string               `json:"symbol,omitempty"`
	Side      optional.Option[int] `json:"side,omitempty"`
	Direction string               `json:"direction,omitempty"`
	Price     float64              `json:"price,omitempty"`
	Volume    float64              `json:"volume,omitempty"`
	Amount    float64              `json:"amount,omitempty"`
}

// MonitorPosition is a latest-position row in a monitor snapshot.
type MonitorPosition struct {
	Date        string  `json:"date,omitempty"`
	Symbol      string  `json:"symbol,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	MarketValue float64 `json:"market_value,omitempty"`
	Profit      float64 `json:"profit,omitempty"`
	ProfitRate  float64 `json:"profit_rate,omitempty"`
}

// EquityCurvePoint is one point of the monitor equity curve.
type EquityCurvePoint struct {
	Date  string  `json:"date,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// MonitorSnapshot is the consolidated single-call source for live results.
type MonitorSnapshot struct {
	Success         bool               `json:"success"`
	BackID          string             `json:"back_id,omitempty"`
	Status          types.RunStatus    `json:"status,omitempty"`
	Progress        float64            `json:"progress,omitempty"`
	Stats           *MonitorStats      `json:"stats,omitempty"`
	LatestAccount   *MonitorAccount    `json:"latest_account,omitempty"`
	RecentTrades    []MonitorTrade     `json:"recent_trades,omitempty"`
	LatestPositions []MonitorPosition  `json:"latest_positions,omitempty"`
	EquityCurve     []EquityCurvePoint `json:"equity_curve,omitempty"`
	Error           string             `json:"error,omitempty"`
}
