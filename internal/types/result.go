package types

import "github.com/shopspring/decimal"

// TradeDirection is the normalized side of a trade.
type TradeDirection string

const (
	TradeDirectionBuy  TradeDirection = "buy"
	TradeDirectionSell TradeDirection = "sell"
)

// TradeRecord is a single normalized trade. Both the monitor-endpoint field
// names (Symbol, Volume) and the legacy detailed-endpoint names (ContractCode,
// Code, Position) are populated so consumers never branch on the source.
type TradeRecord struct {
	Date         string
	Symbol       string
	ContractCode string
	Code         string
	Direction    TradeDirection
	Volume       float64
	Position     float64
	Price        decimal.Decimal
	Cost         decimal.Decimal
}

// PositionRecord is a single normalized position snapshot.
type PositionRecord struct {
	Date         string
	Symbol       string
	ContractCode string
	Code         string
	Volume       float64
	Position     float64
	MarketValue  float64
	Profit       float64
	ProfitRate   float64
}

// AccountSnapshot is the latest normalized account state for a run.
type AccountSnapshot struct {
	Date        string
	TotalAsset  float64
	Available   float64
	MarketValue float64
	Profit      float64
	ProfitRate  float64
}

// EquityPoint is one point of the equity/profit series.
type EquityPoint struct {
	Date  string
	Value float64
}

// DataStats holds backend record counts for a run.
type DataStats struct {
	AccountCount  int
	TradeCount    int
	PositionCount int
	ProfitCount   int
}

// ResultSet is the per-run cached bundle derived from backend data. It is a
// read-through cache keyed by run id: eventually consistent while the run is
// active, stable once the run is terminal and a final refresh has completed.
type ResultSet struct {
	RunID   string
	Account *AccountSnapshot
	Equity  []EquityPoint
	Trades  []TradeRecord
	// Positions holds the latest position snapshot from the monitor endpoint.
	// Historical positions from the detailed endpoint never override it.
	Positions []PositionRecord
	Stats     DataStats
}

// Empty reports whether the result set carries no data at all.
func (r ResultSet) Empty() bool {
	return r.Account == nil && len(r.Equity) == 0 && len(r.Trades) == 0 && len(r.Positions) == 0
}
