// Package merge produces one normalized result set per backtest run from the
// backend's possibly inconsistent data sources. The monitor snapshot is the
// preferred source; the legacy detailed endpoints supplement it (trades only,
// and only when they carry strictly more records) or replace it entirely when
// the monitor is unavailable.
//
// Merge is a pure function from (old result set, monitor payload, detail
// payloads) to a new result set, so the policy is unit-testable without
// timers or network.
package merge

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// buyLabel is the backend's textual marker for a buy trade.
const buyLabel = "买入"

// DetailData carries the optional payloads from the legacy detailed
// endpoints. Nil slices mean the endpoint was not called or failed; the
// merger treats both the same way.
type DetailData struct {
	Accounts  []api.Record
	Profits   []api.Record
	Positions []api.Record
	Trades    []api.Record
}

// Merge combines a monitor snapshot and detail payloads into a new result
// set. A nil or unsuccessful monitor falls back entirely to the detail
// payloads. Parts absent from an authoritative monitor retain the old
// result set's data.
func Merge(old types.ResultSet, monitor *api.MonitorSnapshot, details DetailData) types.ResultSet {
	if monitor == nil || !monitor.Success {
		return mergeFromDetails(old, details)
	}

	next := old

	if monitor.Stats != nil {
		next.Stats = types.DataStats{
			AccountCount:  monitor.Stats.AccountCount,
			TradeCount:    monitor.Stats.TradeCount,
			PositionCount: monitor.Stats.PositionCount,
			ProfitCount:   monitor.Stats.ProfitCount,
		}
	}

	if monitor.LatestAccount != nil {
		next.Account = &types.AccountSnapshot{
			Date:        monitor.LatestAccount.Date,
			TotalAsset:  monitor.LatestAccount.TotalAsset,
			Available:   monitor.LatestAccount.Available,
			MarketValue: monitor.LatestAccount.MarketValue,
			Profit:      monitor.LatestAccount.Profit,
			ProfitRate:  monitor.LatestAccount.ProfitRate,
		}
	}

	if len(monitor.EquityCurve) > 0 {
		equity := make([]types.EquityPoint, 0, len(monitor.EquityCurve))
		for _, point := range monitor.EquityCurve {
			equity = append(equity, types.EquityPoint{Date: point.Date, Value: point.Value})
		}

		next.Equity = equity
	}

	// Monitor positions are the latest trustworthy snapshot; historical
	// positions from the detailed endpoint never override them.
	if len(monitor.LatestPositions) > 0 {
		positions := make([]types.PositionRecord, 0, len(monitor.LatestPositions))
		for _, pos := range monitor.LatestPositions {
			positions = append(positions, normalizeMonitorPosition(pos))
		}

		next.Positions = positions
	}

	if len(monitor.RecentTrades) > 0 {
		trades := make([]types.TradeRecord, 0, len(monitor.RecentTrades))
		for _, trade := range monitor.RecentTrades {
			trades = append(trades, normalizeMonitorTrade(trade))
		}

		next.Trades = trades
	}

	// More data wins: the detailed endpoint replaces the trade list only
	// when it returns strictly more records, never fewer.
	if len(details.Trades) > len(next.Trades) {
		next.Trades = normalizeRawTrades(details.Trades)
	}

	return next
}

// mergeFromDetails rebuilds the result set from the four legacy endpoints.
func mergeFromDetails(old types.ResultSet, details DetailData) types.ResultSet {
	next := old

	if len(details.Accounts) > 0 {
		latest := details.Accounts[len(details.Accounts)-1]
		next.Account = &types.AccountSnapshot{
			Date:        accountDateField.str(latest),
			TotalAsset:  accountTotalField.num(latest),
			Available:   accountAvailField.num(latest),
			MarketValue: accountMVField.num(latest),
			Profit:      positionPnlField.num(latest),
			ProfitRate:  positionRateField.num(latest),
		}
	}

	if len(details.Profits) > 0 {
		equity := make([]types.EquityPoint, 0, len(details.Profits))
		for _, rec := range details.Profits {
			equity = append(equity, types.EquityPoint{
				Date:  profitDateField.str(rec),
				Value: profitValueField.num(rec),
			})
		}

		next.Equity = equity
	}

	if len(details.Positions) > 0 {
		positions := make([]types.PositionRecord, 0, len(details.Positions))
		for _, rec := range details.Positions {
			positions = append(positions, normalizeRawPosition(rec))
		}

		next.Positions = positions
	}

	if len(details.Trades) > 0 {
		next.Trades = normalizeRawTrades(details.Trades)
	}

	next.Stats = types.DataStats{
		AccountCount:  len(details.Accounts),
		TradeCount:    len(next.Trades),
		PositionCount: len(next.Positions),
		ProfitCount:   len(next.Equity),
	}

	return next
}

// Direction classifies a trade as buy or sell. A trade is a buy when its
// side equals the zero sentinel or its textual direction equals the buy
// label; everything else is a sell. The rule is applied identically
// regardless of which endpoint produced the record.
func Direction(side optional.Option[int], direction string) types.TradeDirection {
	if side.IsSome() && side.Unwrap() == 0 {
		return types.TradeDirectionBuy
	}

	if direction == buyLabel {
		return types.TradeDirectionBuy
	}

	return types.TradeDirectionSell
}

func normalizeMonitorTrade(trade api.MonitorTrade) types.TradeRecord {
	return types.TradeRecord{
		Date:         trade.Date,
		Symbol:       trade.Symbol,
		ContractCode: trade.Symbol,
		Code:         trade.Symbol,
		Direction:    Direction(trade.Side, trade.Direction),
		Volume:       math.Abs(trade.Volume),
		Position:     math.Abs(trade.Volume),
		Price:        money(trade.Price),
		Cost:         money(math.Abs(trade.Amount)),
	}
}

func normalizeRawTrades(records []api.Record) []types.TradeRecord {
	trades := make([]types.TradeRecord, 0, len(records))
	for _, rec := range records {
		trades = append(trades, normalizeRawTrade(rec))
	}

	return trades
}

func normalizeRawTrade(rec api.Record) types.TradeRecord {
	code := tradeCodeField.str(rec)
	volume := math.Abs(tradeVolField.num(rec))

	return types.TradeRecord{
		Date:         tradeDateField.str(rec),
		Symbol:       code,
		ContractCode: code,
		Code:         code,
		Direction:    Direction(tradeSideField.intOpt(rec), tradeDirField.str(rec)),
		Volume:       volume,
		Position:     volume,
		Price:        money(tradePriceField.num(rec)),
		Cost:         money(math.Abs(tradeCostField.num(rec))),
	}
}

func normalizeMonitorPosition(pos api.MonitorPosition) types.PositionRecord {
	return types.PositionRecord{
		Date:         pos.Date,
		Symbol:       pos.Symbol,
		ContractCode: pos.Symbol,
		Code:         pos.Symbol,
		Volume:       pos.Volume,
		Position:     pos.Volume,
		MarketValue:  pos.MarketValue,
		Profit:       pos.Profit,
		ProfitRate:   pos.ProfitRate,
	}
}

func normalizeRawPosition(rec api.Record) types.PositionRecord {
	code := positionCodeField.str(rec)
	volume := positionVolField.num(rec)

	return types.PositionRecord{
		Date:         positionDateField.str(rec),
		Symbol:       code,
		ContractCode: code,
		Code:         code,
		Volume:       volume,
		Position:     volume,
		MarketValue:  positionMVField.num(rec),
		Profit:       positionPnlField.num(rec),
		ProfitRate:   positionRateField.num(rec),
	}
}

// money rounds a float to the two-decimal representation used everywhere in
// the workspace.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
