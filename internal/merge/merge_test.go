package merge

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

func monitorWithTrades(n int) *api.MonitorSnapshot {
	trades := make([]api.MonitorTrade, 0, n)
	for i := 0; i < n; i++ {
		trades = append(trades, api.MonitorTrade{
			Date:   "20240102",
			Symbol: "000001.SZ",
			Side:   optional.Some(0),
			Price:  10.5,
			Volume: 100,
			Amount: 1050,
		})
	}

	return &api.MonitorSnapshot{
		Success: true,
		Stats: &api.MonitorStats{
			AccountCount:  1,
			TradeCount:    n,
			PositionCount: 1,
			ProfitCount:   2,
		},
		LatestAccount: &api.MonitorAccount{
			Date:       "20240102",
			TotalAsset: 10100000,
			Available:  9000000,
		},
		RecentTrades: trades,
		LatestPositions: []api.MonitorPosition{
			{Date: "20240102", Symbol: "000001.SZ", Volume: 100, MarketValue: 1050},
		},
		EquityCurve: []api.EquityCurvePoint{
			{Date: "20240101", Value: 10000000},
			{Date: "20240102", Value: 10100000},
		},
	}
}

func rawTrades(n int) []api.Record {
	records := make([]api.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, api.Record{
			"trade_date":    "20240102",
			"contract_code": "000001.SZ",
			"direction":     float64(1),
			"volume":        float64(100),
			"price":         10.5,
			"cost":          -1050.0,
		})
	}

	return records
}

func TestMergeMonitorAuthoritative(t *testing.T) {
	result := Merge(types.ResultSet{RunID: "R1"}, monitorWithTrades(3), DetailData{})

	assert.Equal(t, "R1", result.RunID)
	assert.Equal(t, 3, result.Stats.TradeCount)
	assert.NotNil(t, result.Account)
	assert.Equal(t, float64(10100000), result.Account.TotalAsset)
	assert.Len(t, result.Equity, 2)
	assert.Len(t, result.Trades, 3)
	assert.Len(t, result.Positions, 1)
	assert.False(t, result.Empty())
}

func TestMergeTradeCountMonotonicity(t *testing.T) {
	tests := []struct {
		name          string
		monitorTrades int
		detailTrades  int
		expected      int
	}{
		{
			name:          "detail has more, detail wins",
			monitorTrades: 3,
			detailTrades:  5,
			expected:      5,
		},
		{
			name:          "detail has fewer, monitor kept",
			monitorTrades: 3,
			detailTrades:  2,
			expected:      3,
		},
		{
			name:          "equal counts, monitor kept",
			monitorTrades: 3,
			detailTrades:  3,
			expected:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Merge(types.ResultSet{}, monitorWithTrades(tt.monitorTrades), DetailData{
				Trades: rawTrades(tt.detailTrades),
			})

			assert.Len(t, result.Trades, tt.expected)
		})
	}
}

func TestMergeDetailPositionsNeverOverrideMonitor(t *testing.T) {
	details := DetailData{
		Positions: []api.Record{
			{"contract_code": "600000.SH", "position": float64(500)},
			{"contract_code": "600001.SH", "position": float64(300)},
		},
	}

	result := Merge(types.ResultSet{}, monitorWithTrades(1), details)

	assert.Len(t, result.Positions, 1)
	assert.Equal(t, "000001.SZ", result.Positions[0].Symbol)
}

func TestMergeFallbackToDetails(t *testing.T) {
	details := DetailData{
		Accounts: []api.Record{
			{"gmt_create": "20240101", "total_profit": float64(10000000)},
			{"gmt_create": "20240102", "total_profit": float64(10200000), "available_funds": float64(9100000)},
		},
		Profits: []api.Record{
			{"gmt_create_time": "20240101", "total_value": float64(10000000)},
			{"gmt_create": "20240102", "csi_stock": float64(10200000)},
		},
		Positions: []api.Record{
			{"contract_code": "000001.SZ", "position": float64(200), "market_value": float64(2100)},
		},
		Trades: rawTrades(4),
	}

	tests := []struct {
		name    string
		monitor *api.MonitorSnapshot
	}{
		{name: "monitor unreachable", monitor: nil},
		{name: "monitor unsuccessful", monitor: &api.MonitorSnapshot{Success: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Merge(types.ResultSet{RunID: "R2"}, tt.monitor, details)

			assert.Equal(t, "R2", result.RunID)
			assert.NotNil(t, result.Account)
			assert.Equal(t, float64(10200000), result.Account.TotalAsset)
			assert.Equal(t, float64(9100000), result.Account.Available)
			assert.Len(t, result.Equity, 2)
			// Alias priority: total_value first, then csi_stock.
			assert.Equal(t, float64(10000000), result.Equity[0].Value)
			assert.Equal(t, float64(10200000), result.Equity[1].Value)
			assert.Len(t, result.Trades, 4)
			assert.Len(t, result.Positions, 1)
			assert.Equal(t, 2, result.Stats.AccountCount)
			assert.Equal(t, 4, result.Stats.TradeCount)
			assert.Equal(t, 2, result.Stats.ProfitCount)
		})
	}
}

func TestMergeRetainsOldPartsWhenMonitorOmitsThem(t *testing.T) {
	old := types.ResultSet{
		RunID: "R3",
		Equity: []types.EquityPoint{
			{Date: "20240101", Value: 10000000},
		},
		Trades: []types.TradeRecord{{Code: "000001.SZ"}},
	}

	result := Merge(old, &api.MonitorSnapshot{Success: true}, DetailData{})

	assert.Len(t, result.Equity, 1)
	assert.Len(t, result.Trades, 1)
}

func TestDirection(t *testing.T) {
	tests := []struct {
		name      string
		side      optional.Option[int]
		direction string
		expected  types.TradeDirection
	}{
		{
			name:     "side zero with no direction is buy",
			side:     optional.Some(0),
			expected: types.TradeDirectionBuy,
		},
		{
			name:      "buy label with non-zero side is buy",
			side:      optional.Some(1),
			direction: "买入",
			expected:  types.TradeDirectionBuy,
		},
		{
			name:      "sell label with non-zero side is sell",
			side:      optional.Some(1),
			direction: "卖出",
			expected:  types.TradeDirectionSell,
		},
		{
			name:     "absent side with no direction is sell",
			side:     optional.None[int](),
			expected: types.TradeDirectionSell,
		},
		{
			name:      "absent side with buy label is buy",
			side:      optional.None[int](),
			direction: "买入",
			expected:  types.TradeDirectionBuy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Direction(tt.side, tt.direction))
		})
	}
}

func TestNormalizeRawTradePopulatesBothAliasSets(t *testing.T) {
	rec := api.Record{
		"trade_date":    "20240105",
		"contract_code": "600519.SH",
		"side":          float64(0),
		"volume":        float64(-200),
		"price":         1699.999,
		"cost":          -340000.0,
	}

	trade := normalizeRawTrade(rec)

	assert.Equal(t, "600519.SH", trade.Symbol)
	assert.Equal(t, "600519.SH", trade.ContractCode)
	assert.Equal(t, "600519.SH", trade.Code)
	assert.Equal(t, types.TradeDirectionBuy, trade.Direction)
	assert.Equal(t, float64(200), trade.Volume)
	assert.Equal(t, float64(200), trade.Position)
	assert.Equal(t, "1700", trade.Price.String())
	assert.Equal(t, "340000", trade.Cost.String())
}

func TestNormalizeRawTradeVolumeAliases(t *testing.T) {
	tests := []struct {
		name     string
		rec      api.Record
		expected float64
	}{
		{
			name:     "volume wins",
			rec:      api.Record{"volume": float64(100), "amount": float64(50), "position": float64(25)},
			expected: 100,
		},
		{
			name:     "amount fallback",
			rec:      api.Record{"amount": float64(50), "position": float64(25)},
			expected: 50,
		},
		{
			name:     "position fallback",
			rec:      api.Record{"position": float64(25)},
			expected: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeRawTrade(tt.rec).Volume)
		})
	}
}
