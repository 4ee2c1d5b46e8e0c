package mockbackend

import (
	"strconv"
	"time"
)

// The simulated result data is deterministic: it is derived from the run's
// request alone, so a test can predict every row. The equity curve gains one
// percent of the starting capital per point, trades alternate between buys
// and sells, and the legacy rows deliberately use the old field names so
// clients exercise their alias handling.

func (s *Server) equityCurve(run *Run) []map[string]any {
	points := make([]map[string]any, 0, s.config.EquityPoints)
	capital := run.Request.StartCapital
	for i := 0; i < s.config.EquityPoints; i++ {
		points = append(points, map[string]any{
			"date":  tradingDay(run.Request.StartDate, i),
			"value": capital * (1 + 0.01*float64(i)),
		})
	}

	return points
}

func (s *Server) monitorTrades(run *Run) []map[string]any {
	trades := make([]map[string]any, 0, s.config.EquityPoints-1)
	for i := 0; i < s.config.EquityPoints-1; i++ {
		side := i % 2
		trades = append(trades, map[string]any{
			"date":   tradingDay(run.Request.StartDate, i+1),
			"symbol": "000001.SZ",
			"side":   side,
			"price":  10.0 + float64(i)*0.1,
			"volume": 100,
			"amount": (10.0 + float64(i)*0.1) * 100,
		})
	}

	return trades
}

func (s *Server) monitorPositions(run *Run) []map[string]any {
	return []map[string]any{
		{
			"date":         tradingDay(run.Request.StartDate, s.config.EquityPoints-1),
			"symbol":       "000001.SZ",
			"volume":       100,
			"market_value": 1050.0,
			"profit":       50.0,
			"profit_rate":  0.05,
		},
	}
}

func (s *Server) accountRows(run *Run) []map[string]any {
	rows := make([]map[string]any, 0, s.config.EquityPoints)
	for _, point := range s.equityCurve(run) {
		rows = append(rows, map[string]any{
			"gmt_create":      point["date"],
			"total_profit":    point["value"],
			"available_funds": point["value"].(float64) * 0.9,
			"market_value":    point["value"].(float64) * 0.1,
		})
	}

	return rows
}

func (s *Server) profitRows(run *Run) []map[string]any {
	rows := make([]map[string]any, 0, s.config.EquityPoints)
	for _, point := range s.equityCurve(run) {
		// Old revisions spell the value "csi_stock" and the date
		// "gmt_create_time".
		rows = append(rows, map[string]any{
			"gmt_create_time": point["date"],
			"csi_stock":       point["value"],
		})
	}

	return rows
}

func (s *Server) positionRows(run *Run) []map[string]any {
	return []map[string]any{
		{
			"gmt_create":    tradingDay(run.Request.StartDate, s.config.EquityPoints-1),
			"contract_code": "000001.SZ",
			"position":      100,
			"market_value":  1050.0,
			"profit":        50.0,
			"profit_rate":   0.05,
		},
	}
}

func (s *Server) tradeRows(run *Run) []map[string]any {
	rows := make([]map[string]any, 0, s.config.EquityPoints-1)
	for i := 0; i < s.config.EquityPoints-1; i++ {
		direction := "买入"
		if i%2 == 1 {
			direction = "卖出"
		}

		rows = append(rows, map[string]any{
			"trade_date":    tradingDay(run.Request.StartDate, i+1),
			"contract_code": "000001.SZ",
			"direction":     direction,
			"volume":        100,
			"price":         10.0 + float64(i)*0.1,
			"cost":          (10.0 + float64(i)*0.1) * 100,
		})
	}

	return rows
}

func (s *Server) logRows(run *Run) []map[string]any {
	rows := make([]map[string]any, 0, s.config.EquityPoints)
	for i := 0; i < s.config.EquityPoints; i++ {
		rows = append(rows, map[string]any{
			"date":    tradingDay(run.Request.StartDate, i),
			"level":   "INFO",
			"message": "bar " + strconv.Itoa(i) + " handled",
		})
	}

	return rows
}

// tradingDay offsets a YYYYMMDD date by n days. A malformed date falls back
// to counting from a fixed base so row generation never fails.
func tradingDay(start string, n int) string {
	day, err := time.Parse("20060102", start)
	if err != nil {
		day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return day.AddDate(0, 0, n).Format("20060102")
}
