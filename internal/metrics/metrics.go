// Package metrics computes performance statistics for a backtest from its
// equity curve. All calculations assume 252 trading periods per year and
// degrade to zero instead of propagating NaN or Inf when the series is too
// short or degenerate.
package metrics

import (
	"math"

	"github.com/wlwd13303/panda-quantflow/internal/types"
)

const (
	// periodsPerYear is the annualization base for daily series.
	periodsPerYear = 252.0
	// riskFreeRate feeds the Sharpe ratio.
	riskFreeRate = 0.03
	// marketReturn is the assumed benchmark annual return for alpha and the
	// benchmark curve.
	marketReturn = 0.08
)

// Metrics holds the derived performance figures for one backtest run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	AnnualReturn     float64 `json:"annual_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	WinRate          float64 `json:"win_rate"`
	ProfitLossRatio  float64 `json:"profit_loss_ratio"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	ExcessReturn     float64 `json:"excess_return"`
	PeriodCount      int     `json:"period_count"`
	WinningPeriods   int     `json:"winning_periods"`
	LosingPeriods    int     `json:"losing_periods"`
}

// Calculate derives all metrics from an equity curve. A series shorter than
// two points yields the zero value. The starting capital is the return base
// when the curve's first point is unusable.
func Calculate(equity []types.EquityPoint, startCapital float64) Metrics {
	if len(equity) < 2 {
		return Metrics{}
	}

	base := equity[0].Value
	if base <= 0 {
		base = startCapital
	}

	last := equity[len(equity)-1].Value

	m := Metrics{
		TotalReturn: last - base,
		PeriodCount: len(equity),
		Beta:        1,
	}

	if base != 0 {
		m.TotalReturnPct = sane((last - base) / base * 100)
	}

	years := float64(len(equity)-1) / periodsPerYear
	if base > 0 && last > 0 && years > 0 {
		m.AnnualReturn = sane((math.Pow(last/base, 1/years) - 1) * 100)
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(equity)

	returns := periodReturns(equity)
	m.Volatility = sane(stddev(returns) * math.Sqrt(periodsPerYear) * 100)

	if m.Volatility != 0 {
		m.SharpeRatio = sane((m.AnnualReturn - riskFreeRate*100) / m.Volatility)
	}

	m.WinningPeriods, m.LosingPeriods = winLoss(returns)
	// Flat periods count against the win rate, so the denominator is every
	// period, not just the decided ones.
	if len(returns) > 0 {
		m.WinRate = sane(float64(m.WinningPeriods) / float64(len(returns)) * 100)
	}

	m.ProfitLossRatio = profitLossRatio(returns)

	// Beta is fixed at one, so alpha reduces to the return spread over the
	// assumed market return.
	m.ExcessReturn = sane(m.AnnualReturn - marketReturn*100)
	m.Alpha = m.ExcessReturn

	return m
}

// NetValue converts a total asset figure into a net value relative to the
// starting capital. Zero capital yields zero.
func NetValue(totalAsset, startCapital float64) float64 {
	if startCapital == 0 {
		return 0
	}

	return sane(totalAsset / startCapital)
}

// BenchmarkCurve produces n net values growing linearly at the assumed
// market rate, one step per trading period, starting at one.
func BenchmarkCurve(n int) []float64 {
	if n <= 0 {
		return nil
	}

	curve := make([]float64, n)
	step := marketReturn / periodsPerYear
	for i := range curve {
		curve[i] = 1 + step*float64(i)
	}

	return curve
}

// maxDrawdown walks the curve once, tracking the running peak.
func maxDrawdown(equity []types.EquityPoint) (abs, pct float64) {
	peak := equity[0].Value
	for _, point := range equity[1:] {
		if point.Value > peak {
			peak = point.Value
			continue
		}

		if dd := peak - point.Value; dd > abs {
			abs = dd
			if peak != 0 {
				pct = sane(dd / peak * 100)
			}
		}
	}

	return abs, pct
}

// periodReturns yields the simple return of each step. Steps starting from
// zero are skipped instead of producing Inf.
func periodReturns(equity []types.EquityPoint) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev == 0 {
			continue
		}

		returns = append(returns, (equity[i].Value-prev)/prev)
	}

	return returns
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	return math.Sqrt(sq / float64(len(values)-1))
}

func winLoss(returns []float64) (wins, losses int) {
	for _, r := range returns {
		switch {
		case r > 0:
			wins++
		case r < 0:
			losses++
		}
	}

	return wins, losses
}

// profitLossRatio is the average winning return over the average losing
// return. No losses means zero, not infinity.
func profitLossRatio(returns []float64) float64 {
	var winSum, lossSum float64
	var wins, losses int
	for _, r := range returns {
		switch {
		case r > 0:
			winSum += r
			wins++
		case r < 0:
			lossSum += -r
			losses++
		}
	}

	if wins == 0 || losses == 0 || lossSum == 0 {
		return 0
	}

	return sane((winSum / float64(wins)) / (lossSum / float64(losses)))
}

// sane replaces NaN and Inf with zero.
func sane(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}
