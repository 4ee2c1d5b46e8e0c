package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/internal/workspace"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// NewStrategyTable creates the strategy list for the management tab.
func NewStrategyTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 14},
		{Title: "名称", Width: 24},
		{Title: "更新时间", Width: 20},
	}

	return newTable(columns)
}

// NewRunTable creates the past-runs list for the management tab.
func NewRunTable() table.Model {
	columns := []table.Column{
		{Title: "运行", Width: 14},
		{Title: "策略", Width: 20},
		{Title: "状态", Width: 10},
		{Title: "区间", Width: 20},
	}

	return newTable(columns)
}

// NewPositionTable creates the position list for a backtest tab.
func NewPositionTable() table.Model {
	columns := []table.Column{
		{Title: "代码", Width: 12},
		{Title: "持仓", Width: 10},
		{Title: "市值", Width: 14},
		{Title: "盈亏", Width: 14},
	}

	return newTable(columns)
}

// NewTradeTable creates the trade list for a backtest tab.
func NewTradeTable() table.Model {
	columns := []table.Column{
		{Title: "日期", Width: 10},
		{Title: "代码", Width: 12},
		{Title: "方向", Width: 6},
		{Title: "数量", Width: 10},
		{Title: "价格", Width: 12},
		{Title: "成交额", Width: 14},
	}

	return newTable(columns)
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// NewNameInput creates the strategy name input for editor tabs.
func NewNameInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "策略名称"
	ti.CharLimit = 60
	ti.Width = 40
	ti.Prompt = "> "

	return ti
}

// NewCodeEditor creates the strategy code editor.
func NewCodeEditor() textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "# strategy code"
	ta.CharLimit = 0
	ta.SetWidth(76)
	ta.SetHeight(14)

	return ta
}

// UpdateStrategyRows fills the strategy table.
func UpdateStrategyRows(t table.Model, strategies []api.Strategy) table.Model {
	rows := make([]table.Row, 0, len(strategies))
	for _, s := range strategies {
		rows = append(rows, table.Row{s.Key(), s.Name, s.UpdatedAt})
	}

	t.SetRows(rows)

	return t
}

// UpdateRunRows fills the runs table.
func UpdateRunRows(t table.Model, runs []api.BacktestRun) table.Model {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, table.Row{
			r.Key(),
			r.StrategyName,
			string(r.Status),
			r.StartDate + "-" + r.EndDate,
		})
	}

	t.SetRows(rows)

	return t
}

// UpdateTradeRows fills a backtest tab's trade table.
func UpdateTradeRows(t table.Model, trades []types.TradeRecord) table.Model {
	rows := make([]table.Row, 0, len(trades))
	for _, trade := range trades {
		direction := "买入"
		if trade.Direction == types.TradeDirectionSell {
			direction = "卖出"
		}

		rows = append(rows, table.Row{
			trade.Date,
			trade.Code,
			direction,
			fmt.Sprintf("%.0f", trade.Volume),
			trade.Price.String(),
			trade.Cost.String(),
		})
	}

	t.SetRows(rows)

	return t
}

// UpdatePositionRows fills a backtest tab's position table.
func UpdatePositionRows(t table.Model, positions []types.PositionRecord) table.Model {
	rows := make([]table.Row, 0, len(positions))
	for _, p := range positions {
		code := p.Code
		if code == "" {
			code = p.Symbol
		}

		rows = append(rows, table.Row{
			code,
			fmt.Sprintf("%.0f", p.Position),
			FormatMoney(p.MarketValue),
			FormatMoney(p.Profit),
		})
	}

	t.SetRows(rows)

	return t
}

// RenderTabBar renders the open tabs with the active one highlighted. The
// badge function supplies a per-tab status suffix, such as the unsaved mark
// or the run progress.
func RenderTabBar(tabs []workspace.Tab, activeID string, badge func(workspace.Tab) string) string {
	parts := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		label := " " + tab.Title
		if suffix := badge(tab); suffix != "" {
			label += " " + suffix
		}
		label += " "

		if tab.ID == activeID {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, InactiveTabStyle.Render(label))
		}
	}

	return strings.Join(parts, "|")
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline renders the series as a fixed-width block-character chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	low, high := values[0], values[0]
	for _, v := range values {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}

	if width > len(values) {
		width = len(values)
	}

	var s strings.Builder
	for i := 0; i < width; i++ {
		// Downsample by picking the point nearest each column.
		v := values[i*(len(values)-1)/max(width-1, 1)]

		level := 0
		if high > low {
			level = int((v - low) / (high - low) * float64(len(sparkLevels)-1))
		}
		s.WriteRune(sparkLevels[level])
	}

	return s.String()
}

// RenderProgressBar renders a fixed-width textual progress bar.
func RenderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}

	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100 * float64(width))

	return fmt.Sprintf("[%s%s] %.0f%%",
		strings.Repeat("=", filled),
		strings.Repeat(" ", width-filled),
		percent)
}
