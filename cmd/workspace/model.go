package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wlwd13303/panda-quantflow/internal/metrics"
	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/internal/workspace"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
	"github.com/wlwd13303/panda-quantflow/pkg/errors"
)

// Management tab panes.
const (
	PaneStrategies = iota
	PaneRuns
)

// Strategy editor fields.
const (
	FieldName = iota
	FieldCode
)

const runPageSize = 50

// backtestFailedFallback shows for a failed run whose progress carries no
// error text.
const backtestFailedFallback = "回测失败"

// Model is the main Bubble Tea model for the backtest workspace.
type Model struct {
	manager        *workspace.Manager
	backtestConfig types.BacktestConfig
	strategyTable  table.Model
	runTable       table.Model
	tradeTable     table.Model
	positionTable  table.Model
	nameInput      textinput.Model
	codeEditor     textarea.Model
	strategies     []api.Strategy
	runs           api.RunPage
	pane           int
	field          int
	status         string
	err            error
	width          int
	height         int
}

// NewModel creates a Model over the given workspace manager. The backtest
// config is used as-is for every run started from the editor.
func NewModel(manager *workspace.Manager, backtestConfig types.BacktestConfig) Model {
	return Model{
		manager:        manager,
		backtestConfig: backtestConfig,
		strategyTable:  NewStrategyTable(),
		runTable:       NewRunTable(),
		tradeTable:     NewTradeTable(),
		positionTable:  NewPositionTable(),
		nameInput:      NewNameInput(),
		codeEditor:     NewCodeEditor(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadStrategies(), m.loadRuns())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+t":
			return m.activateNextTab()
		case "ctrl+w":
			return m.closeActiveTab()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.strategyTable.SetWidth(msg.Width / 2)
		m.runTable.SetWidth(msg.Width / 2)
		m.tradeTable.SetWidth(msg.Width)
		m.codeEditor.SetWidth(msg.Width - 4)
		return m, nil

	case strategiesLoadedMsg:
		m.strategies = msg.Strategies
		m.strategyTable = UpdateStrategyRows(m.strategyTable, m.strategies)
		return m, nil

	case runsLoadedMsg:
		m.runs = msg.Runs
		m.runTable = UpdateRunRows(m.runTable, m.runs.Items)
		return m, nil

	case tabChangedMsg:
		return m.syncActiveTab(), nil

	case strategySavedMsg:
		m.status = "已保存 " + msg.Strategy.Name
		m.err = nil
		return m, m.loadStrategies()

	case backtestStartedMsg:
		m.status = "回测已启动 " + msg.RunID
		m.err = nil
		next := m.syncActiveTab()
		return next, next.loadRuns()

	case runUpdateMsg:
		active := m.manager.ActiveTab()
		if active.Kind == workspace.TabKindBacktest && active.RunID == msg.Update.RunID {
			m.tradeTable = UpdateTradeRows(m.tradeTable, msg.Update.Result.Trades)
			m.positionTable = UpdatePositionRows(m.positionTable, msg.Update.Result.Positions)
		}
		return m, nil

	case deletedMsg:
		m.status = fmt.Sprintf("已删除 %d 项", msg.Count)
		m.err = nil
		return m, tea.Batch(m.loadStrategies(), m.loadRuns())

	case errMsg:
		m.err = msg.Err
		return m, nil
	}

	switch m.manager.ActiveTab().Kind {
	case workspace.TabKindManagement:
		return m.updateManagement(msg)
	case workspace.TabKindStrategy:
		return m.updateStrategy(msg)
	case workspace.TabKindBacktest:
		return m.updateBacktest(msg)
	}

	return m, nil
}

func (m Model) activateNextTab() (tea.Model, tea.Cmd) {
	tabs := m.manager.Tabs()
	if len(tabs) < 2 {
		return m, nil
	}

	activeID := m.manager.ActiveTab().ID
	for i, tab := range tabs {
		if tab.ID == activeID {
			next := tabs[(i+1)%len(tabs)]
			if err := m.manager.SetActive(next.ID); err != nil {
				m.err = err
				return m, nil
			}
			break
		}
	}

	return m.syncActiveTab(), nil
}

func (m Model) closeActiveTab() (tea.Model, tea.Cmd) {
	active := m.manager.ActiveTab()
	if err := m.manager.CloseTab(active.ID); err != nil {
		if !errors.HasCode(err, errors.ErrCodeTabNotClosable) {
			m.err = err
		}
		return m, nil
	}

	return m.syncActiveTab(), nil
}

// syncActiveTab reloads the per-tab components from the manager state after
// the active tab changed.
func (m Model) syncActiveTab() Model {
	active := m.manager.ActiveTab()

	switch active.Kind {
	case workspace.TabKindStrategy:
		m.nameInput.SetValue(active.Draft.Name)
		m.codeEditor.SetValue(active.Draft.Code)
		m.field = FieldName
		m.nameInput.Focus()
		m.codeEditor.Blur()

	case workspace.TabKindBacktest:
		if result, ok := m.manager.Result(active.RunID); ok {
			m.tradeTable = UpdateTradeRows(m.tradeTable, result.Trades)
			m.positionTable = UpdatePositionRows(m.positionTable, result.Positions)
		} else {
			m.tradeTable.SetRows(nil)
			m.positionTable.SetRows(nil)
		}

	case workspace.TabKindManagement:
		m.nameInput.Blur()
		m.codeEditor.Blur()
	}

	return m
}

func (m Model) updateManagement(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "left", "right":
			if m.pane == PaneStrategies {
				m.pane = PaneRuns
			} else {
				m.pane = PaneStrategies
			}
			return m, nil
		case "n":
			return m.openDraft()
		case "r":
			return m, tea.Batch(m.loadStrategies(), m.loadRuns())
		case "enter":
			return m.openSelected()
		case "d":
			return m.deleteSelected()
		}
	}

	var cmd tea.Cmd
	if m.pane == PaneStrategies {
		m.strategyTable, cmd = m.strategyTable.Update(msg)
	} else {
		m.runTable, cmd = m.runTable.Update(msg)
	}

	return m, cmd
}

func (m Model) openDraft() (tea.Model, tea.Cmd) {
	if _, err := m.manager.OpenStrategyTab(context.Background(), workspace.NewDraftID); err != nil {
		m.err = err
		return m, nil
	}

	return m.syncActiveTab(), nil
}

func (m Model) openSelected() (tea.Model, tea.Cmd) {
	if m.pane == PaneStrategies {
		row := m.strategyTable.SelectedRow()
		if row == nil {
			return m, nil
		}
		return m, m.openStrategy(row[0])
	}

	row := m.runTable.SelectedRow()
	if row == nil {
		return m, nil
	}

	if _, err := m.manager.OpenBacktestTab(row[0], "回测 "+row[1]); err != nil {
		m.err = err
		return m, nil
	}

	return m.syncActiveTab(), nil
}

func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	if m.pane == PaneStrategies {
		row := m.strategyTable.SelectedRow()
		if row == nil {
			return m, nil
		}
		return m, m.deleteStrategy(row[0])
	}

	row := m.runTable.SelectedRow()
	if row == nil {
		return m, nil
	}

	return m, m.deleteRun(row[0])
}

func (m Model) updateStrategy(msg tea.Msg) (tea.Model, tea.Cmd) {
	active := m.manager.ActiveTab()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.field == FieldName {
				m.field = FieldCode
				m.nameInput.Blur()
				m.codeEditor.Focus()
			} else {
				m.field = FieldName
				m.codeEditor.Blur()
				m.nameInput.Focus()
			}
			return m, nil
		case "ctrl+s":
			return m, m.saveStrategy(active.ID)
		case "ctrl+r":
			return m, m.startBacktest(active.ID)
		}
	}

	var cmd tea.Cmd
	if m.field == FieldName {
		m.nameInput, cmd = m.nameInput.Update(msg)
	} else {
		m.codeEditor, cmd = m.codeEditor.Update(msg)
	}

	if active.Draft != nil &&
		(m.nameInput.Value() != active.Draft.Name || m.codeEditor.Value() != active.Draft.Code) {
		if err := m.manager.UpdateDraft(active.ID, m.nameInput.Value(), m.codeEditor.Value()); err != nil {
			m.err = err
		}
	}

	return m, cmd
}

func (m Model) updateBacktest(msg tea.Msg) (tea.Model, tea.Cmd) {
	active := m.manager.ActiveTab()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return m, m.refreshRun(active.RunID)
		}
	}

	var cmd tea.Cmd
	m.tradeTable, cmd = m.tradeTable.Update(msg)

	return m, cmd
}

func (m Model) loadStrategies() tea.Cmd {
	return func() tea.Msg {
		strategies, err := m.manager.Strategies(context.Background())
		if err != nil {
			return errMsg{Err: err}
		}
		return strategiesLoadedMsg{Strategies: strategies}
	}
}

func (m Model) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.manager.Runs(context.Background(), 1, runPageSize, "")
		if err != nil {
			return errMsg{Err: err}
		}
		return runsLoadedMsg{Runs: runs}
	}
}

func (m Model) openStrategy(strategyID string) tea.Cmd {
	return func() tea.Msg {
		tab, err := m.manager.OpenStrategyTab(context.Background(), strategyID)
		if err != nil {
			return errMsg{Err: err}
		}
		return tabChangedMsg{Tab: tab}
	}
}

func (m Model) saveStrategy(tabID string) tea.Cmd {
	return func() tea.Msg {
		saved, err := m.manager.SaveStrategy(context.Background(), tabID)
		if err != nil {
			return errMsg{Err: err}
		}
		return strategySavedMsg{Strategy: saved}
	}
}

func (m Model) startBacktest(tabID string) tea.Cmd {
	return func() tea.Msg {
		runID, err := m.manager.StartBacktest(context.Background(), tabID, m.backtestConfig)
		if err != nil {
			return errMsg{Err: err}
		}
		return backtestStartedMsg{RunID: runID}
	}
}

func (m Model) deleteStrategy(strategyID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.manager.DeleteStrategy(context.Background(), strategyID); err != nil {
			return errMsg{Err: err}
		}
		return deletedMsg{Count: 1}
	}
}

func (m Model) deleteRun(runID string) tea.Cmd {
	return func() tea.Msg {
		count, err := m.manager.DeleteRun(context.Background(), runID)
		if err != nil {
			return errMsg{Err: err}
		}
		return deletedMsg{Count: count}
	}
}

func (m Model) refreshRun(runID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.manager.Refresh(context.Background(), runID); err != nil {
			return errMsg{Err: err}
		}
		return nil
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(RenderTabBar(m.manager.Tabs(), m.manager.ActiveTab().ID, m.tabBadge))
	s.WriteString("\n\n")

	active := m.manager.ActiveTab()
	switch active.Kind {
	case workspace.TabKindManagement:
		m.viewManagement(&s)
	case workspace.TabKindStrategy:
		m.viewStrategy(&s, active)
	case workspace.TabKindBacktest:
		m.viewBacktest(&s, active)
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(ErrorStyle.Render("错误: " + m.err.Error()))
	} else if m.status != "" {
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render(m.status))
	}

	return s.String()
}

// tabBadge is the status suffix shown next to a tab title: the unsaved mark
// for dirty drafts, the progress percentage for live runs, a terminal mark
// for finished ones.
func (m Model) tabBadge(tab workspace.Tab) string {
	switch tab.Kind {
	case workspace.TabKindStrategy:
		if tab.Draft != nil && tab.Draft.Dirty {
			return "*"
		}

	case workspace.TabKindBacktest:
		progress, ok := m.manager.Progress(tab.RunID)
		if !ok {
			return ""
		}

		switch progress.Status {
		case types.RunStatusCompleted:
			return "✔"
		case types.RunStatusFailed:
			return "✖"
		default:
			return fmt.Sprintf("%.0f%%", progress.Progress)
		}
	}

	return ""
}

func (m Model) viewManagement(s *strings.Builder) {
	s.WriteString(TitleStyle.Render("策略管理"))
	s.WriteString("\n\n")

	strategiesTitle := "策略列表"
	runsTitle := "历史回测"
	if m.pane == PaneStrategies {
		strategiesTitle = ActiveTabStyle.Render(strategiesTitle)
		runsTitle = InactiveTabStyle.Render(runsTitle)
	} else {
		strategiesTitle = InactiveTabStyle.Render(strategiesTitle)
		runsTitle = ActiveTabStyle.Render(runsTitle)
	}

	s.WriteString(strategiesTitle)
	s.WriteString("\n")
	s.WriteString(m.strategyTable.View())
	s.WriteString("\n\n")
	s.WriteString(runsTitle)
	s.WriteString(fmt.Sprintf(" (%d)", m.runs.Total))
	s.WriteString("\n")
	s.WriteString(m.runTable.View())
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("n: 新建 | enter: 打开 | d: 删除 | r: 刷新 | ←→: 切换列表 | ctrl+t: 切换标签 | ctrl+c: 退出"))
}

func (m Model) viewStrategy(s *strings.Builder, active workspace.Tab) {
	s.WriteString(TitleStyle.Render("策略编辑"))
	if active.Draft != nil && active.Draft.Dirty {
		s.WriteString(" *")
	}
	s.WriteString("\n\n")
	s.WriteString(m.nameInput.View())
	s.WriteString("\n\n")
	s.WriteString(m.codeEditor.View())
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("ctrl+s: 保存 | ctrl+r: 运行回测 | esc: 切换输入框 | ctrl+w: 关闭标签"))
}

func (m Model) viewBacktest(s *strings.Builder, active workspace.Tab) {
	s.WriteString(TitleStyle.Render(active.Title))
	s.WriteString("\n\n")

	progress, ok := m.manager.Progress(active.RunID)
	if !ok {
		s.WriteString("等待进度数据...\n")
	} else {
		s.WriteString(fmt.Sprintf("状态: %s  ", progress.Status))
		s.WriteString(RenderProgressBar(progress.Progress, 30))
		s.WriteString("\n")
		if message, takeErr := progress.Error.Take(); takeErr == nil && message != "" {
			s.WriteString(ErrorStyle.Render(message))
			s.WriteString("\n")
		} else if progress.Status == types.RunStatusFailed {
			// A failed run may arrive without error text from the backend.
			s.WriteString(ErrorStyle.Render(backtestFailedFallback))
			s.WriteString("\n")
		}
	}

	if result, ok := m.manager.Result(active.RunID); ok && !result.Empty() {
		stats := m.manager.Metrics(active.RunID, m.backtestConfig.StartCapital)
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("总收益 %s  年化 %s  最大回撤 %s  夏普 %.2f  胜率 %.1f%%\n",
			FormatSignedPercent(stats.TotalReturnPct),
			FormatSignedPercent(stats.AnnualReturn),
			FormatSignedPercent(-stats.MaxDrawdownPct),
			stats.SharpeRatio,
			stats.WinRate))

		if result.Account != nil {
			s.WriteString(fmt.Sprintf("总资产 %s  可用 %s  市值 %s  净值 %.4f\n",
				FormatMoney(result.Account.TotalAsset),
				FormatMoney(result.Account.Available),
				FormatMoney(result.Account.MarketValue),
				metrics.NetValue(result.Account.TotalAsset, m.backtestConfig.StartCapital)))
		}

		if len(result.Equity) > 1 {
			values := make([]float64, 0, len(result.Equity))
			for _, point := range result.Equity {
				values = append(values, point.Value)
			}

			s.WriteString("收益曲线 ")
			s.WriteString(RenderSparkline(values, 40))
			s.WriteString("\n")
		}

		if len(result.Positions) > 0 {
			s.WriteString("\n")
			s.WriteString(fmt.Sprintf("当前持仓 (%d)\n", len(result.Positions)))
			s.WriteString(m.positionTable.View())
		}

		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("成交记录 (%d)\n", len(result.Trades)))
		s.WriteString(m.tradeTable.View())
	}

	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("r: 刷新 | ctrl+w: 关闭标签 | ctrl+t: 切换标签"))
}
