package workspace

import (
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// TabKind distinguishes the three kinds of workspace tabs.
type TabKind string

const (
	// TabKindStrategy is an editor tab holding one strategy draft.
	TabKindStrategy TabKind = "strategy"

	// TabKindBacktest shows the live results of one backtest run.
	TabKindBacktest TabKind = "backtest"

	// TabKindManagement is the singleton home tab listing strategies and
	// past runs. It cannot be closed.
	TabKindManagement TabKind = "management"
)

// ManagementTabID is the fixed identifier of the management tab.
const ManagementTabID = "management"

// NewDraftID opens a strategy tab holding a fresh, unsaved draft.
const NewDraftID = "new"

// defaultStrategyName titles drafts until the user renames them.
const defaultStrategyName = "未命名策略"

// defaultStrategyCode seeds a fresh draft with a minimal runnable strategy.
const defaultStrategyCode = `from panda_backtest.api.api import *


def initialize(context):
    context.symbol = "000001.SZ"


def handle_data(context, bar_dict):
    order_shares(context.symbol, 100)
`

// StrategyTabID derives the tab identifier for a strategy.
func StrategyTabID(strategyID string) string {
	return "strategy:" + strategyID
}

// BacktestTabID derives the tab identifier for a backtest run.
func BacktestTabID(runID string) string {
	return "backtest:" + runID
}

// StrategyDraft is the editable working copy held by a strategy tab. It
// only reaches the backend when the tab is saved.
type StrategyDraft struct {
	StrategyID string
	Name       string
	Code       string
	Dirty      bool
}

// Tab is one open workspace tab. Exactly one of Draft and RunID is set for
// strategy and backtest tabs; the management tab carries neither.
type Tab struct {
	ID       string
	Kind     TabKind
	Title    string
	Closable bool
	Draft    *StrategyDraft
	RunID    string
}

func newManagementTab() *Tab {
	return &Tab{
		ID:       ManagementTabID,
		Kind:     TabKindManagement,
		Title:    "策略管理",
		Closable: false,
		Draft:    nil,
		RunID:    "",
	}
}

func newDraftTab() *Tab {
	return &Tab{
		ID:       StrategyTabID(NewDraftID),
		Kind:     TabKindStrategy,
		Title:    defaultStrategyName,
		Closable: true,
		Draft: &StrategyDraft{
			StrategyID: "",
			Name:       defaultStrategyName,
			Code:       defaultStrategyCode,
			// A fresh draft exists nowhere on the backend yet, so it
			// starts out unsaved.
			Dirty: true,
		},
		RunID: "",
	}
}

func newStrategyTab(strategy api.Strategy) *Tab {
	return &Tab{
		ID:       StrategyTabID(strategy.Key()),
		Kind:     TabKindStrategy,
		Title:    strategy.Name,
		Closable: true,
		Draft: &StrategyDraft{
			StrategyID: strategy.Key(),
			Name:       strategy.Name,
			Code:       strategy.Code,
			Dirty:      false,
		},
		RunID: "",
	}
}

func newBacktestTab(runID, title string) *Tab {
	if title == "" {
		title = "回测 " + runID
	}

	return &Tab{
		ID:       BacktestTabID(runID),
		Kind:     TabKindBacktest,
		Title:    title,
		Closable: true,
		Draft:    nil,
		RunID:    runID,
	}
}
