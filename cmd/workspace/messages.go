package main

import (
	"github.com/wlwd13303/panda-quantflow/internal/workspace"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// strategiesLoadedMsg carries the strategy list for the management tab.
type strategiesLoadedMsg struct {
	Strategies []api.Strategy
}

// runsLoadedMsg carries one page of past backtest runs.
type runsLoadedMsg struct {
	Runs api.RunPage
}

// tabChangedMsg signals that the active tab changed.
type tabChangedMsg struct {
	Tab workspace.Tab
}

// strategySavedMsg signals a successful save.
type strategySavedMsg struct {
	Strategy api.Strategy
}

// backtestStartedMsg signals a newly launched run.
type backtestStartedMsg struct {
	RunID string
}

// runUpdateMsg carries a poll update for a tracked run.
type runUpdateMsg struct {
	Update workspace.Update
}

// deletedMsg reports how many records a delete removed.
type deletedMsg struct {
	Count int
}

// errMsg carries an operation failure into the view.
type errMsg struct {
	Err error
}
