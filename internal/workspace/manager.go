// Package workspace holds the tabbed session state of the client: open tabs,
// strategy drafts, tracked backtest runs with their pollers, and the cached,
// merged result set per run. All state mutations go through the Manager,
// which is safe for concurrent use.
package workspace

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wlwd13303/panda-quantflow/internal/logger"
	"github.com/wlwd13303/panda-quantflow/internal/metrics"
	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
	"github.com/wlwd13303/panda-quantflow/pkg/errors"
)

// defaultPollInterval is the progress poll period for tracked runs.
const defaultPollInterval = 2000 * time.Millisecond

// detailPageSize is the page size used when refreshing the legacy detailed
// endpoints. One large page keeps the refresh to a single round trip per
// endpoint.
const detailPageSize = 1000

// BackendClient is the slice of the API client the workspace depends on.
type BackendClient interface {
	ListStrategies(ctx context.Context) ([]api.Strategy, error)
	GetStrategy(ctx context.Context, id string) (api.Strategy, error)
	SaveStrategy(ctx context.Context, req api.SaveStrategyRequest) (api.Strategy, error)
	DeleteStrategy(ctx context.Context, id string) error
	StartBacktest(ctx context.Context, req api.StartBacktestRequest) (string, error)
	GetProgress(ctx context.Context, runID string) (api.Progress, error)
	GetMonitorSnapshot(ctx context.Context, runID string) (api.MonitorSnapshot, error)
	GetAccountData(ctx context.Context, runID string, page, pageSize int) (api.Page, error)
	GetProfitData(ctx context.Context, runID string, page, pageSize int) (api.Page, error)
	GetPositionData(ctx context.Context, runID string, page, pageSize int) (api.Page, error)
	GetTradeData(ctx context.Context, runID string, page, pageSize int) (api.Page, error)
	GetStrategyLogs(ctx context.Context, runID string, page, pageSize int) (api.Page, error)
	ListBacktests(ctx context.Context, page, pageSize int, status string) (api.RunPage, error)
	DeleteBacktest(ctx context.Context, runID string) (int, error)
	BatchDeleteBacktests(ctx context.Context, runIDs []string) (int, error)
}

// Update is pushed to the update handler whenever a tracked run's progress
// or result set changes.
type Update struct {
	RunID    string
	Progress api.Progress
	Result   types.ResultSet
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the default progress poll period.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithUpdateHandler registers a callback invoked, outside the manager lock,
// after each poll cycle of a tracked run.
func WithUpdateHandler(handler func(Update)) Option {
	return func(m *Manager) {
		m.onUpdate = handler
	}
}

// Manager owns the workspace session. It always contains the management tab
// and keeps at most one tab per strategy and per backtest run.
type Manager struct {
	mu       sync.Mutex
	client   BackendClient
	logger   *logger.Logger
	interval time.Duration
	onUpdate func(Update)

	tabs     []*Tab
	activeID string

	progress map[string]api.Progress
	results  map[string]types.ResultSet
	pollers  map[string]*poller
}

// NewManager creates a workspace with the management tab open and active.
func NewManager(client BackendClient, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		mu:       sync.Mutex{},
		client:   client,
		logger:   log,
		interval: defaultPollInterval,
		onUpdate: nil,
		tabs:     []*Tab{newManagementTab()},
		activeID: ManagementTabID,
		progress: make(map[string]api.Progress),
		results:  make(map[string]types.ResultSet),
		pollers:  make(map[string]*poller),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Tabs returns a snapshot of the open tabs in their display order.
func (m *Manager) Tabs() []Tab {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabs := make([]Tab, 0, len(m.tabs))
	for _, tab := range m.tabs {
		tabs = append(tabs, *tab)
	}

	return tabs
}

// ActiveTab returns a copy of the currently active tab.
func (m *Manager) ActiveTab() Tab {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(m.activeID); tab != nil {
		return *tab
	}

	// The management tab always exists.
	return *m.findTab(ManagementTabID)
}

// SetActive activates the tab with the given id.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findTab(id) == nil {
		return errors.Newf(errors.ErrCodeTabNotFound, "no tab with id %s", id)
	}

	m.activeID = id

	return nil
}

// OpenManagementTab activates the management tab.
func (m *Manager) OpenManagementTab() Tab {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeID = ManagementTabID

	return *m.findTab(ManagementTabID)
}

// OpenStrategyTab opens an editor tab for the strategy. Passing NewDraftID
// (or an empty id) opens a fresh draft seeded with the template code. When a
// tab for the strategy is already open it is activated, not duplicated.
func (m *Manager) OpenStrategyTab(ctx context.Context, strategyID string) (Tab, error) {
	if strategyID == "" {
		strategyID = NewDraftID
	}

	id := StrategyTabID(strategyID)

	m.mu.Lock()
	if tab := m.findTab(id); tab != nil {
		m.activeID = id
		open := *tab
		m.mu.Unlock()

		return open, nil
	}
	m.mu.Unlock()

	var tab *Tab
	if strategyID == NewDraftID {
		tab = newDraftTab()
	} else {
		strategy, err := m.client.GetStrategy(ctx, strategyID)
		if err != nil {
			return Tab{}, err
		}

		tab = newStrategyTab(strategy)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The fetch ran unlocked, so the tab may have appeared in the meantime.
	if existing := m.findTab(tab.ID); existing != nil {
		m.activeID = existing.ID

		return *existing, nil
	}

	m.tabs = append(m.tabs, tab)
	m.activeID = tab.ID

	return *tab, nil
}

// OpenBacktestTab opens (or activates) the tab for a backtest run and starts
// tracking the run's progress.
func (m *Manager) OpenBacktestTab(runID, title string) (Tab, error) {
	if runID == "" {
		return Tab{}, errors.New(errors.ErrCodeInvalidParameter, "run id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := BacktestTabID(runID)
	if tab := m.findTab(id); tab != nil {
		m.activeID = id

		return *tab, nil
	}

	tab := newBacktestTab(runID, title)
	m.tabs = append(m.tabs, tab)
	m.activeID = tab.ID
	// Seed the progress cache so a freshly opened tab reports a running run
	// at zero instead of untracked until the first poll lands.
	m.progress[runID] = api.Progress{Progress: 0, Status: types.RunStatusRunning}
	m.startPollerLocked(runID)

	return *tab, nil
}

// CloseTab closes a tab. The management tab cannot be closed. Closing a
// backtest tab stops its poller and discards its cached results; closing the
// active tab falls back to the management tab.
func (m *Manager) CloseTab(id string) error {
	m.mu.Lock()

	tab := m.findTab(id)
	if tab == nil {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeTabNotFound, "no tab with id %s", id)
	}

	if !tab.Closable {
		m.mu.Unlock()

		return errors.New(errors.ErrCodeTabNotClosable, "the management tab cannot be closed")
	}

	var stopped *poller
	if tab.Kind == TabKindBacktest {
		stopped = m.pollers[tab.RunID]
		delete(m.pollers, tab.RunID)
		delete(m.results, tab.RunID)
		delete(m.progress, tab.RunID)
	}

	for i, open := range m.tabs {
		if open.ID == id {
			m.tabs = append(m.tabs[:i], m.tabs[i+1:]...)

			break
		}
	}

	if m.activeID == id {
		m.activeID = ManagementTabID
	}
	m.mu.Unlock()

	if stopped != nil {
		stopped.stop()
	}

	return nil
}

// UpdateDraft replaces the name and code of a strategy tab's draft and marks
// it dirty.
func (m *Manager) UpdateDraft(tabID, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab := m.findTab(tabID)
	if tab == nil || tab.Kind != TabKindStrategy {
		return errors.Newf(errors.ErrCodeTabNotFound, "no strategy tab with id %s", tabID)
	}

	tab.Draft.Name = name
	tab.Draft.Code = code
	tab.Draft.Dirty = true
	tab.Title = name

	return nil
}

// SaveStrategy persists a strategy tab's draft. A draft without a strategy
// id is created; on success the tab is rekeyed in place to the assigned id,
// so the open tab survives the new-to-saved transition.
func (m *Manager) SaveStrategy(ctx context.Context, tabID string) (api.Strategy, error) {
	m.mu.Lock()
	tab := m.findTab(tabID)
	if tab == nil || tab.Kind != TabKindStrategy {
		m.mu.Unlock()

		return api.Strategy{}, errors.Newf(errors.ErrCodeTabNotFound, "no strategy tab with id %s", tabID)
	}

	req := api.SaveStrategyRequest{
		ID:          tab.Draft.StrategyID,
		Name:        tab.Draft.Name,
		Code:        tab.Draft.Code,
		Description: "",
	}
	m.mu.Unlock()

	saved, err := m.client.SaveStrategy(ctx, req)
	if err != nil {
		return api.Strategy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tab := m.findTab(tabID); tab != nil && tab.Kind == TabKindStrategy {
		tab.ID = StrategyTabID(saved.Key())
		tab.Title = saved.Name
		tab.Draft.StrategyID = saved.Key()
		tab.Draft.Name = saved.Name
		tab.Draft.Dirty = false
		if m.activeID == tabID {
			m.activeID = tab.ID
		}
	}

	return saved, nil
}

// StartBacktest launches a run from a strategy tab's draft and opens the
// run's tab. The draft code is sent as-is; unsaved changes are included.
func (m *Manager) StartBacktest(ctx context.Context, tabID string, config types.BacktestConfig) (string, error) {
	m.mu.Lock()
	tab := m.findTab(tabID)
	if tab == nil || tab.Kind != TabKindStrategy {
		m.mu.Unlock()

		return "", errors.Newf(errors.ErrCodeTabNotFound, "no strategy tab with id %s", tabID)
	}

	req := api.StartBacktestRequest{
		StrategyCode:       tab.Draft.Code,
		StrategyName:       tab.Draft.Name,
		StartDate:          config.StartDate,
		EndDate:            config.EndDate,
		StartCapital:       config.StartCapital,
		CommissionRate:     config.CommissionRate,
		Frequency:          config.Frequency,
		StandardSymbol:     config.StandardSymbol,
		MatchingType:       config.MatchingType,
		AccountID:          "",
		AccountType:        0,
		Slippage:           0,
		MarginRate:         0,
		StartFutureCapital: 0,
		StartFundCapital:   0,
	}
	title := tab.Draft.Name
	m.mu.Unlock()

	runID, err := m.client.StartBacktest(ctx, req)
	if err != nil {
		return "", err
	}

	if _, err := m.OpenBacktestTab(runID, title); err != nil {
		return runID, err
	}

	return runID, nil
}

// Strategies lists the saved strategies.
func (m *Manager) Strategies(ctx context.Context) ([]api.Strategy, error) {
	return m.client.ListStrategies(ctx)
}

// DeleteStrategy removes a strategy from the backend and closes its tab if
// one is open.
func (m *Manager) DeleteStrategy(ctx context.Context, strategyID string) error {
	if err := m.client.DeleteStrategy(ctx, strategyID); err != nil {
		return err
	}

	if err := m.CloseTab(StrategyTabID(strategyID)); err != nil && !errors.HasCode(err, errors.ErrCodeTabNotFound) {
		return err
	}

	return nil
}

// Runs lists past backtest runs.
func (m *Manager) Runs(ctx context.Context, page, pageSize int, status string) (api.RunPage, error) {
	return m.client.ListBacktests(ctx, page, pageSize, status)
}

// DeleteRun deletes one backtest run and closes its tab if open. The
// returned count is the backend's reported number of deleted records.
func (m *Manager) DeleteRun(ctx context.Context, runID string) (int, error) {
	deleted, err := m.client.DeleteBacktest(ctx, runID)
	if err != nil {
		return 0, err
	}

	if err := m.CloseTab(BacktestTabID(runID)); err != nil && !errors.HasCode(err, errors.ErrCodeTabNotFound) {
		return deleted, err
	}

	return deleted, nil
}

// DeleteRuns deletes several runs in one request and closes their tabs.
func (m *Manager) DeleteRuns(ctx context.Context, runIDs []string) (int, error) {
	deleted, err := m.client.BatchDeleteBacktests(ctx, runIDs)
	if err != nil {
		return 0, err
	}

	for _, runID := range runIDs {
		if err := m.CloseTab(BacktestTabID(runID)); err != nil && !errors.HasCode(err, errors.ErrCodeTabNotFound) {
			return deleted, err
		}
	}

	return deleted, nil
}

// Progress returns the last polled progress of a tracked run.
func (m *Manager) Progress(runID string) (api.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress, ok := m.progress[runID]

	return progress, ok
}

// Result returns the cached merged result set of a tracked run.
func (m *Manager) Result(runID string) (types.ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.results[runID]

	return result, ok
}

// Metrics computes performance metrics from a tracked run's cached equity
// curve. An untracked or still-empty run yields the zero value.
func (m *Manager) Metrics(runID string, startCapital float64) metrics.Metrics {
	m.mu.Lock()
	equity := m.results[runID].Equity
	m.mu.Unlock()

	return metrics.Calculate(equity, startCapital)
}

// Logs fetches one page of strategy log lines for a run.
func (m *Manager) Logs(ctx context.Context, runID string, page, pageSize int) (api.Page, error) {
	return m.client.GetStrategyLogs(ctx, runID, page, pageSize)
}

// Refresh forces an immediate result refresh for a tracked run, outside the
// poll cycle.
func (m *Manager) Refresh(ctx context.Context, runID string) error {
	if !m.tracked(runID) {
		return errors.Newf(errors.ErrCodeBacktestNotTracked, "run %s is not tracked", runID)
	}

	return m.refresh(ctx, runID)
}

// Close stops all pollers and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	stopped := make([]*poller, 0, len(m.pollers))
	for runID, p := range m.pollers {
		stopped = append(stopped, p)
		delete(m.pollers, runID)
	}
	m.mu.Unlock()

	for _, p := range stopped {
		p.stop()
	}
}

// findTab returns the open tab with the given id. Callers hold the lock.
func (m *Manager) findTab(id string) *Tab {
	for _, tab := range m.tabs {
		if tab.ID == id {
			return tab
		}
	}

	return nil
}

// tracked reports whether the run still has an open backtest tab.
func (m *Manager) tracked(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.findTab(BacktestTabID(runID)) != nil
}

// SetUpdateHandler replaces the update callback. It exists alongside
// WithUpdateHandler for callers whose event sink is only constructed after
// the manager, such as a Bubble Tea program.
func (m *Manager) SetUpdateHandler(handler func(Update)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onUpdate = handler
}

func (m *Manager) notify(update Update) {
	m.mu.Lock()
	handler := m.onUpdate
	m.mu.Unlock()

	if handler != nil {
		handler(update)
	}
}

func (m *Manager) logDebug(msg string, fields ...zap.Field) {
	if m.logger != nil {
		m.logger.Debug(msg, fields...)
	}
}
