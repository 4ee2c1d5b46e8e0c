package workspace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wlwd13303/panda-quantflow/internal/merge"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// poller tracks one run. Its goroutine polls progress on a ticker, refreshes
// the cached result set on every cycle while the run is live, and exits on
// its own once the run reaches a terminal status.
type poller struct {
	runID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the poll loop and waits for it to exit.
func (p *poller) stop() {
	p.cancel()
	<-p.done
}

// startPollerLocked starts tracking a run. Callers hold the manager lock.
// Starting an already tracked run is a no-op.
func (m *Manager) startPollerLocked(runID string) {
	if _, ok := m.pollers[runID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		runID:  runID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.pollers[runID] = p

	go m.pollLoop(ctx, p)
}

func (m *Manager) pollLoop(ctx context.Context, p *poller) {
	defer close(p.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First cycle runs immediately so a freshly opened tab has data before
	// the first tick.
	for {
		if done := m.pollOnce(ctx, p.runID); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce runs one poll cycle. It reports true when polling should stop,
// which only happens on a terminal run status; transient errors keep the
// loop alive.
func (m *Manager) pollOnce(ctx context.Context, runID string) bool {
	progress, err := m.client.GetProgress(ctx, runID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}

		m.logDebug("progress poll failed",
			zap.String("run_id", runID),
			zap.Error(err))

		return false
	}

	m.mu.Lock()
	if m.findTab(BacktestTabID(runID)) == nil {
		// The tab closed while the request was in flight.
		m.mu.Unlock()

		return true
	}
	m.progress[runID] = progress
	m.mu.Unlock()

	// Refresh on every live cycle, and once more on the cycle that observes
	// the terminal status, so the final data always lands in the cache.
	// Refresh errors were already logged; a later cycle retries.
	_ = m.refresh(ctx, runID)

	m.mu.Lock()
	result := m.results[runID]
	m.mu.Unlock()

	m.notify(Update{
		RunID:    runID,
		Progress: progress,
		Result:   result,
	})

	return progress.Status.Terminal()
}

// refresh fetches the monitor snapshot and the legacy detailed endpoints and
// merges them into the run's cached result set. Individual fetch failures
// are logged and tolerated: a failed monitor call switches the merge to its
// legacy fallback, and a failed detail call simply contributes nothing. The
// returned error is non-nil only when every endpoint failed; the poll loop
// ignores it, a manual refresh surfaces it.
func (m *Manager) refresh(ctx context.Context, runID string) error {
	var monitor *api.MonitorSnapshot
	snapshot, monitorErr := m.client.GetMonitorSnapshot(ctx, runID)
	if monitorErr != nil {
		m.logDebug("monitor snapshot unavailable, using legacy endpoints",
			zap.String("run_id", runID),
			zap.Error(monitorErr))
	} else {
		monitor = &snapshot
	}

	accounts, accountsErr := m.fetchDetail(ctx, runID, "account", m.client.GetAccountData)
	profits, profitsErr := m.fetchDetail(ctx, runID, "profit", m.client.GetProfitData)
	positions, positionsErr := m.fetchDetail(ctx, runID, "position", m.client.GetPositionData)
	trades, tradesErr := m.fetchDetail(ctx, runID, "trade", m.client.GetTradeData)

	details := merge.DetailData{
		Accounts:  accounts,
		Profits:   profits,
		Positions: positions,
		Trades:    trades,
	}

	m.mu.Lock()
	// The fetches ran unlocked; drop the result if the tab closed meanwhile.
	if m.findTab(BacktestTabID(runID)) != nil {
		m.results[runID] = merge.Merge(m.results[runID], monitor, details)
	}
	m.mu.Unlock()

	if monitorErr != nil && accountsErr != nil && profitsErr != nil &&
		positionsErr != nil && tradesErr != nil {
		return monitorErr
	}

	return nil
}

type detailFetch func(ctx context.Context, runID string, page, pageSize int) (api.Page, error)

func (m *Manager) fetchDetail(ctx context.Context, runID, name string, fetch detailFetch) ([]api.Record, error) {
	page, err := fetch(ctx, runID, 1, detailPageSize)
	if err != nil {
		m.logDebug("detail fetch failed",
			zap.String("run_id", runID),
			zap.String("endpoint", name),
			zap.Error(err))

		return nil, err
	}

	return page.Items, nil
}
