package main

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlwd13303/panda-quantflow/internal/logger"
	"github.com/wlwd13303/panda-quantflow/internal/mockbackend"
	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/internal/workspace"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

func newTestWorkspace(t *testing.T) (Model, *mockbackend.Server, *workspace.Manager) {
	t.Helper()

	backend := mockbackend.NewServer(mockbackend.ServerConfig{
		ProgressPerPoll: 100,
		MonitorEnabled:  true,
		EquityPoints:    3,
	})
	require.NoError(t, backend.Start(""))
	t.Cleanup(func() {
		_ = backend.Stop()
	})

	client, err := api.NewClient(api.Config{
		BaseURL: backend.BaseURL(),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	manager := workspace.NewManager(client, logger.NewNopLogger(),
		workspace.WithPollInterval(10*time.Millisecond))
	t.Cleanup(manager.Close)

	backtestConfig := types.BacktestConfig{
		StartCapital:   10000000,
		StartDate:      "20240101",
		EndDate:        "20240301",
		Frequency:      "1d",
		CommissionRate: 1,
		StandardSymbol: "000300.SH",
	}

	return NewModel(manager, backtestConfig), backend, manager
}

func TestManagementTabRendersStrategies(t *testing.T) {
	m, backend, _ := newTestWorkspace(t)
	backend.SeedStrategy(api.Strategy{ID: "s1", Name: "双均线策略", Code: "print('hi')"})

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	// The management tab loads the strategy list on startup.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理")) &&
			bytes.Contains(bts, []byte("双均线策略"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestNewDraftOpensEditorTab(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑")) &&
			bytes.Contains(bts, []byte("未命名策略"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestTabCyclingReturnsToManagement(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlT})

	// Back on the management tab; the draft stays open in the tab bar.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略列表")) &&
			bytes.Contains(bts, []byte("未命名策略"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestCloseTabFallsBackToManagement(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlW})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略列表")) &&
			!bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestSaveDraftShowsConfirmation(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlS})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("已保存"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestStartBacktestOpensRunTab(t *testing.T) {
	m, _, manager := newTestWorkspace(t)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	// Forward poll updates into the test program so the run tab re-renders
	// when merged results land.
	manager.SetUpdateHandler(func(update workspace.Update) {
		tm.Send(runUpdateMsg{Update: update})
	})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlR})

	// The run tab shows progress and, once the poller has refreshed,
	// the merged performance summary.
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("回测已启动")) &&
			bytes.Contains(bts, []byte("总收益"))
	}, teatest.WithDuration(3*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestFailedRunShowsFallbackError(t *testing.T) {
	m, backend, manager := newTestWorkspace(t)
	// The run fails on its first poll without any error detail.
	backend.SetFailure(100, "")

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	manager.SetUpdateHandler(func(update workspace.Update) {
		tm.Send(runUpdateMsg{Update: update})
	})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略管理"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("策略编辑"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlR})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("回测失败"))
	}, teatest.WithDuration(3*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestWindowResize(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updatedModel := newModel.(Model)

	assert.Equal(t, 120, updatedModel.width)
	assert.Equal(t, 40, updatedModel.height)
}

func TestErrMsgRendersInView(t *testing.T) {
	m, _, _ := newTestWorkspace(t)

	newModel, _ := m.Update(errMsg{Err: fmt.Errorf("backend unreachable")})
	updatedModel := newModel.(Model)

	assert.Contains(t, updatedModel.View(), "backend unreachable")
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		percent  float64
		contains string
	}{
		{
			name:     "empty",
			percent:  0,
			contains: "0%",
		},
		{
			name:     "half",
			percent:  50,
			contains: "50%",
		},
		{
			name:     "full",
			percent:  100,
			contains: "100%",
		},
		{
			name:     "clamped above full",
			percent:  140,
			contains: "100%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderProgressBar(tt.percent, 10)
			assert.Contains(t, result, tt.contains)
		})
	}
}

func TestRenderSparkline(t *testing.T) {
	assert.Empty(t, RenderSparkline(nil, 10))
	assert.Empty(t, RenderSparkline([]float64{1}, 0))

	line := []rune(RenderSparkline([]float64{1, 2, 3, 4}, 4))
	assert.Len(t, line, 4)
	assert.Equal(t, '▁', line[0])
	assert.Equal(t, '█', line[3])

	flat := []rune(RenderSparkline([]float64{5, 5, 5}, 3))
	assert.Equal(t, []rune("▁▁▁"), flat)
}

func TestFormatSignedPercent(t *testing.T) {
	assert.Contains(t, FormatSignedPercent(1.5), "+1.50%")
	assert.Contains(t, FormatSignedPercent(-2.25), "-2.25%")
}
