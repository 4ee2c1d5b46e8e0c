package mockbackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
	"github.com/wlwd13303/panda-quantflow/pkg/errors"
)

type ServerTestSuite struct {
	suite.Suite
	server *Server
	client *api.Client
}

func (suite *ServerTestSuite) SetupTest() {
	suite.server = NewServer(ServerConfig{
		ProgressPerPoll: 50,
		MonitorEnabled:  true,
		EquityPoints:    5,
	})
	suite.Require().NoError(suite.server.Start(""))

	client, err := api.NewClient(api.Config{
		BaseURL: suite.server.BaseURL(),
		Timeout: 5 * time.Second,
	})
	suite.Require().NoError(err)
	suite.client = client
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.Require().NoError(suite.server.Stop())
}

func (suite *ServerTestSuite) startRun() string {
	runID, err := suite.client.StartBacktest(context.Background(), api.StartBacktestRequest{
		StrategyCode:   "print('hi')",
		StrategyName:   "测试策略",
		StartDate:      "20240101",
		EndDate:        "20240301",
		StartCapital:   10000000,
		CommissionRate: 1,
		Frequency:      "1d",
	})
	suite.Require().NoError(err)
	suite.Require().NotEmpty(runID)

	return runID
}

func (suite *ServerTestSuite) TestStrategyLifecycle() {
	ctx := context.Background()

	saved, err := suite.client.SaveStrategy(ctx, api.SaveStrategyRequest{
		Name: "双均线",
		Code: "code v1",
	})
	suite.Require().NoError(err)
	suite.NotEmpty(saved.ID)

	fetched, err := suite.client.GetStrategy(ctx, saved.ID)
	suite.Require().NoError(err)
	suite.Equal("code v1", fetched.Code)

	updated, err := suite.client.SaveStrategy(ctx, api.SaveStrategyRequest{
		ID:   saved.ID,
		Name: "双均线",
		Code: "code v2",
	})
	suite.Require().NoError(err)
	suite.Equal(saved.ID, updated.ID)

	list, err := suite.client.ListStrategies(ctx)
	suite.Require().NoError(err)
	suite.Len(list, 1)
	suite.Equal("code v2", list[0].Code)

	suite.Require().NoError(suite.client.DeleteStrategy(ctx, saved.ID))

	list, err = suite.client.ListStrategies(ctx)
	suite.Require().NoError(err)
	suite.Empty(list)
}

func (suite *ServerTestSuite) TestGetStrategyUnknownIDFailsWithBackendMessage() {
	_, err := suite.client.GetStrategy(context.Background(), "missing")

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBackendRejected))
	suite.Equal("策略不存在", errors.BackendMessage(err))
}

func (suite *ServerTestSuite) TestBacktestProgressScript() {
	ctx := context.Background()
	runID := suite.startRun()

	first, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusRunning, first.Status)
	suite.InDelta(50, first.Progress, 1e-9)

	second, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusCompleted, second.Status)
	suite.InDelta(100, second.Progress, 1e-9)

	// Terminal progress stays pinned on further polls.
	third, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusCompleted, third.Status)
	suite.InDelta(100, third.Progress, 1e-9)
}

func (suite *ServerTestSuite) TestBacktestFailureScript() {
	ctx := context.Background()
	suite.server.SetFailure(50, "策略代码异常")
	runID := suite.startRun()

	first, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusFailed, first.Status)
	message, takeErr := first.Error.Take()
	suite.Require().NoError(takeErr)
	suite.Equal("策略代码异常", message)

	// Terminal failure stays pinned on further polls.
	second, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusFailed, second.Status)
}

func (suite *ServerTestSuite) TestBacktestFailureWithoutMessage() {
	ctx := context.Background()
	suite.server.SetFailure(50, "")
	runID := suite.startRun()

	progress, err := suite.client.GetProgress(ctx, runID)
	suite.Require().NoError(err)
	suite.Equal(types.RunStatusFailed, progress.Status)
	suite.True(progress.Error.IsNone())
}

func (suite *ServerTestSuite) TestMonitorSnapshot() {
	ctx := context.Background()
	runID := suite.startRun()

	snapshot, err := suite.client.GetMonitorSnapshot(ctx, runID)
	suite.Require().NoError(err)
	suite.True(snapshot.Success)
	suite.Require().NotNil(snapshot.Stats)
	suite.Equal(4, snapshot.Stats.TradeCount)
	suite.Len(snapshot.EquityCurve, 5)
	suite.Equal("20240101", snapshot.EquityCurve[0].Date)
	suite.InDelta(10000000, snapshot.EquityCurve[0].Value, 1e-9)
	suite.InDelta(10400000, snapshot.EquityCurve[4].Value, 1e-9)
	suite.Require().NotNil(snapshot.LatestAccount)
	suite.InDelta(10400000, snapshot.LatestAccount.TotalAsset, 1e-9)
}

func (suite *ServerTestSuite) TestMonitorDisabledForcesLegacyFallback() {
	ctx := context.Background()
	suite.server.SetMonitorEnabled(false)
	runID := suite.startRun()

	_, err := suite.client.GetMonitorSnapshot(ctx, runID)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBackendRejected))

	// The legacy endpoints still serve the full data set.
	profits, err := suite.client.GetProfitData(ctx, runID, 1, 100)
	suite.Require().NoError(err)
	suite.Len(profits.Items, 5)
	suite.Equal(5, profits.Total)

	trades, err := suite.client.GetTradeData(ctx, runID, 1, 100)
	suite.Require().NoError(err)
	suite.Len(trades.Items, 4)
	suite.Equal("买入", trades.Items[0]["direction"])
}

func (suite *ServerTestSuite) TestDetailPagination() {
	ctx := context.Background()
	runID := suite.startRun()

	page1, err := suite.client.GetProfitData(ctx, runID, 1, 2)
	suite.Require().NoError(err)
	suite.Len(page1.Items, 2)
	suite.Equal(5, page1.Total)

	page3, err := suite.client.GetProfitData(ctx, runID, 3, 2)
	suite.Require().NoError(err)
	suite.Len(page3.Items, 1)

	page4, err := suite.client.GetProfitData(ctx, runID, 4, 2)
	suite.Require().NoError(err)
	suite.Empty(page4.Items)
}

func (suite *ServerTestSuite) TestStrategyLogs() {
	ctx := context.Background()
	runID := suite.startRun()

	logs, err := suite.client.GetStrategyLogs(ctx, runID, 1, 10)
	suite.Require().NoError(err)
	suite.Len(logs.Items, 5)
	suite.Equal("INFO", logs.Items[0]["level"])
	suite.Equal("bar 0 handled", logs.Items[0]["message"])
}

func (suite *ServerTestSuite) TestListAndDeleteBacktests() {
	ctx := context.Background()
	first := suite.startRun()
	second := suite.startRun()

	runs, err := suite.client.ListBacktests(ctx, 1, 10, "")
	suite.Require().NoError(err)
	suite.Len(runs.Items, 2)
	suite.Equal(first, runs.Items[0].Key())

	deleted, err := suite.client.DeleteBacktest(ctx, first)
	suite.Require().NoError(err)
	suite.Equal(1, deleted)

	deleted, err = suite.client.DeleteBacktest(ctx, first)
	suite.Require().NoError(err)
	suite.Equal(0, deleted)

	deleted, err = suite.client.BatchDeleteBacktests(ctx, []string{second, "missing"})
	suite.Require().NoError(err)
	suite.Equal(1, deleted)

	runs, err = suite.client.ListBacktests(ctx, 1, 10, "")
	suite.Require().NoError(err)
	suite.Empty(runs.Items)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
