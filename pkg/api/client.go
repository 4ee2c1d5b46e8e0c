// Package api implements the HTTP client for the QuantFlow backtest backend.
// It translates domain operations into REST calls and normalizes the
// backend's heterogeneous response envelopes ({success, data} wrappers, bare
// arrays, {items, total} pages) into uniform Go shapes.
//
// The client never retries on its own; retry and backoff decisions belong to
// the polling layer. Backend error messages are surfaced verbatim.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/wlwd13303/panda-quantflow/pkg/errors"
)

const (
	defaultTimeout = 30 * time.Second

	// Default page sizes mirror what the backend expects per endpoint.
	defaultStrategyPageSize = 100
)

// Config holds the configuration for the API client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string `validate:"required,url"`
	// Timeout bounds each individual request. Zero means the default.
	Timeout time.Duration
}

// Client is the QuantFlow backend API client.
type Client struct {
	http     *resty.Client
	validate *validator.Validate
}

// NewClient creates a new API client with the given configuration.
func NewClient(config Config) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:     httpClient,
		validate: validate,
	}, nil
}

// ListStrategies returns all saved strategies. Malformed payloads degrade to
// an empty list so the workspace stays usable; transport failures are errors.
func (c *Client) ListStrategies(ctx context.Context) ([]Strategy, error) {
	env, _, err := c.get(ctx, "/api/strategy/", map[string]string{
		"page":      "1",
		"page_size": strconv.Itoa(defaultStrategyPageSize),
	})
	if err != nil {
		return nil, err
	}

	items, _ := decodeList[Strategy](env.Data)

	return items, nil
}

// GetStrategy fetches a single strategy by id.
func (c *Client) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	env, _, err := c.get(ctx, "/api/strategy/"+id, nil)
	if err != nil {
		return Strategy{}, err
	}

	var strategy Strategy
	if err := json.Unmarshal(env.Data, &strategy); err != nil {
		return Strategy{}, errors.Wrapf(errors.ErrCodeMalformedReply, err, "strategy %s payload is not decodable", id)
	}

	return strategy, nil
}

// SaveStrategy creates (empty id) or updates (non-empty id) a strategy and
// returns the persisted record.
func (c *Client) SaveStrategy(ctx context.Context, req SaveStrategyRequest) (Strategy, error) {
	if err := c.validate.Struct(req); err != nil {
		return Strategy{}, errors.Wrap(errors.ErrCodeMissingField, "strategy name and code are required", err)
	}

	env, _, err := c.post(ctx, "/api/strategy/", req)
	if err != nil {
		return Strategy{}, err
	}

	var strategy Strategy
	if err := json.Unmarshal(env.Data, &strategy); err != nil {
		return Strategy{}, errors.Wrap(errors.ErrCodeMalformedReply, "saved strategy payload is not decodable", err)
	}

	return strategy, nil
}

// DeleteStrategy removes a strategy by id.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete("/api/strategy/" + id)
	})

	return err
}

// StartBacktest launches a run and returns the backend's run id.
func (c *Client) StartBacktest(ctx context.Context, req StartBacktestRequest) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidParameter, "incomplete backtest request", err)
	}

	env, body, err := c.post(ctx, "/api/backtest/start", req)
	if err != nil {
		return "", err
	}

	var started struct {
		BackTestID string `json:"back_test_id"`
	}

	// The run id arrives inside data on current backends and at the top
	// level on older ones.
	if env.Data != nil {
		_ = json.Unmarshal(env.Data, &started)
	}

	if started.BackTestID == "" {
		_ = json.Unmarshal(body, &started)
	}

	if started.BackTestID == "" {
		return "", errors.New(errors.ErrCodeBacktestStartFailed, "backend did not return a run id")
	}

	return started.BackTestID, nil
}

// GetProgress polls the status of a run.
func (c *Client) GetProgress(ctx context.Context, runID string) (Progress, error) {
	env, _, err := c.get(ctx, "/api/backtest/progress", map[string]string{"back_id": runID})
	if err != nil {
		return Progress{}, err
	}

	var progress Progress
	if err := json.Unmarshal(env.Data, &progress); err != nil {
		return Progress{}, errors.Wrapf(errors.ErrCodeMalformedReply, err, "progress payload for run %s is not decodable", runID)
	}

	return progress, nil
}

// GetMonitorSnapshot fetches the consolidated live-result snapshot for a run.
// A snapshot the backend flags as unsuccessful surfaces as a backend-rejected
// error; callers treat any error here as the cue to fall back to the legacy
// detail endpoints.
func (c *Client) GetMonitorSnapshot(ctx context.Context, runID string) (MonitorSnapshot, error) {
	env, _, err := c.get(ctx, "/api/backtest/monitor", map[string]string{"back_id": runID})
	if err != nil {
		return MonitorSnapshot{}, err
	}

	var snapshot MonitorSnapshot
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		return MonitorSnapshot{}, errors.Wrapf(errors.ErrCodeMalformedReply, err, "monitor payload for run %s is not decodable", runID)
	}

	return snapshot, nil
}

// GetAccountData returns one page of account rows for a run.
func (c *Client) GetAccountData(ctx context.Context, runID string, page, pageSize int) (Page, error) {
	return c.getPage(ctx, "/api/backtest/account", runID, page, pageSize)
}

// GetProfitData returns one page of profit/equity rows for a run.
func (c *Client) GetProfitData(ctx context.Context, runID string, page, pageSize int) (Page, error) {
	return c.getPage(ctx, "/api/backtest/profit", runID, page, pageSize)
}

// GetPositionData returns one page of position rows for a run.
func (c *Client) GetPositionData(ctx context.Context, runID string, page, pageSize int) (Page, error) {
	return c.getPage(ctx, "/api/backtest/position", runID, page, pageSize)
}

// GetTradeData returns one page of trade rows for a run.
func (c *Client) GetTradeData(ctx context.Context, runID string, page, pageSize int) (Page, error) {
	return c.getPage(ctx, "/api/backtest/trade", runID, page, pageSize)
}

// GetStrategyLogs returns one page of user strategy log rows for a run.
func (c *Client) GetStrategyLogs(ctx context.Context, runID string, page, pageSize int) (Page, error) {
	return c.getPage(ctx, "/api/backtest/userstrategylog", runID, page, pageSize)
}

// ListBacktests returns one page of run records, optionally filtered by status.
func (c *Client) ListBacktests(ctx context.Context, page, pageSize int, status string) (RunPage, error) {
	query := map[string]string{
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
	if status != "" {
		query["status"] = status
	}

	env, _, err := c.get(ctx, "/api/backtest/list", query)
	if err != nil {
		return RunPage{}, err
	}

	items, total := decodeList[BacktestRun](env.Data)

	return RunPage{Items: items, Total: total}, nil
}

// DeleteBacktest removes a run and returns the backend's deleted-record
// count. The count shape is read defensively and defaults to zero.
func (c *Client) DeleteBacktest(ctx context.Context, runID string) (int, error) {
	env, _, err := c.get(ctx, "/api/backtest/delete", map[string]string{"back_id": runID})
	if err != nil {
		return 0, err
	}

	return decodeDeletedCount(env.Data), nil
}

// BatchDeleteBacktests removes several runs in one call and returns the
// backend's total deleted-record count.
func (c *Client) BatchDeleteBacktests(ctx context.Context, runIDs []string) (int, error) {
	payload := map[string][]string{"back_ids": runIDs}

	env, _, err := c.post(ctx, "/api/backtest/batch_delete", payload)
	if err != nil {
		return 0, err
	}

	return decodeDeletedCount(env.Data), nil
}

// decodeDeletedCount reads {deleted_count: {total}} defensively; whether
// deleted_count is ever absent in practice is unverified upstream.
func decodeDeletedCount(raw json.RawMessage) int {
	var deleted struct {
		DeletedCount *struct {
			Total int `json:"total"`
		} `json:"deleted_count"`
	}

	if raw == nil || json.Unmarshal(raw, &deleted) != nil || deleted.DeletedCount == nil {
		return 0
	}

	return deleted.DeletedCount.Total
}

func (c *Client) getPage(ctx context.Context, path, runID string, page, pageSize int) (Page, error) {
	env, _, err := c.get(ctx, path, map[string]string{
		"back_id":   runID,
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	})
	if err != nil {
		return Page{}, err
	}

	items, total := decodeList[Record](env.Data)

	return Page{Items: items, Total: total}, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) (envelope, []byte, error) {
	return c.roundTrip(ctx, func(r *resty.Request) (*resty.Response, error) {
		if len(query) > 0 {
			r.SetQueryParams(query)
		}

		return r.Get(path)
	})
}

func (c *Client) post(ctx context.Context, path string, body any) (envelope, []byte, error) {
	return c.roundTrip(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post(path)
	})
}

// do runs a request where the caller only cares about success or failure.
func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (envelope, error) {
	env, _, err := c.roundTrip(ctx, send)

	return env, err
}

// roundTrip issues one request and maps the three failure classes: transport
// errors, HTTP-level rejections, and {success:false} envelope rejections.
// The backend's message text is carried through verbatim.
func (c *Client) roundTrip(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (envelope, []byte, error) {
	resp, err := send(c.http.R().SetContext(ctx))
	if err != nil {
		return envelope{}, nil, errors.Wrap(errors.ErrCodeTransport, "backend unreachable", err)
	}

	body := resp.Body()
	env := decodeEnvelope(body)

	if resp.IsError() {
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("backend returned status %d", resp.StatusCode())
		}

		return env, body, errors.New(errors.ErrCodeBackendRejected, message)
	}

	if env.rejected() {
		message := env.Message
		if message == "" {
			message = "backend rejected the request"
		}

		return env, body, errors.New(errors.ErrCodeBackendRejected, message)
	}

	return env, body, nil
}
