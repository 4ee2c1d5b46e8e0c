// Package mockbackend provides an in-process QuantFlow backend simulator for
// testing. It implements the strategy CRUD, backtest lifecycle, monitor and
// legacy detail endpoints with scripted progress, so client and workspace
// tests can run full flows without a real simulator.
package mockbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// ServerConfig holds configuration for the mock backend.
type ServerConfig struct {
	// ProgressPerPoll is how much a run's progress advances on each
	// progress poll. 100 completes a run on its first poll.
	ProgressPerPoll float64
	// MonitorEnabled controls whether the monitor endpoint serves data.
	// When false it answers success=false, forcing clients onto the legacy
	// detail endpoints.
	MonitorEnabled bool
	// FailAt makes runs fail once their progress reaches this threshold.
	// Zero disables scripted failure.
	FailAt float64
	// FailureMessage is the error text attached to a scripted failure. It
	// may be empty to simulate a backend that reports no error detail.
	FailureMessage string
	// EquityPoints is the length of the generated equity curve per
	// completed run.
	EquityPoints int
}

// Run is the simulator's record of one backtest run.
type Run struct {
	ID           string
	StrategyName string
	Status       types.RunStatus
	Progress     float64
	Request      api.StartBacktestRequest
	CreatedAt    time.Time
}

// Server is the mock QuantFlow backend.
type Server struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	config      ServerConfig
	strategies  map[string]api.Strategy
	runs        map[string]*Run
	runOrder    []string
	strategySeq int
}

// NewServer creates a mock backend with the given configuration.
func NewServer(config ServerConfig) *Server {
	if config.ProgressPerPoll <= 0 {
		config.ProgressPerPoll = 50
	}

	if config.EquityPoints <= 0 {
		config.EquityPoints = 5
	}

	return &Server{
		mu:          sync.RWMutex{},
		httpServer:  nil,
		listener:    nil,
		config:      config,
		strategies:  make(map[string]api.Strategy),
		runs:        make(map[string]*Run),
		runOrder:    nil,
		strategySeq: 0,
	}
}

// Start starts the mock backend on the given address. Empty or ":0" binds a
// random available port.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()

	router.HandleFunc("/api/strategy/", s.handleListStrategies).Methods("GET")
	router.HandleFunc("/api/strategy/", s.handleSaveStrategy).Methods("POST")
	router.HandleFunc("/api/strategy/{id}", s.handleGetStrategy).Methods("GET")
	router.HandleFunc("/api/strategy/{id}", s.handleDeleteStrategy).Methods("DELETE")

	router.HandleFunc("/api/backtest/start", s.handleStartBacktest).Methods("POST")
	router.HandleFunc("/api/backtest/progress", s.handleProgress).Methods("GET")
	router.HandleFunc("/api/backtest/monitor", s.handleMonitor).Methods("GET")
	router.HandleFunc("/api/backtest/account", s.handleDetail(s.accountRows)).Methods("GET")
	router.HandleFunc("/api/backtest/profit", s.handleDetail(s.profitRows)).Methods("GET")
	router.HandleFunc("/api/backtest/position", s.handleDetail(s.positionRows)).Methods("GET")
	router.HandleFunc("/api/backtest/trade", s.handleDetail(s.tradeRows)).Methods("GET")
	router.HandleFunc("/api/backtest/userstrategylog", s.handleDetail(s.logRows)).Methods("GET")
	router.HandleFunc("/api/backtest/list", s.handleListBacktests).Methods("GET")
	router.HandleFunc("/api/backtest/delete", s.handleDeleteBacktest).Methods("GET")
	router.HandleFunc("/api/backtest/batch_delete", s.handleBatchDelete).Methods("POST")

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock backend error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts the mock backend down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// BaseURL returns the base URL for the running server.
func (s *Server) BaseURL() string {
	if s.listener == nil {
		return ""
	}

	return "http://" + s.listener.Addr().String()
}

// SetMonitorEnabled toggles the monitor endpoint at runtime.
func (s *Server) SetMonitorEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.MonitorEnabled = enabled
}

// SetFailure scripts runs to fail once their progress reaches failAt. Zero
// disables it. An empty message simulates a backend that reports a failure
// without error detail.
func (s *Server) SetFailure(failAt float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.FailAt = failAt
	s.config.FailureMessage = message
}

// SeedStrategy stores a strategy directly, bypassing the HTTP surface.
func (s *Server) SeedStrategy(strategy api.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategies[strategy.Key()] = strategy
}

// GetRun returns a copy of a run's state.
func (s *Server) GetRun(runID string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return Run{}, false
	}

	return *run, true
}

// Envelope helpers. The simulated backend always answers HTTP 200 and
// signals failure through the success flag, like the real one.

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"code":    0,
		"message": "",
		"data":    data,
	})
}

func writeFail(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"code":    1,
		"message": message,
	})
}

// Strategy handlers

func (s *Server) handleListStrategies(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]api.Strategy, 0, len(s.strategies))
	for _, strategy := range s.strategies {
		items = append(items, strategy)
	}

	writeOK(w, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := mux.Vars(r)["id"]
	strategy, ok := s.strategies[id]
	if !ok {
		writeFail(w, "策略不存在")

		return
	}

	writeOK(w, strategy)
}

func (s *Server) handleSaveStrategy(w http.ResponseWriter, r *http.Request) {
	var req api.SaveStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, "请求体格式错误")

		return
	}

	if req.Name == "" || req.Code == "" {
		writeFail(w, "策略名称和代码不能为空")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		s.strategySeq++
		id = "strategy-" + strconv.Itoa(s.strategySeq)
	} else if _, ok := s.strategies[id]; !ok {
		writeFail(w, "策略不存在")

		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	strategy := api.Strategy{
		ID:          id,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, ok := s.strategies[id]; ok {
		strategy.CreatedAt = existing.CreatedAt
	}
	s.strategies[id] = strategy

	writeOK(w, strategy)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["id"]
	if _, ok := s.strategies[id]; !ok {
		writeFail(w, "策略不存在")

		return
	}

	delete(s.strategies, id)
	writeOK(w, map[string]any{"deleted": true})
}

// Backtest handlers

func (s *Server) handleStartBacktest(w http.ResponseWriter, r *http.Request) {
	var req api.StartBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, "请求体格式错误")

		return
	}

	if req.StrategyCode == "" {
		writeFail(w, "策略代码不能为空")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:           "run-" + uuid.New().String(),
		StrategyName: req.StrategyName,
		Status:       types.RunStatusPending,
		Progress:     0,
		Request:      req,
		CreatedAt:    time.Now(),
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)

	writeOK(w, map[string]any{"back_test_id": run.ID})
}

// handleProgress advances the run's scripted progress on every poll.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[r.URL.Query().Get("back_id")]
	if !ok {
		writeFail(w, "回测不存在")

		return
	}

	if !run.Status.Terminal() {
		run.Progress += s.config.ProgressPerPoll
		switch {
		case s.config.FailAt > 0 && run.Progress >= s.config.FailAt:
			run.Status = types.RunStatusFailed
		case run.Progress >= 100:
			run.Progress = 100
			run.Status = types.RunStatusCompleted
		default:
			run.Status = types.RunStatusRunning
		}
	}

	body := map[string]any{
		"progress": run.Progress,
		"status":   string(run.Status),
	}
	if run.Status == types.RunStatusFailed && s.config.FailureMessage != "" {
		body["error"] = s.config.FailureMessage
	}

	writeOK(w, body)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.config.MonitorEnabled {
		writeFail(w, "监控数据不可用")

		return
	}

	run, ok := s.runs[r.URL.Query().Get("back_id")]
	if !ok {
		writeFail(w, "回测不存在")

		return
	}

	equity := s.equityCurve(run)
	trades := s.monitorTrades(run)
	positions := s.monitorPositions(run)

	last := map[string]any{}
	if len(equity) > 0 {
		tail := equity[len(equity)-1]
		last = map[string]any{
			"date":        tail["date"],
			"total_asset": tail["value"],
			"available":   tail["value"].(float64) * 0.9,
		}
	}

	writeOK(w, map[string]any{
		"success": true,
		"back_id": run.ID,
		"status":  string(run.Status),
		"stats": map[string]any{
			"account_count":  len(equity),
			"trade_count":    len(trades),
			"position_count": len(positions),
			"profit_count":   len(equity),
		},
		"latest_account":   last,
		"recent_trades":    trades,
		"latest_positions": positions,
		"equity_curve":     equity,
	})
}

// handleDetail serves one paginated legacy endpoint backed by a row
// generator.
func (s *Server) handleDetail(rows func(*Run) []map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		run, ok := s.runs[r.URL.Query().Get("back_id")]
		if !ok {
			writeFail(w, "回测不存在")

			return
		}

		all := rows(run)
		page, pageSize := pageParams(r)
		start := (page - 1) * pageSize
		if start > len(all) {
			start = len(all)
		}

		end := start + pageSize
		if end > len(all) {
			end = len(all)
		}

		writeOK(w, map[string]any{"items": all[start:end], "total": len(all)})
	}
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := r.URL.Query().Get("status")

	items := make([]map[string]any, 0, len(s.runOrder))
	for _, id := range s.runOrder {
		run := s.runs[id]
		if status != "" && string(run.Status) != status {
			continue
		}

		items = append(items, map[string]any{
			"run_id":        run.ID,
			"strategy_name": run.StrategyName,
			"status":        string(run.Status),
			"start_date":    run.Request.StartDate,
			"end_date":      run.Request.EndDate,
			"created_at":    run.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	page, pageSize := pageParams(r)
	start := (page - 1) * pageSize
	if start > len(items) {
		start = len(items)
	}

	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	writeOK(w, map[string]any{"items": items[start:end], "total": len(items)})
}

func (s *Server) handleDeleteBacktest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := s.deleteRun(r.URL.Query().Get("back_id"))

	writeOK(w, map[string]any{
		"deleted_count": map[string]any{"total": deleted},
	})
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BackIDs []string `json:"back_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, "请求体格式错误")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range req.BackIDs {
		deleted += s.deleteRun(id)
	}

	writeOK(w, map[string]any{
		"deleted_count": map[string]any{"total": deleted},
	})
}

// deleteRun removes a run and reports how many records went with it.
// Callers hold the write lock.
func (s *Server) deleteRun(runID string) int {
	if _, ok := s.runs[runID]; !ok {
		return 0
	}

	delete(s.runs, runID)
	for i, id := range s.runOrder {
		if id == runID {
			s.runOrder = append(s.runOrder[:i], s.runOrder[i+1:]...)

			break
		}
	}

	return 1
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}

	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 {
		pageSize = 20
	}

	return page, pageSize
}
