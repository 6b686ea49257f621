package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"AgentPay-Chain/internal/agent"
	"AgentPay-Chain/internal/command"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/observability/metrics"
	"AgentPay-Chain/internal/schedule"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/trading"
)

// PaymentAgent 是服务端依赖的支付能力。
type PaymentAgent interface {
	ExecutePayment(ctx context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error)
	History(ctx context.Context, limit int) ([]mysql.PaymentRecord, error)
}

// Trader 是服务端依赖的交易能力。
type Trader interface {
	BuyToken(ctx context.Context, token string, amountUSDC int64, network string, slippage float64) (*trading.TradeResult, error)
}

// Scheduler 是服务端依赖的计划支付能力。
type Scheduler interface {
	Schedule(ctx context.Context, spec schedule.Spec) (string, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*schedule.Payment, error)
	List(ctx context.Context) ([]*schedule.Payment, error)
	Stats(ctx context.Context) (schedule.Stats, error)
}

// CommandProcessor 是服务端依赖的指令分发能力。
type CommandProcessor interface {
	ProcessCommand(ctx context.Context, text string) (*command.Outcome, error)
}

// Server 负责暴露 REST 接口，供外部驱动智能体执行支付、交易与调度。
type Server struct {
	addr       string
	agent      PaymentAgent
	trader     Trader
	scheduler  Scheduler
	dispatcher CommandProcessor
}

// NewServer 构造 API 服务实例。任何依赖都可以为空，
// 对应的接口会返回 503，便于按需裁剪部署形态。
func NewServer(addr string, ag PaymentAgent, trader Trader, scheduler Scheduler, dispatcher CommandProcessor) *Server {
	return &Server{
		addr:       addr,
		agent:      ag,
		trader:     trader,
		scheduler:  scheduler,
		dispatcher: dispatcher,
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/payments", s.instrument("payments", s.handlePayments))
	mux.HandleFunc("/api/v1/trades", s.instrument("trades", s.handleTrades))
	mux.HandleFunc("/api/v1/schedules", s.instrument("schedules", s.handleSchedules))
	mux.HandleFunc("/api/v1/schedules/stats", s.instrument("schedule_stats", s.handleScheduleStats))
	mux.HandleFunc("/api/v1/commands", s.instrument("commands", s.handleCommands))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// instrument 记录每个接口的请求量与耗时。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		http.Error(w, "支付智能体未初始化", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req agent.ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		result, err := s.agent.ExecutePayment(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		records, err := s.agent.History(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

type tradeRequest struct {
	Token    string  `json:"token"`
	Amount   int64   `json:"amount"`
	Network  string  `json:"network"`
	Slippage float64 `json:"slippage"`
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.trader == nil {
		http.Error(w, "交易智能体未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	result, err := s.trader.BuyToken(r.Context(), req.Token, req.Amount, req.Network, req.Slippage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type scheduleRequest struct {
	Resource    string              `json:"resource"`
	Amount      int64               `json:"amount"`
	Network     string              `json:"network"`
	ExecuteAt   int64               `json:"execute_at"`
	DelaySec    int64               `json:"delay_sec"`
	Recurring   bool                `json:"recurring"`
	IntervalSec int64               `json:"interval_sec"`
	MaxAttempts int                 `json:"max_attempts"`
	Condition   *schedule.Condition `json:"condition,omitempty"`
}

type scheduleResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "支付调度器未初始化", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		executeAt := time.Now()
		if req.ExecuteAt > 0 {
			executeAt = time.Unix(req.ExecuteAt, 0)
		} else if req.DelaySec > 0 {
			executeAt = executeAt.Add(time.Duration(req.DelaySec) * time.Second)
		}
		id, err := s.scheduler.Schedule(r.Context(), schedule.Spec{
			Resource:    req.Resource,
			Amount:      req.Amount,
			Network:     req.Network,
			ExecuteAt:   executeAt,
			Recurring:   req.Recurring,
			IntervalSec: req.IntervalSec,
			MaxAttempts: req.MaxAttempts,
			Condition:   req.Condition,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, scheduleResponse{ID: id})
	case http.MethodGet:
		if id := r.URL.Query().Get("id"); id != "" {
			payment, err := s.scheduler.Get(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payment)
			return
		}
		payments, err := s.scheduler.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payments)
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "缺少计划支付 ID", http.StatusBadRequest)
			return
		}
		if err := s.scheduler.Cancel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, scheduleResponse{ID: id})
	default:
		http.Error(w, "仅支持 GET/POST/DELETE", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleScheduleStats(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "支付调度器未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.scheduler.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type commandRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		http.Error(w, "指令分发器未初始化", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	outcome, err := s.dispatcher.ProcessCommand(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误码映射 HTTP 状态，未注册的错误一律按 500 返回。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeValidationFailure, schedule.CodeScheduleValidation:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, schedule.CodeScheduleNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, schedule.CodeScheduleConflict:
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
