package schedule

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"AgentPay-Chain/internal/agent"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/observability/alerting"
	"AgentPay-Chain/pkg/logger"
)

// defaultMaxAttempts 是条件门控重试的默认上限。
const defaultMaxAttempts = 3

// defaultBackoff 是条件未满足时的固定重试间隔。
const defaultBackoff = time.Hour

// Executor 定义了调度器所需的支付智能体能力。
type Executor interface {
	ExecutePayment(ctx context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error)
}

// Spec 描述一笔计划支付的登记参数。
type Spec struct {
	Resource    string        `json:"resource"`
	Amount      int64         `json:"amount"`
	Network     string        `json:"network,omitempty"`
	ExecuteAt   time.Time     `json:"execute_at"`
	Recurring   bool          `json:"recurring,omitempty"`
	Interval    time.Duration `json:"-"`
	IntervalSec int64         `json:"interval_sec,omitempty"`
	Condition   *Condition    `json:"condition,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
}

// Manager 管理计划支付的登记、触发与执行。
type Manager struct {
	store       Store
	queue       Queue
	executor    Executor
	conditions  *ConditionEvaluator
	timers      *Timers
	alerter     alerting.Dispatcher
	backoff     time.Duration
	workerCount int
	maxAttempts int
}

// ManagerOption 定义可选的调度器配置。
type ManagerOption func(*Manager)

// WithBackoff 覆盖条件门控的重试间隔，主要用于测试。
func WithBackoff(backoff time.Duration) ManagerOption {
	return func(m *Manager) {
		if backoff > 0 {
			m.backoff = backoff
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ManagerOption {
	return func(m *Manager) {
		if workers > 0 {
			m.workerCount = workers
		}
	}
}

// WithMaxAttempts 设置条件门控的默认尝试上限。
func WithMaxAttempts(attempts int) ManagerOption {
	return func(m *Manager) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// WithConditionEvaluator 替换条件判定器。
func WithConditionEvaluator(evaluator *ConditionEvaluator) ManagerOption {
	return func(m *Manager) {
		if evaluator != nil {
			m.conditions = evaluator
		}
	}
}

// WithAlertDispatcher 配置告警派发器，终态失败时通知。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ManagerOption {
	return func(m *Manager) {
		m.alerter = dispatcher
	}
}

// NewManager 构造调度器。
func NewManager(store Store, queue Queue, executor Executor, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		queue:       queue,
		executor:    executor,
		conditions:  NewConditionEvaluator(),
		timers:      NewTimers(),
		backoff:     defaultBackoff,
		workerCount: 1,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Schedule 登记一笔计划支付并武装到期定时器，返回新条目的 ID。
// 已过期的 executeAt 不会被拒绝，而是立即触发。
func (m *Manager) Schedule(ctx context.Context, spec Spec) (string, error) {
	if m.store == nil || m.queue == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	if strings.TrimSpace(spec.Resource) == "" {
		return "", xerrors.New(CodeScheduleValidation, "资源路径不能为空")
	}
	if spec.Amount <= 0 {
		return "", xerrors.New(CodeScheduleValidation, "支付金额必须为正数")
	}
	if spec.ExecuteAt.IsZero() {
		return "", xerrors.New(CodeScheduleValidation, "执行时间不能为空")
	}

	interval := spec.Interval
	if interval <= 0 && spec.IntervalSec > 0 {
		interval = time.Duration(spec.IntervalSec) * time.Second
	}
	if spec.Recurring && interval <= 0 {
		return "", xerrors.New(CodeScheduleValidation, "周期支付必须提供间隔")
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.maxAttempts
	}

	payment := &Payment{
		ID:          uuid.NewString(),
		Resource:    spec.Resource,
		Amount:      spec.Amount,
		Network:     spec.Network,
		ExecuteAt:   spec.ExecuteAt.Unix(),
		Recurring:   spec.Recurring,
		IntervalSec: int64(interval / time.Second),
		Condition:   spec.Condition,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: maxAttempts,
	}
	if err := m.store.Create(ctx, payment); err != nil {
		return "", err
	}

	m.arm(payment.ID, time.Until(spec.ExecuteAt))

	logger.Audit().Info("计划支付已登记",
		slog.String("payment_id", payment.ID),
		slog.String("resource", payment.Resource),
		slog.Int64("amount", payment.Amount),
		slog.Bool("recurring", payment.Recurring),
	)
	return payment.ID, nil
}

// Cancel 幂等地取消计划支付。已武装的定时器不会被中止：
// 它在触发时观察到非 pending 状态后无害退出。
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if m.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	return m.store.MarkCancelled(ctx, id)
}

// Get 返回指定条目的快照。
func (m *Manager) Get(ctx context.Context, id string) (*Payment, error) {
	if m.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	return m.store.Get(ctx, id)
}

// List 按插入顺序返回全部条目的只读快照。
func (m *Manager) List(ctx context.Context) ([]*Payment, error) {
	if m.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	return m.store.List(ctx)
}

// Stats 返回各状态条目的数量统计。
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	if m.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	return m.store.Stats(ctx)
}

// Start 启动消费循环，阻塞直到 ctx 结束。
func (m *Manager) Start(ctx context.Context) error {
	if m.queue == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置调度队列")
	}
	return m.queue.Consume(ctx, m.workerCount, m.handle)
}

// Close 停掉未触发的定时器并释放队列与存储。
func (m *Manager) Close() error {
	m.timers.StopAll()
	if m.queue != nil {
		if err := m.queue.Close(); err != nil {
			return err
		}
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// arm 武装一个到期定时器，触发时把条目 ID 投递到队列。
func (m *Manager) arm(id string, delay time.Duration) {
	m.timers.Arm(delay, func() {
		if err := m.queue.Publish(context.Background(), id); err != nil {
			logger.L().Error("计划支付入队失败",
				slog.Any("error", err),
				slog.String("payment_id", id),
			)
		}
	})
}

// handle 是队列回调：先检查状态守卫，再走条件门控，最后执行支付。
func (m *Manager) handle(ctx context.Context, id string) error {
	if m.store == nil || m.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}

	payment, err := m.store.Get(ctx, id)
	if err != nil {
		if stdErrors.Is(err, ErrPaymentNotFound) {
			return nil
		}
		return err
	}
	// 被取消或已终态的条目触发时无害退出。
	if payment.Status != StatusPending {
		return nil
	}

	if payment.Condition != nil {
		met, condErr := m.conditions.Evaluate(ctx, payment.Condition)
		if condErr != nil {
			logger.L().Warn("条件判定失败，按未满足处理",
				slog.Any("error", condErr),
				slog.String("payment_id", id),
			)
		}
		if !met {
			return m.handleUnmetCondition(ctx, payment)
		}
	}

	result, execErr := m.executor.ExecutePayment(ctx, agent.ExecuteRequest{
		Resource:    payment.Resource,
		Amount:      payment.Amount,
		Network:     payment.Network,
		AutoApprove: true,
	})
	// 支付环节永不重试：执行失败直接进入终态。
	if execErr != nil {
		return m.failTerminally(ctx, payment, CodeScheduleExecution, execErr.Error())
	}
	if result == nil || !result.Success {
		reason := "执行被拒绝"
		if result != nil && result.Reason != "" {
			reason = result.Reason
		}
		return m.failTerminally(ctx, payment, CodeScheduleExecution, reason)
	}

	if err := m.store.MarkCompleted(ctx, payment.ID, result.TxRef); err != nil {
		logger.L().Error("记录完成状态失败", slog.Any("error", err), slog.String("payment_id", id))
		return err
	}
	logger.Audit().Info("计划支付已完成",
		slog.String("payment_id", payment.ID),
		slog.String("resource", payment.Resource),
		slog.String("tx_ref", result.TxRef),
	)

	// 周期支付：派生一个全新 ID 的条目，原条目保持 completed。
	if payment.Recurring && payment.IntervalSec > 0 {
		next := Spec{
			Resource:    payment.Resource,
			Amount:      payment.Amount,
			Network:     payment.Network,
			ExecuteAt:   time.Now().Add(time.Duration(payment.IntervalSec) * time.Second),
			Recurring:   true,
			Interval:    time.Duration(payment.IntervalSec) * time.Second,
			Condition:   payment.Condition,
			MaxAttempts: payment.MaxAttempts,
		}
		if _, err := m.Schedule(ctx, next); err != nil {
			logger.L().Error("派生周期支付失败",
				slog.Any("error", err),
				slog.String("payment_id", payment.ID),
			)
		}
	}
	return nil
}

// handleUnmetCondition 执行条件门控的有界重试。
func (m *Manager) handleUnmetCondition(ctx context.Context, payment *Payment) error {
	attempts, err := m.store.IncrementAttempts(ctx, payment.ID)
	if err != nil {
		if stdErrors.Is(err, ErrPaymentConflict) {
			return m.failTerminally(ctx, payment, CodeScheduleExhausted,
				fmt.Sprintf("条件在 %d 次尝试内未满足", payment.MaxAttempts))
		}
		return err
	}
	payment.Attempts = attempts
	if attempts >= payment.MaxAttempts {
		return m.failTerminally(ctx, payment, CodeScheduleExhausted,
			fmt.Sprintf("条件在 %d 次尝试内未满足", payment.MaxAttempts))
	}
	m.arm(payment.ID, m.backoff)
	logger.L().Info("条件未满足，稍后重试",
		slog.String("payment_id", payment.ID),
		slog.Int("attempts", attempts),
		slog.Int("max_attempts", payment.MaxAttempts),
	)
	return nil
}

// failTerminally 将条目置为失败终态并派发告警。
func (m *Manager) failTerminally(ctx context.Context, payment *Payment, code xerrors.Code, reason string) error {
	if err := m.store.MarkFailed(ctx, payment.ID, reason); err != nil {
		logger.L().Error("记录失败状态出错", slog.Any("error", err), slog.String("payment_id", payment.ID))
		return err
	}
	logger.Audit().Warn("计划支付失败",
		slog.String("payment_id", payment.ID),
		slog.String("resource", payment.Resource),
		slog.String("reason", reason),
		slog.Int("attempts", payment.Attempts),
	)
	m.emitAlert(ctx, payment, code, reason)
	return nil
}

func (m *Manager) emitAlert(ctx context.Context, payment *Payment, code xerrors.Code, reason string) {
	if m.alerter == nil || payment == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:        code,
		Message:     reason,
		Severity:    attrs.Severity,
		PaymentID:   payment.ID,
		Resource:    payment.Resource,
		Attempts:    payment.Attempts,
		MaxAttempts: payment.MaxAttempts,
		OccurredAt:  time.Now(),
	}
	if err := m.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("payment_id", payment.ID),
		)
	}
}
