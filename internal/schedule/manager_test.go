package schedule

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"AgentPay-Chain/internal/agent"
)

type stubExecutor struct {
	result *agent.ExecuteResult
	err    error
	calls  int32
}

func (s *stubExecutor) ExecutePayment(_ context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &agent.ExecuteResult{Success: true, TxRef: "0xfeed", Amount: req.Amount, Network: req.Network}, nil
}

func startManager(t *testing.T, manager *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForStatus(t *testing.T, manager *Manager, id string, want Status) *Payment {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		payment, err := manager.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get payment failed: %v", err)
		}
		if payment.Status == want {
			return payment
		}
		time.Sleep(10 * time.Millisecond)
	}
	payment, _ := manager.Get(context.Background(), id)
	t.Fatalf("payment %s never reached status %s, last seen %+v", id, want, payment)
	return nil
}

func TestScheduleExecutesWhenDue(t *testing.T) {
	executor := &stubExecutor{}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(50 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	payment := waitForStatus(t, manager, id, StatusCompleted)
	if payment.TxRef == "" {
		t.Fatalf("completed payment must carry a tx ref: %+v", payment)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 1 {
		t.Fatalf("expected exactly one execution, got %d", got)
	}
}

func TestScheduleFailsTerminallyOnExecutorRejection(t *testing.T) {
	executor := &stubExecutor{result: &agent.ExecuteResult{Success: false, Reason: "x"}}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(30 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	payment := waitForStatus(t, manager, id, StatusFailed)
	if payment.Reason != "x" {
		t.Fatalf("failure reason must surface, got %q", payment.Reason)
	}

	// 支付环节永不重试。
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&executor.calls); got != 1 {
		t.Fatalf("payment step must not be retried, got %d calls", got)
	}
}

func TestScheduleFailsTerminallyOnExecutorError(t *testing.T) {
	executor := &stubExecutor{err: errors.New("链上转账失败")}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(30 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	payment := waitForStatus(t, manager, id, StatusFailed)
	if !strings.Contains(payment.Reason, "链上转账失败") {
		t.Fatalf("unexpected reason: %q", payment.Reason)
	}
}

func TestRecurringScheduleSpawnsNewEntry(t *testing.T) {
	executor := &stubExecutor{}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(30 * time.Millisecond),
		Recurring: true,
		Interval:  time.Hour,
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	original := waitForStatus(t, manager, id, StatusCompleted)

	// 派生发生在标记 completed 之后，给回调一点时间完成。
	time.Sleep(100 * time.Millisecond)
	payments, err := manager.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected original plus spawned entry, got %d", len(payments))
	}
	if payments[0].ID != id || payments[0].Status != StatusCompleted {
		t.Fatalf("original entry must stay completed: %+v", payments[0])
	}
	spawned := payments[1]
	if spawned.ID == id {
		t.Fatalf("recurring completion must spawn a new id")
	}
	if spawned.Status != StatusPending {
		t.Fatalf("spawned entry must be pending, got %s", spawned.Status)
	}
	if spawned.ExecuteAt < original.UpdatedAt+3599 {
		t.Fatalf("spawned entry must be due one interval after completion, got %d", spawned.ExecuteAt)
	}
}

func TestConditionGateRetriesThenFails(t *testing.T) {
	executor := &stubExecutor{}
	evaluator := NewConditionEvaluator()
	evaluator.RegisterCheck("never", func(context.Context) (bool, error) { return false, nil })
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor,
		WithBackoff(10*time.Millisecond),
		WithConditionEvaluator(evaluator),
	)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:    "/r",
		Amount:      5_000_000,
		ExecuteAt:   time.Now().Add(10 * time.Millisecond),
		Condition:   &Condition{Kind: ConditionCustom, Name: "never"},
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	payment := waitForStatus(t, manager, id, StatusFailed)
	if payment.Attempts != payment.MaxAttempts {
		t.Fatalf("attempts must stop at max, got %d/%d", payment.Attempts, payment.MaxAttempts)
	}
	if !strings.Contains(payment.Reason, "未满足") {
		t.Fatalf("unexpected reason: %q", payment.Reason)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 0 {
		t.Fatalf("executor must not run while the condition is unmet, got %d", got)
	}
}

func TestConditionMetProceedsToPayment(t *testing.T) {
	executor := &stubExecutor{}
	evaluator := NewConditionEvaluator()
	evaluator.RegisterCheck("always", func(context.Context) (bool, error) { return true, nil })
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor,
		WithConditionEvaluator(evaluator),
	)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(10 * time.Millisecond),
		Condition: &Condition{Kind: ConditionCustom, Name: "always"},
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	payment := waitForStatus(t, manager, id, StatusCompleted)
	if payment.Attempts != 0 {
		t.Fatalf("met condition must not consume attempts, got %d", payment.Attempts)
	}
}

func TestCancelIsIdempotentAndGuardsFiring(t *testing.T) {
	executor := &stubExecutor{}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(30 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	if err := manager.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := manager.Cancel(context.Background(), id); err != nil {
		t.Fatalf("second cancel must be a no-op: %v", err)
	}
	if err := manager.Cancel(context.Background(), "missing"); err != nil {
		t.Fatalf("cancelling a missing entry must not fail: %v", err)
	}

	// 已武装的定时器照常触发，但回调看到非 pending 状态后无害退出。
	time.Sleep(150 * time.Millisecond)
	payment, err := manager.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if payment.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", payment.Status)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 0 {
		t.Fatalf("cancelled entry must not execute, got %d", got)
	}
}

func TestSchedulePastDueFiresImmediately(t *testing.T) {
	executor := &stubExecutor{}
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), executor)
	startManager(t, manager)

	id, err := manager.Schedule(context.Background(), Spec{
		Resource:  "/r",
		Amount:    5_000_000,
		ExecuteAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("past due times must not be rejected: %v", err)
	}
	waitForStatus(t, manager, id, StatusCompleted)
}

func TestScheduleValidation(t *testing.T) {
	manager := NewManager(NewMemoryStore(), NewMemoryQueue(0), &stubExecutor{})

	if _, err := manager.Schedule(context.Background(), Spec{Amount: 1, ExecuteAt: time.Now()}); err == nil {
		t.Fatalf("empty resource must be rejected")
	}
	if _, err := manager.Schedule(context.Background(), Spec{Resource: "/r", ExecuteAt: time.Now()}); err == nil {
		t.Fatalf("non-positive amount must be rejected")
	}
	if _, err := manager.Schedule(context.Background(), Spec{Resource: "/r", Amount: 1}); err == nil {
		t.Fatalf("zero execute time must be rejected")
	}
	if _, err := manager.Schedule(context.Background(), Spec{Resource: "/r", Amount: 1, ExecuteAt: time.Now(), Recurring: true}); err == nil {
		t.Fatalf("recurring without interval must be rejected")
	}
}
