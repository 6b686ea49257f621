package command

import (
	"context"
	"sync/atomic"
	"testing"

	"AgentPay-Chain/internal/agent"
	"AgentPay-Chain/internal/schedule"
	"AgentPay-Chain/internal/trading"
)

type stubInterpreter struct {
	cmd *Command
}

func (s *stubInterpreter) Interpret(context.Context, string) (*Command, error) {
	return s.cmd, nil
}

type stubExecutor struct {
	calls   int32
	lastReq agent.ExecuteRequest
}

func (s *stubExecutor) ExecutePayment(_ context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error) {
	atomic.AddInt32(&s.calls, 1)
	s.lastReq = req
	return &agent.ExecuteResult{Success: true, TxRef: "0xpay"}, nil
}

type stubBuyer struct {
	calls int32
}

func (s *stubBuyer) BuyToken(context.Context, string, int64, string, float64) (*trading.TradeResult, error) {
	atomic.AddInt32(&s.calls, 1)
	return &trading.TradeResult{Success: true, TxRef: "0xtrade"}, nil
}

type stubScheduler struct {
	scheduled int32
	cancelled int32
	lastSpec  schedule.Spec
	lastID    string
}

func (s *stubScheduler) Schedule(_ context.Context, spec schedule.Spec) (string, error) {
	atomic.AddInt32(&s.scheduled, 1)
	s.lastSpec = spec
	return "sched-1", nil
}

func (s *stubScheduler) Cancel(_ context.Context, id string) error {
	atomic.AddInt32(&s.cancelled, 1)
	s.lastID = id
	return nil
}

func newDispatcher(cmd *Command) (*Dispatcher, *stubExecutor, *stubBuyer, *stubScheduler) {
	executor := &stubExecutor{}
	buyer := &stubBuyer{}
	scheduler := &stubScheduler{}
	return NewDispatcher(&stubInterpreter{cmd: cmd}, executor, buyer, scheduler), executor, buyer, scheduler
}

func TestProcessCommandPayNow(t *testing.T) {
	dispatcher, executor, _, _ := newDispatcher(&Command{
		Intent: IntentPayNow,
		Params: map[string]any{"resource": "/premium/data", "amount": float64(5_000_000)},
	})

	outcome, err := dispatcher.ProcessCommand(context.Background(), "支付 /premium/data")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Intent != IntentPayNow {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if executor.lastReq.Resource != "/premium/data" || executor.lastReq.Amount != 5_000_000 {
		t.Fatalf("unexpected request: %+v", executor.lastReq)
	}
}

func TestProcessCommandSchedule(t *testing.T) {
	dispatcher, _, _, scheduler := newDispatcher(&Command{
		Intent: IntentSchedulePayment,
		Params: map[string]any{
			"resource":  "/premium/data",
			"amount":    float64(5_000_000),
			"delay_sec": float64(3600),
		},
	})

	outcome, err := dispatcher.ProcessCommand(context.Background(), "一小时后支付")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.ScheduleID != "sched-1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if scheduler.lastSpec.Resource != "/premium/data" || scheduler.lastSpec.Amount != 5_000_000 {
		t.Fatalf("unexpected spec: %+v", scheduler.lastSpec)
	}
}

func TestProcessCommandBuyToken(t *testing.T) {
	dispatcher, _, buyer, _ := newDispatcher(&Command{
		Intent: IntentBuyToken,
		Params: map[string]any{"token": "sol", "amount": float64(5_000_000), "slippage": 0.01},
	})

	outcome, err := dispatcher.ProcessCommand(context.Background(), "买入 sol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Trade == nil {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := atomic.LoadInt32(&buyer.calls); got != 1 {
		t.Fatalf("expected one buy call, got %d", got)
	}
}

func TestProcessCommandCancel(t *testing.T) {
	dispatcher, _, _, scheduler := newDispatcher(&Command{
		Intent: IntentCancelSchedule,
		Params: map[string]any{"id": "sched-1"},
	})

	outcome, err := dispatcher.ProcessCommand(context.Background(), "取消 id=sched-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || scheduler.lastID != "sched-1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestProcessCommandUnknownHasNoSideEffects(t *testing.T) {
	dispatcher, executor, buyer, scheduler := newDispatcher(&Command{Intent: IntentUnknown})

	outcome, err := dispatcher.ProcessCommand(context.Background(), "天气怎么样")
	if err != nil {
		t.Fatalf("unknown intent must not error: %v", err)
	}
	if outcome.Success || outcome.Intent != IntentUnknown {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if executor.calls != 0 || buyer.calls != 0 || scheduler.scheduled != 0 || scheduler.cancelled != 0 {
		t.Fatalf("unknown intent must have zero side effects")
	}
}

func TestRuleInterpreterIntents(t *testing.T) {
	interpreter := NewRuleInterpreter()

	cases := []struct {
		text string
		want Intent
	}{
		{"pay /premium/data amount=5000000", IntentPayNow},
		{"schedule /premium/data amount=5000000 delay_sec=3600", IntentSchedulePayment},
		{"buy token=sol amount=5000000 slippage=0.01", IntentBuyToken},
		{"cancel id=sched-1", IntentCancelSchedule},
		{"今天天气不错", IntentUnknown},
	}
	for _, tc := range cases {
		cmd, err := interpreter.Interpret(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("interpret %q failed: %v", tc.text, err)
		}
		if cmd.Intent != tc.want {
			t.Fatalf("text %q: expected %s, got %s", tc.text, tc.want, cmd.Intent)
		}
	}

	cmd, _ := interpreter.Interpret(context.Background(), "pay /r amount=5000000 auto_approve=true")
	if cmd.String("resource") != "/r" || cmd.Int64("amount") != 5_000_000 || !cmd.Bool("auto_approve") {
		t.Fatalf("param extraction failed: %+v", cmd.Params)
	}
}
