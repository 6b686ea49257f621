package schedule

import (
	"context"
	"testing"
	"time"
)

type fixedPrice float64

func (p fixedPrice) Price(context.Context, string) (float64, error) { return float64(p), nil }

type fixedBalance int64

func (b fixedBalance) Balance(context.Context, string, string) (int64, error) {
	return int64(b), nil
}

func TestEvaluatePriceThreshold(t *testing.T) {
	evaluator := NewConditionEvaluator(WithPriceChecker(fixedPrice(1.5)))
	condition := &Condition{Kind: ConditionPriceThreshold, Token: "SOL", MaxPrice: 2.0}

	met, err := evaluator.Evaluate(context.Background(), condition)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !met {
		t.Fatalf("price below threshold must be met")
	}

	condition.MaxPrice = 1.0
	met, err = evaluator.Evaluate(context.Background(), condition)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if met {
		t.Fatalf("price above threshold must not be met")
	}
}

func TestEvaluateBalanceThreshold(t *testing.T) {
	evaluator := NewConditionEvaluator(WithBalanceChecker(fixedBalance(9_000_000)))
	condition := &Condition{Kind: ConditionBalanceThreshold, Account: "0xwallet", Asset: "USDC", MinBalance: 5_000_000}

	met, err := evaluator.Evaluate(context.Background(), condition)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !met {
		t.Fatalf("sufficient balance must be met")
	}

	condition.MinBalance = 10_000_000
	met, _ = evaluator.Evaluate(context.Background(), condition)
	if met {
		t.Fatalf("insufficient balance must not be met")
	}
}

func TestEvaluateTimeWindow(t *testing.T) {
	at := func(hour int) func() time.Time {
		return func() time.Time {
			return time.Date(2025, 6, 1, hour, 30, 0, 0, time.Local)
		}
	}

	evaluator := NewConditionEvaluator(WithClock(at(10)))
	window := &Condition{Kind: ConditionTimeWindow, StartHour: 9, EndHour: 17}
	if met, _ := evaluator.Evaluate(context.Background(), window); !met {
		t.Fatalf("10 点应落在 9-17 窗口内")
	}

	evaluator = NewConditionEvaluator(WithClock(at(18)))
	if met, _ := evaluator.Evaluate(context.Background(), window); met {
		t.Fatalf("18 点不应落在 9-17 窗口内")
	}

	// 跨午夜窗口。
	overnight := &Condition{Kind: ConditionTimeWindow, StartHour: 22, EndHour: 6}
	evaluator = NewConditionEvaluator(WithClock(at(23)))
	if met, _ := evaluator.Evaluate(context.Background(), overnight); !met {
		t.Fatalf("23 点应落在 22-6 窗口内")
	}
	evaluator = NewConditionEvaluator(WithClock(at(12)))
	if met, _ := evaluator.Evaluate(context.Background(), overnight); met {
		t.Fatalf("12 点不应落在 22-6 窗口内")
	}
}

func TestEvaluateUnknownCustomCheck(t *testing.T) {
	evaluator := NewConditionEvaluator()
	condition := &Condition{Kind: ConditionCustom, Name: "missing"}

	met, err := evaluator.Evaluate(context.Background(), condition)
	if err == nil {
		t.Fatalf("unregistered custom check must error")
	}
	if met {
		t.Fatalf("unregistered custom check must not be met")
	}
}

func TestEvaluateNilConditionIsMet(t *testing.T) {
	evaluator := NewConditionEvaluator()
	met, err := evaluator.Evaluate(context.Background(), nil)
	if err != nil || !met {
		t.Fatalf("nil condition must be trivially met, got met=%v err=%v", met, err)
	}
}
