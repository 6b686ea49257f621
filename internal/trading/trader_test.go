package trading

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"AgentPay-Chain/internal/agent"
)

type stubExecutor struct {
	calls   int32
	lastReq agent.ExecuteRequest
}

func (s *stubExecutor) ExecutePayment(_ context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error) {
	atomic.AddInt32(&s.calls, 1)
	s.lastReq = req
	return &agent.ExecuteResult{Success: true, TxRef: "0xtrade", Amount: req.Amount, Network: req.Network}, nil
}

type stubQuotes struct {
	quote *Quote
}

func (s *stubQuotes) Quote(_ context.Context, token string, amount int64, network string) (*Quote, error) {
	quote := *s.quote
	quote.Token = token
	quote.InputAmount = amount
	quote.Network = network
	return &quote, nil
}

type stubPrices struct {
	opportunity *Opportunity
}

func (s *stubPrices) FindOpportunity(context.Context, string, string) (*Opportunity, error) {
	return s.opportunity, nil
}

func TestBuyTokenRejectsExcessiveSlippage(t *testing.T) {
	executor := &stubExecutor{}
	quotes := &stubQuotes{quote: &Quote{PriceImpact: 0.05, Liquidity: 1_000_000_000, Volatility: 0.1}}
	trader := NewTrader(executor, quotes)

	result, err := trader.BuyToken(context.Background(), "SOL", 5_000_000, "base", 0.01)
	if err != nil {
		t.Fatalf("gate rejection must not be an error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected rejection, got %+v", result)
	}
	if !strings.Contains(result.Reason, "滑点") {
		t.Fatalf("reason must mention slippage, got %q", result.Reason)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 0 {
		t.Fatalf("rejection must never invoke the payment layer, got %d", got)
	}
}

func TestBuyTokenRejectsThinLiquidity(t *testing.T) {
	executor := &stubExecutor{}
	quotes := &stubQuotes{quote: &Quote{PriceImpact: 0.001, Liquidity: 40_000_000, Volatility: 0.1}}
	trader := NewTrader(executor, quotes)

	result, err := trader.BuyToken(context.Background(), "SOL", 5_000_000, "base", 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || !strings.Contains(result.Reason, "流动性") {
		t.Fatalf("expected liquidity rejection, got %+v", result)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 0 {
		t.Fatalf("rejection must have zero side effects, got %d", got)
	}
}

func TestBuyTokenConservativeVolatilityGate(t *testing.T) {
	executor := &stubExecutor{}
	quotes := &stubQuotes{quote: &Quote{PriceImpact: 0.001, Liquidity: 1_000_000_000, Volatility: 0.5}}

	conservative := NewTrader(executor, quotes)
	result, err := conservative.BuyToken(context.Background(), "SOL", 5_000_000, "base", 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || !strings.Contains(result.Reason, "波动率") {
		t.Fatalf("conservative strategy must reject high volatility, got %+v", result)
	}

	aggressive := NewTrader(executor, quotes, WithStrategy(StrategyAggressive))
	result, err = aggressive.BuyToken(context.Background(), "SOL", 5_000_000, "base", 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("aggressive strategy has no volatility gate, got %+v", result)
	}
}

func TestBuyTokenDelegatesWithForcedApproval(t *testing.T) {
	executor := &stubExecutor{}
	quotes := &stubQuotes{quote: &Quote{PriceImpact: 0.001, Liquidity: 1_000_000_000, Volatility: 0.1}}
	trader := NewTrader(executor, quotes)

	result, err := trader.BuyToken(context.Background(), "SOL", 5_000_000, "base", 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.TxRef != "0xtrade" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !executor.lastReq.AutoApprove {
		t.Fatalf("trade gate is the approval, delegation must force auto-approve")
	}
	if executor.lastReq.Amount != 5_000_000 {
		t.Fatalf("unexpected delegated amount: %d", executor.lastReq.Amount)
	}
}

func TestExecuteArbitrageNoOpportunity(t *testing.T) {
	executor := &stubExecutor{}
	prices := &stubPrices{opportunity: &Opportunity{EstimatedProfit: 400_000, InputAmount: 5_000_000}}
	trader := NewTrader(executor, &stubQuotes{quote: &Quote{}}, WithPriceSource(prices))

	result, err := trader.ExecuteArbitrage(context.Background(), "SOL", "ETH", 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != "no opportunity" {
		t.Fatalf("expected no-opportunity result, got %+v", result)
	}
	if got := atomic.LoadInt32(&executor.calls); got != 0 {
		t.Fatalf("below-threshold arbitrage must have zero side effects, got %d", got)
	}
}

func TestExecuteArbitrageProceedsAboveThreshold(t *testing.T) {
	executor := &stubExecutor{}
	prices := &stubPrices{opportunity: &Opportunity{EstimatedProfit: 2_000_000, InputAmount: 5_000_000, Network: "base"}}
	trader := NewTrader(executor, &stubQuotes{quote: &Quote{}}, WithPriceSource(prices))

	result, err := trader.ExecuteArbitrage(context.Background(), "SOL", "ETH", 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.TxRef != "0xtrade" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !executor.lastReq.AutoApprove {
		t.Fatalf("arbitrage delegation must force auto-approve")
	}
}
