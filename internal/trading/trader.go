package trading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"AgentPay-Chain/internal/agent"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/pkg/logger"
)

// Strategy 决定交易门控的激进程度。
type Strategy string

const (
	// StrategyConservative 在通用门控之外额外拒绝高波动代币。
	StrategyConservative Strategy = "conservative"
	// StrategyAggressive 只保留通用门控。
	StrategyAggressive Strategy = "aggressive"
)

// liquidityMultiple 要求池内流动性至少为买入金额的倍数。
const liquidityMultiple = 10

// maxConservativeVolatility 是保守策略允许的波动率上限。
const maxConservativeVolatility = 0.2

const (
	CodeQuoteFailure xerrors.Code = "TRADE_QUOTE_FAILED"
)

func init() {
	xerrors.Register(CodeQuoteFailure, xerrors.Attributes{
		Message:   "failed to fetch trade quote",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// PaymentExecutor 定义交易所需的支付能力，由支付智能体提供。
type PaymentExecutor interface {
	ExecutePayment(ctx context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error)
}

// TradeResult 汇总一次交易请求的结论。
// Success=false 表示门控拒绝，属于正常的否定结果。
type TradeResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	TxRef   string `json:"tx_ref,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Network string `json:"network,omitempty"`
	Quote   *Quote `json:"quote,omitempty"`
}

// Trader 组合支付能力并在其之上叠加报价门控，不做继承式扩展。
type Trader struct {
	executor PaymentExecutor
	quotes   QuoteProvider
	prices   PriceSource
	strategy Strategy
}

// Option 定义可选的 Trader 配置。
type Option func(*Trader)

// WithStrategy 设置门控策略，默认保守。
func WithStrategy(strategy Strategy) Option {
	return func(t *Trader) {
		if strategy == StrategyConservative || strategy == StrategyAggressive {
			t.strategy = strategy
		}
	}
}

// WithPriceSource 配置套利所需的价格发现能力。
func WithPriceSource(source PriceSource) Option {
	return func(t *Trader) {
		t.prices = source
	}
}

// NewTrader 创建 Trader。
func NewTrader(executor PaymentExecutor, quotes QuoteProvider, opts ...Option) *Trader {
	trader := &Trader{
		executor: executor,
		quotes:   quotes,
		strategy: StrategyConservative,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(trader)
		}
	}
	return trader
}

// BuyToken 评估报价并在通过门控后委托支付能力买入。
// 门控拒绝时不产生任何副作用；通过后强制审批，不再走支出策略。
func (t *Trader) BuyToken(ctx context.Context, token string, amountUSDC int64, network string, slippage float64) (*TradeResult, error) {
	if t.executor == nil || t.quotes == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易组件未初始化")
	}
	if strings.TrimSpace(token) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "代币标识不能为空")
	}
	if amountUSDC <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "买入金额必须为正数")
	}

	quote, err := t.quotes.Quote(ctx, token, amountUSDC, network)
	if err != nil {
		return nil, xerrors.Wrap(CodeQuoteFailure, err, "获取报价失败")
	}

	if quote.PriceImpact > slippage {
		return &TradeResult{
			Success: false,
			Reason:  fmt.Sprintf("价格冲击 %.4f 超过滑点容忍 %.4f", quote.PriceImpact, slippage),
			Quote:   quote,
		}, nil
	}
	if quote.Liquidity < liquidityMultiple*amountUSDC {
		return &TradeResult{
			Success: false,
			Reason:  fmt.Sprintf("流动性 %d 不足买入金额的 %d 倍", quote.Liquidity, liquidityMultiple),
			Quote:   quote,
		}, nil
	}
	if t.strategy == StrategyConservative && quote.Volatility > maxConservativeVolatility {
		return &TradeResult{
			Success: false,
			Reason:  fmt.Sprintf("波动率 %.2f 超过保守策略上限 %.2f", quote.Volatility, maxConservativeVolatility),
			Quote:   quote,
		}, nil
	}

	// 交易门控即审批：委托支付时强制放行，不再做第二次策略检查。
	result, err := t.executor.ExecutePayment(ctx, agent.ExecuteRequest{
		Resource:    tradeResource(token),
		Amount:      amountUSDC,
		Network:     network,
		AutoApprove: true,
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &TradeResult{Success: false, Reason: result.Reason, Quote: quote}, nil
	}

	logger.Audit().Info("代币买入完成",
		slog.String("token", token),
		slog.Int64("amount", amountUSDC),
		slog.String("tx_ref", result.TxRef),
	)
	return &TradeResult{
		Success: true,
		TxRef:   result.TxRef,
		Amount:  result.Amount,
		Network: result.Network,
		Quote:   quote,
	}, nil
}

// ExecuteArbitrage 咨询价格发现能力，估算利润达到阈值才执行。
// 未达阈值时返回否定结果且零副作用。
func (t *Trader) ExecuteArbitrage(ctx context.Context, tokenA, tokenB string, minProfitUSDC int64) (*TradeResult, error) {
	if t.executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易组件未初始化")
	}
	if t.prices == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置价格发现能力")
	}

	opportunity, err := t.prices.FindOpportunity(ctx, tokenA, tokenB)
	if err != nil {
		return nil, xerrors.Wrap(CodeQuoteFailure, err, "套利机会探测失败")
	}
	if opportunity == nil || opportunity.EstimatedProfit < minProfitUSDC {
		return &TradeResult{Success: false, Reason: "no opportunity"}, nil
	}

	result, err := t.executor.ExecutePayment(ctx, agent.ExecuteRequest{
		Resource:    arbitrageResource(tokenA, tokenB),
		Amount:      opportunity.InputAmount,
		Network:     opportunity.Network,
		AutoApprove: true,
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &TradeResult{Success: false, Reason: result.Reason}, nil
	}

	logger.Audit().Info("套利执行完成",
		slog.String("token_a", tokenA),
		slog.String("token_b", tokenB),
		slog.Int64("estimated_profit", opportunity.EstimatedProfit),
		slog.String("tx_ref", result.TxRef),
	)
	return &TradeResult{
		Success: true,
		TxRef:   result.TxRef,
		Amount:  result.Amount,
		Network: result.Network,
	}, nil
}

func tradeResource(token string) string {
	return "/trade/buy/" + token
}

func arbitrageResource(tokenA, tokenB string) string {
	return fmt.Sprintf("/trade/arbitrage/%s-%s", tokenA, tokenB)
}
