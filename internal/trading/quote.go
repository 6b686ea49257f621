package trading

import "context"

// Quote 是一次交易的即时报价，临时数据，每次尝试都重新获取，从不缓存。
type Quote struct {
	Token        string  `json:"token"`
	InputAmount  int64   `json:"input_amount"`
	OutputAmount int64   `json:"output_amount"`
	PriceImpact  float64 `json:"price_impact"`
	Liquidity    int64   `json:"liquidity"`
	Volatility   float64 `json:"volatility"`
	Fee          int64   `json:"fee"`
	Network      string  `json:"network"`
}

// QuoteProvider 提供代币买入的即时报价。
type QuoteProvider interface {
	Quote(ctx context.Context, token string, amount int64, network string) (*Quote, error)
}

// Opportunity 描述一次套利机会的估算结果。
type Opportunity struct {
	TokenA          string `json:"token_a"`
	TokenB          string `json:"token_b"`
	InputAmount     int64  `json:"input_amount"`
	EstimatedProfit int64  `json:"estimated_profit"`
	Network         string `json:"network,omitempty"`
}

// PriceSource 是外部的价格发现能力，用于套利机会探测。
type PriceSource interface {
	FindOpportunity(ctx context.Context, tokenA, tokenB string) (*Opportunity, error)
}
