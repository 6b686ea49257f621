package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// HTTPQuoteProvider 通过资源方的行情接口获取报价、价格与套利机会。
// 报价是临时数据，每次调用都重新请求，不做任何缓存。
type HTTPQuoteProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPQuoteProvider 创建基于 HTTP 的行情来源。
func NewHTTPQuoteProvider(baseURL string, timeout time.Duration) *HTTPQuoteProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPQuoteProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Quote 请求一次买入报价。
func (p *HTTPQuoteProvider) Quote(ctx context.Context, token string, amount int64, network string) (*Quote, error) {
	query := url.Values{}
	query.Set("token", token)
	query.Set("amount", strconv.FormatInt(amount, 10))
	if network != "" {
		query.Set("network", network)
	}

	var quote Quote
	if err := p.get(ctx, "/trade/quote", query, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Price 返回代币现价，供条件门控使用。
func (p *HTTPQuoteProvider) Price(ctx context.Context, token string) (float64, error) {
	query := url.Values{}
	query.Set("token", token)

	var payload struct {
		Token string  `json:"token"`
		Price float64 `json:"price"`
	}
	if err := p.get(ctx, "/trade/price", query, &payload); err != nil {
		return 0, err
	}
	return payload.Price, nil
}

// FindOpportunity 探测一组代币间的套利机会。
func (p *HTTPQuoteProvider) FindOpportunity(ctx context.Context, tokenA, tokenB string) (*Opportunity, error) {
	query := url.Values{}
	query.Set("token_a", tokenA)
	query.Set("token_b", tokenB)

	var opportunity Opportunity
	if err := p.get(ctx, "/trade/opportunity", query, &opportunity); err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func (p *HTTPQuoteProvider) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造行情请求失败")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return xerrors.Wrap(CodeQuoteFailure, err, "行情请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return xerrors.New(CodeQuoteFailure, fmt.Sprintf("行情接口返回状态码 %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(CodeQuoteFailure, err, "行情响应解析失败")
	}
	return nil
}

var (
	_ QuoteProvider = (*HTTPQuoteProvider)(nil)
	_ PriceSource   = (*HTTPQuoteProvider)(nil)
)
