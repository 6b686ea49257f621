package agent

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// Response 是一次资源请求的原始结果。
type Response struct {
	StatusCode int
	Body       []byte
}

// ResourceFetcher 抽象对资源方的访问，便于在测试中注入桩实现。
type ResourceFetcher interface {
	Fetch(ctx context.Context, resource string, query url.Values, header http.Header) (*Response, error)
}

// HTTPFetcher 通过标准 HTTP 客户端访问资源方。
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher 创建一个面向指定服务地址的资源访问器。
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch 发起一次读请求并返回状态码与响应体。
func (f *HTTPFetcher) Fetch(ctx context.Context, resource string, query url.Values, header http.Header) (*Response, error) {
	target := f.baseURL + "/" + strings.TrimLeft(resource, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造资源请求失败")
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "访问资源失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "读取资源响应失败")
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

var _ ResourceFetcher = (*HTTPFetcher)(nil)
