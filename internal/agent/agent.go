package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/internal/x402"
	"AgentPay-Chain/pkg/logger"
)

// ExecuteRequest 描述一次支付访问的输入。
type ExecuteRequest struct {
	Resource    string         `json:"resource"`
	Amount      int64          `json:"amount,omitempty"`
	Network     string         `json:"network,omitempty"`
	AutoApprove bool           `json:"auto_approve,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// ExecuteResult 汇总一次支付访问的结论。
// Success=false 且无错误时表示策略拒绝，属于正常的否定结果。
type ExecuteResult struct {
	Success bool           `json:"success"`
	Reason  string         `json:"reason,omitempty"`
	TxRef   string         `json:"tx_ref,omitempty"`
	Amount  int64          `json:"amount,omitempty"`
	Network string         `json:"network,omitempty"`
	Receipt *x402.Receipt  `json:"receipt,omitempty"`
	Scheme  x402.Scheme    `json:"scheme,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Agent 是支付协议状态机的执行者，是系统的业务核心。
type Agent struct {
	identity *Identity
	fetcher  ResourceFetcher
	adapter  wallet.Adapter
	policy   *Policy
	history  mysql.PaymentRepository
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithPolicy 替换默认的支出策略。
func WithPolicy(policy *Policy) Option {
	return func(a *Agent) {
		if policy != nil {
			a.policy = policy
		}
	}
}

// WithHistory 配置支付历史仓库，结算完成后落库。
func WithHistory(repo mysql.PaymentRepository) Option {
	return func(a *Agent) {
		a.history = repo
	}
}

// New 创建一个 Agent。
func New(identity *Identity, fetcher ResourceFetcher, adapter wallet.Adapter, opts ...Option) *Agent {
	ag := &Agent{
		identity: identity,
		fetcher:  fetcher,
		adapter:  adapter,
		policy:   NewPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Identity 返回智能体绑定的身份。
func (a *Agent) Identity() *Identity {
	return a.identity
}

// ExecutePayment 驱动完整的支付协议状态机：
// 探测 -> 解析挑战 -> 评估 -> 转账 -> 提交凭证 -> 验证。
// 单次调用至多发起一次转账、两次资源请求，任何失败都不在本层重试。
func (a *Agent) ExecutePayment(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if a.fetcher == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置资源访问器")
	}
	if a.adapter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链上适配器")
	}
	if req.Resource == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "资源路径不能为空")
	}

	network := req.Network
	if network == "" && a.identity != nil {
		network = a.identity.Network
	}

	// 第一次请求：带上身份信息探测资源，期望得到 402 挑战。
	query := url.Values{}
	if a.identity != nil && a.identity.Wallet != "" {
		query.Set("wallet", a.identity.Wallet)
	}
	if network != "" {
		query.Set("network", network)
	}

	probe, err := a.fetcher.Fetch(ctx, req.Resource, query, nil)
	if err != nil {
		return nil, err
	}
	if probe.StatusCode != http.StatusPaymentRequired {
		return nil, xerrors.New(xerrors.CodeProtocolViolation,
			fmt.Sprintf("资源未返回支付挑战，状态码 %d", probe.StatusCode))
	}

	challenge, err := x402.DecodeChallenge(probe.Body)
	if err != nil {
		return nil, err
	}

	// 只采纳挑战中的第一个收款选项。
	requirement := challenge.Accepted[0]
	amount := requirement.RequiredAmount()
	if amount <= 0 {
		return nil, xerrors.New(xerrors.CodeProtocolViolation, "挑战中的应付金额非法")
	}

	// 策略评估：autoApprove 时跳过，拒绝是正常否定结果且无任何副作用。
	if !req.AutoApprove {
		decision := a.policy.Evaluate(req.Resource, amount)
		if !decision.Approved {
			return &ExecuteResult{Success: false, Reason: decision.Reason}, nil
		}
	}

	transfer, err := a.adapter.Transfer(ctx, wallet.TransferRequest{
		Network: requirement.Network,
		Asset:   requirement.Asset,
		PayTo:   requirement.PayTo,
		Amount:  amount,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainExecution, err, "链上转账失败")
	}

	proof, err := x402.NewPaymentProof(requirement.Scheme, requirement.Network, transfer.TxRef)
	if err != nil {
		return nil, err
	}
	headerValue, err := x402.EncodePaymentHeader(proof)
	if err != nil {
		return nil, err
	}

	// 第二次请求：携带凭证重放原始请求，结论以资源方的验证结果为准。
	header := http.Header{}
	header.Set(x402.PaymentHeader, headerValue)

	verification, err := a.fetcher.Fetch(ctx, req.Resource, query, header)
	if err != nil {
		a.recordHistory(ctx, req.Resource, requirement, amount, transfer.TxRef, "verification_failed", err.Error())
		return nil, xerrors.Wrap(xerrors.CodeVerificationFailed, err, "凭证提交失败")
	}
	if verification.StatusCode != http.StatusOK {
		detail := string(verification.Body)
		a.recordHistory(ctx, req.Resource, requirement, amount, transfer.TxRef, "verification_failed", detail)
		return nil, xerrors.New(xerrors.CodeVerificationFailed,
			fmt.Sprintf("资源方拒绝了支付凭证: %s", detail))
	}

	receipt, err := x402.DecodeReceipt(verification.Body)
	if err != nil {
		return nil, err
	}

	a.policy.RecordSpend(amount)
	a.recordHistory(ctx, req.Resource, requirement, amount, transfer.TxRef, receipt.Status, "")

	logger.Audit().Info("payment settled",
		"resource", req.Resource,
		"network", requirement.Network,
		"amount", amount,
		"tx_ref", transfer.TxRef,
	)

	return &ExecuteResult{
		Success: true,
		TxRef:   transfer.TxRef,
		Amount:  amount,
		Network: requirement.Network,
		Receipt: receipt,
		Scheme:  requirement.Scheme,
		Context: req.Context,
	}, nil
}

// EvaluatePayment 暴露策略评估，供外层在支付前预检。
func (a *Agent) EvaluatePayment(resource string, amount int64) Decision {
	return a.policy.Evaluate(resource, amount)
}

// History 返回最近的支付记录。
func (a *Agent) History(ctx context.Context, limit int) ([]mysql.PaymentRecord, error) {
	if a.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置支付历史仓库")
	}
	records, err := a.history.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询支付记录失败")
	}
	return records, nil
}

// recordHistory 将结算结果写入历史仓库，失败只记日志不影响主流程。
func (a *Agent) recordHistory(ctx context.Context, resource string, requirement x402.PaymentRequirement, amount int64, txRef, status, reason string) {
	if a.history == nil {
		return
	}
	record := mysql.PaymentRecord{
		Resource:  resource,
		Network:   requirement.Network,
		Asset:     requirement.Asset,
		PayTo:     requirement.PayTo,
		Amount:    amount,
		TxRef:     txRef,
		Status:    status,
		Reason:    reason,
		CreatedAt: time.Now().Unix(),
	}
	if err := a.history.Save(ctx, record); err != nil {
		logger.L().Warn("保存支付记录失败", "resource", resource, "error", err)
	}
}
