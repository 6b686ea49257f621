package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/internal/x402"
)

type stubFetcher struct {
	responses  []*Response
	calls      int32
	lastHeader http.Header
}

func (s *stubFetcher) Fetch(_ context.Context, _ string, _ url.Values, header http.Header) (*Response, error) {
	index := int(atomic.AddInt32(&s.calls, 1)) - 1
	s.lastHeader = header
	if index >= len(s.responses) {
		return &Response{StatusCode: http.StatusInternalServerError}, nil
	}
	return s.responses[index], nil
}

type stubAdapter struct {
	txRef     string
	err       error
	transfers int32
}

func (s *stubAdapter) Transfer(_ context.Context, req wallet.TransferRequest) (*wallet.TransferResult, error) {
	atomic.AddInt32(&s.transfers, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &wallet.TransferResult{TxRef: s.txRef, Network: req.Network, Amount: req.Amount}, nil
}

func (s *stubAdapter) Balance(context.Context, string, string) (int64, error) { return 0, nil }

func (s *stubAdapter) Close() {}

func challengeBody(t *testing.T, amount int64) []byte {
	t.Helper()
	challenge, err := x402.BuildChallenge(x402.ChallengeSpec{
		Asset:   "USDC",
		Network: "base",
		PayTo:   "0xowner",
		Scheme:  x402.SchemeExact,
		Amount:  amount,
	})
	if err != nil {
		t.Fatalf("build challenge failed: %v", err)
	}
	body, err := json.Marshal(challenge)
	if err != nil {
		t.Fatalf("marshal challenge failed: %v", err)
	}
	return body
}

func receiptBody(t *testing.T, txRef string, amount int64) []byte {
	t.Helper()
	receipt, err := x402.BuildPaymentResponse(x402.Settlement{TxRef: txRef, Network: "base", Amount: amount})
	if err != nil {
		t.Fatalf("build receipt failed: %v", err)
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		t.Fatalf("marshal receipt failed: %v", err)
	}
	return body
}

func TestExecutePaymentSuccess(t *testing.T) {
	fetcher := &stubFetcher{responses: []*Response{
		{StatusCode: http.StatusPaymentRequired, Body: challengeBody(t, 500_000)},
		{StatusCode: http.StatusOK, Body: receiptBody(t, "0xabc", 500_000)},
	}}
	adapter := &stubAdapter{txRef: "0xabc"}
	registry := NewIdentityRegistry()
	identity := registry.Obtain("payer", "0xwallet", "base")
	ag := New(identity, fetcher, adapter)

	result, err := ag.ExecutePayment(context.Background(), ExecuteRequest{Resource: "/premium/data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.TxRef != "0xabc" || result.Amount != 500_000 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Receipt == nil || result.Receipt.Status != x402.ReceiptStatusConfirmed {
		t.Fatalf("expected confirmed receipt, got %+v", result.Receipt)
	}
	if got := atomic.LoadInt32(&fetcher.calls); got != 2 {
		t.Fatalf("expected exactly two resource requests, got %d", got)
	}
	if got := atomic.LoadInt32(&adapter.transfers); got != 1 {
		t.Fatalf("expected exactly one transfer, got %d", got)
	}
	if fetcher.lastHeader.Get(x402.PaymentHeader) == "" {
		t.Fatalf("proof header missing on resubmission")
	}
}

func TestExecutePaymentNonChallengeProbe(t *testing.T) {
	fetcher := &stubFetcher{responses: []*Response{
		{StatusCode: http.StatusOK, Body: []byte(`{"data":"free"}`)},
	}}
	adapter := &stubAdapter{txRef: "0xabc"}
	ag := New(nil, fetcher, adapter)

	_, err := ag.ExecutePayment(context.Background(), ExecuteRequest{Resource: "/premium/data"})
	if err == nil {
		t.Fatalf("expected protocol error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeProtocolViolation {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if got := atomic.LoadInt32(&adapter.transfers); got != 0 {
		t.Fatalf("no transfer may happen on protocol error, got %d", got)
	}
}

func TestExecutePaymentPolicyRejection(t *testing.T) {
	fetcher := &stubFetcher{responses: []*Response{
		{StatusCode: http.StatusPaymentRequired, Body: challengeBody(t, 5_000_000)},
	}}
	adapter := &stubAdapter{txRef: "0xabc"}
	ag := New(nil, fetcher, adapter)

	result, err := ag.ExecutePayment(context.Background(), ExecuteRequest{Resource: "/premium/data"})
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected rejection, got %+v", result)
	}
	if result.Reason == "" {
		t.Fatalf("rejection must carry a reason")
	}
	if got := atomic.LoadInt32(&adapter.transfers); got != 0 {
		t.Fatalf("rejection must have zero side effects, got %d transfers", got)
	}
}

func TestExecutePaymentVerificationFailure(t *testing.T) {
	fetcher := &stubFetcher{responses: []*Response{
		{StatusCode: http.StatusPaymentRequired, Body: challengeBody(t, 500_000)},
		{StatusCode: http.StatusForbidden, Body: []byte("proof not accepted")},
	}}
	adapter := &stubAdapter{txRef: "0xabc"}
	ag := New(nil, fetcher, adapter)

	_, err := ag.ExecutePayment(context.Background(), ExecuteRequest{Resource: "/premium/data"})
	if err == nil {
		t.Fatalf("expected verification failure")
	}
	if xerrors.CodeOf(err) != xerrors.CodeVerificationFailed {
		t.Fatalf("expected verification failure code, got %v", err)
	}
	if !strings.Contains(err.Error(), "proof not accepted") {
		t.Fatalf("owner detail must surface, got %v", err)
	}
}

func TestEvaluateRejectsAboveAutoApproveLimit(t *testing.T) {
	policy := NewPolicy()
	policy.MaxAutoApprove = 10

	decision := policy.Evaluate("/premium/data", 20_000_000)
	if decision.Approved {
		t.Fatalf("expected rejection, got %+v", decision)
	}
	if !strings.Contains(decision.Reason, "自动审批上限") {
		t.Fatalf("reason must mention the auto-approval limit, got %q", decision.Reason)
	}
}

func TestEvaluateDailyBudget(t *testing.T) {
	policy := NewPolicy()
	policy.MaxAutoApprove = 100
	policy.DailyBudget = 10
	policy.RecordSpend(9_500_000)

	decision := policy.Evaluate("/premium/data", 1_000_000)
	if decision.Approved {
		t.Fatalf("expected budget rejection, got %+v", decision)
	}
	if !strings.Contains(decision.Reason, "预算") {
		t.Fatalf("reason must mention the budget, got %q", decision.Reason)
	}
}

func TestIdentityRegistryReusesInstances(t *testing.T) {
	registry := NewIdentityRegistry()
	first := registry.Obtain("payer", "0xwallet", "base", "pay")
	second := registry.Obtain("payer", "0xwallet", "base")
	if first != second {
		t.Fatalf("expected the same identity instance for the same key")
	}
	other := registry.Obtain("payer", "0xwallet", "solana")
	if other == first {
		t.Fatalf("different networks must not share an identity")
	}
	if registry.Size() != 2 {
		t.Fatalf("unexpected registry size: %d", registry.Size())
	}
}
