package x402

import (
	"testing"
)

func TestBuildChallengeExact(t *testing.T) {
	challenge, err := BuildChallenge(ChallengeSpec{
		Asset:   "USDC",
		Network: "base",
		PayTo:   "0xabc",
		Scheme:  SchemeExact,
		Amount:  5_000_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if challenge.X402Version != Version {
		t.Fatalf("unexpected version: %d", challenge.X402Version)
	}
	if len(challenge.Accepted) != 1 {
		t.Fatalf("expected a single requirement, got %d", len(challenge.Accepted))
	}
	req := challenge.Accepted[0]
	if req.Amount != 5_000_000 {
		t.Fatalf("unexpected amount: %d", req.Amount)
	}
	if req.MinAmount != 0 || req.MaxAmount != 0 || req.Suggested != 0 || req.DynamicPricing {
		t.Fatalf("exact 模式填充了多余字段: %+v", req)
	}
	if !challenge.Metadata.AgentCapable {
		t.Fatalf("expected agentCapable metadata")
	}
}

func TestBuildChallengeRange(t *testing.T) {
	challenge, err := BuildChallenge(ChallengeSpec{
		Network:   "base",
		PayTo:     "0xabc",
		Scheme:    SchemeRange,
		MinAmount: 1_000_000,
		MaxAmount: 2_000_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := challenge.Accepted[0]
	if req.MinAmount != 1_000_000 || req.MaxAmount != 2_000_000 {
		t.Fatalf("unexpected bounds: %+v", req)
	}
	if req.Amount != 0 || req.Suggested != 0 || req.DynamicPricing {
		t.Fatalf("range 模式填充了多余字段: %+v", req)
	}
}

func TestBuildChallengeRangeRejectsInvertedBounds(t *testing.T) {
	_, err := BuildChallenge(ChallengeSpec{
		Network:   "base",
		PayTo:     "0xabc",
		Scheme:    SchemeRange,
		MinAmount: 2_000_000,
		MaxAmount: 1_000_000,
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestBuildChallengeDynamic(t *testing.T) {
	challenge, err := BuildChallenge(ChallengeSpec{
		Network:   "base",
		PayTo:     "0xabc",
		Scheme:    SchemeDynamic,
		Suggested: 3_000_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := challenge.Accepted[0]
	if !req.DynamicPricing {
		t.Fatalf("dynamic 模式必须开启无上限标记")
	}
	if req.Suggested != 3_000_000 || req.Amount != 0 || req.MinAmount != 0 || req.MaxAmount != 0 {
		t.Fatalf("unexpected fields: %+v", req)
	}
}

func TestBuildChallengeSubscriptionRequiresPeriod(t *testing.T) {
	_, err := BuildChallenge(ChallengeSpec{
		Network: "base",
		PayTo:   "0xabc",
		Scheme:  SchemeSubscription,
		Amount:  1_000_000,
	})
	if err == nil {
		t.Fatalf("expected validation error for missing period")
	}
}

func TestBuildChallengeAttachesBreakdown(t *testing.T) {
	challenge, err := BuildChallenge(ChallengeSpec{
		Network: "base",
		PayTo:   "0xabc",
		Scheme:  SchemeExact,
		Amount:  4_000_000,
		Breakdown: []Breakdown{
			{Recipient: "0xowner", Amount: 3_000_000},
			{Recipient: "0xplatform", Amount: 1_000_000},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := challenge.Accepted[0]
	if req.Extra == nil || len(req.Extra.Breakdown) != 2 {
		t.Fatalf("breakdown 未按原样附加: %+v", req.Extra)
	}
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	proof, err := NewPaymentProof(SchemeExact, "base", "0xdeadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	header, err := EncodePaymentHeader(proof)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodePaymentHeader(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Payload.TxRef != "0xdeadbeef" || decoded.Network != "base" || decoded.Scheme != SchemeExact {
		t.Fatalf("unexpected proof: %+v", decoded)
	}
}

func TestBuildPaymentResponse(t *testing.T) {
	receipt, err := BuildPaymentResponse(Settlement{TxRef: "0xfeed", Network: "base", Amount: 5_000_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.TxRef != "0xfeed" || receipt.Amount != 5_000_000 {
		t.Fatalf("回执未完整保留转账结果: %+v", receipt)
	}
	if receipt.Status != ReceiptStatusConfirmed {
		t.Fatalf("unexpected status: %s", receipt.Status)
	}
}

func TestBuildPaymentResponseRequiresTxRef(t *testing.T) {
	if _, err := BuildPaymentResponse(Settlement{Network: "base", Amount: 1}); err == nil {
		t.Fatalf("expected error for missing tx ref")
	}
}

func TestRequiredAmountPerScheme(t *testing.T) {
	cases := []struct {
		req  PaymentRequirement
		want int64
	}{
		{PaymentRequirement{Scheme: SchemeExact, Amount: 7}, 7},
		{PaymentRequirement{Scheme: SchemeRange, MinAmount: 3, MaxAmount: 9}, 3},
		{PaymentRequirement{Scheme: SchemeDynamic, Suggested: 5}, 5},
		{PaymentRequirement{Scheme: SchemeSubscription, Amount: 11}, 11},
	}
	for _, tc := range cases {
		if got := tc.req.RequiredAmount(); got != tc.want {
			t.Fatalf("scheme %s: got %d want %d", tc.req.Scheme, got, tc.want)
		}
	}
}
