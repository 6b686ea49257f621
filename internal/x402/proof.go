package x402

import (
	"encoding/base64"
	"encoding/json"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// PaymentHeader 是凭证在 HTTP 请求中使用的头部名称。
const PaymentHeader = "X-PAYMENT"

// ProofPayload 承载链上交易的引用信息。
type ProofPayload struct {
	TxRef string `json:"txRef"`
}

// PaymentProof 是支付完成后随请求重放提交的凭证。
// 凭证本身不含防重放随机数，重放保护由资源方负责。
type PaymentProof struct {
	X402Version int          `json:"x402Version"`
	Scheme      Scheme       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ProofPayload `json:"payload"`
}

// Receipt 是资源方验证凭证后签发的回执，只由资源方产生。
type Receipt struct {
	X402Version int            `json:"x402Version"`
	Status      string         `json:"status"`
	Network     string         `json:"network"`
	TxRef       string         `json:"txRef"`
	Amount      int64          `json:"amount"`
	Timestamp   int64          `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ReceiptStatusConfirmed 表示凭证已经通过验证。
const ReceiptStatusConfirmed = "confirmed"

// Settlement 汇总一次链上转账的结果，用于生成回执。
type Settlement struct {
	TxRef    string
	Network  string
	Amount   int64
	Metadata map[string]any
}

// NewPaymentProof 根据转账结果构造凭证。
func NewPaymentProof(scheme Scheme, network, txRef string) (*PaymentProof, error) {
	if txRef == "" {
		return nil, xerrors.New(xerrors.CodeValidationFailure, "交易引用不能为空")
	}
	return &PaymentProof{
		X402Version: Version,
		Scheme:      scheme,
		Network:     network,
		Payload:     ProofPayload{TxRef: txRef},
	}, nil
}

// EncodePaymentHeader 将凭证序列化为请求头的 base64 取值。
func EncodePaymentHeader(proof *PaymentProof) (string, error) {
	if proof == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "凭证不能为空")
	}
	raw, err := json.Marshal(proof)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeValidationFailure, err, "凭证序列化失败")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentHeader 解析请求头中的凭证。
func DecodePaymentHeader(value string) (*PaymentProof, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "凭证头部不是合法的 base64")
	}
	var proof PaymentProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "凭证报文解析失败")
	}
	if proof.Payload.TxRef == "" {
		return nil, xerrors.New(xerrors.CodeProtocolViolation, "凭证缺少交易引用")
	}
	return &proof, nil
}

// BuildPaymentResponse 将转账结果投影为回执。
// 仅在缺少交易引用时返回错误。
func BuildPaymentResponse(settlement Settlement) (*Receipt, error) {
	if settlement.TxRef == "" {
		return nil, xerrors.New(xerrors.CodeValidationFailure, "转账结果缺少交易引用")
	}
	return &Receipt{
		X402Version: Version,
		Status:      ReceiptStatusConfirmed,
		Network:     settlement.Network,
		TxRef:       settlement.TxRef,
		Amount:      settlement.Amount,
		Timestamp:   time.Now().Unix(),
		Metadata:    settlement.Metadata,
	}, nil
}

// DecodeReceipt 解析资源方返回的回执报文。
func DecodeReceipt(body []byte) (*Receipt, error) {
	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "回执报文解析失败")
	}
	return &receipt, nil
}
