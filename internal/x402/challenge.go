package x402

import (
	"encoding/json"
	"fmt"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// Version 是当前支持的协议版本号。
const Version = 1

// BaseUnitsPerToken 表示 1 个展示单位对应的最小单位数量。
// 全系统金额一律使用最小单位的整数表示。
const BaseUnitsPerToken = 1_000_000

// Scheme 表示挑战的计价模式。
type Scheme string

const (
	SchemeExact        Scheme = "exact"
	SchemeRange        Scheme = "range"
	SchemeSubscription Scheme = "subscription"
	SchemeDynamic      Scheme = "dynamic"
)

// IsValidScheme 检查给定的计价模式是否为支持的枚举值。
func IsValidScheme(scheme Scheme) bool {
	switch scheme {
	case SchemeExact, SchemeRange, SchemeSubscription, SchemeDynamic:
		return true
	default:
		return false
	}
}

// Breakdown 描述一笔支付在多个收款方之间的拆分。
type Breakdown struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Note      string `json:"note,omitempty"`
}

// Extra 承载协议扩展字段，按原样透传给调用方。
type Extra struct {
	Breakdown []Breakdown `json:"breakdown,omitempty"`
}

// PaymentRequirement 是挑战中的单个收款选项。
// 每种计价模式只允许填写该模式对应的金额字段。
type PaymentRequirement struct {
	Asset          string `json:"asset"`
	Network        string `json:"network"`
	PayTo          string `json:"payTo"`
	Scheme         Scheme `json:"scheme"`
	Amount         int64  `json:"amount,omitempty"`
	MinAmount      int64  `json:"minAmount,omitempty"`
	MaxAmount      int64  `json:"maxAmount,omitempty"`
	Suggested      int64  `json:"suggestedAmount,omitempty"`
	PeriodSeconds  int64  `json:"periodSeconds,omitempty"`
	DynamicPricing bool   `json:"dynamicPricing,omitempty"`
	Extra          *Extra `json:"extra,omitempty"`
}

// ChallengeMetadata 记录挑战生成时的附加信息。
type ChallengeMetadata struct {
	Timestamp    int64          `json:"timestamp"`
	AgentCapable bool           `json:"agentCapable"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Challenge 是资源方针对未支付请求返回的 402 报文主体。
// 每次交互新建一份，交互结束即丢弃，不做持久化。
type Challenge struct {
	X402Version int                  `json:"x402Version"`
	Accepted    []PaymentRequirement `json:"accepted"`
	Metadata    ChallengeMetadata    `json:"metadata"`
}

// ChallengeSpec 描述构造挑战所需的输入。
type ChallengeSpec struct {
	Asset         string
	Network       string
	PayTo         string
	Scheme        Scheme
	Amount        int64
	MinAmount     int64
	MaxAmount     int64
	Suggested     int64
	PeriodSeconds int64
	Breakdown     []Breakdown
	Attributes    map[string]any
}

// BuildChallenge 按照计价模式校验并构造挑战。
// 每种模式只填充该模式约定的金额字段，缺失必填字段时返回校验错误。
func BuildChallenge(spec ChallengeSpec) (*Challenge, error) {
	if spec.PayTo == "" {
		return nil, xerrors.New(xerrors.CodeValidationFailure, "收款地址不能为空")
	}
	if spec.Network == "" {
		return nil, xerrors.New(xerrors.CodeValidationFailure, "网络标识不能为空")
	}
	if !IsValidScheme(spec.Scheme) {
		return nil, xerrors.New(xerrors.CodeValidationFailure, fmt.Sprintf("不支持的计价模式: %s", spec.Scheme))
	}

	requirement := PaymentRequirement{
		Asset:   spec.Asset,
		Network: spec.Network,
		PayTo:   spec.PayTo,
		Scheme:  spec.Scheme,
	}

	switch spec.Scheme {
	case SchemeExact:
		if spec.Amount <= 0 {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "exact 模式必须提供正数金额")
		}
		requirement.Amount = spec.Amount
	case SchemeRange:
		if spec.MinAmount <= 0 || spec.MaxAmount <= 0 {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "range 模式的上下限必须为正数")
		}
		if spec.MinAmount > spec.MaxAmount {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "range 模式要求 minAmount <= maxAmount")
		}
		requirement.MinAmount = spec.MinAmount
		requirement.MaxAmount = spec.MaxAmount
	case SchemeSubscription:
		if spec.Amount <= 0 {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "subscription 模式必须提供正数金额")
		}
		if spec.PeriodSeconds <= 0 {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "subscription 模式必须提供计费周期")
		}
		requirement.Amount = spec.Amount
		requirement.PeriodSeconds = spec.PeriodSeconds
	case SchemeDynamic:
		// 动态定价只给出建议金额，不设上限。
		if spec.Suggested <= 0 {
			return nil, xerrors.New(xerrors.CodeValidationFailure, "dynamic 模式必须提供建议金额")
		}
		requirement.Suggested = spec.Suggested
		requirement.DynamicPricing = true
	}

	if len(spec.Breakdown) > 0 {
		requirement.Extra = &Extra{Breakdown: append([]Breakdown(nil), spec.Breakdown...)}
	}

	return &Challenge{
		X402Version: Version,
		Accepted:    []PaymentRequirement{requirement},
		Metadata: ChallengeMetadata{
			Timestamp:    time.Now().Unix(),
			AgentCapable: true,
			Attributes:   spec.Attributes,
		},
	}, nil
}

// DecodeChallenge 解析资源方返回的 402 报文主体。
func DecodeChallenge(body []byte) (*Challenge, error) {
	var challenge Challenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocolViolation, err, "挑战报文解析失败")
	}
	if challenge.X402Version != Version {
		return nil, xerrors.New(xerrors.CodeProtocolViolation, fmt.Sprintf("不支持的协议版本: %d", challenge.X402Version))
	}
	if len(challenge.Accepted) == 0 {
		return nil, xerrors.New(xerrors.CodeProtocolViolation, "挑战未包含任何收款选项")
	}
	return &challenge, nil
}

// RequiredAmount 返回某个收款选项在当前交互中应支付的金额。
// range 取下限，dynamic 取建议金额。
func (r PaymentRequirement) RequiredAmount() int64 {
	switch r.Scheme {
	case SchemeRange:
		return r.MinAmount
	case SchemeDynamic:
		return r.Suggested
	default:
		return r.Amount
	}
}
