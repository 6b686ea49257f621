package command

import (
	"context"
	"strconv"
	"strings"
)

// RuleInterpreter 是基于关键词的简单解析实现，主要用于测试与本地联调。
// 生产环境可以替换为任意满足 Interpreter 契约的模型式解析器。
type RuleInterpreter struct{}

// NewRuleInterpreter 创建规则解析器。
func NewRuleInterpreter() *RuleInterpreter {
	return &RuleInterpreter{}
}

// Interpret 按关键词识别意图，并从文本中提取少量结构化参数。
func (r *RuleInterpreter) Interpret(_ context.Context, text string) (*Command, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return &Command{Intent: IntentUnknown}, nil
	}

	params := map[string]any{}
	for _, field := range strings.Fields(normalized) {
		if strings.HasPrefix(field, "/") {
			params["resource"] = field
			continue
		}
		if strings.Contains(field, "=") {
			parts := strings.SplitN(field, "=", 2)
			key, value := parts[0], parts[1]
			if number, err := strconv.ParseFloat(value, 64); err == nil {
				params[key] = number
			} else if value == "true" || value == "false" {
				params[key] = value == "true"
			} else {
				params[key] = value
			}
		}
	}

	switch {
	case strings.Contains(normalized, "cancel") || strings.Contains(normalized, "取消"):
		return &Command{Intent: IntentCancelSchedule, Params: params}, nil
	case strings.Contains(normalized, "buy") || strings.Contains(normalized, "买入"):
		return &Command{Intent: IntentBuyToken, Params: params}, nil
	case strings.Contains(normalized, "schedule") || strings.Contains(normalized, "定时") || strings.Contains(normalized, "稍后"):
		return &Command{Intent: IntentSchedulePayment, Params: params}, nil
	case strings.Contains(normalized, "pay") || strings.Contains(normalized, "支付"):
		return &Command{Intent: IntentPayNow, Params: params}, nil
	default:
		return &Command{Intent: IntentUnknown}, nil
	}
}

var _ Interpreter = (*RuleInterpreter)(nil)
