package command

import "context"

// Intent 是指令解析后的结构化意图。
type Intent string

const (
	IntentPayNow          Intent = "pay_now"
	IntentSchedulePayment Intent = "schedule_payment"
	IntentBuyToken        Intent = "buy_token"
	IntentCancelSchedule  Intent = "cancel_schedule"
	IntentUnknown         Intent = "unknown"
)

// Command 是解析器输出的统一形状，下游只依赖它分发。
type Command struct {
	Intent Intent         `json:"intent"`
	Params map[string]any `json:"params,omitempty"`
}

// Interpreter 将自由文本映射为结构化指令。
// 无法解析或含义不明的文本应产出 unknown，而不是报错。
type Interpreter interface {
	Interpret(ctx context.Context, text string) (*Command, error)
}

// String 取出字符串参数，缺失或类型不符时返回空串。
func (c *Command) String(key string) string {
	if c == nil || c.Params == nil {
		return ""
	}
	if value, ok := c.Params[key].(string); ok {
		return value
	}
	return ""
}

// Int64 取出整数参数，JSON 反序列化产生的 float64 也会被接受。
func (c *Command) Int64(key string) int64 {
	if c == nil || c.Params == nil {
		return 0
	}
	switch value := c.Params[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

// Float64 取出浮点参数。
func (c *Command) Float64(key string) float64 {
	if c == nil || c.Params == nil {
		return 0
	}
	switch value := c.Params[key].(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	default:
		return 0
	}
}

// Bool 取出布尔参数。
func (c *Command) Bool(key string) bool {
	if c == nil || c.Params == nil {
		return false
	}
	if value, ok := c.Params[key].(bool); ok {
		return value
	}
	return false
}
