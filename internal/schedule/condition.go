package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// ConditionKind 表示条件门控的类型。
type ConditionKind string

const (
	ConditionPriceThreshold   ConditionKind = "price_threshold"
	ConditionBalanceThreshold ConditionKind = "balance_threshold"
	ConditionTimeWindow       ConditionKind = "time_window"
	ConditionCustom           ConditionKind = "custom"
)

// Condition 描述计划支付执行前必须满足的前置条件。
// time_window 在本地按当前小时判定，其余类型依赖外部检查器。
type Condition struct {
	Kind       ConditionKind `json:"kind"`
	Token      string        `json:"token,omitempty"`
	MaxPrice   float64       `json:"max_price,omitempty"`
	Account    string        `json:"account,omitempty"`
	Asset      string        `json:"asset,omitempty"`
	MinBalance int64         `json:"min_balance,omitempty"`
	StartHour  int           `json:"start_hour,omitempty"`
	EndHour    int           `json:"end_hour,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// PriceChecker 提供代币现价查询能力。
type PriceChecker interface {
	Price(ctx context.Context, token string) (float64, error)
}

// BalanceChecker 提供账户余额查询能力。
type BalanceChecker interface {
	Balance(ctx context.Context, account, asset string) (int64, error)
}

// CustomCheck 是外部注册的自定义条件判定函数。
type CustomCheck func(ctx context.Context) (bool, error)

// ConditionEvaluator 汇集各类条件的判定实现。
type ConditionEvaluator struct {
	prices   PriceChecker
	balances BalanceChecker
	now      func() time.Time

	mu     sync.RWMutex
	checks map[string]CustomCheck
}

// EvaluatorOption 定义可选的判定器配置。
type EvaluatorOption func(*ConditionEvaluator)

// WithPriceChecker 配置价格查询实现。
func WithPriceChecker(checker PriceChecker) EvaluatorOption {
	return func(e *ConditionEvaluator) {
		e.prices = checker
	}
}

// WithBalanceChecker 配置余额查询实现。
func WithBalanceChecker(checker BalanceChecker) EvaluatorOption {
	return func(e *ConditionEvaluator) {
		e.balances = checker
	}
}

// WithClock 替换时间源，便于测试时间窗口条件。
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *ConditionEvaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewConditionEvaluator 创建条件判定器。
func NewConditionEvaluator(opts ...EvaluatorOption) *ConditionEvaluator {
	evaluator := &ConditionEvaluator{
		now:    time.Now,
		checks: make(map[string]CustomCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(evaluator)
		}
	}
	return evaluator
}

// RegisterCheck 登记一个命名的自定义条件。
func (e *ConditionEvaluator) RegisterCheck(name string, check CustomCheck) {
	if name == "" || check == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checks[name] = check
}

// Evaluate 判定条件是否满足。判定失败视为未满足并返回原因。
func (e *ConditionEvaluator) Evaluate(ctx context.Context, condition *Condition) (bool, error) {
	if condition == nil {
		return true, nil
	}

	switch condition.Kind {
	case ConditionPriceThreshold:
		if e.prices == nil {
			return false, xerrors.New(xerrors.CodeInitializationFailure, "未配置价格检查器")
		}
		price, err := e.prices.Price(ctx, condition.Token)
		if err != nil {
			return false, err
		}
		return price <= condition.MaxPrice, nil
	case ConditionBalanceThreshold:
		if e.balances == nil {
			return false, xerrors.New(xerrors.CodeInitializationFailure, "未配置余额检查器")
		}
		balance, err := e.balances.Balance(ctx, condition.Account, condition.Asset)
		if err != nil {
			return false, err
		}
		return balance >= condition.MinBalance, nil
	case ConditionTimeWindow:
		hour := e.now().Hour()
		if condition.StartHour <= condition.EndHour {
			return hour >= condition.StartHour && hour < condition.EndHour, nil
		}
		// 跨午夜窗口，例如 22 点到次日 6 点。
		return hour >= condition.StartHour || hour < condition.EndHour, nil
	case ConditionCustom:
		e.mu.RLock()
		check, ok := e.checks[condition.Name]
		e.mu.RUnlock()
		if !ok {
			return false, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未注册的自定义条件: %s", condition.Name))
		}
		return check(ctx)
	default:
		return false, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的条件类型: %s", condition.Kind))
	}
}
