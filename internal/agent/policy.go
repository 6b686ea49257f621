package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"AgentPay-Chain/internal/x402"
)

// DefaultMaxAutoApprove 是默认的单笔自动审批上限（展示单位）。
const DefaultMaxAutoApprove = 1

// Decision 是策略评估的结果。拒绝是正常的否定结论，不是异常。
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Policy 约束智能体在未经人工确认时可以支出的额度。
// MaxAutoApprove 与 DailyBudget 以展示单位计，内部换算为最小单位。
type Policy struct {
	MaxAutoApprove   int64
	DailyBudget      int64
	AllowedResources []string

	mu         sync.Mutex
	spentByDay map[string]int64
}

// NewPolicy 创建一个使用默认上限的策略。
func NewPolicy() *Policy {
	return &Policy{
		MaxAutoApprove: DefaultMaxAutoApprove,
		spentByDay:     make(map[string]int64),
	}
}

// Evaluate 判断指定资源的一笔支出是否可以自动放行。
// amount 以最小单位计。
func (p *Policy) Evaluate(resource string, amount int64) Decision {
	ceiling := p.MaxAutoApprove
	if ceiling <= 0 {
		ceiling = DefaultMaxAutoApprove
	}
	ceilingBase := ceiling * x402.BaseUnitsPerToken

	if amount > ceilingBase {
		return Decision{
			Approved: false,
			Reason: fmt.Sprintf("金额 %s 超出自动审批上限 %s",
				formatDisplayAmount(amount), formatDisplayAmount(ceilingBase)),
		}
	}

	if len(p.AllowedResources) > 0 && !p.resourceAllowed(resource) {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("资源 %s 不在允许列表内", resource),
		}
	}

	if p.DailyBudget > 0 {
		budgetBase := p.DailyBudget * x402.BaseUnitsPerToken
		if p.spentToday()+amount > budgetBase {
			return Decision{
				Approved: false,
				Reason: fmt.Sprintf("当日累计支出将超过预算 %s",
					formatDisplayAmount(budgetBase)),
			}
		}
	}

	return Decision{Approved: true}
}

// RecordSpend 在结算成功后记入当日支出台账。
func (p *Policy) RecordSpend(amount int64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spentByDay == nil {
		p.spentByDay = make(map[string]int64)
	}
	p.spentByDay[currentDay()] += amount
}

func (p *Policy) spentToday() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spentByDay[currentDay()]
}

func (p *Policy) resourceAllowed(resource string) bool {
	for _, allowed := range p.AllowedResources {
		if allowed == resource || strings.HasPrefix(resource, allowed) {
			return true
		}
	}
	return false
}

func currentDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

func formatDisplayAmount(base int64) string {
	whole := base / x402.BaseUnitsPerToken
	frac := base % x402.BaseUnitsPerToken
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%06d", whole, frac), "0")
}
