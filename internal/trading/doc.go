// Package trading 在支付智能体之上叠加交易决策：
// 买入前先做报价评估（滑点、流动性、波动率），通过后才委托
// 支付能力执行，交易门控本身即审批。
package trading
