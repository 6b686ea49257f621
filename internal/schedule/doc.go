// Package schedule 实现延期与周期性支付的管理：
// 登记待执行的支付、到点通过队列触发、按条件门控重试，并驱动
// 绑定的支付智能体完成真正的结算。支付本身永不重试，只有条件
// 门控循环受 maxAttempts 约束。
package schedule
