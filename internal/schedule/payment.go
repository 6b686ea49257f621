package schedule

import (
	xerrors "AgentPay-Chain/internal/errors"
)

// Status 表示计划支付在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Payment 描述一笔由调度器托管的计划支付。
// 条目只由调度器自身的执行回调修改；非周期条目恰好进入终态一次，
// 周期条目完成时派生一个全新 ID 的新条目，原条目保持 completed。
type Payment struct {
	ID          string     `json:"id"`
	Resource    string     `json:"resource"`
	Amount      int64      `json:"amount"`
	Network     string     `json:"network,omitempty"`
	ExecuteAt   int64      `json:"execute_at"`
	Recurring   bool       `json:"recurring,omitempty"`
	IntervalSec int64      `json:"interval_sec,omitempty"`
	Condition   *Condition `json:"condition,omitempty"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	TxRef       string     `json:"tx_ref,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

var (
	// ErrPaymentNotFound 表示指定的计划支付不存在。
	ErrPaymentNotFound = xerrors.New(CodeScheduleNotFound, "scheduled payment not found")
	// ErrPaymentConflict 表示计划支付在当前状态下无法进行所请求的操作。
	ErrPaymentConflict = xerrors.New(CodeScheduleConflict, "scheduled payment conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
)

const (
	CodeScheduleNotFound   xerrors.Code = "SCHEDULE_NOT_FOUND"
	CodeScheduleConflict   xerrors.Code = "SCHEDULE_CONFLICT"
	CodeScheduleValidation xerrors.Code = "SCHEDULE_VALIDATION_FAILED"
	CodeSchedulePublish    xerrors.Code = "SCHEDULE_PUBLISH_FAILED"
	CodeScheduleExecution  xerrors.Code = "SCHEDULE_EXECUTION_FAILED"
	CodeScheduleExhausted  xerrors.Code = "SCHEDULE_CONDITION_EXHAUSTED"
)

func init() {
	xerrors.Register(CodeScheduleNotFound, xerrors.Attributes{
		Message:   "scheduled payment not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeScheduleConflict, xerrors.Attributes{
		Message:   "scheduled payment conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeScheduleValidation, xerrors.Attributes{
		Message:   "scheduled payment validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSchedulePublish, xerrors.Attributes{
		Message:   "failed to publish scheduled payment",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeScheduleExecution, xerrors.Attributes{
		Message:   "scheduled payment execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeScheduleExhausted, xerrors.Attributes{
		Message:   "scheduled payment condition never met",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

func clonePayment(payment *Payment) *Payment {
	clone := *payment
	if payment.Condition != nil {
		conditionCopy := *payment.Condition
		clone.Condition = &conditionCopy
	}
	return &clone
}
