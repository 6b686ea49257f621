package command

import (
	"context"
	"strings"
	"time"

	"AgentPay-Chain/internal/agent"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/schedule"
	"AgentPay-Chain/internal/trading"
)

// PaymentExecutor 定义分发立即支付所需的能力。
type PaymentExecutor interface {
	ExecutePayment(ctx context.Context, req agent.ExecuteRequest) (*agent.ExecuteResult, error)
}

// TokenBuyer 定义分发买入指令所需的能力。
type TokenBuyer interface {
	BuyToken(ctx context.Context, token string, amountUSDC int64, network string, slippage float64) (*trading.TradeResult, error)
}

// Scheduler 定义分发计划支付指令所需的能力。
type Scheduler interface {
	Schedule(ctx context.Context, spec schedule.Spec) (string, error)
	Cancel(ctx context.Context, id string) error
}

// Outcome 是指令分发的统一结果。
type Outcome struct {
	Intent     Intent               `json:"intent"`
	Success    bool                 `json:"success"`
	Reason     string               `json:"reason,omitempty"`
	Payment    *agent.ExecuteResult `json:"payment,omitempty"`
	Trade      *trading.TradeResult `json:"trade,omitempty"`
	ScheduleID string               `json:"schedule_id,omitempty"`
}

// Dispatcher 按意图把指令分发给支付、交易或调度能力。
type Dispatcher struct {
	interpreter Interpreter
	executor    PaymentExecutor
	trader      TokenBuyer
	scheduler   Scheduler
}

// NewDispatcher 创建指令分发器。
func NewDispatcher(interpreter Interpreter, executor PaymentExecutor, trader TokenBuyer, scheduler Scheduler) *Dispatcher {
	return &Dispatcher{
		interpreter: interpreter,
		executor:    executor,
		trader:      trader,
		scheduler:   scheduler,
	}
}

// ProcessCommand 解析并分发一条自由文本指令。
// unknown 意图直接返回否定结果，不产生任何副作用。
func (d *Dispatcher) ProcessCommand(ctx context.Context, text string) (*Outcome, error) {
	if d.interpreter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置指令解析器")
	}
	if strings.TrimSpace(text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "指令文本不能为空")
	}

	cmd, err := d.interpreter.Interpret(ctx, text)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		cmd = &Command{Intent: IntentUnknown}
	}

	switch cmd.Intent {
	case IntentPayNow:
		return d.dispatchPayNow(ctx, cmd)
	case IntentSchedulePayment:
		return d.dispatchSchedule(ctx, cmd)
	case IntentBuyToken:
		return d.dispatchBuyToken(ctx, cmd)
	case IntentCancelSchedule:
		return d.dispatchCancel(ctx, cmd)
	default:
		return &Outcome{Intent: IntentUnknown, Success: false, Reason: "无法识别的指令"}, nil
	}
}

func (d *Dispatcher) dispatchPayNow(ctx context.Context, cmd *Command) (*Outcome, error) {
	if d.executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置支付智能体")
	}
	resource := cmd.String("resource")
	if resource == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "支付指令缺少资源路径")
	}
	result, err := d.executor.ExecutePayment(ctx, agent.ExecuteRequest{
		Resource:    resource,
		Amount:      cmd.Int64("amount"),
		Network:     cmd.String("network"),
		AutoApprove: cmd.Bool("auto_approve"),
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Intent:  IntentPayNow,
		Success: result.Success,
		Reason:  result.Reason,
		Payment: result,
	}, nil
}

func (d *Dispatcher) dispatchSchedule(ctx context.Context, cmd *Command) (*Outcome, error) {
	if d.scheduler == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置支付调度器")
	}
	executeAt := time.Now()
	if delay := cmd.Int64("delay_sec"); delay > 0 {
		executeAt = executeAt.Add(time.Duration(delay) * time.Second)
	}
	id, err := d.scheduler.Schedule(ctx, schedule.Spec{
		Resource:    cmd.String("resource"),
		Amount:      cmd.Int64("amount"),
		Network:     cmd.String("network"),
		ExecuteAt:   executeAt,
		Recurring:   cmd.Bool("recurring"),
		IntervalSec: cmd.Int64("interval_sec"),
		MaxAttempts: int(cmd.Int64("max_attempts")),
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Intent: IntentSchedulePayment, Success: true, ScheduleID: id}, nil
}

func (d *Dispatcher) dispatchBuyToken(ctx context.Context, cmd *Command) (*Outcome, error) {
	if d.trader == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置交易智能体")
	}
	result, err := d.trader.BuyToken(ctx,
		cmd.String("token"),
		cmd.Int64("amount"),
		cmd.String("network"),
		cmd.Float64("slippage"),
	)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Intent:  IntentBuyToken,
		Success: result.Success,
		Reason:  result.Reason,
		Trade:   result,
	}, nil
}

func (d *Dispatcher) dispatchCancel(ctx context.Context, cmd *Command) (*Outcome, error) {
	if d.scheduler == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置支付调度器")
	}
	id := cmd.String("id")
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "取消指令缺少计划支付 ID")
	}
	if err := d.scheduler.Cancel(ctx, id); err != nil {
		return nil, err
	}
	return &Outcome{Intent: IntentCancelSchedule, Success: true, ScheduleID: id}, nil
}
