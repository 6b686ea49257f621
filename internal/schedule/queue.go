package schedule

import (
	"context"
)

// Handler 处理来自队列的计划支付 ID。
type Handler func(ctx context.Context, paymentID string) error

// Producer 负责向队列投递到期的计划支付。
type Producer interface {
	Publish(ctx context.Context, paymentID string) error
	Close() error
}

// Consumer 负责从队列中消费到期的计划支付。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
