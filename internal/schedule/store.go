package schedule

import "context"

// Store 抽象了计划支付状态的存取接口。
// 本设计中的计划支付不做持久化，进程内存即权威状态。
type Store interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	// IncrementAttempts 在条件未满足时递增尝试计数，返回递增后的值。
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkCompleted(ctx context.Context, id string, txRef string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// MarkCancelled 幂等地取消一个待执行条目，已处于终态的条目保持不变。
	MarkCancelled(ctx context.Context, id string) error
	// List 按插入顺序返回全部条目的快照。
	List(ctx context.Context) ([]*Payment, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
