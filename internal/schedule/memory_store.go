package schedule

import (
	"context"
	"sync"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

// MemoryStore 以内存方式保存计划支付，进程内存即权威状态。
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	order    []string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Payment)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, payment *Payment) error {
	if payment == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "payment 不能为空")
	}
	if payment.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "计划支付 ID 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[payment.ID]; ok {
		return ErrPaymentConflict
	}
	now := time.Now().Unix()
	if payment.CreatedAt == 0 {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	m.payments[payment.ID] = clonePayment(payment)
	m.order = append(m.order, payment.ID)
	return nil
}

// Get 返回条目的拷贝。
func (m *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

// IncrementAttempts 递增条件门控的尝试计数。
// 仅允许在 pending 状态下递增，且不会超过 MaxAttempts。
func (m *MemoryStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return 0, ErrPaymentNotFound
	}
	if payment.Status != StatusPending {
		return payment.Attempts, ErrPaymentConflict
	}
	if payment.Attempts >= payment.MaxAttempts {
		return payment.Attempts, ErrPaymentConflict
	}
	payment.Attempts++
	payment.UpdatedAt = time.Now().Unix()
	return payment.Attempts, nil
}

// MarkCompleted 记录成功结算。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string, txRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.Status = StatusCompleted
	payment.TxRef = txRef
	payment.Reason = ""
	payment.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 将条目置为终态失败并记录原因。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.Status = StatusFailed
	payment.Reason = reason
	payment.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkCancelled 幂等取消：重复调用与取消缺失条目都是安全的空操作，
// 已经进入终态的条目保持原状。
func (m *MemoryStore) MarkCancelled(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil
	}
	if payment.Status != StatusPending {
		return nil
	}
	payment.Status = StatusCancelled
	payment.UpdatedAt = time.Now().Unix()
	return nil
}

// List 按插入顺序返回快照。
func (m *MemoryStore) List(_ context.Context) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]*Payment, 0, len(m.order))
	for _, id := range m.order {
		if payment, ok := m.payments[id]; ok {
			results = append(results, clonePayment(payment))
		}
	}
	return results, nil
}

// Stats 统计各状态条目的数量。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{}
	for _, payment := range m.payments {
		stats.Total++
		switch payment.Status {
		case StatusPending:
			stats.Pending++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
