package agent

import "sync"

// Identity 描述智能体的身份：钱包、网络与能力集合。
// 同一 (角色, 钱包, 网络) 只应存在一个身份实例。
type Identity struct {
	Role         string   `json:"role"`
	Wallet       string   `json:"wallet"`
	Network      string   `json:"network"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type identityKey struct {
	role    string
	wallet  string
	network string
}

// IdentityRegistry 按 (角色, 钱包, 网络) 复用身份实例。
// 复用是优化而非正确性要求，但可以保证同一身份不会被并发构造两次。
type IdentityRegistry struct {
	mu      sync.Mutex
	entries map[identityKey]*Identity
}

// NewIdentityRegistry 创建一个空的身份注册表。
// 测试应当为每个用例构造独立的注册表，而不是共享单例。
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{entries: make(map[identityKey]*Identity)}
}

// Obtain 返回指定键位的身份实例，不存在时创建并登记。
func (r *IdentityRegistry) Obtain(role, wallet, network string, capabilities ...string) *Identity {
	key := identityKey{role: role, wallet: wallet, network: network}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return existing
	}

	identity := &Identity{
		Role:         role,
		Wallet:       wallet,
		Network:      network,
		Capabilities: append([]string(nil), capabilities...),
	}
	r.entries[key] = identity
	return identity
}

// Size 返回当前登记的身份数量。
func (r *IdentityRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
