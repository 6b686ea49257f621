package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"AgentPay-Chain/internal/config"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/internal/wallet/ethereum"
)

// Registry manages a set of transfer adapters keyed by network names.
type Registry struct {
	defaultNetwork string
	adapters       map[string]wallet.Adapter
}

// NewRegistry loads network definitions and instantiates concrete adapters.
func NewRegistry(ctx context.Context, cfg config.WalletConfig) (*Registry, error) {
	defs, err := wallet.LoadNetworkDefinitions(cfg.Networks)
	if err != nil {
		return nil, err
	}

	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if privateKey == "" && cfg.PrivateKeyEnv != "" {
		privateKey = strings.TrimSpace(os.Getenv(cfg.PrivateKeyEnv))
	}

	adapters := make(map[string]wallet.Adapter)
	for name, network := range defs.Networks {
		networkType := strings.ToLower(strings.TrimSpace(network.Type))
		if networkType == "" {
			networkType = "evm"
		}
		switch networkType {
		case "evm":
			adapter, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:          name,
				RPCURL:        network.RPCURL,
				ChainID:       network.ChainID,
				AssetContract: network.AssetContract,
				PrivateKey:    privateKey,
				Notes:         network.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化网络 %s 失败: %w", name, err)
			}
			adapters[name] = adapter
		default:
			return nil, fmt.Errorf("网络 %s 使用了不支持的类型 %s", name, network.Type)
		}
	}

	if len(adapters) == 0 {
		return nil, errors.New("未配置任何网络的 RPC 端点")
	}

	defaultNetwork := cfg.DefaultNetwork
	if defaultNetwork == "" {
		names := make([]string, 0, len(adapters))
		for name := range adapters {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultNetwork = names[0]
	}
	if _, ok := adapters[defaultNetwork]; !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", defaultNetwork)
	}

	return &Registry{defaultNetwork: defaultNetwork, adapters: adapters}, nil
}

// DefaultAdapter returns the adapter configured as default network.
func (r *Registry) DefaultAdapter() (wallet.Adapter, error) {
	if r == nil {
		return nil, errors.New("未初始化的网络适配器注册表")
	}
	adapter, ok := r.adapters[r.defaultNetwork]
	if !ok {
		return nil, fmt.Errorf("默认网络 %s 未在注册表中", r.defaultNetwork)
	}
	return adapter, nil
}

// Adapter returns the transfer adapter identified by network name.
func (r *Registry) Adapter(name string) (wallet.Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// DefaultNetwork reports the name of the default network.
func (r *Registry) DefaultNetwork() string {
	if r == nil {
		return ""
	}
	return r.defaultNetwork
}

// Close releases all adapters managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, adapter := range r.adapters {
		if adapter != nil {
			adapter.Close()
		}
		delete(r.adapters, name)
	}
}

// Networks returns the list of registered network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
