package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"AgentPay-Chain/internal/wallet"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the two fragments needed for asset transfers and
// balance lookups. Amounts are expressed in the token's base units.
const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","constant":true,"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// nativeTransferGas is the fixed gas cost of a plain value transfer.
const nativeTransferGas = 21_000

// Config describes how to construct an EVM compatible transfer adapter.
type Config struct {
	Name          string
	RPCURL        string
	ChainID       int64
	AssetContract string
	PrivateKey    string
	Notes         string
}

// backend mirrors the subset of ethclient methods the adapter relies on,
// so tests can substitute a stub without a running node.
type backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client implements the wallet.Adapter interface for EVM compatible chains.
type Client struct {
	name     string
	notes    string
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	asset    common.Address
	hasAsset bool
	abi      abi.ABI
	eth      *ethclient.Client
	backend  backend
	mu       sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use adapter.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 RPC 地址")
	}
	key, from, err := parseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	client := &Client{
		name:    cfg.Name,
		notes:   cfg.Notes,
		key:     key,
		from:    from,
		chainID: chainID,
		eth:     eth,
		backend: eth,
	}
	if err := client.configureAsset(cfg.AssetContract); err != nil {
		eth.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithBackend wires an injected backend, used by tests.
func NewClientWithBackend(name string, chainID *big.Int, privateKey string, assetContract string, be backend) (*Client, error) {
	key, from, err := parseKey(privateKey)
	if err != nil {
		return nil, err
	}
	client := &Client{
		name:    name,
		key:     key,
		from:    from,
		chainID: new(big.Int).Set(chainID),
		backend: be,
	}
	if err := client.configureAsset(assetContract); err != nil {
		return nil, err
	}
	return client, nil
}

func parseKey(raw string) (*ecdsa.PrivateKey, common.Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, common.Address{}, errors.New("未配置签名私钥")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("解析私钥失败: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func (c *Client) configureAsset(contract string) error {
	contract = strings.TrimSpace(contract)
	if contract == "" {
		return nil
	}
	if !common.IsHexAddress(contract) {
		return fmt.Errorf("非法的资产合约地址: %s", contract)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}
	c.asset = common.HexToAddress(contract)
	c.hasAsset = true
	c.abi = parsed
	return nil
}

// From returns the sender address derived from the signing key.
func (c *Client) From() string {
	return c.from.Hex()
}

// Transfer executes exactly one transfer and returns the transaction hash.
// Failures are surfaced as-is; the adapter never retries.
func (c *Client) Transfer(ctx context.Context, req wallet.TransferRequest) (*wallet.TransferResult, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("未初始化的以太坊适配器")
	}
	if req.Amount <= 0 {
		return nil, errors.New("转账金额必须为正数")
	}
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("非法的收款地址: %s", req.PayTo)
	}
	to := common.HexToAddress(req.PayTo)

	// 同一个适配器串行发交易，避免 nonce 竞争。
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取燃料价格失败: %w", err)
	}

	var tx *coretypes.Transaction
	if c.hasAsset {
		data, err := c.abi.Pack("transfer", to, big.NewInt(req.Amount))
		if err != nil {
			return nil, fmt.Errorf("编码转账调用失败: %w", err)
		}
		gasLimit, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
			From: c.from,
			To:   &c.asset,
			Data: data,
		})
		if err != nil {
			return nil, fmt.Errorf("估算燃料失败: %w", err)
		}
		tx = coretypes.NewTransaction(nonce, c.asset, big.NewInt(0), gasLimit, gasPrice, data)
	} else {
		tx = coretypes.NewTransaction(nonce, to, big.NewInt(req.Amount), nativeTransferGas, gasPrice, nil)
	}

	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("广播交易失败: %w", err)
	}

	return &wallet.TransferResult{
		TxRef:   signed.Hash().Hex(),
		Network: req.Network,
		Amount:  req.Amount,
	}, nil
}

// Balance reports the account balance in base units. When an asset contract
// is configured the ERC-20 balance is returned, otherwise the native balance.
func (c *Client) Balance(ctx context.Context, account, asset string) (int64, error) {
	if c == nil || c.backend == nil {
		return 0, errors.New("未初始化的以太坊适配器")
	}
	addr := c.from
	if strings.TrimSpace(account) != "" {
		if !common.IsHexAddress(account) {
			return 0, fmt.Errorf("非法的账户地址: %s", account)
		}
		addr = common.HexToAddress(account)
	}

	if c.hasAsset {
		data, err := c.abi.Pack("balanceOf", addr)
		if err != nil {
			return 0, fmt.Errorf("编码余额查询失败: %w", err)
		}
		raw, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &c.asset, Data: data}, nil)
		if err != nil {
			return 0, fmt.Errorf("查询资产余额失败: %w", err)
		}
		values, err := c.abi.Unpack("balanceOf", raw)
		if err != nil {
			return 0, fmt.Errorf("解析余额返回值失败: %w", err)
		}
		if len(values) != 1 {
			return 0, errors.New("余额返回值数量异常")
		}
		balance, ok := values[0].(*big.Int)
		if !ok {
			return 0, errors.New("余额返回值类型异常")
		}
		return balance.Int64(), nil
	}

	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance.Int64(), nil
}

// Close releases network connections held by the adapter.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.backend = nil
}

var _ wallet.Adapter = (*Client)(nil)
