package ethereum

import (
	"context"
	"math/big"
	"testing"

	"AgentPay-Chain/internal/wallet"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// stubBackend records the transactions the adapter broadcasts.
type stubBackend struct {
	nonce    uint64
	gasPrice *big.Int
	balance  *big.Int
	sent     []*coretypes.Transaction
	callRet  []byte
}

func (s *stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return s.nonce, nil
}

func (s *stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if s.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return s.gasPrice, nil
}

func (s *stubBackend) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (s *stubBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	s.sent = append(s.sent, tx)
	return nil
}

func (s *stubBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if s.balance == nil {
		return big.NewInt(0), nil
	}
	return s.balance, nil
}

func (s *stubBackend) CallContract(context.Context, gethcore.CallMsg, *big.Int) ([]byte, error) {
	return s.callRet, nil
}

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return common.Bytes2Hex(crypto.FromECDSA(key))
}

func TestTransferNative(t *testing.T) {
	be := &stubBackend{nonce: 7}
	client, err := NewClientWithBackend("testnet", big.NewInt(1337), testKeyHex(t), "", be)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Transfer(context.Background(), wallet.TransferRequest{
		Network: "testnet",
		PayTo:   "0x00000000000000000000000000000000000000aa",
		Amount:  5_000_000,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.TxRef == "" {
		t.Fatal("expected non-empty tx ref")
	}
	if len(be.sent) != 1 {
		t.Fatalf("expected a single broadcast, got %d", len(be.sent))
	}
	tx := be.sent[0]
	if tx.Nonce() != 7 {
		t.Fatalf("unexpected nonce: %d", tx.Nonce())
	}
	if tx.Value().Int64() != 5_000_000 {
		t.Fatalf("unexpected value: %s", tx.Value())
	}
	if tx.Gas() != nativeTransferGas {
		t.Fatalf("unexpected gas limit: %d", tx.Gas())
	}
}

func TestTransferERC20(t *testing.T) {
	be := &stubBackend{}
	contract := "0x00000000000000000000000000000000000000cc"
	client, err := NewClientWithBackend("testnet", big.NewInt(1337), testKeyHex(t), contract, be)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Transfer(context.Background(), wallet.TransferRequest{
		Network: "testnet",
		Asset:   "USDC",
		PayTo:   "0x00000000000000000000000000000000000000aa",
		Amount:  1_000_000,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Amount != 1_000_000 {
		t.Fatalf("unexpected amount: %d", result.Amount)
	}
	tx := be.sent[0]
	if tx.To() == nil || tx.To().Hex() != common.HexToAddress(contract).Hex() {
		t.Fatalf("expected call against asset contract, got %v", tx.To())
	}
	if tx.Value().Sign() != 0 {
		t.Fatalf("token transfer must not carry native value: %s", tx.Value())
	}
	if len(tx.Data()) == 0 {
		t.Fatal("expected transfer calldata")
	}
}

func TestTransferRejectsBadRecipient(t *testing.T) {
	client, err := NewClientWithBackend("testnet", big.NewInt(1337), testKeyHex(t), "", &stubBackend{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Transfer(context.Background(), wallet.TransferRequest{PayTo: "not-an-address", Amount: 1}); err == nil {
		t.Fatal("expected error for malformed recipient")
	}
	if _, err := client.Transfer(context.Background(), wallet.TransferRequest{PayTo: "0x00000000000000000000000000000000000000aa"}); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}

func TestBalanceNative(t *testing.T) {
	be := &stubBackend{balance: big.NewInt(42_000_000)}
	client, err := NewClientWithBackend("testnet", big.NewInt(1337), testKeyHex(t), "", be)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	balance, err := client.Balance(context.Background(), "", "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 42_000_000 {
		t.Fatalf("unexpected balance: %d", balance)
	}
}
