package mysql

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPaymentRepositorySaveAndList(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryPaymentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	now := time.Now().Unix()
	for i, txRef := range []string{"0x01", "0x02", "0x03"} {
		record := PaymentRecord{
			Resource:  "/premium/data",
			Network:   "base",
			Asset:     "USDC",
			Amount:    int64(i+1) * 1_000_000,
			TxRef:     txRef,
			Status:    "confirmed",
			CreatedAt: now + int64(i),
		}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	records, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("unexpected record count: %d", len(records))
	}
	if records[0].TxRef != "0x03" {
		t.Fatalf("expected most recent record first, got %+v", records[0])
	}
}

func TestMemoryPaymentRepositoryReloadsFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryPaymentRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	record := PaymentRecord{Resource: "/r", Network: "base", Amount: 5_000_000, TxRef: "0xaa", Status: "confirmed", CreatedAt: time.Now().Unix()}
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reopened, err := NewMemoryPaymentRepository(dir)
	if err != nil {
		t.Fatalf("failed to reopen repo: %v", err)
	}
	records, err := reopened.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(records) != 1 || records[0].TxRef != "0xaa" {
		t.Fatalf("记录未能从磁盘恢复: %+v", records)
	}
}
