package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PaymentRecord 表示一次支付结算的落库结构。
type PaymentRecord struct {
	Resource  string `json:"resource"`
	Network   string `json:"network"`
	Asset     string `json:"asset"`
	PayTo     string `json:"pay_to"`
	Amount    int64  `json:"amount"`
	TxRef     string `json:"tx_ref"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// PaymentRepository 抽象支付历史的持久化接口。
type PaymentRepository interface {
	Save(ctx context.Context, record PaymentRecord) error
	ListLatest(ctx context.Context, limit int) ([]PaymentRecord, error)
}

// ErrUnsupportedDriver 表示配置了未知的存储驱动。
var ErrUnsupportedDriver = errors.New("暂不支持的存储驱动")

// MemoryPaymentRepository 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []PaymentRecord
}

// NewMemoryPaymentRepository 创建一个内存支付仓库。
func NewMemoryPaymentRepository(dataDir string) (*MemoryPaymentRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "payments.log")
	repo := &MemoryPaymentRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录支付结果。
func (m *MemoryPaymentRepository) Save(_ context.Context, record PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开支付日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化支付记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入支付日志失败: %w", err)
	}

	m.records = append([]PaymentRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回最近的支付记录，按时间倒序排列。
func (m *MemoryPaymentRepository) ListLatest(_ context.Context, limit int) ([]PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]PaymentRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *MemoryPaymentRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取支付日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []PaymentRecord
	for scanner.Scan() {
		var record PaymentRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]PaymentRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析支付日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLPaymentRepository 使用真实的 MySQL 数据库存储支付信息。
type SQLPaymentRepository struct {
	db *sql.DB
}

// NewSQLPaymentRepository 创建连接池并执行嵌入的迁移脚本。
func NewSQLPaymentRepository(ctx context.Context, cfg Config) (*SQLPaymentRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := &SQLPaymentRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Save 将支付记录写入 MySQL。
func (s *SQLPaymentRepository) Save(ctx context.Context, record PaymentRecord) error {
	const stmt = `INSERT INTO payments
        (resource, network, asset, pay_to, amount, tx_ref, status, reason, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.Resource,
		record.Network,
		record.Asset,
		record.PayTo,
		record.Amount,
		record.TxRef,
		record.Status,
		record.Reason,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条支付记录。
func (s *SQLPaymentRepository) ListLatest(ctx context.Context, limit int) ([]PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT resource, network, asset, pay_to, amount, tx_ref, status, reason, created_at
        FROM payments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}
	defer rows.Close()

	var records []PaymentRecord
	for rows.Next() {
		var record PaymentRecord
		if err := rows.Scan(&record.Resource, &record.Network, &record.Asset, &record.PayTo, &record.Amount, &record.TxRef, &record.Status, &record.Reason, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析支付记录失败: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历支付记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLPaymentRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ PaymentRepository = (*MemoryPaymentRepository)(nil)
var _ PaymentRepository = (*SQLPaymentRepository)(nil)
