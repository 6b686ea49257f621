package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了 AgentPay 在启动阶段需要加载的核心配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Wallet        WalletConfig        `json:"wallet"`
	Policy        PolicyConfig        `json:"policy"`
	Resource      ResourceConfig      `json:"resource"`
	Storage       StorageConfig       `json:"storage"`
	ScheduleQueue ScheduleQueueConfig `json:"schedule_queue"`
	Trading       TradingConfig       `json:"trading"`
	Logging       LoggingConfig       `json:"logging"`
	Runtime       RuntimeConfig       `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// WalletConfig 描述钱包身份与链上网络定义。
// 私钥优先取 private_key，为空时回退到 private_key_env 指定的环境变量。
type WalletConfig struct {
	Networks       string `json:"networks"`
	DefaultNetwork string `json:"default_network"`
	Address        string `json:"address"`
	Role           string `json:"role"`
	PrivateKey     string `json:"private_key,omitempty"`
	PrivateKeyEnv  string `json:"private_key_env"`
}

// PolicyConfig 约束智能体的自动支出，金额一律为展示单位。
type PolicyConfig struct {
	MaxAutoApprove   int64    `json:"max_auto_approve"`
	DailyBudget      int64    `json:"daily_budget"`
	AllowedResources []string `json:"allowed_resources,omitempty"`
}

// ResourceConfig 描述资源方服务的访问入口。
type ResourceConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回资源访问的超时时间。
func (r ResourceConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// StorageConfig 统一描述支付历史的持久化后端。
type StorageConfig struct {
	PaymentStore PaymentStoreConfig `json:"payment_store"`
}

// PaymentStoreConfig 默认提供内存实现，可切换到真正的 MySQL。
type PaymentStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// ScheduleQueueConfig 描述计划支付触发队列的驱动与参数。
type ScheduleQueueConfig struct {
	Driver      string              `json:"driver"`
	Worker      int                 `json:"worker"`
	MaxAttempts int                 `json:"max_attempts"`
	Redis       RedisQueueConfig    `json:"redis"`
	RabbitMQ    RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// TradingConfig 控制交易门控策略。
type TradingConfig struct {
	Strategy string `json:"strategy"`
}

// LoggingConfig 控制结构化日志与审计日志的输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths,omitempty"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Wallet.Networks == "" {
		c.Wallet.Networks = filepath.Join(baseDir, "networks.yaml")
	} else if !filepath.IsAbs(c.Wallet.Networks) {
		c.Wallet.Networks = filepath.Join(baseDir, c.Wallet.Networks)
	}
	if c.Wallet.Role == "" {
		c.Wallet.Role = "payer"
	}
	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "AGENTPAY_PRIVATE_KEY"
	}

	if c.Policy.MaxAutoApprove <= 0 {
		c.Policy.MaxAutoApprove = 1
	}

	if c.Storage.PaymentStore.Driver == "" {
		c.Storage.PaymentStore.Driver = "memory"
	}

	if c.ScheduleQueue.Driver == "" {
		c.ScheduleQueue.Driver = "memory"
	}
	if c.ScheduleQueue.Worker <= 0 {
		c.ScheduleQueue.Worker = 1
	}
	if c.ScheduleQueue.MaxAttempts <= 0 {
		c.ScheduleQueue.MaxAttempts = 3
	}

	if c.Trading.Strategy == "" {
		c.Trading.Strategy = "conservative"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
