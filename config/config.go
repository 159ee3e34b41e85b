// config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	Node      NodeConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Network   NetworkConfig
	TxPool    TxPoolConfig
	Sender    SenderConfig
	Staking   StakingConfig
	Consensus ConsensusConfig
}

// NodeConfig 节点身份与运行参数
type NodeConfig struct {
	Name          string // "node-0"
	DataDir       string // "./data"
	KeyHex        string // secp256k1 私钥（hex），为空时随机生成
	RewardAddress string // 为空时由节点公钥派生 bech32 地址
	LogLevel      string // "info"
}

// ServerConfig HTTP/3服务器配置
type ServerConfig struct {
	ListenAddr string // ":6000"

	// QUIC配置
	QUICKeepAlivePeriod time.Duration // 10 * time.Second
	QUICMaxIdleTimeout  time.Duration // 5 * time.Minute

	// HTTP配置
	HTTPTimeout        time.Duration // 30 * time.Second
	MaxRequestBodySize int64         // 10 << 20 (10MB)

	// 证书配置
	CertValidityDays int // 365

	MetricsEnabled       bool          // true
	ChannelStatsInterval time.Duration // 10 * time.Second
	RateLimit            int           // 每个 IP 每秒请求数，0 表示不限
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// BadgerDB配置
	ValueLogFileSize int64 // 64 << 20 (64MB)
	InMemory         bool  // 测试用

	// 写队列配置
	MaxBatchSize  int           // 1000
	FlushInterval time.Duration // 500 * time.Millisecond
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Seeds              []string      // 初始对端地址
	AdvertiseAddr      string        // 对外公布的 host:port，为空时不主动宣告
	BroadcastPeerCount int           // 0 表示全部
	ConnectionTimeout  time.Duration // 5 * time.Second
	PeerStaleAfter     time.Duration // 10 * time.Minute
	AnnounceInterval   time.Duration // 30 * time.Second
}

// TxPoolConfig 交易池配置
type TxPoolConfig struct {
	// 缓存大小
	PendingTxCacheSize int // 100000
	SeenTxCacheSize    int // 200000

	// 队列配置
	MessageQueueSize int // 10000

	// 交易处理
	MaxTxsPerBlock int // 2500

	// 时间配置
	Retention     time.Duration // 1 * time.Hour
	SweepInterval time.Duration // 1 * time.Hour
}

// SenderConfig 发送器配置
type SenderConfig struct {
	// 队列配置
	WorkerCount   int // 16
	QueueCapacity int // 10000

	// 重试配置
	MaxRetries     uint64        // 3
	BaseRetryDelay time.Duration // 200 * time.Millisecond
	MaxRetryDelay  time.Duration // 5 * time.Second
	RequestTimeout time.Duration // 5 * time.Second
}

// StakingConfig 出块循环配置
type StakingConfig struct {
	Enabled         bool          // true
	Interval        time.Duration // 5 * time.Second
	SolutionTimeout time.Duration // 10 * time.Second
	VdfTimeout      time.Duration // 60 * time.Second
	MinLockDelay    uint64        // 交易时间锁最少 VDF 迭代次数
}

// ConsensusConfig 轮次收集器配置
type ConsensusConfig struct {
	DebounceDelay   time.Duration // 5 * time.Second
	SeenRetention   time.Duration // 1 * time.Hour
	SweepInterval   time.Duration // 1 * time.Hour
	SeenCacheSize   int           // 100000
	SafeguardWindow uint64        // 147
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Name:     "node-0",
			DataDir:  "./data",
			LogLevel: "info",
		},
		Server: ServerConfig{
			ListenAddr:           ":6000",
			QUICKeepAlivePeriod:  10 * time.Second,
			QUICMaxIdleTimeout:   5 * time.Minute,
			HTTPTimeout:          30 * time.Second,
			MaxRequestBodySize:   10 << 20,
			CertValidityDays:     365,
			MetricsEnabled:       true,
			ChannelStatsInterval: 10 * time.Second,
			RateLimit:            2000,
		},
		Database: DatabaseConfig{
			ValueLogFileSize: 64 << 20,
			MaxBatchSize:     1000,
			FlushInterval:    500 * time.Millisecond,
		},
		Network: NetworkConfig{
			ConnectionTimeout: 5 * time.Second,
			PeerStaleAfter:    10 * time.Minute,
			AnnounceInterval:  30 * time.Second,
		},
		TxPool: TxPoolConfig{
			PendingTxCacheSize: 100000,
			SeenTxCacheSize:    200000,
			MessageQueueSize:   10000,
			MaxTxsPerBlock:     2500,
			Retention:          time.Hour,
			SweepInterval:      time.Hour,
		},
		Sender: SenderConfig{
			WorkerCount:    16,
			QueueCapacity:  10000,
			MaxRetries:     3,
			BaseRetryDelay: 200 * time.Millisecond,
			MaxRetryDelay:  5 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Staking: StakingConfig{
			Enabled:         true,
			Interval:        5 * time.Second,
			SolutionTimeout: 10 * time.Second,
			VdfTimeout:      60 * time.Second,
			MinLockDelay:    1000,
		},
		Consensus: ConsensusConfig{
			DebounceDelay:   5 * time.Second,
			SeenRetention:   time.Hour,
			SweepInterval:   time.Hour,
			SeenCacheSize:   100000,
			SafeguardWindow: 147,
		},
	}
}

// LoadFromFile 从 YAML/JSON/TOML 文件加载配置，未出现的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POSNODE")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c.TxPool.MaxTxsPerBlock <= 0 {
		return fmt.Errorf("MaxTxsPerBlock must be positive")
	}
	if c.TxPool.PendingTxCacheSize <= 0 || c.TxPool.SeenTxCacheSize <= 0 {
		return fmt.Errorf("tx pool cache sizes must be positive")
	}
	if c.TxPool.Retention <= 0 || c.TxPool.SweepInterval <= 0 {
		return fmt.Errorf("tx pool retention and sweep interval must be positive")
	}
	if c.Staking.Interval <= 0 {
		return fmt.Errorf("staking interval must be positive")
	}
	if c.Staking.SolutionTimeout <= 0 || c.Staking.VdfTimeout <= 0 {
		return fmt.Errorf("staking timeouts must be positive")
	}
	if c.Consensus.DebounceDelay < 0 {
		return fmt.Errorf("DebounceDelay must not be negative")
	}
	if c.Consensus.SeenCacheSize <= 0 {
		return fmt.Errorf("SeenCacheSize must be positive")
	}
	if c.Consensus.SafeguardWindow == 0 {
		return fmt.Errorf("SafeguardWindow must be positive")
	}
	if c.Network.AnnounceInterval <= 0 || c.Network.PeerStaleAfter <= 0 {
		return fmt.Errorf("announce interval and peer staleness must be positive")
	}
	if c.Sender.WorkerCount <= 0 || c.Sender.QueueCapacity <= 0 {
		return fmt.Errorf("sender worker count and queue capacity must be positive")
	}
	return nil
}
