package db

import (
	"errors"
	"fmt"
	"os"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/types"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
)

// Manager 封装 BadgerDB 的管理器，实现 interfaces.ChainStore
type Manager struct {
	Db *badger.DB
	mu sync.RWMutex

	// 队列通道，批量写的 goroutine 用它来取写请求（只用于非共识数据，如节点信息）
	writeQueueChan chan WriteTask
	// 强制刷盘通道
	forceFlushChan chan flushRequest
	// 用于通知写队列 goroutine 停止
	stopChan chan struct{}
	stopOnce sync.Once

	maxBatchSize  int           // 累计多少条就写一次
	flushInterval time.Duration // 间隔多久强制写一次
	wg            sync.WaitGroup

	Logger logs.Logger
	cfg    *config.Config
}

var _ interfaces.ChainStore = (*Manager)(nil)

// NewManager 创建一个新的 DBManager 实例
func NewManager(path string, logger logs.Logger) (*Manager, error) {
	return NewManagerWithConfig(path, logger, nil)
}

// NewManagerWithConfig 创建 DBManager，可选注入整份 Config
func NewManagerWithConfig(path string, logger logs.Logger, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("db", 0)
	}
	var opts badger.Options
	if cfg.Database.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// badger v2 不自动创建父目录，需要手动创建
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
		opts.ValueLogFileSize = cfg.Database.ValueLogFileSize
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Manager{
		Db:     db,
		Logger: logger,
		cfg:    cfg,
	}, nil
}

// NewMemoryManager 测试用的内存库
func NewMemoryManager() (*Manager, error) {
	cfg := config.DefaultConfig()
	cfg.Database.InMemory = true
	return NewManagerWithConfig("", logs.NewNodeLogger("db", 0), cfg)
}

// Close 停止写队列并关闭数据库
func (manager *Manager) Close() error {
	manager.stopWriteQueue()
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.Db == nil {
		return nil
	}
	err := manager.Db.Close()
	manager.Db = nil
	return err
}

func (manager *Manager) db() (*badger.DB, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return nil, fmt.Errorf("database is not initialized or closed")
	}
	return manager.Db, nil
}

// Read 读取单个键
func (manager *Manager) Read(key string) ([]byte, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	var val []byte
	err = db.View(func(txn *badger.Txn) error {
		val, err = getValue(txn, key)
		return err
	})
	return val, err
}

func getValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getDecoded(txn *badger.Txn, key string, v interface{}) error {
	val, err := getValue(txn, key)
	if err != nil {
		return err
	}
	return types.Unmarshal(val, v)
}

func setEncoded(txn *badger.Txn, key string, v interface{}) error {
	data, err := types.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// scanPrefix 按前缀遍历，fn 返回 false 时停止
func scanPrefix(txn *badger.Txn, prefix string, reverse bool, fn func(key string, val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	start := []byte(prefix)
	if reverse {
		start = append(start, 0xff)
	}
	for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		cont, err := fn(string(item.KeyCopy(nil)), val)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
