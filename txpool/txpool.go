package txpool

import (
	"bytes"
	"context"
	"fmt"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
	"posnode/validator"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// pendingTx 池中的交易及进入时间
type pendingTx struct {
	tx    *types.Transaction
	added time.Time
}

// TxPool 交易池结构体
type TxPool struct {
	// 缓存
	mu             sync.RWMutex
	Logger         logs.Logger
	pendingTxCache *lru.Cache // id -> *pendingTx
	seenTxCache    *lru.Cache // id -> time.Time，去重用，出池后仍保留

	// 内部队列管理（广播 + 定时清理）
	Queue       *txPoolQueue
	verifier    interfaces.TxVerifier
	broadcaster interfaces.Broadcaster
	stats       *stats.Stats

	// 控制
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	cfg      *config.Config
	now      func() time.Time
}

// NewTxPool 创建新的TxPool实例
func NewTxPool(verifier interfaces.TxVerifier, broadcaster interfaces.Broadcaster, logger logs.Logger) (*TxPool, error) {
	return NewTxPoolWithConfig(verifier, broadcaster, logger, nil, nil)
}

// NewTxPoolWithConfig creates a TxPool with caller-provided config.
func NewTxPoolWithConfig(verifier interfaces.TxVerifier, broadcaster interfaces.Broadcaster, logger logs.Logger, cfg *config.Config, st *stats.Stats) (*TxPool, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("txpool", 0)
	}
	pendingTxCache, err := lru.New(cfg.TxPool.PendingTxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("pending cache: %w", err)
	}
	seenTxCache, err := lru.New(cfg.TxPool.SeenTxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}

	tp := &TxPool{
		Logger:         logger,
		pendingTxCache: pendingTxCache,
		seenTxCache:    seenTxCache,
		verifier:       verifier,
		broadcaster:    broadcaster,
		stats:          st,
		stopChan:       make(chan struct{}),
		cfg:            cfg,
		now:            time.Now,
	}
	tp.Queue = newTxPoolQueue(tp, cfg.TxPool.MessageQueueSize)
	return tp, nil
}

// Start 启动交易池
func (tp *TxPool) Start() error {
	tp.wg.Add(1)
	go tp.Queue.runLoop(tp.cfg.TxPool.SweepInterval)
	tp.Logger.Info("[TxPool] Started")
	return nil
}

// Stop 停止交易池，等待队列里剩余的广播发完
func (tp *TxPool) Stop() error {
	tp.stopOnce.Do(func() {
		close(tp.stopChan)
	})
	tp.wg.Wait()
	tp.Logger.Info("[TxPool] Stopped")
	return nil
}

// Submit 接收新交易。重复的交易视为已接受，不会再次广播。
// 含 coinbase/coinstake 输出的奖励交易只能由出块方放进区块
func (tp *TxPool) Submit(tx *types.Transaction) types.VerifyResult {
	if tx == nil || tx.IsCoinbase() {
		return types.Invalid
	}
	if r := validator.VerifyStructure(tx); r != types.Succeed {
		tp.Logger.Debug("[TxPool] rejected malformed tx %s: %s", tx.TxnId.Short(), r)
		return r
	}

	now := tp.now()
	tp.mu.Lock()
	if _, seen := tp.seenTxCache.Get(tx.TxnId); seen {
		tp.mu.Unlock()
		return types.Succeed
	}
	tp.seenTxCache.Add(tx.TxnId, now)
	tp.pendingTxCache.Add(tx.TxnId, &pendingTx{tx: tx, added: now})
	size := tp.pendingTxCache.Len()
	tp.mu.Unlock()

	tp.stats.SetTxPoolSize(size)
	tp.Queue.enqueueBroadcast(tx)
	tp.Logger.Verbose("[TxPool] accepted tx %s priority=%d", tx.TxnId.Short(), tx.Priority())
	return types.Succeed
}

// Lookup 按ID查找待打包交易
func (tp *TxPool) Lookup(id types.Hash) (*types.Transaction, bool) {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	if v, ok := tp.pendingTxCache.Peek(id); ok {
		return v.(*pendingTx).tx, true
	}
	return nil, false
}

// Snapshot 当前所有待打包交易，按ID排序
func (tp *TxPool) Snapshot() []*types.Transaction {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.sortedUnlocked(func(a, b *types.Transaction) bool {
		return bytes.Compare(a.TxnId[:], b.TxnId[:]) < 0
	})
}

func (tp *TxPool) sortedUnlocked(less func(a, b *types.Transaction) bool) []*types.Transaction {
	result := make([]*types.Transaction, 0, tp.pendingTxCache.Len())
	for _, k := range tp.pendingTxCache.Keys() {
		if v, ok := tp.pendingTxCache.Peek(k); ok {
			result = append(result, v.(*pendingTx).tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

// Count 待打包交易数
func (tp *TxPool) Count() int {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.pendingTxCache.Len()
}

// DrainVerified 取出至多 maxCount 笔交易（时间锁迭代次数高者优先）逐笔完整校验，
// 只返回校验通过的。被取出的交易无论结果都离开交易池
func (tp *TxPool) DrainVerified(ctx context.Context, maxCount int) []*types.Transaction {
	if maxCount <= 0 {
		return nil
	}
	tp.mu.Lock()
	candidates := tp.sortedUnlocked(func(a, b *types.Transaction) bool {
		if a.Priority() != b.Priority() {
			return a.Priority() > b.Priority()
		}
		return bytes.Compare(a.TxnId[:], b.TxnId[:]) < 0
	})
	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	for _, tx := range candidates {
		tp.pendingTxCache.Remove(tx.TxnId)
	}
	size := tp.pendingTxCache.Len()
	tp.mu.Unlock()
	tp.stats.SetTxPoolSize(size)

	verified := make([]*types.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if ctx.Err() != nil {
			break
		}
		if r := tp.verifier.VerifyTransaction(tx); r != types.Succeed {
			tp.Logger.Debug("[TxPool] dropped tx %s: %s", tx.TxnId.Short(), r)
			continue
		}
		verified = append(verified, tx)
	}
	return verified
}

// Remove 区块上链后移除已打包的交易
func (tp *TxPool) Remove(ids ...types.Hash) {
	tp.mu.Lock()
	for _, id := range ids {
		tp.pendingTxCache.Remove(id)
	}
	size := tp.pendingTxCache.Len()
	tp.mu.Unlock()
	tp.stats.SetTxPoolSize(size)
}

// PurgeCoinstake 清除池中的奖励交易。正常情况下 Submit 已经拒绝了它们
func (tp *TxPool) PurgeCoinstake() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	purged := 0
	for _, k := range tp.pendingTxCache.Keys() {
		v, ok := tp.pendingTxCache.Peek(k)
		if ok && v.(*pendingTx).tx.IsCoinbase() {
			tp.pendingTxCache.Remove(k)
			purged++
		}
	}
	return purged
}

// Sweep 清理超过保留时长的交易和去重记录，返回清掉的待打包交易数
func (tp *TxPool) Sweep(now time.Time) int {
	cutoff := now.Add(-tp.cfg.TxPool.Retention)
	tp.mu.Lock()
	removed := 0
	for _, k := range tp.pendingTxCache.Keys() {
		v, ok := tp.pendingTxCache.Peek(k)
		if ok && v.(*pendingTx).added.Before(cutoff) {
			tp.pendingTxCache.Remove(k)
			removed++
		}
	}
	for _, k := range tp.seenTxCache.Keys() {
		v, ok := tp.seenTxCache.Peek(k)
		if ok && v.(time.Time).Before(cutoff) {
			tp.seenTxCache.Remove(k)
		}
	}
	size := tp.pendingTxCache.Len()
	tp.mu.Unlock()

	tp.stats.SetTxPoolSize(size)
	if removed > 0 {
		tp.Logger.Info("[TxPool] swept %d expired txs", removed)
	}
	return removed
}

// GetChannelStats 返回 TxPool 的 channel 状态
func (tp *TxPool) GetChannelStats() []stats.ChannelStat {
	if tp.Queue != nil {
		return []stats.ChannelStat{
			stats.NewChannelStat("MsgChan", "TxPool", len(tp.Queue.MsgChan), cap(tp.Queue.MsgChan)),
		}
	}
	return nil
}

func (tp *TxPool) QueueDepth() (int, int) {
	if tp == nil || tp.Queue == nil {
		return 0, 0
	}
	return len(tp.Queue.MsgChan), cap(tp.Queue.MsgChan)
}
