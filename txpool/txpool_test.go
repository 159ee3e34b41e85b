package txpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"posnode/config"
	"posnode/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads map[types.Topic][][]byte
}

func (b *recordingBroadcaster) Broadcast(topic types.Topic, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.payloads == nil {
		b.payloads = make(map[types.Topic][][]byte)
	}
	b.payloads[topic] = append(b.payloads[topic], payload)
}

func (b *recordingBroadcaster) count(topic types.Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads[topic])
}

// verdicts 按交易ID返回预设结果，默认 Succeed
type verdicts map[types.Hash]types.VerifyResult

func (v verdicts) VerifyTransaction(tx *types.Transaction) types.VerifyResult {
	if r, ok := v[tx.TxnId]; ok {
		return r
	}
	return types.Succeed
}

func testTx(seed string, priority uint64) *types.Transaction {
	tx := &types.Transaction{
		Ver: 1,
		Vin: []types.Vin{{KeyImage: []byte("ki-" + seed), Offsets: [][]byte{[]byte("o-" + seed)}}},
		Vout: []types.Vout{
			{C: []byte("c-" + seed), P: []byte("p-" + seed), T: types.CoinPayment},
		},
		Rct:   []types.RCT{{I: []byte("ki-" + seed)}},
		Vtime: &types.Vtime{I: priority},
	}
	tx.TxnId = tx.ComputeID()
	return tx
}

func newTestPool(t *testing.T, v verdicts) (*TxPool, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	pool, err := NewTxPoolWithConfig(v, b, nil, config.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop() })
	return pool, b
}

func TestSubmitDeduplicates(t *testing.T) {
	pool, b := newTestPool(t, nil)
	tx := testTx("a", 10)

	assert.Equal(t, types.Succeed, pool.Submit(tx))
	assert.Equal(t, types.Succeed, pool.Submit(tx))
	assert.Equal(t, 1, pool.Count())

	require.Eventually(t, func() bool { return b.count(types.TopicTx) == 1 }, time.Second, 10*time.Millisecond)
	// 再等一会，确认没有第二次广播
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.count(types.TopicTx))

	got, ok := pool.Lookup(tx.TxnId)
	require.True(t, ok)
	assert.Equal(t, tx, got)
}

func TestSubmitRejects(t *testing.T) {
	pool, _ := newTestPool(t, nil)

	stake := &types.Transaction{Vout: []types.Vout{{C: []byte{1}, P: []byte{1}, T: types.CoinCoinstake}}}
	stake.TxnId = stake.ComputeID()
	assert.Equal(t, types.Invalid, pool.Submit(stake))
	assert.Equal(t, types.Invalid, pool.Submit(nil))

	bad := testTx("b", 1)
	bad.TxnId = types.Sum([]byte("wrong"))
	assert.Equal(t, types.Invalid, pool.Submit(bad))
	assert.Equal(t, 0, pool.Count())
}

func TestSubmitRejectsRewardTransactions(t *testing.T) {
	pool, b := newTestPool(t, nil)

	// 客户端自己构造的 coinbase 输出，金额随意
	mint := &types.Transaction{Ver: 1, Vout: []types.Vout{
		{A: 1_000_000_000_000_000_000, C: []byte{1}, P: []byte{1}, T: types.CoinCoinbase},
	}}
	mint.TxnId = mint.ComputeID()
	assert.Equal(t, types.Invalid, pool.Submit(mint))

	// 普通支付里夹带 coinbase 输出
	mixed := testTx("mixed", 5)
	mixed.Vout = append(mixed.Vout, types.Vout{A: 10, C: []byte{2}, P: []byte{2}, T: types.CoinCoinbase})
	mixed.TxnId = mixed.ComputeID()
	assert.Equal(t, types.Invalid, pool.Submit(mixed))

	assert.Equal(t, 0, pool.Count())
	assert.Empty(t, pool.DrainVerified(context.Background(), 10))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, b.count(types.TopicTx))
}

func TestDrainVerifiedPriorityAndRemoval(t *testing.T) {
	low, mid, high, bad := testTx("low", 10), testTx("mid", 20), testTx("high", 30), testTx("bad", 40)
	pool, _ := newTestPool(t, verdicts{bad.TxnId: types.UnableToVerify})

	for _, tx := range []*types.Transaction{low, mid, high, bad} {
		require.Equal(t, types.Succeed, pool.Submit(tx))
	}

	got := pool.DrainVerified(context.Background(), 3)
	require.Len(t, got, 2)
	assert.Equal(t, high.TxnId, got[0].TxnId)
	assert.Equal(t, mid.TxnId, got[1].TxnId)

	// bad 也被取出丢弃，只剩 low
	assert.Equal(t, 1, pool.Count())
	_, ok := pool.Lookup(low.TxnId)
	assert.True(t, ok)

	// 已见过的交易不会重新进池
	assert.Equal(t, types.Succeed, pool.Submit(bad))
	assert.Equal(t, 1, pool.Count())
}

func TestRemoveAndSnapshot(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	a, b := testTx("a", 1), testTx("b", 1)
	pool.Submit(a)
	pool.Submit(b)

	assert.Len(t, pool.Snapshot(), 2)
	pool.Remove(a.TxnId)
	snap := pool.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, b.TxnId, snap[0].TxnId)
}

func TestPurgeCoinstake(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	pool.Submit(testTx("a", 1))

	// 绕过 Submit 直接放入
	stake := &types.Transaction{Vout: []types.Vout{{T: types.CoinCoinstake}}}
	stake.TxnId = stake.ComputeID()
	pool.pendingTxCache.Add(stake.TxnId, &pendingTx{tx: stake, added: time.Now()})
	mint := &types.Transaction{Vout: []types.Vout{{A: 5, T: types.CoinCoinbase}}}
	mint.TxnId = mint.ComputeID()
	pool.pendingTxCache.Add(mint.TxnId, &pendingTx{tx: mint, added: time.Now()})

	assert.Equal(t, 2, pool.PurgeCoinstake())
	assert.Equal(t, 1, pool.Count())
}

func TestSweepExpires(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	base := time.Now()
	pool.now = func() time.Time { return base }
	old := testTx("old", 1)
	pool.Submit(old)

	pool.now = func() time.Time { return base.Add(50 * time.Minute) }
	fresh := testTx("fresh", 1)
	pool.Submit(fresh)

	assert.Equal(t, 1, pool.Sweep(base.Add(61*time.Minute)))
	_, ok := pool.Lookup(fresh.TxnId)
	assert.True(t, ok)

	// 去重记录也过期，可以再次提交
	assert.Equal(t, types.Succeed, pool.Submit(old))
	assert.Equal(t, 2, pool.Count())
}
