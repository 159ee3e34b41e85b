package consensus

import (
	"context"
	"testing"
	"time"

	"posnode/interfaces"
	"posnode/types"
	"posnode/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteGraphIsVouchedOnce(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	remote := newKey(t)
	block := candidateBlock(t, 3, 30)

	g := signedGraph(t, remote, block)
	require.Equal(t, types.Succeed, tc.handleGraph(g))
	assert.Equal(t, types.AlreadyExists, tc.handleGraph(g))

	sent := tc.broadcaster.graphs(t)
	require.Len(t, sent, 1)
	copied := sent[0]
	assert.Equal(t, tc.key.NodeID(), copied.Block.Node)
	assert.Equal(t, block.Hash, copied.Block.Hash)
	require.Len(t, copied.Deps, 1)
	assert.Equal(t, remote.NodeID(), copied.Deps[0].Block.Node)

	// 另一个节点转签的同一区块：接收，但本节点不再背书
	other := newKey(t)
	g2 := signedGraph(t, other, block)
	require.Equal(t, types.Succeed, tc.handleGraph(g2))
	assert.Len(t, tc.broadcaster.graphs(t), 1)

	stored, err := tc.store.GetBlockGraphs(1)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestHandleGraphRejects(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	remote := newKey(t)

	// 签名被篡改
	g := signedGraph(t, remote, candidateBlock(t, 1, 1))
	g.Signature[len(g.Signature)-1] ^= 0x01
	assert.Equal(t, types.UnableToVerify, tc.handleGraph(g))

	// 冒充别的节点
	g = signedGraph(t, remote, candidateBlock(t, 2, 1))
	g.Block.Node = types.NodeID(42)
	msg := g.SigningHash()
	g.Signature, g.PublicKey, _ = remote.Sign(msg[:])
	assert.Equal(t, types.UnableToVerify, tc.handleGraph(g))

	// 负载与声明的哈希不一致
	g = signedGraph(t, remote, candidateBlock(t, 3, 1))
	g.Block.Hash = types.Sum([]byte("other"))
	msg = g.SigningHash()
	g.Signature, g.PublicKey, _ = remote.Sign(msg[:])
	assert.Equal(t, types.Invalid, tc.handleGraph(g))
}

func TestRoundMonotonicity(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	remote := newKey(t)

	// 轮次 2 不是 height+1
	b1 := candidateBlock(t, 1, 1)
	g := signedGraph(t, remote, b1)
	g.Block.Round = 2
	assert.Equal(t, types.UnableToVerify, tc.handleGraph(g))

	// 本轮第一次见到的图被接收，重复的返回 AlreadyExists
	g = signedGraph(t, remote, b1)
	require.Equal(t, types.Succeed, tc.handleGraph(g))
	assert.Equal(t, types.AlreadyExists, tc.handleGraph(g))

	// 高度 1 上链后轮次 1 已过期
	_, err := tc.store.PutBlock(b1)
	require.NoError(t, err)
	assert.Equal(t, types.UnableToVerify, tc.handleGraph(signedGraph(t, remote, candidateBlock(t, 5, 5))))
}

func TestQuorumGate(t *testing.T) {
	factory := &captureFactory{}
	tc := newTestCollector(t, 3, factory.New) // N = 4，需要 3 个不同出块方

	k1, k2 := newKey(t), newKey(t)
	require.Equal(t, types.Succeed, tc.handleGraph(signedGraph(t, k1, candidateBlock(t, 1, 1))))
	// k1 + 本节点转签 = 2
	tc.evaluateRound(1)
	assert.Equal(t, 0, factory.built())

	require.Equal(t, types.Succeed, tc.handleGraph(signedGraph(t, k2, candidateBlock(t, 2, 2))))
	tc.evaluateRound(1)
	require.Equal(t, 1, factory.built())

	factory.mu.Lock()
	cfg := factory.configs[0]
	added := len(factory.added)
	factory.mu.Unlock()
	assert.Equal(t, interfaces.OrdererConfig{Round: 1, LastRound: 0, NodeCount: 4, Quorum: 3, Self: tc.key.NodeID()}, cfg)
	assert.Equal(t, 4, added)

	// 交给排序器后缓冲被清空
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.buffer[1])
	tc.rounds.mu.Unlock()

	// 排序器已建好，迟到的图直接送进去，不再重建
	k3 := newKey(t)
	require.Equal(t, types.Succeed, tc.handleGraph(signedGraph(t, k3, candidateBlock(t, 3, 3))))
	tc.evaluateRound(1)
	assert.Equal(t, 1, factory.built())
	factory.mu.Lock()
	assert.Len(t, factory.added, 6)
	factory.mu.Unlock()
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.buffer[1])
	tc.rounds.mu.Unlock()
}

func TestDeliveryCommitsWinner(t *testing.T) {
	tc := newTestCollector(t, 0, (&captureFactory{}).New)
	a, b, c := candidateBlock(t, 5, 10), candidateBlock(t, 4, 10), candidateBlock(t, 9, 10)
	ids := []types.BlockID{}
	for _, blk := range []*types.Block{a, b, c} {
		data, err := types.Marshal(blk)
		require.NoError(t, err)
		ids = append(ids, types.BlockID{Hash: blk.Hash, Round: 1, Data: data})
	}
	// 最小解 b 校验失败，改选 a
	tc.verifier.fail[b.Hash] = types.UnableToVerify

	require.Equal(t, types.Succeed, tc.handleDelivery(interfaces.Interpreted{Round: 1, Blocks: ids}))
	got, err := tc.store.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, got.Hash)

	tc.wallet.mu.Lock()
	assert.Len(t, tc.wallet.notified, len(a.Txs))
	tc.wallet.mu.Unlock()
	tc.pool.mu.Lock()
	assert.Equal(t, a.TxIDs(), tc.pool.ids)
	tc.pool.mu.Unlock()

	// 候选缓存已清空；再次投递同轮返回 AlreadyExists
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.candidates[1])
	tc.rounds.mu.Unlock()
	assert.Equal(t, types.AlreadyExists, tc.handleDelivery(interfaces.Interpreted{Round: 1, Blocks: ids}))
}

func TestPanicInRoundIsRecovered(t *testing.T) {
	factory := &captureFactory{panics: true}
	tc := newTestCollector(t, 0, factory.New)
	require.Equal(t, types.Succeed, tc.handleGraph(signedGraph(t, newKey(t), candidateBlock(t, 1, 1))))

	assert.NotPanics(t, func() { tc.evaluateRound(1) })
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.buffer[1])
	assert.Nil(t, tc.rounds.orderer)
	tc.rounds.mu.Unlock()
}

func TestSweepDropsExpiredSeenEntries(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	g := signedGraph(t, newKey(t), candidateBlock(t, 1, 1))
	require.Equal(t, types.Succeed, tc.handleGraph(g))
	require.True(t, tc.isSeen(g.ID()))

	tc.Sweep(time.Now().Add(30 * time.Minute))
	assert.True(t, tc.isSeen(g.ID()))

	tc.Sweep(time.Now().Add(2 * time.Hour))
	assert.False(t, tc.isSeen(g.ID()))

	// 过去的轮次的缓冲被清掉
	b1 := candidateBlock(t, 2, 2)
	_, err := tc.store.PutBlock(b1)
	require.NoError(t, err)
	tc.Sweep(time.Now())
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.buffer)
	tc.rounds.mu.Unlock()
}

func TestPublishRespectsContext(t *testing.T) {
	tc := newTestCollector(t, 0, (&captureFactory{}).New)
	g := signedGraph(t, newKey(t), candidateBlock(t, 1, 1))

	// 没有工作协程时队列满一个就阻塞
	require.NoError(t, tc.Publish(context.Background(), g))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tc.Publish(ctx, g), context.DeadlineExceeded)
}

func TestNetworkGraphCannotSpeakForLocalNode(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	self := tc.key.NodeID()

	// 网络来的未签名图，署名是本节点
	forged, err := types.NewBlockGraph(self, candidateBlock(t, 1, 1), types.GenesisBlock())
	require.NoError(t, err)
	assert.Equal(t, types.Invalid, tc.handleGraph(forged))
	assert.False(t, tc.isSeen(forged.ID()))

	// 别的密钥签名但署名本节点
	other := newKey(t)
	g := signedGraph(t, other, candidateBlock(t, 2, 1))
	g.Block.Node = self
	msg := g.SigningHash()
	g.Signature, g.PublicKey, _ = other.Sign(msg[:])
	assert.Equal(t, types.AlreadyExists, tc.handleGraph(g))

	// 未签名的远端图
	unsigned, err := types.NewBlockGraph(other.NodeID(), candidateBlock(t, 3, 1), types.GenesisBlock())
	require.NoError(t, err)
	assert.Equal(t, types.Invalid, tc.handleGraph(unsigned))

	assert.Empty(t, tc.broadcaster.graphs(t))
	tc.rounds.mu.Lock()
	assert.Empty(t, tc.rounds.buffer[1])
	tc.rounds.mu.Unlock()

	// 本地来源的图只接受本节点署名
	foreign, err := types.NewBlockGraph(other.NodeID(), candidateBlock(t, 4, 1), types.GenesisBlock())
	require.NoError(t, err)
	assert.Equal(t, types.Invalid, tc.handleLocalGraph(foreign))

	// 由收集器签名后广播
	local, err := types.NewBlockGraph(self, candidateBlock(t, 5, 1), types.GenesisBlock())
	require.NoError(t, err)
	require.Equal(t, types.Succeed, tc.handleLocalGraph(local))
	sent := tc.broadcaster.graphs(t)
	require.Len(t, sent, 1)
	signed := sent[0]
	hash := signed.SigningHash()
	assert.True(t, utils.VerifySignature(signed.Signature, signed.PublicKey, hash[:]))
	assert.Equal(t, self, utils.NodeIDFromPublicKey(signed.PublicKey))
	assert.Equal(t, local.Block.Hash, signed.Block.Hash)
}

func TestOnlyPublishLocalSignsForNode(t *testing.T) {
	tc := newTestCollector(t, 3, (&captureFactory{}).New)
	tc.Start()
	t.Cleanup(tc.Stop)
	self := tc.key.NodeID()
	ctx := context.Background()

	spoofed, err := types.NewBlockGraph(self, candidateBlock(t, 1, 1), types.GenesisBlock())
	require.NoError(t, err)
	require.NoError(t, tc.Publish(ctx, spoofed))

	local, err := types.NewBlockGraph(self, candidateBlock(t, 2, 1), types.GenesisBlock())
	require.NoError(t, err)
	require.NoError(t, tc.PublishLocal(ctx, local))

	require.Eventually(t, func() bool {
		return len(tc.broadcaster.graphs(t)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, local.Block.Hash, tc.broadcaster.graphs(t)[0].Block.Hash)
	assert.ErrorContains(t, tc.PublishLocal(ctx, nil), "nil block graph")
}
