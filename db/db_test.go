package db

import (
	"testing"
	"time"

	"posnode/interfaces"
	"posnode/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewMemoryManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func testBlock(prev *types.Block, txs ...types.Transaction) *types.Block {
	b := &types.Block{
		Height: prev.Height + 1,
		BlockHeader: types.BlockHeader{
			Version:       1,
			PrevBlockHash: prev.Hash,
			Height:        prev.Height + 1,
		},
		NrTx:     len(txs),
		Txs:      txs,
		BlockPos: types.BlockPoS{Bits: 10},
	}
	b.Hash = b.ComputeHash(prev.Hash)
	return b
}

func testTx(seed string) types.Transaction {
	tx := types.Transaction{
		Ver: 1,
		Vin: []types.Vin{{KeyImage: []byte("ki-" + seed)}},
		Vout: []types.Vout{
			{C: []byte("c-" + seed), P: []byte("p-" + seed), T: types.CoinPayment},
		},
	}
	tx.TxnId = tx.ComputeID()
	return tx
}

func TestPutGetBlock(t *testing.T) {
	mgr := newTestManager(t)
	genesis := types.GenesisBlock()

	ok, err := mgr.PutBlock(genesis)
	require.NoError(t, err)
	assert.True(t, ok)

	b1 := testBlock(genesis, testTx("a"))
	ok, err = mgr.PutBlock(b1)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mgr.GetBlock(b1.Hash)
	require.NoError(t, err)
	assert.Equal(t, b1.Hash, got.Hash)

	got, err = mgr.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, b1.Hash, got.Hash)

	count, err := mgr.BlockCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	height, err := mgr.BlockHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	_, err = mgr.GetBlockByHeight(5)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestPutBlockSameHeightIsRejected(t *testing.T) {
	mgr := newTestManager(t)
	genesis := types.GenesisBlock()
	_, err := mgr.PutBlock(genesis)
	require.NoError(t, err)

	a := testBlock(genesis, testTx("a"))
	b := testBlock(genesis, testTx("b"))
	ok, err := mgr.PutBlock(a)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mgr.PutBlock(b)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mgr.GetBlock(b.Hash)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestTransactionIndexes(t *testing.T) {
	mgr := newTestManager(t)
	genesis := types.GenesisBlock()
	_, err := mgr.PutBlock(genesis)
	require.NoError(t, err)

	tx := testTx("x")
	b1 := testBlock(genesis, tx)
	_, err = mgr.PutBlock(b1)
	require.NoError(t, err)

	got, idx, err := mgr.GetTransaction(tx.TxnId)
	require.NoError(t, err)
	assert.Equal(t, tx.TxnId, got.TxnId)
	assert.Equal(t, uint64(1), idx.Height)
	assert.Equal(t, b1.Hash, idx.Block)

	exists, err := mgr.KeyImageExists([]byte("ki-x"))
	require.NoError(t, err)
	assert.True(t, exists)

	out, err := mgr.GetOutput([]byte("c-x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("p-x"), out.P)

	// 删除后索引一并消失
	require.NoError(t, mgr.DeleteBlock(b1.Hash))
	exists, err = mgr.KeyImageExists([]byte("ki-x"))
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = mgr.GetOutput([]byte("c-x"))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, _, err = mgr.GetTransaction(tx.TxnId)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	height, err := mgr.BlockHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)
	count, err := mgr.BlockCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestGetBlocksAndFind(t *testing.T) {
	mgr := newTestManager(t)
	prev := types.GenesisBlock()
	_, err := mgr.PutBlock(prev)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b := testBlock(prev)
		_, err := mgr.PutBlock(b)
		require.NoError(t, err)
		prev = b
	}

	blocks, err := mgr.GetBlocks(2, 3)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(2), blocks[0].Height)
	assert.Equal(t, uint64(4), blocks[2].Height)

	// 超出范围只返回已有部分
	blocks, err = mgr.GetBlocks(4, 10)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	found, err := mgr.FindBlock(func(b *types.Block) bool { return b.Height == 3 })
	require.NoError(t, err)
	assert.Equal(t, uint64(3), found.Height)

	_, err = mgr.FindBlock(func(b *types.Block) bool { return false })
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBlockGraphsByRound(t *testing.T) {
	mgr := newTestManager(t)
	genesis := types.GenesisBlock()
	b1 := testBlock(genesis)

	for _, node := range []types.NodeID{1, 2, 3} {
		g, err := types.NewBlockGraph(node, b1, genesis)
		require.NoError(t, err)
		require.NoError(t, mgr.PutBlockGraph(g))
	}
	graphs, err := mgr.GetBlockGraphs(1)
	require.NoError(t, err)
	assert.Len(t, graphs, 3)

	require.NoError(t, mgr.DeleteBlockGraphs(1))
	graphs, err = mgr.GetBlockGraphs(1)
	require.NoError(t, err)
	assert.Empty(t, graphs)
}

func TestNodeInfoThroughWriteQueue(t *testing.T) {
	mgr := newTestManager(t)
	mgr.InitWriteQueue(10, 50*time.Millisecond)

	require.NoError(t, mgr.SaveNodeInfo(types.Peer{ID: 7, Address: "127.0.0.1:6007", BlockCount: 3}))
	require.NoError(t, mgr.ForceFlush())

	nodes, err := mgr.GetAllNodeInfos()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "127.0.0.1:6007", nodes[0].Address)

	mgr.DeleteNodeInfo(7)
	require.NoError(t, mgr.ForceFlush())
	nodes, err = mgr.GetAllNodeInfos()
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
