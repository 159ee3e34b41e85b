package consensus

import (
	"testing"
	"time"

	"posnode/interfaces"
	"posnode/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocksWith(solutions, bits []uint64) []*types.Block {
	out := make([]*types.Block, len(solutions))
	for i := range solutions {
		out[i] = &types.Block{
			Hash:     types.Sum([]byte{byte(i)}),
			BlockPos: types.BlockPoS{Solution: solutions[i], Bits: bits[i]},
		}
	}
	return out
}

func TestSelectWinner(t *testing.T) {
	// 三个并列最小，取难度最大
	blocks := blocksWith([]uint64{5, 5, 5}, []uint64{10, 20, 15})
	assert.Equal(t, uint64(20), SelectWinner(blocks).BlockPos.Bits)

	// 没有并列
	blocks = blocksWith([]uint64{5, 7}, []uint64{1, 99})
	assert.Equal(t, uint64(5), SelectWinner(blocks).BlockPos.Solution)

	// 两个并列仍取第一个最小
	blocks = blocksWith([]uint64{9, 3, 3}, []uint64{50, 1, 2})
	assert.Equal(t, blocks[1], SelectWinner(blocks))

	// 难度比较覆盖全部候选，包括不是最小解的
	blocks = blocksWith([]uint64{4, 4, 4, 8}, []uint64{1, 2, 3, 100})
	assert.Equal(t, blocks[3], SelectWinner(blocks))

	assert.Nil(t, SelectWinner(nil))
}

func TestQuorumThreshold(t *testing.T) {
	assert.Equal(t, 1, QuorumThreshold(1))
	assert.Equal(t, 1, QuorumThreshold(3))
	assert.Equal(t, 3, QuorumThreshold(4))
	assert.Equal(t, 3, QuorumThreshold(6))
	assert.Equal(t, 5, QuorumThreshold(7))
	assert.Equal(t, 1, QuorumThreshold(0))
}

func TestLocalOrdererDeliversAfterQuorum(t *testing.T) {
	out := make(chan interfaces.Interpreted, 4)
	o := NewLocalOrderer(interfaces.OrdererConfig{Round: 1, NodeCount: 4}, out)
	defer o.Close()

	b1, b2 := candidateBlock(t, 1, 1), candidateBlock(t, 2, 2)
	k1, k2, k3 := newKey(t), newKey(t), newKey(t)

	require.NoError(t, o.Add(signedGraph(t, k1, b1)))
	require.NoError(t, o.Add(signedGraph(t, k2, b2)))
	select {
	case <-out:
		t.Fatal("delivered before quorum")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, o.Add(signedGraph(t, k3, b1)))
	var got interfaces.Interpreted
	select {
	case got = <-out:
	case <-time.After(time.Second):
		t.Fatal("no delivery after quorum")
	}
	assert.Equal(t, uint64(1), got.Round)
	require.Len(t, got.Blocks, 2)

	// 每个区块只投递一次
	require.NoError(t, o.Add(signedGraph(t, newKey(t), b2)))
	select {
	case <-out:
		t.Fatal("block delivered twice")
	case <-time.After(50 * time.Millisecond):
	}

	g := signedGraph(t, k1, b1)
	g.Block.Round = 2
	assert.Error(t, o.Add(g))
}

func TestLocalOrdererClose(t *testing.T) {
	// 无人接收时 Close 也能返回
	out := make(chan interfaces.Interpreted)
	o := NewLocalOrderer(interfaces.OrdererConfig{Round: 1, NodeCount: 1}, out)
	require.NoError(t, o.Add(signedGraph(t, newKey(t), candidateBlock(t, 1, 1))))
	o.Close()
	assert.ErrorIs(t, o.Add(signedGraph(t, newKey(t), candidateBlock(t, 1, 1))), ErrOrdererClosed)
}
