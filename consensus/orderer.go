package consensus

import (
	"bytes"
	"errors"
	"fmt"
	"posnode/interfaces"
	"posnode/types"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
)

var ErrOrdererClosed = errors.New("orderer closed")

// LocalOrderer 确定性的参考排序器：收到来自法定人数个不同节点的 BlockGraph 后，
// 把所有尚未投递的区块按 (轮次, 哈希) 排序投递一次，之后每个新区块再单独投递
type LocalOrderer struct {
	cfg interfaces.OrdererConfig
	out chan<- interfaces.Interpreted

	mu        sync.Mutex
	nodes     *roaring64.Bitmap
	blocks    map[types.Hash]types.BlockID
	delivered map[types.Hash]struct{}
	done      chan struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewLocalOrderer 满足 interfaces.OrdererFactory
func NewLocalOrderer(cfg interfaces.OrdererConfig, out chan<- interfaces.Interpreted) interfaces.Orderer {
	if cfg.Quorum <= 0 {
		cfg.Quorum = QuorumThreshold(cfg.NodeCount)
	}
	return &LocalOrderer{
		cfg:       cfg,
		out:       out,
		nodes:     roaring64.New(),
		blocks:    make(map[types.Hash]types.BlockID),
		delivered: make(map[types.Hash]struct{}),
		done:      make(chan struct{}),
	}
}

func (o *LocalOrderer) Add(graph *types.BlockGraph) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOrdererClosed
	}
	if graph.Round() != o.cfg.Round {
		return fmt.Errorf("graph round %d, orderer round %d", graph.Round(), o.cfg.Round)
	}
	o.nodes.Add(uint64(graph.Block.Node))
	if _, ok := o.blocks[graph.Block.Hash]; !ok && len(graph.Block.Data) > 0 {
		o.blocks[graph.Block.Hash] = graph.Block
	}
	if o.nodes.GetCardinality() < uint64(o.cfg.Quorum) {
		return nil
	}

	pending := make([]types.BlockID, 0)
	for h, id := range o.blocks {
		if _, ok := o.delivered[h]; !ok {
			pending = append(pending, id)
			o.delivered[h] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Round != pending[j].Round {
			return pending[i].Round < pending[j].Round
		}
		return bytes.Compare(pending[i].Hash[:], pending[j].Hash[:]) < 0
	})

	// 发送不占用调用方的锁
	result := interfaces.Interpreted{Round: o.cfg.Round, Blocks: pending}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case o.out <- result:
		case <-o.done:
		}
	}()
	return nil
}

// Close 放弃尚未送出的投递
func (o *LocalOrderer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.done)
	o.mu.Unlock()
	o.wg.Wait()
}
