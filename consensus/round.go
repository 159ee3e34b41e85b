package consensus

import (
	"posnode/interfaces"
	"posnode/types"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// roundState 轮次缓冲、排序器和候选区块，只在持有 mu 时访问
type roundState struct {
	mu           sync.Mutex
	buffer       map[uint64][]*types.BlockGraph
	orderer      interfaces.Orderer
	ordererRound uint64

	// 排序器投递的区块，按投递顺序
	candidates map[uint64][]*types.Block
}

func newRoundState() *roundState {
	return &roundState{
		buffer:     make(map[uint64][]*types.BlockGraph),
		candidates: make(map[uint64][]*types.Block),
	}
}

func (s *roundState) closeOrderer() {
	if s.orderer != nil {
		s.orderer.Close()
		s.orderer = nil
		s.ordererRound = 0
	}
}

func (s *roundState) addCandidate(round uint64, block *types.Block) {
	for _, b := range s.candidates[round] {
		if b.Hash == block.Hash {
			return
		}
	}
	s.candidates[round] = append(s.candidates[round], block)
}

// purge 拆除一个轮次的全部状态
func (s *roundState) purge(round uint64) {
	delete(s.buffer, round)
	delete(s.candidates, round)
	if s.orderer != nil && s.ordererRound == round {
		s.closeOrderer()
	}
}

// QuorumThreshold n 个节点最多容忍 f = (n-1)/3 个拜占庭节点，需要 2f+1 个不同的出块方
func QuorumThreshold(n int) int {
	if n < 1 {
		n = 1
	}
	f := (n - 1) / 3
	return 2*f + 1
}

func (c *Collector) nodeCount() int {
	if c.peers == nil {
		return 1
	}
	return len(c.peers.DiscoveredPeers()) + 1
}

// runDebouncer 后沿去抖：最后一次就绪信号之后 DebounceDelay 内没有新信号才评估
func (c *Collector) runDebouncer() {
	defer c.wg.Done()

	delay := c.cfg.Consensus.DebounceDelay
	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	var pending uint64
	for {
		select {
		case <-c.stopChan:
			return
		case round := <-c.ready:
			pending = round
			timer.Reset(delay)
		case <-timer.C:
			c.evaluateRound(pending)
		}
	}
}

func (c *Collector) recoverRound(round uint64) {
	if r := recover(); r != nil {
		c.Logger.Error("[Collector] panic in round %d, abandoning: %v\n%s", round, r, debug.Stack())
		c.rounds.purge(round)
	}
}

// evaluateRound 检查法定人数，够了就把缓冲的 BlockGraph 交给排序器
func (c *Collector) evaluateRound(round uint64) {
	c.rounds.mu.Lock()
	defer c.rounds.mu.Unlock()
	defer c.recoverRound(round)

	height, err := c.currentHeight()
	if err != nil {
		c.Logger.Error("[Collector] read height: %v", err)
		return
	}
	if round != height+1 {
		if round <= height {
			c.rounds.purge(round)
		}
		return
	}
	graphs := c.rounds.buffer[round]
	if len(graphs) == 0 {
		return
	}

	// 本轮排序器已建立：法定人数已经达到过，迟到的图直接补给排序器
	if c.rounds.orderer != nil && c.rounds.ordererRound == round {
		c.feedOrderer(round, graphs)
		c.Logger.Verbose("[Collector] round %d handed %d late graphs to open orderer", round, len(graphs))
		return
	}

	proposers := roaring64.New()
	for _, g := range graphs {
		proposers.Add(uint64(g.Block.Node))
	}
	n := c.nodeCount()
	need := QuorumThreshold(n)
	if proposers.GetCardinality() < uint64(need) {
		c.Logger.Debug("[Collector] round %d waiting for quorum %d/%d", round, proposers.GetCardinality(), need)
		return
	}

	c.rounds.closeOrderer()
	c.rounds.orderer = c.newOrderer(interfaces.OrdererConfig{
		Round:     round,
		LastRound: height,
		NodeCount: n,
		Quorum:    need,
		Self:      c.signer.NodeID(),
	}, c.delivered)
	c.rounds.ordererRound = round
	c.feedOrderer(round, graphs)
	c.Logger.Verbose("[Collector] round %d handed %d graphs from %d proposers to orderer", round, len(graphs), proposers.GetCardinality())
}

// feedOrderer 把缓冲的图交给排序器并清空缓冲，调用方持有 rounds.mu
func (c *Collector) feedOrderer(round uint64, graphs []*types.BlockGraph) {
	for _, g := range graphs {
		if err := c.rounds.orderer.Add(g); err != nil {
			c.Logger.Warn("[Collector] orderer rejected graph round=%d node=%s: %v", round, g.Block.Node, err)
		}
	}
	delete(c.rounds.buffer, round)
}

func (c *Collector) runDelivery() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case out := <-c.delivered:
			c.handleDelivery(out)
		}
	}
}

// handleDelivery 解码投递的区块放入候选缓存，然后选出胜者
func (c *Collector) handleDelivery(out interfaces.Interpreted) types.VerifyResult {
	c.rounds.mu.Lock()
	defer c.rounds.mu.Unlock()
	defer c.recoverRound(out.Round)

	for _, id := range out.Blocks {
		block, err := id.DecodeBlock()
		if err != nil {
			c.Logger.Warn("[Collector] undecodable block %s in round %d: %v", id.Hash.Short(), out.Round, err)
			continue
		}
		if block.Height != out.Round || block.Hash != id.Hash {
			continue
		}
		c.rounds.addCandidate(out.Round, block)
	}
	return c.resolveRound(out.Round)
}

// resolveRound 胜者校验失败时从候选中剔除再选，结束后无论结果都清掉该轮
func (c *Collector) resolveRound(round uint64) types.VerifyResult {
	defer c.rounds.purge(round)

	candidates := append([]*types.Block(nil), c.rounds.candidates[round]...)
	for len(candidates) > 0 {
		winner := SelectWinner(candidates)
		if _, err := c.store.GetBlockByHeight(round); err == nil {
			return types.AlreadyExists
		}
		r := c.verifier.VerifyBlock(winner)
		if r == types.Succeed {
			return c.commit(winner)
		}
		c.Logger.Warn("[Collector] winner %s for round %d failed verification: %s", winner.Hash.Short(), round, r)
		candidates = removeBlock(candidates, winner.Hash)
	}
	return types.UnableToVerify
}

func removeBlock(blocks []*types.Block, hash types.Hash) []*types.Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b.Hash != hash {
			out = append(out, b)
		}
	}
	return out
}

func (c *Collector) commit(block *types.Block) types.VerifyResult {
	saved, err := c.store.PutBlock(block)
	if err != nil {
		c.Logger.Error("[Collector] commit block %s: %v", block.Hash.Short(), err)
		return types.Unknown
	}
	if !saved {
		return types.AlreadyExists
	}
	if err := c.store.DeleteBlockGraphs(block.Height); err != nil {
		c.Logger.Warn("[Collector] delete graphs of round %d: %v", block.Height, err)
	}
	if c.wallet != nil {
		c.wallet.Notify(block.Txs)
	}
	if c.pool != nil {
		c.pool.Remove(block.TxIDs()...)
	}
	c.stats.RecordRoundFinalized(block.Height)
	c.Logger.Info("[Collector] committed block height=%d hash=%s solution=%d bits=%d txs=%d",
		block.Height, block.Hash.Short(), block.BlockPos.Solution, block.BlockPos.Bits, len(block.Txs))
	return types.Succeed
}

// SelectWinner 解最小者胜出；超过两个区块并列最小时，取全部候选中难度最大的
func SelectWinner(blocks []*types.Block) *types.Block {
	if len(blocks) == 0 {
		return nil
	}
	first := blocks[0]
	ties := 0
	for _, b := range blocks {
		switch {
		case b.BlockPos.Solution < first.BlockPos.Solution:
			first, ties = b, 1
		case b.BlockPos.Solution == first.BlockPos.Solution:
			ties++
		}
	}
	if ties <= 2 {
		return first
	}
	best := blocks[0]
	for _, b := range blocks[1:] {
		if b.BlockPos.Bits > best.BlockPos.Bits {
			best = b
		}
	}
	return best
}

func (c *Collector) runSweeper() {
	defer c.wg.Done()
	interval := c.cfg.Consensus.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case now := <-ticker.C:
			c.Sweep(now)
		}
	}
}

// Sweep 清掉超过保留时长的去重记录，以及已经过去的轮次
func (c *Collector) Sweep(now time.Time) {
	cutoff := now.Add(-c.cfg.Consensus.SeenRetention)
	expired := 0
	for _, k := range c.seen.Keys() {
		v, ok := c.seen.Peek(k)
		if ok && v.(types.SeenBlockGraph).Timestamp.Before(cutoff) {
			c.seen.Remove(k)
			expired++
		}
	}

	height, err := c.currentHeight()
	if err != nil {
		c.Logger.Error("[Collector] sweep read height: %v", err)
		return
	}
	c.rounds.mu.Lock()
	stale := make([]uint64, 0)
	for r := range c.rounds.buffer {
		if r <= height {
			stale = append(stale, r)
		}
	}
	for r := range c.rounds.candidates {
		if r <= height {
			stale = append(stale, r)
		}
	}
	if c.rounds.orderer != nil && c.rounds.ordererRound <= height {
		stale = append(stale, c.rounds.ordererRound)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	for _, r := range stale {
		c.rounds.purge(r)
	}
	c.rounds.mu.Unlock()

	for i, r := range stale {
		if i > 0 && stale[i-1] == r {
			continue
		}
		if err := c.store.DeleteBlockGraphs(r); err != nil {
			c.Logger.Warn("[Collector] sweep graphs of round %d: %v", r, err)
		}
	}
	if expired > 0 || len(stale) > 0 {
		c.Logger.Info("[Collector] sweep removed %d seen entries and %d stale rounds", expired, len(stale))
	}
}
