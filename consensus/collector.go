// Package consensus 出块循环（Staker）与轮次收集器（Collector）。
package consensus

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
	"posnode/utils"
	"sync"
	"time"

	"github.com/dchest/siphash"
	lru "github.com/hashicorp/golang-lru"
)

var ErrCollectorStopped = errors.New("collector stopped")

// BlockVerifier 区块完整校验
type BlockVerifier interface {
	VerifyBlock(block *types.Block) types.VerifyResult
}

// TxRemover 区块上链后从交易池移除
type TxRemover interface {
	Remove(ids ...types.Hash)
}

// Collector 轮次收集器：收集 BlockGraph，达到法定人数后交给排序器，
// 排序结果里选出胜者并上链
type Collector struct {
	store       interfaces.ChainStore
	verifier    BlockVerifier
	signer      interfaces.Signer
	peers       interfaces.PeerDiscovery
	broadcaster interfaces.Broadcaster
	wallet      interfaces.WalletSession
	pool        TxRemover
	newOrderer  interfaces.OrdererFactory

	cfg    *config.Config
	Logger logs.Logger
	stats  *stats.Stats

	// 单消费者队列，容量 1
	queue chan inboundGraph

	// 就绪信号（轮次号），由去抖协程消费
	ready chan uint64

	// 排序器投递结果
	delivered chan interfaces.Interpreted

	// 去重：siphash(graph.ID()) -> types.SeenBlockGraph
	seen         *lru.Cache
	sipK0, sipK1 uint64

	rounds   *roundState
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// inboundGraph 队列元素。local 只由 PublishLocal 设置，网络来的图一律为 false
type inboundGraph struct {
	graph *types.BlockGraph
	local bool
}

// CollectorDeps 构造参数
type CollectorDeps struct {
	Store       interfaces.ChainStore
	Verifier    BlockVerifier
	Signer      interfaces.Signer
	Peers       interfaces.PeerDiscovery
	Broadcaster interfaces.Broadcaster
	Wallet      interfaces.WalletSession
	Pool        TxRemover
	Orderer     interfaces.OrdererFactory
	Config      *config.Config
	Logger      logs.Logger
	Stats       *stats.Stats
}

func NewCollector(deps CollectorDeps) (*Collector, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logs.NewNodeLogger("collector", 0)
	}
	orderer := deps.Orderer
	if orderer == nil {
		orderer = NewLocalOrderer
	}
	seen, err := lru.New(cfg.Consensus.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("siphash key: %w", err)
	}

	return &Collector{
		store:       deps.Store,
		verifier:    deps.Verifier,
		signer:      deps.Signer,
		peers:       deps.Peers,
		broadcaster: deps.Broadcaster,
		wallet:      deps.Wallet,
		pool:        deps.Pool,
		newOrderer:  orderer,
		cfg:         cfg,
		Logger:      logger,
		stats:       deps.Stats,
		queue:       make(chan inboundGraph, 1),
		ready:       make(chan uint64, 16),
		delivered:   make(chan interfaces.Interpreted, 16),
		seen:        seen,
		sipK0:       binary.LittleEndian.Uint64(key[:8]),
		sipK1:       binary.LittleEndian.Uint64(key[8:]),
		rounds:      newRoundState(),
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}, nil
}

// Start 启动工作协程、去抖协程、投递协程和定时清理
func (c *Collector) Start() {
	c.wg.Add(4)
	go c.runWorker()
	go c.runDebouncer()
	go c.runDelivery()
	go c.runSweeper()
	c.Logger.Info("[Collector] Started")
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	c.rounds.mu.Lock()
	c.rounds.closeOrderer()
	c.rounds.mu.Unlock()
	c.Logger.Info("[Collector] Stopped")
}

// Publish 投递一个从网络收到的 BlockGraph，必须已由出块节点签名。队列满时阻塞调用方
func (c *Collector) Publish(ctx context.Context, graph *types.BlockGraph) error {
	return c.enqueue(ctx, inboundGraph{graph: graph})
}

// PublishLocal 投递本节点刚出的区块，由收集器签名后广播
func (c *Collector) PublishLocal(ctx context.Context, graph *types.BlockGraph) error {
	return c.enqueue(ctx, inboundGraph{graph: graph, local: true})
}

func (c *Collector) enqueue(ctx context.Context, in inboundGraph) error {
	if in.graph == nil {
		return errors.New("nil block graph")
	}
	select {
	case c.queue <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return ErrCollectorStopped
	}
}

func (c *Collector) runWorker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case in := <-c.queue:
			var r types.VerifyResult
			if in.local {
				r = c.handleLocalGraph(in.graph)
			} else {
				r = c.handleGraph(in.graph)
			}
			if r != types.Succeed {
				c.Logger.Debug("[Collector] graph round=%d node=%s local=%v dropped: %s", in.graph.Round(), in.graph.Block.Node, in.local, r)
			}
		}
	}
}

func (c *Collector) seenKey(id types.Hash) uint64 {
	return siphash.Hash(c.sipK0, c.sipK1, id[:])
}

func (c *Collector) isSeen(id types.Hash) bool {
	_, ok := c.seen.Peek(c.seenKey(id))
	return ok
}

func (c *Collector) markSeen(g *types.BlockGraph) {
	c.seen.Add(c.seenKey(g.ID()), types.SeenBlockGraph{
		Hash:      g.Block.Hash,
		Round:     g.Round(),
		Timestamp: c.now(),
	})
}

// currentHeight 链上最新高度，空链视为 0
func (c *Collector) currentHeight() (uint64, error) {
	h, err := c.store.BlockHeight()
	if errors.Is(err, interfaces.ErrNotFound) {
		return 0, nil
	}
	return h, err
}

// admit 轮次、已上链和去重检查，只在工作协程里调用
func (c *Collector) admit(graph *types.BlockGraph) types.VerifyResult {
	height, err := c.currentHeight()
	if err != nil {
		c.Logger.Error("[Collector] read height: %v", err)
		return types.Unknown
	}
	round := graph.Round()
	if round != height+1 {
		return types.UnableToVerify
	}
	if _, err := c.store.GetBlockByHeight(round); err == nil {
		return types.AlreadyExists
	}
	if c.isSeen(graph.ID()) {
		return types.AlreadyExists
	}
	return types.Succeed
}

// handleGraph 网络来的 BlockGraph。未签名的直接丢弃；
// 署名为本节点的只可能是自己广播出去又转回来的，或是冒充
func (c *Collector) handleGraph(graph *types.BlockGraph) types.VerifyResult {
	if len(graph.Signature) == 0 || len(graph.PublicKey) == 0 {
		return types.Invalid
	}
	if graph.Block.Node == c.signer.NodeID() {
		return types.AlreadyExists
	}
	if r := c.admit(graph); r != types.Succeed {
		return r
	}
	// 先验签再记入去重缓存，伪造的图不能占住真实图的 ID
	if r := c.verifyGraph(graph); r != types.Succeed {
		return r
	}
	c.markSeen(graph)
	return c.finalizeRemote(graph)
}

// handleLocalGraph 本节点 Staker 出的块
func (c *Collector) handleLocalGraph(graph *types.BlockGraph) types.VerifyResult {
	if graph.Block.Node != c.signer.NodeID() {
		return types.Invalid
	}
	if r := c.admit(graph); r != types.Succeed {
		return r
	}
	c.markSeen(graph)
	return c.finalizeLocal(graph)
}

func (c *Collector) sign(graph *types.BlockGraph) error {
	graph.PublicKey = nil
	graph.Signature = nil
	msg := graph.SigningHash()
	sig, pub, err := c.signer.Sign(msg[:])
	if err != nil {
		return err
	}
	graph.Signature = sig
	graph.PublicKey = pub
	return nil
}

func (c *Collector) finalizeLocal(graph *types.BlockGraph) types.VerifyResult {
	if err := c.sign(graph); err != nil {
		c.Logger.Error("[Collector] sign local graph: %v", err)
		return types.Unknown
	}
	if r := c.persistAndBroadcast(graph); r != types.Succeed {
		return r
	}
	c.Logger.Info("[Collector] published local block round=%d hash=%s", graph.Round(), graph.Block.Hash.Short())
	c.bufferGraph(graph)
	return types.Succeed
}

// verifyGraph 签名、签名者身份和前后轮次的衔接
func (c *Collector) verifyGraph(graph *types.BlockGraph) types.VerifyResult {
	msg := graph.SigningHash()
	if !utils.VerifySignature(graph.Signature, graph.PublicKey, msg[:]) {
		return types.UnableToVerify
	}
	if utils.NodeIDFromPublicKey(graph.PublicKey) != graph.Block.Node {
		return types.UnableToVerify
	}
	if graph.Prev.Round+1 != graph.Block.Round {
		return types.Invalid
	}
	block, err := graph.Block.DecodeBlock()
	if err != nil {
		return types.Invalid
	}
	if block.Hash != graph.Block.Hash || block.Height != graph.Block.Round ||
		block.BlockHeader.PrevBlockHash != graph.Prev.Hash {
		return types.Invalid
	}
	return types.Succeed
}

func (c *Collector) finalizeRemote(graph *types.BlockGraph) types.VerifyResult {
	if err := c.store.PutBlockGraph(graph); err != nil {
		c.Logger.Error("[Collector] persist graph: %v", err)
		return types.Unknown
	}
	c.bufferGraph(graph)

	// 本节点为每个区块只背书一次
	self := c.signer.NodeID()
	copied := graph.Clone()
	copied.Deps = append(copied.Deps, graph.ToDep())
	copied.Block.Node = self
	copied.Prev.Node = self
	if c.isSeen(copied.ID()) {
		return types.Succeed
	}
	if err := c.sign(copied); err != nil {
		c.Logger.Error("[Collector] sign copy: %v", err)
		return types.Unknown
	}
	c.markSeen(copied)
	if r := c.persistAndBroadcast(copied); r != types.Succeed {
		return r
	}
	c.bufferGraph(copied)
	c.Logger.Verbose("[Collector] vouched for block round=%d hash=%s from node=%s",
		graph.Round(), graph.Block.Hash.Short(), graph.Block.Node)
	return types.Succeed
}

func (c *Collector) persistAndBroadcast(graph *types.BlockGraph) types.VerifyResult {
	if err := c.store.PutBlockGraph(graph); err != nil {
		c.Logger.Error("[Collector] persist graph: %v", err)
		return types.Unknown
	}
	payload, err := types.Marshal(graph)
	if err != nil {
		c.Logger.Error("[Collector] encode graph: %v", err)
		return types.Unknown
	}
	if c.broadcaster != nil {
		c.broadcaster.Broadcast(types.TopicBlockGraph, payload)
	}
	return types.Succeed
}

// bufferGraph 放进轮次缓冲并发出就绪信号
func (c *Collector) bufferGraph(graph *types.BlockGraph) {
	c.rounds.mu.Lock()
	c.rounds.buffer[graph.Round()] = append(c.rounds.buffer[graph.Round()], graph)
	c.rounds.mu.Unlock()

	select {
	case c.ready <- graph.Round():
	case <-c.stopChan:
	}
}

// GetChannelStats 队列状态
func (c *Collector) GetChannelStats() []stats.ChannelStat {
	return []stats.ChannelStat{
		stats.NewChannelStat("queue", "Collector", len(c.queue), cap(c.queue)),
		stats.NewChannelStat("ready", "Collector", len(c.ready), cap(c.ready)),
		stats.NewChannelStat("delivered", "Collector", len(c.delivered), cap(c.delivered)),
	}
}
