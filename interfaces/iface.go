package interfaces

import (
	"context"
	"errors"
	"posnode/types"
)

// ErrNotFound 存储里不存在
var ErrNotFound = errors.New("not found")

// ============================================
// 签名 / VRF
// ============================================

// Signer 节点身份签名
type Signer interface {
	// Sign 返回签名和签名者公钥
	Sign(msg []byte) (signature []byte, publicKey []byte, err error)
	Verify(signature, publicKey, msg []byte) bool
	NodeID() types.NodeID
}

// VRF 可验证随机函数
type VRF interface {
	PublicKey() []byte
	Prove(msg []byte) (proof []byte, err error)
	// Verify 校验证明并返回输出
	Verify(publicKey, msg, proof []byte) (output []byte, err error)
}

// ============================================
// 链存储
// ============================================

type ChainStore interface {
	GetBlock(hash types.Hash) (*types.Block, error)
	GetBlockByHeight(height uint64) (*types.Block, error)
	// FindBlock 按条件从最新高度往回找第一个匹配的区块
	FindBlock(match func(*types.Block) bool) (*types.Block, error)
	// GetBlocks 高度 [from, from+count) 内的区块，按高度升序
	GetBlocks(from, count uint64) ([]*types.Block, error)
	// PutBlock 写入区块及其交易索引、key image、输出；该高度已有区块时返回 false
	PutBlock(block *types.Block) (bool, error)
	DeleteBlock(hash types.Hash) error
	BlockCount() (uint64, error)
	BlockHeight() (uint64, error)

	GetTransaction(id types.Hash) (*types.Transaction, *types.TxBlockIndex, error)
	KeyImageExists(image []byte) (bool, error)
	GetOutput(commitment []byte) (*types.Vout, error)

	PutBlockGraph(graph *types.BlockGraph) error
	GetBlockGraphs(round uint64) ([]*types.BlockGraph, error)
	DeleteBlockGraphs(round uint64) error
}

// ============================================
// 网络
// ============================================

// Broadcaster 向所有已知对端发送，不等待结果
type Broadcaster interface {
	Broadcast(topic types.Topic, payload []byte)
}

type PeerDiscovery interface {
	DiscoveredPeers() []types.Peer
}

// ============================================
// 钱包
// ============================================

type WalletSession interface {
	// CreateStakeTransaction 生成出块奖励交易，reward 为奖励金额
	CreateStakeTransaction(ctx context.Context, bits, reward uint64, address string) (*types.Transaction, error)
	// Notify 通知钱包已上链的交易
	Notify(txs []types.Transaction)
}

// ============================================
// 校验
// ============================================

type TxVerifier interface {
	VerifyTransaction(tx *types.Transaction) types.VerifyResult
}

// ============================================
// 排序（异步 BFT）
// ============================================

// OrdererConfig 每轮构造排序器的参数
type OrdererConfig struct {
	Round     uint64
	LastRound uint64
	NodeCount int
	Quorum    int
	Self      types.NodeID
}

// Interpreted 一轮的排序结果，Blocks 为全序的区块负载
type Interpreted struct {
	Round  uint64
	Blocks []types.BlockID
}

// Orderer 每轮一个实例；结果通过构造时传入的通道投递
type Orderer interface {
	Add(graph *types.BlockGraph) error
	Close()
}

// OrdererFactory out 由收集器持有，排序器只负责发送
type OrdererFactory func(cfg OrdererConfig, out chan<- Interpreted) Orderer
