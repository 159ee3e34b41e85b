package consensus

import (
	"posnode/types"
	"posnode/validator"
)

// ============================================
// 对外只读查询（API / 对端同步）
// ============================================

func (c *Collector) GetBlock(hash types.Hash) (*types.Block, error) {
	return c.store.GetBlock(hash)
}

func (c *Collector) GetBlockByHeight(height uint64) (*types.Block, error) {
	return c.store.GetBlockByHeight(height)
}

// GetBlocks 从高度 skip 开始取 take 个
func (c *Collector) GetBlocks(skip, take uint64) ([]*types.Block, error) {
	return c.store.GetBlocks(skip, take)
}

func (c *Collector) BlockCount() (uint64, error) {
	return c.store.BlockCount()
}

func (c *Collector) BlockHeight() (uint64, error) {
	return c.store.BlockHeight()
}

func (c *Collector) GetTransaction(id types.Hash) (*types.Transaction, error) {
	tx, _, err := c.store.GetTransaction(id)
	return tx, err
}

func (c *Collector) GetTransactionBlockIndex(id types.Hash) (*types.TxBlockIndex, error) {
	_, idx, err := c.store.GetTransaction(id)
	return idx, err
}

// GetSafeguardBlocks 分叉比较用：从 height 开始最多 SafeguardWindow 个区块
func (c *Collector) GetSafeguardBlocks(height, count uint64) ([]*types.Block, error) {
	if limit := c.cfg.Consensus.SafeguardWindow; count == 0 || count > limit {
		count = limit
	}
	return c.store.GetBlocks(height, count)
}

// HashTransactions 有序交易集合的哈希，用于计算 kernel
func (c *Collector) HashTransactions(txs []types.Transaction) types.Hash {
	return validator.TxSetHash(txs)
}
