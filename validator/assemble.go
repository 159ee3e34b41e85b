package validator

import (
	"posnode/types"
	"posnode/utils"
)

// AssembleBlock 在 prev 之上拼装区块：填充区块头、Merkle 根、大小和哈希。
// pos 和交易（含 coinstake）由调用方准备好。
func AssembleBlock(prev *types.Block, txs []types.Transaction, pos types.BlockPoS, lockTime int64) (*types.Block, error) {
	script, err := utils.LockTimeScript(lockTime)
	if err != nil {
		return nil, err
	}
	b := &types.Block{
		Height: prev.Height + 1,
		BlockHeader: types.BlockHeader{
			Version:        1,
			PrevBlockHash:  prev.Hash,
			Height:         prev.Height + 1,
			Locktime:       lockTime,
			LocktimeScript: script,
		},
		NrTx:     len(txs),
		Txs:      txs,
		BlockPos: pos,
	}
	b.BlockHeader.MerkleRoot = utils.MerkleRoot(prev.BlockHeader.MerkleRoot, b.TxIDs())
	b.Size = b.ComputeSize()
	b.Hash = b.ComputeHash(prev.Hash)
	return b, nil
}
