package types

// 创世区块由固定的 Merkle 根和前序哈希识别，校验时跳过哈希链检查
var (
	GenesisMerkleRoot = MustParseHash("d3b5a7e2c1f04a9b8e6d2c7f1a3b5e9d0c4f8a2b6e1d7c3f9a5b0e4d8c2f6a1b")
	GenesisPrevHash   = MustParseHash("6f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0")
)

// GenesisLocktime 创世区块的锁定时间（2026-01-01T00:00:00Z）
const GenesisLocktime int64 = 1767225600

// GenesisBlock 每个节点启动时写入的创世区块，内容固定
func GenesisBlock() *Block {
	b := &Block{
		Height: 0,
		BlockHeader: BlockHeader{
			Version:       1,
			PrevBlockHash: GenesisPrevHash,
			MerkleRoot:    GenesisMerkleRoot,
			Height:        0,
			Locktime:      GenesisLocktime,
		},
		BlockPos: BlockPoS{Bits: 1},
	}
	b.Size = b.ComputeSize()
	b.Hash = b.ComputeHash(GenesisPrevHash)
	return b
}

// IsGenesis 按固定常量识别
func (b *Block) IsGenesis() bool {
	return b.Height == 0 &&
		b.BlockHeader.MerkleRoot == GenesisMerkleRoot &&
		b.BlockHeader.PrevBlockHash == GenesisPrevHash
}
