package types

import "encoding/binary"

// BlockHeader 区块头
type BlockHeader struct {
	Version        uint32 `msgpack:"ver"`
	PrevBlockHash  Hash   `msgpack:"prev"`
	MerkleRoot     Hash   `msgpack:"merkle"`
	Height         uint64 `msgpack:"height"`
	Locktime       int64  `msgpack:"locktime"`
	LocktimeScript []byte `msgpack:"script"`
}

// BlockPoS 权益证明相关字段
type BlockPoS struct {
	Bits      uint64 `msgpack:"bits"`
	Nonce     []byte `msgpack:"nonce"`    // VDF 输出
	Solution  uint64 `msgpack:"solution"` // 抽签解，越小越优先
	VrfProof  []byte `msgpack:"proof"`
	VrfSig    []byte `msgpack:"sig"` // VRF 输出
	PublicKey []byte `msgpack:"pk"`  // 出块方 VRF 公钥
}

// Block 区块，Height 即轮次
type Block struct {
	Hash        Hash          `msgpack:"hash"`
	Height      uint64        `msgpack:"height"`
	Size        int           `msgpack:"size"`
	BlockHeader BlockHeader   `msgpack:"header"`
	NrTx        int           `msgpack:"nrtx"`
	Txs         []Transaction `msgpack:"txs"`
	BlockPos    BlockPoS      `msgpack:"pos"`
}

// HashWithoutHash 去掉 Hash 字段后的哈希
func (b *Block) HashWithoutHash() Hash {
	c := *b
	c.Hash = ZeroHash
	return Sum(mustMarshal(&c))
}

// ComputeHash H(prevHash ∥ H(blockWithoutHash))
func (b *Block) ComputeHash(prevHash Hash) Hash {
	inner := b.HashWithoutHash()
	return Sum(prevHash[:], inner[:])
}

// ComputeSize 编码后的字节数（Hash、Size 置零）
func (b *Block) ComputeSize() int {
	c := *b
	c.Hash = ZeroHash
	c.Size = 0
	return len(mustMarshal(&c))
}

// Coinstake 返回区块里的 coinstake 交易
func (b *Block) Coinstake() *Transaction {
	for i := range b.Txs {
		if b.Txs[i].IsCoinstake() {
			return &b.Txs[i]
		}
	}
	return nil
}

// TxIDs 交易ID列表（区块内顺序）
func (b *Block) TxIDs() []Hash {
	ids := make([]Hash, 0, len(b.Txs))
	for i := range b.Txs {
		ids = append(ids, b.Txs[i].TxnId)
	}
	return ids
}

// RoundBytes 轮次的大端编码
func RoundBytes(round uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, round)
	return b
}
