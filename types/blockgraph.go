package types

import "time"

// BlockID BlockGraph 一侧：内容哈希 + 出块节点 + 轮次 + 序列化的区块
type BlockID struct {
	Hash  Hash   `msgpack:"hash"`
	Node  NodeID `msgpack:"node"`
	Round uint64 `msgpack:"round"`
	Data  []byte `msgpack:"data"`
}

// Ref 不带负载的引用
func (id BlockID) Ref() BlockID {
	return BlockID{Hash: id.Hash, Node: id.Node, Round: id.Round}
}

// DecodeBlock 反序列化负载
func (id BlockID) DecodeBlock() (*Block, error) {
	b := &Block{}
	if err := Unmarshal(id.Data, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Dep 排序算法使用的跨节点依赖
type Dep struct {
	Block BlockID   `msgpack:"block"`
	Prev  BlockID   `msgpack:"prev"`
	Deps  []BlockID `msgpack:"deps"`
}

// BlockGraph 轮次共识的交换单元
type BlockGraph struct {
	Block     BlockID `msgpack:"block"`
	Prev      BlockID `msgpack:"prev"`
	Deps      []Dep   `msgpack:"deps"`
	PublicKey []byte  `msgpack:"pk"`
	Signature []byte  `msgpack:"sig"`
}

// NewBlockGraph 用新区块和前序区块构造，轮次 = 新区块高度
func NewBlockGraph(node NodeID, block, prev *Block) (*BlockGraph, error) {
	data, err := Marshal(block)
	if err != nil {
		return nil, err
	}
	prevData, err := Marshal(prev)
	if err != nil {
		return nil, err
	}
	return &BlockGraph{
		Block: BlockID{Hash: block.Hash, Node: node, Round: block.Height, Data: data},
		Prev:  BlockID{Hash: prev.Hash, Node: node, Round: prev.Height, Data: prevData},
	}, nil
}

// Round 目标轮次
func (g *BlockGraph) Round() uint64 {
	return g.Block.Round
}

// SigningHash 签名覆盖除签名和公钥之外的全部字段
func (g *BlockGraph) SigningHash() Hash {
	c := *g
	c.PublicKey = nil
	c.Signature = nil
	return Sum(mustMarshal(&c))
}

// ID 去重键：区块哈希 + 节点 + 轮次
func (g *BlockGraph) ID() Hash {
	node := RoundBytes(uint64(g.Block.Node))
	return Sum(g.Block.Hash[:], node, RoundBytes(g.Block.Round))
}

// ToDep 被转签时原图降级为依赖
func (g *BlockGraph) ToDep() Dep {
	deps := make([]BlockID, 0, len(g.Deps))
	for _, d := range g.Deps {
		deps = append(deps, d.Block.Ref())
	}
	return Dep{Block: g.Block.Ref(), Prev: g.Prev.Ref(), Deps: deps}
}

// Clone 深拷贝（负载按引用共享，只读）
func (g *BlockGraph) Clone() *BlockGraph {
	c := *g
	c.Deps = append([]Dep(nil), g.Deps...)
	c.PublicKey = append([]byte(nil), g.PublicKey...)
	c.Signature = append([]byte(nil), g.Signature...)
	return &c
}

// SeenBlockGraph 去重缓存条目，保留 1 小时
type SeenBlockGraph struct {
	Hash      Hash
	Round     uint64
	Timestamp time.Time
}
