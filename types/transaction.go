package types

// CoinType 输出类型
type CoinType uint8

const (
	CoinPayment CoinType = iota
	CoinChange
	CoinCoinbase
	CoinCoinstake
)

func (t CoinType) String() string {
	switch t {
	case CoinPayment:
		return "Payment"
	case CoinChange:
		return "Change"
	case CoinCoinbase:
		return "Coinbase"
	case CoinCoinstake:
		return "Coinstake"
	default:
		return "Unknown"
	}
}

// Valid 只接受上面四种
func (t CoinType) Valid() bool {
	return t <= CoinCoinstake
}

// Vin 输入：key image + 环成员（按输出承诺引用）
type Vin struct {
	KeyImage []byte   `msgpack:"k"`
	Offsets  [][]byte `msgpack:"o"`
}

// Vout 输出
//   A: 明文金额（仅 coinbase/coinstake）
//   C: Pedersen 承诺
//   E: 临时公钥
//   N: 附言
//   P: 一次性花费公钥
//   S: 锁定脚本
type Vout struct {
	A uint64   `msgpack:"a"`
	C []byte   `msgpack:"c"`
	E []byte   `msgpack:"e"`
	N []byte   `msgpack:"n"`
	P []byte   `msgpack:"p"`
	S []byte   `msgpack:"s"`
	T CoinType `msgpack:"t"`
}

// RCT 每个输入一份环签名材料
//   M: 对花费公钥环的可链接签名（链接标签即 key image）
//   P: 对承诺差环 (C_i - C) 的签名
//   C: 伪输出承诺
//   I: key image
type RCT struct {
	M []byte `msgpack:"m"`
	P []byte `msgpack:"p"`
	C []byte `msgpack:"c"`
	I []byte `msgpack:"i"`
}

// Bp 范围证明，每个找零输出一份
type Bp struct {
	Proof []byte `msgpack:"proof"`
}

// Vtime 时间锁：VDF 参数 + 锁定时间
type Vtime struct {
	I uint64 `msgpack:"i"` // VDF 迭代次数
	M []byte `msgpack:"m"` // VDF 种子
	N []byte `msgpack:"n"` // VDF 输出
	L int64  `msgpack:"l"` // 锁定时间（unix 秒）
	S []byte `msgpack:"s"` // 锁定脚本
}

// Transaction 交易
type Transaction struct {
	TxnId Hash   `msgpack:"id"`
	Ver   uint16 `msgpack:"ver"`
	Mix   int32  `msgpack:"mix"`
	Vin   []Vin  `msgpack:"vin"`
	Vout  []Vout `msgpack:"vout"`
	Rct   []RCT  `msgpack:"rct"`
	Bp    []Bp   `msgpack:"bp"`
	Vtime *Vtime `msgpack:"vtime"`
}

// ComputeID 交易ID = H(去掉 TxnId 的编码)
func (tx *Transaction) ComputeID() Hash {
	c := *tx
	c.TxnId = ZeroHash
	return Sum(mustMarshal(&c))
}

// SigningHash 环签名和 VDF 种子绑定的消息：去掉 TxnId、Rct、Vtime
func (tx *Transaction) SigningHash() Hash {
	c := *tx
	c.TxnId = ZeroHash
	c.Rct = nil
	c.Vtime = nil
	return Sum(mustMarshal(&c))
}

// HasCoinType 是否包含某种类型的输出
func (tx *Transaction) HasCoinType(t CoinType) bool {
	for i := range tx.Vout {
		if tx.Vout[i].T == t {
			return true
		}
	}
	return false
}

// IsCoinstake 含 coinstake 输出的交易只能由出块方生成
func (tx *Transaction) IsCoinstake() bool {
	return tx.HasCoinType(CoinCoinstake)
}

// IsCoinbase coinbase / coinstake 统称奖励交易
func (tx *Transaction) IsCoinbase() bool {
	return tx.HasCoinType(CoinCoinbase) || tx.HasCoinType(CoinCoinstake)
}

// Priority 时间锁优先级，迭代次数越多越优先
func (tx *Transaction) Priority() uint64 {
	if tx.Vtime == nil {
		return 0
	}
	return tx.Vtime.I
}

// KeyImages 返回所有输入的 key image
func (tx *Transaction) KeyImages() [][]byte {
	images := make([][]byte, 0, len(tx.Vin))
	for i := range tx.Vin {
		images = append(images, tx.Vin[i].KeyImage)
	}
	return images
}

// CoinStake 出块时生成的 coinstake 交易及对应的解和难度
type CoinStake struct {
	Tx       *Transaction
	Solution uint64
	Bits     uint64
}
