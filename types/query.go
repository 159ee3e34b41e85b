package types

// BlocksRequest 按区间取区块（对端同步 / API）
type BlocksRequest struct {
	Skip uint64 `msgpack:"skip"`
	Take uint64 `msgpack:"take"`
}

// HeightRequest 按高度查询
type HeightRequest struct {
	Height uint64 `msgpack:"height"`
}

// HashRequest 按哈希查询（区块哈希或交易ID）
type HashRequest struct {
	Hash Hash `msgpack:"hash"`
}

// SafeguardRequest 分叉比较用的历史窗口
type SafeguardRequest struct {
	Height uint64 `msgpack:"height"`
	Count  uint64 `msgpack:"count"`
}

// BlocksResponse 区块列表
type BlocksResponse struct {
	Blocks []*Block `msgpack:"blocks,omitempty"`
	Error  string   `msgpack:"error,omitempty"`
}

// TxBlockIndex 交易所在区块
type TxBlockIndex struct {
	TxnId  Hash   `msgpack:"id"`
	Height uint64 `msgpack:"height"`
	Block  Hash   `msgpack:"block"`
}

// SubmitResponse 提交交易 / BlockGraph 的结果
type SubmitResponse struct {
	Result VerifyResult `msgpack:"result"`
}

// HeightResponse 最新高度与区块数
type HeightResponse struct {
	Height uint64 `msgpack:"height"`
	Count  uint64 `msgpack:"count"`
}
