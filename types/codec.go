package types

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

// Marshal 节点间所有负载（区块、交易、BlockGraph、查询参数）统一 msgpack 编码
func Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not encode msgpack: %w", err)
	}
	return data, nil
}

// Unmarshal 对应 Marshal
func Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode msgpack: %w", err)
	}
	return nil
}

// mustMarshal 仅用于哈希计算：结构体里没有 map/interface，编码不会失败
func mustMarshal(v interface{}) []byte {
	data, err := msgpack.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("msgpack encode %T: %v", v, err))
	}
	return data
}
