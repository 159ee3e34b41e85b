// db/keys.go
package db

import (
	"encoding/hex"
	"fmt"
	"posnode/types"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// ---- 区块 ----
// 例：blockdata_<blockHash>
func KeyBlockData(blockHash types.Hash) string {
	return withVer("blockdata_" + blockHash.String())
}

// 例：height_00000000000000000012（定长，迭代即按高度有序）
func KeyHeight(height uint64) string {
	return withVer(fmt.Sprintf("height_%020d", height))
}

func PrefixHeight() string { return withVer("height_") }

// 例：block_count
func KeyBlockCount() string { return withVer("block_count") }

// ---- 交易索引 ----
// 例：tx_<txID> → TxBlockIndex
func KeyTxIndex(txID types.Hash) string { return withVer("tx_" + txID.String()) }

// ---- key image ----
// 例：keyimage_<hex>
func KeyKeyImage(image []byte) string {
	return withVer("keyimage_" + hex.EncodeToString(image))
}

// ---- 输出（按承诺索引） ----
// 例：output_<hex commitment>
func KeyOutput(commitment []byte) string {
	return withVer("output_" + hex.EncodeToString(commitment))
}

// ---- BlockGraph ----
// 例：graph_<round>_<graphID>
func KeyBlockGraph(round uint64, id types.Hash) string {
	return fmt.Sprintf("%s%s", PrefixBlockGraph(round), id.String())
}

func PrefixBlockGraph(round uint64) string {
	return withVer(fmt.Sprintf("graph_%020d_", round))
}

// ---- 节点 ----
// 例：node_<nodeID>
func KeyNode(id types.NodeID) string { return withVer("node_" + id.String()) }

func PrefixNode() string { return withVer("node_") }
