package utils

import "posnode/types"

// MerkleRoot 滚动哈希：root = H(prevMerkle ∥ txid_1 ∥ … ∥ txid_n)
func MerkleRoot(prevMerkle types.Hash, txIDs []types.Hash) types.Hash {
	parts := make([][]byte, 0, len(txIDs)+1)
	parts = append(parts, prevMerkle[:])
	for i := range txIDs {
		parts = append(parts, txIDs[i][:])
	}
	return types.Sum(parts...)
}
