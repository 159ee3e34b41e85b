package utils

import (
	"posnode/types"

	"github.com/spaolacci/murmur3"
)

// NodeIDFromPublicKey 节点ID = murmur3(压缩公钥)
func NodeIDFromPublicKey(pub []byte) types.NodeID {
	return types.NodeID(murmur3.Sum64(pub))
}

