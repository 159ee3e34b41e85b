package utils

import (
	"testing"

	"posnode/types"

	"github.com/stretchr/testify/assert"
)

func TestMerkleRootOrderSensitive(t *testing.T) {
	a := types.Sum([]byte("a"))
	b := types.Sum([]byte("b"))
	prev := types.GenesisMerkleRoot

	ab := MerkleRoot(prev, []types.Hash{a, b})
	ba := MerkleRoot(prev, []types.Hash{b, a})
	assert.NotEqual(t, ab, ba)
	assert.Equal(t, ab, MerkleRoot(prev, []types.Hash{a, b}))
	assert.Equal(t, types.Sum(prev[:], a[:], b[:]), ab)
	assert.NotEqual(t, ab, MerkleRoot(types.ZeroHash, []types.Hash{a, b}))
}
