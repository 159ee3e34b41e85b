package ringct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
)

func TestPedersenBalance(t *testing.T) {
	r1, r2 := RandomScalar(), RandomScalar()
	in := CommitBytes(100, suite.Scalar().Add(r1, r2))
	out1 := CommitBytes(60, r1)
	out2 := CommitBytes(40, r2)

	assert.True(t, Balanced([][]byte{in}, [][]byte{out1, out2}))
	assert.False(t, Balanced([][]byte{in}, [][]byte{out1, CommitBytes(41, r2)}))
	assert.False(t, Balanced([][]byte{in}, [][]byte{{0x01}}))
}

func TestAmountScalarLargeValues(t *testing.T) {
	top := ^uint64(0)
	a := AmountScalar(top)
	b := suite.Scalar().Add(AmountScalar(top-1), AmountScalar(1))
	assert.True(t, a.Equal(b))
}

func TestCoinstakeCommitmentIsDeterministic(t *testing.T) {
	_, pub := KeyPair()
	spendKey := PointBytes(pub)
	c := CommitBytes(500, CoinstakeBlind(spendKey))

	assert.True(t, VerifyClearCommitment(500, spendKey, c))
	assert.False(t, VerifyClearCommitment(501, spendKey, c))
}

func TestRangeProof(t *testing.T) {
	for _, amount := range []uint64{0, 1, 12345, 1 << 63, ^uint64(0)} {
		blind := RandomScalar()
		proof, err := ProveRange(amount, blind)
		require.NoError(t, err)
		assert.NoError(t, VerifyRange(CommitBytes(amount, blind), proof), "amount=%d", amount)
	}

	blind := RandomScalar()
	proof, err := ProveRange(7, blind)
	require.NoError(t, err)
	assert.Error(t, VerifyRange(CommitBytes(8, blind), proof))
	assert.Error(t, VerifyRange(CommitBytes(7, blind), proof[:len(proof)-5]))
}

func buildRing(t *testing.T, size, real int, amount uint64) ([]RingMember, kyber.Scalar, kyber.Scalar) {
	t.Helper()
	ring := make([]RingMember, size)
	var spend, blind kyber.Scalar
	for i := 0; i < size; i++ {
		x, pub := KeyPair()
		r := RandomScalar()
		a := uint64(i + 1)
		if i == real {
			spend, blind, a = x, r, amount
		}
		ring[i] = RingMember{SpendKey: PointBytes(pub), Commitment: CommitBytes(a, r)}
	}
	return ring, spend, blind
}

func TestSignVerifyInput(t *testing.T) {
	msg := []byte("signing-hash")
	ring, spend, blind := buildRing(t, 4, 2, 1000)

	proof, err := SignInput(msg, ring, InputSecret{Index: 2, SpendKey: spend, Amount: 1000, Blind: blind}, nil)
	require.NoError(t, err)
	require.NoError(t, VerifyInput(msg, ring, proof.KeyImage, proof.Pseudo, proof.SpendSig, proof.CommitSig))

	// key image 只由私钥决定
	assert.Equal(t, KeyImage(spend), proof.KeyImage)
	again, err := SignInput([]byte("other"), ring, InputSecret{Index: 2, SpendKey: spend, Amount: 1000, Blind: blind}, nil)
	require.NoError(t, err)
	assert.Equal(t, proof.KeyImage, again.KeyImage)

	// 消息、key image、伪承诺被篡改都要失败
	assert.Error(t, VerifyInput([]byte("tampered"), ring, proof.KeyImage, proof.Pseudo, proof.SpendSig, proof.CommitSig))
	assert.Error(t, VerifyInput(msg, ring, KeyImage(RandomScalar()), proof.Pseudo, proof.SpendSig, proof.CommitSig))
	assert.Error(t, VerifyInput(msg, ring, proof.KeyImage, again.Pseudo, proof.SpendSig, proof.CommitSig))
}

func TestSignInputRejectsWrongOpening(t *testing.T) {
	ring, spend, blind := buildRing(t, 3, 0, 50)
	_, err := SignInput([]byte("m"), ring, InputSecret{Index: 0, SpendKey: spend, Amount: 51, Blind: blind}, nil)
	assert.Error(t, err)

	_, err = SignInput([]byte("m"), ring, InputSecret{Index: 1, SpendKey: spend, Amount: 50, Blind: blind}, nil)
	assert.Error(t, err)
}
