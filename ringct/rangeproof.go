package ringct

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/anon"
)

// RangeBits 金额位数
const RangeBits = 64

// rangeProof 按位分解：C = ΣC_i，每个 C_i 用二元环签名证明它承诺的是 0 或 2^i
type rangeProof struct {
	Commitments [][]byte `msgpack:"c"`
	Signatures  [][]byte `msgpack:"s"`
}

var bitBases = func() []kyber.Point {
	bases := make([]kyber.Point, RangeBits)
	s := suite.Scalar().One()
	for i := 0; i < RangeBits; i++ {
		bases[i] = suite.Point().Mul(s, H)
		s = suite.Scalar().Add(s, s)
	}
	return bases
}()

func bitMessage(commitment []byte, i int) []byte {
	msg := make([]byte, 0, len(commitment)+4)
	msg = append(msg, commitment...)
	return binary.BigEndian.AppendUint32(msg, uint32(i))
}

// ProveRange 证明 Commit(amount, blind) 中的金额落在 [0, 2^64)
func ProveRange(amount uint64, blind kyber.Scalar) ([]byte, error) {
	commitment := CommitBytes(amount, blind)
	proof := rangeProof{
		Commitments: make([][]byte, RangeBits),
		Signatures:  make([][]byte, RangeBits),
	}
	rest := suite.Scalar().Set(blind)
	for i := 0; i < RangeBits; i++ {
		var r kyber.Scalar
		if i == RangeBits-1 {
			r = rest
		} else {
			r = RandomScalar()
			rest = suite.Scalar().Sub(rest, r)
		}
		ci := suite.Point().Mul(r, nil)
		mine := 0
		if amount>>uint(i)&1 == 1 {
			ci.Add(ci, bitBases[i])
			mine = 1
		}
		set := anon.Set{ci, suite.Point().Sub(ci, bitBases[i])}
		proof.Commitments[i] = PointBytes(ci)
		proof.Signatures[i] = anon.Sign(suite, bitMessage(commitment, i), set, nil, mine, r)
	}
	data, err := msgpack.Marshal(&proof)
	if err != nil {
		return nil, fmt.Errorf("encode range proof: %w", err)
	}
	return data, nil
}

// VerifyRange 校验范围证明与承诺对应
func VerifyRange(commitment, proofBytes []byte) error {
	c, err := PointFromBytes(commitment)
	if err != nil {
		return err
	}
	var proof rangeProof
	if err := msgpack.Unmarshal(proofBytes, &proof); err != nil {
		return fmt.Errorf("decode range proof: %w", err)
	}
	if len(proof.Commitments) != RangeBits || len(proof.Signatures) != RangeBits {
		return errors.New("ringct: range proof has wrong length")
	}
	sum := suite.Point().Null()
	for i := 0; i < RangeBits; i++ {
		ci, err := PointFromBytes(proof.Commitments[i])
		if err != nil {
			return fmt.Errorf("bit %d: %w", i, err)
		}
		set := anon.Set{ci, suite.Point().Sub(ci, bitBases[i])}
		if _, err := anon.Verify(suite, bitMessage(commitment, i), set, nil, proof.Signatures[i]); err != nil {
			return fmt.Errorf("bit %d: %w", i, err)
		}
		sum.Add(sum, ci)
	}
	if !sum.Equal(c) {
		return errors.New("ringct: bit commitments do not sum to commitment")
	}
	return nil
}
