// Package ringct 提供机密交易所需的密码学原语：
// Pedersen 承诺、按位范围证明和每个输入的环签名材料。
package ringct

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

// PointSize / ScalarSize ed25519 编码长度
const (
	PointSize  = 32
	ScalarSize = 32
)

var (
	suite = edwards25519.NewBlakeSHA256Ed25519()

	// H 金额生成元，与 G 的离散对数关系未知
	H = suite.Point().Pick(suite.XOF([]byte("pedersen-H")))

	ErrBadPoint = errors.New("ringct: invalid point encoding")
)

// G 基点
func G() kyber.Point {
	return suite.Point().Base()
}

// RandomScalar 随机盲化因子 / 私钥
func RandomScalar() kyber.Scalar {
	return suite.Scalar().Pick(suite.RandomStream())
}

// KeyPair 随机密钥对
func KeyPair() (kyber.Scalar, kyber.Point) {
	x := RandomScalar()
	return x, suite.Point().Mul(x, nil)
}

// PublicKey x·G
func PublicKey(x kyber.Scalar) kyber.Point {
	return suite.Point().Mul(x, nil)
}

// AmountScalar 任意 uint64 金额转标量
func AmountScalar(amount uint64) kyber.Scalar {
	s := suite.Scalar().SetInt64(int64(amount >> 1))
	s.Add(s, s)
	return s.Add(s, suite.Scalar().SetInt64(int64(amount&1)))
}

// Commit C = amount·H + blind·G
func Commit(amount uint64, blind kyber.Scalar) kyber.Point {
	aH := suite.Point().Mul(AmountScalar(amount), H)
	bG := suite.Point().Mul(blind, nil)
	return suite.Point().Add(aH, bG)
}

// CommitBytes 编码后的承诺
func CommitBytes(amount uint64, blind kyber.Scalar) []byte {
	return PointBytes(Commit(amount, blind))
}

// CoinstakeBlind 出块奖励输出的确定性盲化因子 H("coinstake" ∥ P)，任何节点都能复算
func CoinstakeBlind(spendKey []byte) kyber.Scalar {
	h := suite.Hash()
	h.Write([]byte("coinstake"))
	h.Write(spendKey)
	return suite.Scalar().SetBytes(h.Sum(nil))
}

// VerifyClearCommitment 明文金额输出：C == A·H + CoinstakeBlind(P)·G
func VerifyClearCommitment(amount uint64, spendKey, commitment []byte) bool {
	c, err := PointFromBytes(commitment)
	if err != nil {
		return false
	}
	return c.Equal(Commit(amount, CoinstakeBlind(spendKey)))
}

// PointBytes 点编码
func PointBytes(p kyber.Point) []byte {
	b, err := p.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("ringct: marshal point: %v", err))
	}
	return b
}

// ScalarBytes 标量编码
func ScalarBytes(s kyber.Scalar) []byte {
	b, err := s.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("ringct: marshal scalar: %v", err))
	}
	return b
}

// PointFromBytes 点解码
func PointFromBytes(b []byte) (kyber.Point, error) {
	if len(b) != PointSize {
		return nil, ErrBadPoint
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPoint, err)
	}
	return p, nil
}

// ScalarFromBytes 标量解码
func ScalarFromBytes(b []byte) (kyber.Scalar, error) {
	if len(b) != ScalarSize {
		return nil, errors.New("ringct: invalid scalar encoding")
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("ringct: invalid scalar encoding: %w", err)
	}
	return s, nil
}

// SumCommitments 承诺求和；任一编码非法时返回错误
func SumCommitments(commitments [][]byte) (kyber.Point, error) {
	sum := suite.Point().Null()
	for _, c := range commitments {
		p, err := PointFromBytes(c)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, p)
	}
	return sum, nil
}

// Balanced ΣinputC == ΣoutputC
func Balanced(inputs, outputs [][]byte) bool {
	in, err := SumCommitments(inputs)
	if err != nil {
		return false
	}
	out, err := SumCommitments(outputs)
	if err != nil {
		return false
	}
	return in.Equal(out)
}
