package ringct

import (
	"bytes"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/anon"
)

// keyImageScope 可链接签名的链接范围，同一花费私钥在该范围内的标签（key image）恒定
var keyImageScope = []byte("key-image")

// RingMember 环成员：一次性花费公钥 + 输出承诺
type RingMember struct {
	SpendKey   []byte
	Commitment []byte
}

// InputSecret 真实输入的秘密
type InputSecret struct {
	Index    int          // 在环中的位置
	SpendKey kyber.Scalar // 一次性花费私钥
	Amount   uint64
	Blind    kyber.Scalar // 真实输出承诺的盲化因子
}

// InputProof 单个输入的签名材料
type InputProof struct {
	KeyImage    []byte
	Pseudo      []byte // 伪输出承诺
	SpendSig    []byte // 对花费公钥环的可链接签名
	CommitSig   []byte // 对 (C_i - Pseudo) 环的签名
	PseudoBlind kyber.Scalar
}

func ringSets(ring []RingMember, pseudo kyber.Point) (anon.Set, anon.Set, error) {
	spend := make(anon.Set, 0, len(ring))
	diff := make(anon.Set, 0, len(ring))
	for i, m := range ring {
		p, err := PointFromBytes(m.SpendKey)
		if err != nil {
			return nil, nil, fmt.Errorf("ring member %d spend key: %w", i, err)
		}
		c, err := PointFromBytes(m.Commitment)
		if err != nil {
			return nil, nil, fmt.Errorf("ring member %d commitment: %w", i, err)
		}
		spend = append(spend, p)
		diff = append(diff, suite.Point().Sub(c, pseudo))
	}
	return spend, diff, nil
}

// SignInput 为一个输入生成 key image、伪承诺和两份环签名。
// pseudoBlind 为 nil 时随机生成；调用方负责让伪承诺之和等于输出承诺之和。
func SignInput(msg []byte, ring []RingMember, secret InputSecret, pseudoBlind kyber.Scalar) (*InputProof, error) {
	if secret.Index < 0 || secret.Index >= len(ring) {
		return nil, errors.New("ringct: real index out of range")
	}
	if !bytes.Equal(ring[secret.Index].SpendKey, PointBytes(PublicKey(secret.SpendKey))) {
		return nil, errors.New("ringct: spend key does not match ring member")
	}
	if pseudoBlind == nil {
		pseudoBlind = RandomScalar()
	}
	pseudo := Commit(secret.Amount, pseudoBlind)

	spendSet, diffSet, err := ringSets(ring, pseudo)
	if err != nil {
		return nil, err
	}
	// C_k - C' = (r_k - r')·G
	z := suite.Scalar().Sub(secret.Blind, pseudoBlind)
	if !diffSet[secret.Index].Equal(PublicKey(z)) {
		return nil, errors.New("ringct: amount or blind does not open the real commitment")
	}

	spendSig := anon.Sign(suite, msg, spendSet, keyImageScope, secret.Index, secret.SpendKey)
	commitSig := anon.Sign(suite, msg, diffSet, nil, secret.Index, z)

	return &InputProof{
		KeyImage:    KeyImage(secret.SpendKey),
		Pseudo:      PointBytes(pseudo),
		SpendSig:    spendSig,
		CommitSig:   commitSig,
		PseudoBlind: pseudoBlind,
	}, nil
}

// KeyImage 花费私钥对应的链接标签
func KeyImage(spendKey kyber.Scalar) []byte {
	base := suite.Point().Pick(suite.XOF(keyImageScope))
	return PointBytes(suite.Point().Mul(spendKey, base))
}

// VerifyInput 校验两份环签名，并确认链接标签等于声明的 key image
func VerifyInput(msg []byte, ring []RingMember, keyImage, pseudo, spendSig, commitSig []byte) error {
	if len(ring) == 0 {
		return errors.New("ringct: empty ring")
	}
	pseudoPoint, err := PointFromBytes(pseudo)
	if err != nil {
		return fmt.Errorf("pseudo commitment: %w", err)
	}
	spendSet, diffSet, err := ringSets(ring, pseudoPoint)
	if err != nil {
		return err
	}
	tag, err := anon.Verify(suite, msg, spendSet, keyImageScope, spendSig)
	if err != nil {
		return fmt.Errorf("spend signature: %w", err)
	}
	if !bytes.Equal(tag, keyImage) {
		return errors.New("ringct: key image does not match linkage tag")
	}
	if _, err := anon.Verify(suite, msg, diffSet, nil, commitSig); err != nil {
		return fmt.Errorf("commitment signature: %w", err)
	}
	return nil
}
