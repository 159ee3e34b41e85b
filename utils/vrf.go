package utils

import (
	"crypto/sha256"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
)

// VRFProofSize bn256 G1 点的编码长度
const VRFProofSize = 64

// VRFProvider VRF提供者实现
// 基于BLS签名实现VRF功能：证明 = BLS 签名，输出 = sha256(证明)
type VRFProvider struct {
	suite  *bn256.Suite
	priv   kyber.Scalar
	pub    kyber.Point
	pubBin []byte
}

// NewVRFProvider 用 32 字节种子派生 BLS 密钥对（见 NodeKey.BLSPrivateKey）
func NewVRFProvider(seed []byte) (*VRFProvider, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty VRF seed")
	}
	suite := bn256.NewSuite()
	priv := suite.G2().Scalar().SetBytes(seed)
	pub := suite.G2().Point().Mul(priv, nil)
	pubBin, err := pub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode BLS public key: %w", err)
	}
	return &VRFProvider{suite: suite, priv: priv, pub: pub, pubBin: pubBin}, nil
}

// PublicKey 序列化的 BLS 公钥（写入 BlockPoS.PublicKey）
func (v *VRFProvider) PublicKey() []byte {
	return append([]byte(nil), v.pubBin...)
}

// Prove 对消息生成 VRF 证明
func (v *VRFProvider) Prove(msg []byte) ([]byte, error) {
	proof, err := bls.Sign(v.suite, v.priv, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate VRF proof: %w", err)
	}
	return proof, nil
}

// Verify 校验证明并返回 VRF 输出
func (v *VRFProvider) Verify(publicKey, msg, proof []byte) ([]byte, error) {
	if len(proof) != VRFProofSize {
		return nil, fmt.Errorf("VRF proof length %d, want %d", len(proof), VRFProofSize)
	}
	pub := v.suite.G2().Point()
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return nil, fmt.Errorf("invalid VRF public key: %w", err)
	}
	if err := bls.Verify(v.suite, pub, msg, proof); err != nil {
		return nil, fmt.Errorf("VRF proof verification failed: %w", err)
	}
	output := sha256.Sum256(proof)
	return output[:], nil
}
