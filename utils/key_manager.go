package utils

import (
	"crypto/sha256"
	"fmt"
	"posnode/logs"
	"posnode/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// NodeKey 节点的 secp256k1 身份密钥，负责 BlockGraph 签名
type NodeKey struct {
	priv    *btcec.PrivateKey
	pub     []byte // 压缩公钥
	nodeID  types.NodeID
	address string
}

// NewNodeKey 从 WIF / hex 字符串加载；为空时随机生成
func NewNodeKey(keyStr string) (*NodeKey, error) {
	var (
		priv *btcec.PrivateKey
		err  error
	)
	if keyStr == "" {
		priv, err = btcec.NewPrivateKey()
	} else {
		priv, err = ParseSecp256k1PrivateKey(keyStr)
	}
	if err != nil {
		return nil, err
	}
	return NodeKeyFromPrivate(priv)
}

// NodeKeyFromPrivate 由已有私钥构造
func NodeKeyFromPrivate(priv *btcec.PrivateKey) (*NodeKey, error) {
	pub := priv.PubKey().SerializeCompressed()
	addr, err := DeriveBtcBech32Address(priv.PubKey())
	if err != nil {
		return nil, err
	}
	k := &NodeKey{
		priv:    priv,
		pub:     pub,
		nodeID:  NodeIDFromPublicKey(pub),
		address: addr,
	}
	logs.Debug("[NodeKey] loaded node=%s address=%s", k.nodeID, k.address)
	return k, nil
}

// Sign 对消息的 BLAKE2b 摘要做 ECDSA 签名，返回 DER 签名和压缩公钥
func (k *NodeKey) Sign(msg []byte) ([]byte, []byte, error) {
	digest := types.Sum(msg)
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize(), k.PublicKey(), nil
}

// Verify 见 VerifySignature
func (k *NodeKey) Verify(sig, pub, msg []byte) bool {
	return VerifySignature(sig, pub, msg)
}

// PublicKey 压缩公钥副本
func (k *NodeKey) PublicKey() []byte {
	return append([]byte(nil), k.pub...)
}

func (k *NodeKey) NodeID() types.NodeID {
	return k.nodeID
}

// Address bech32 奖励地址
func (k *NodeKey) Address() string {
	return k.address
}

// BLSPrivateKey 派生 VRF 用的 BLS 私钥
func (k *NodeKey) BLSPrivateKey() []byte {
	hash := sha256.Sum256(k.priv.Serialize())
	return hash[:]
}

// VerifySignature 校验 DER 签名
func VerifySignature(sig, pub, msg []byte) bool {
	pubKey, err := btcec.ParsePubKey(pub)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := types.Sum(msg)
	return parsed.Verify(digest[:], pubKey)
}

// String 不输出私钥
func (k *NodeKey) String() string {
	return fmt.Sprintf("NodeKey{node=%s address=%s}", k.nodeID, k.address)
}
