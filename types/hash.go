package types

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// HashSize 所有哈希统一 32 字节
const HashSize = 32

// Hash 32 字节哈希（区块哈希、交易ID、Merkle 根等）
type Hash [HashSize]byte

// ZeroHash 全零哈希
var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Short 日志里用的短格式
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// HashFromBytes 从字节切片构造哈希，长度必须为 32
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash 解析 hex 字符串
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// MustParseHash 仅用于常量初始化
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Sum BLAKE2b-256，共识里所有 "hash" 都走这里
func Sum(data ...[]byte) Hash {
	hasher, _ := blake2b.New256(nil)
	for _, d := range data {
		hasher.Write(d)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// NodeID 节点标识（由公钥派生的 64 位整数）
type NodeID uint64

func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
