package utils

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// DeriveBtcBech32Address 从公钥生成 bc1q… P2WPKH 地址（出块奖励地址）
func DeriveBtcBech32Address(pub *btcec.PublicKey) (string, error) {
	// 1. 压缩公钥哈希 (Hash160 == SHA-256 + RIPEMD-160)
	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())

	// 2. 使用 btcutil.NewAddressWitnessPubKeyHash 生成 P2WPKH 地址
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}

	return addr.String(), nil
}

// DecodeRewardAddress 返回地址的 witness program
func DecodeRewardAddress(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	if _, ok := decoded.(*btcutil.AddressWitnessPubKeyHash); !ok {
		return nil, errors.New("reward address must be P2WPKH")
	}
	return decoded.ScriptAddress(), nil
}

// ParseSecp256k1PrivateKey 支持 WIF 或 32 字节 hex
func ParseSecp256k1PrivateKey(keyStr string) (*btcec.PrivateKey, error) {
	// 1) 尝试当作WIF解析
	if wif, err := btcutil.DecodeWIF(keyStr); err == nil {
		return wif.PrivKey, nil
	}

	// 2) 如果不是WIF，则尝试按Hex进行解析
	raw, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, errors.New("invalid key (neither valid WIF nor valid hex): " + err.Error())
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid private key length in hex (must be 32 bytes)")
	}

	// 3) 使用 32 字节原生私钥
	privKey, _ := btcec.PrivKeyFromBytes(raw)
	return privKey, nil
}
