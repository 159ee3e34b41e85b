// Package vdf 实现 Sloth 可验证延迟函数：对固定素数反复开平方。
// 求值是严格串行的，验证只需 t 次平方。
package vdf

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// P secp256k1 基域素数，P ≡ 3 (mod 4)
	P = new(big.Int).Set(secp256k1.S256().Params().P)

	// sqrtExp (P+1)/4
	sqrtExp = new(big.Int).Rsh(new(big.Int).Add(P, big.NewInt(1)), 2)

	ErrInvalidSeed = errors.New("vdf: seed out of range")
)

// checkCancelEvery 每多少次迭代检查一次取消/超时
const checkCancelEvery = 64

// Seed 把 VRF 输出等字节串规范化为 [1, P) 内的正整数
func Seed(b []byte) *big.Int {
	x := new(big.Int).SetBytes(b)
	x.Mod(x, P)
	if x.Sign() == 0 {
		x.SetInt64(1)
	}
	return x
}

func isEven(x *big.Int) bool {
	return x.Bit(0) == 0
}

// step 一次开方：x 为二次剩余时取偶数根，否则对 P-x 开方取奇数根
func step(x *big.Int) *big.Int {
	y := new(big.Int)
	if big.Jacobi(x, P) >= 0 {
		y.Exp(x, sqrtExp, P)
		if !isEven(y) {
			y.Sub(P, y)
		}
		return y
	}
	y.Sub(P, x)
	y.Exp(y, sqrtExp, P)
	if isEven(y) {
		y.Sub(P, y)
	}
	return y
}

// Eval 从 x 出发做 t 次开方。deadline 到期或 ctx 取消时返回 nil
func Eval(ctx context.Context, t uint64, x *big.Int, deadline time.Time) (*big.Int, error) {
	if x == nil || x.Sign() <= 0 || x.Cmp(P) >= 0 {
		return nil, ErrInvalidSeed
	}
	y := new(big.Int).Set(x)
	for i := uint64(0); i < t; i++ {
		if i%checkCancelEvery == 0 {
			if ctx.Err() != nil {
				return nil, nil
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return nil, nil
			}
		}
		y = step(y)
	}
	return y, nil
}

// Verify 从 y 正向做 t 次平方，偶数取 y²，奇数取 P-y²，结果应回到 x
func Verify(t uint64, x, y *big.Int) bool {
	if x == nil || y == nil {
		return false
	}
	if x.Sign() <= 0 || x.Cmp(P) >= 0 || y.Sign() < 0 || y.Cmp(P) >= 0 {
		return false
	}
	cur := new(big.Int).Set(y)
	sq := new(big.Int)
	for i := uint64(0); i < t; i++ {
		odd := !isEven(cur)
		sq.Mul(cur, cur)
		sq.Mod(sq, P)
		if odd {
			sq.Sub(P, sq)
			if sq.Cmp(P) == 0 {
				sq.SetInt64(0)
			}
		}
		cur.Set(sq)
	}
	return cur.Cmp(x) == 0
}

// EvalBytes / VerifyBytes 供区块字段（Nonce、Vtime.N）使用的大端编码
func EvalBytes(ctx context.Context, t uint64, seed []byte, deadline time.Time) ([]byte, error) {
	y, err := Eval(ctx, t, Seed(seed), deadline)
	if err != nil || y == nil {
		return nil, err
	}
	return y.Bytes(), nil
}

func VerifyBytes(t uint64, seed, nonce []byte) bool {
	if len(nonce) == 0 || len(nonce) > 32 {
		return false
	}
	return Verify(t, Seed(seed), new(big.Int).SetBytes(nonce))
}
