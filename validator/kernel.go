package validator

import (
	"context"
	"math/big"
	"posnode/types"
	"posnode/vdf"
	"time"
)

// TxSetHash h = H(h ∥ txid)，跳过 coinstake 交易
func TxSetHash(txs []types.Transaction) types.Hash {
	var h types.Hash
	for i := range txs {
		if txs[i].IsCoinstake() {
			continue
		}
		h = types.Sum(h[:], txs[i].TxnId[:])
	}
	return h
}

func hashInt(data []byte) *big.Int {
	h := types.Sum(data)
	return new(big.Int).SetBytes(h[:])
}

// Kernel H( (int(H(txSetHash)) * int(H(prevHash)) * int(H(round))) mod P )
func Kernel(prevHash, txSetHash types.Hash, round uint64) types.Hash {
	k := hashInt(txSetHash[:])
	k.Mul(k, hashInt(prevHash[:]))
	k.Mod(k, vdf.P)
	k.Mul(k, hashInt(types.RoundBytes(round)))
	k.Mod(k, vdf.P)
	return types.Sum(k.FillBytes(make([]byte, types.HashSize)))
}

// searchCheckEvery 每多少次迭代检查一次超时
const searchCheckEvery = 1024

// SearchSolution 加权竞速：找第一个 i 使 int(H(proof))*i >= int(H(output))。
// 超时或取消时返回 0。
func SearchSolution(ctx context.Context, proof, output []byte, timeout time.Duration) uint64 {
	target := hashInt(proof)
	goal := hashInt(output)
	if target.Sign() == 0 {
		return 0
	}
	deadline := time.Now().Add(timeout)
	acc := new(big.Int)
	for i := uint64(0); ; i++ {
		if acc.Cmp(goal) >= 0 {
			return i
		}
		if i%searchCheckEvery == 0 && i > 0 {
			if ctx.Err() != nil || time.Now().After(deadline) {
				return 0
			}
		}
		acc.Add(acc, target)
	}
}

// VerifySolution 解满足不等式且是最小的那个
func VerifySolution(proof, output []byte, solution uint64) bool {
	if solution == 0 {
		return false
	}
	target := hashInt(proof)
	goal := hashInt(output)
	if target.Sign() == 0 {
		return false
	}
	sol := new(big.Int).SetUint64(solution)
	if new(big.Int).Mul(target, sol).Cmp(goal) < 0 {
		return false
	}
	sol.Sub(sol, big.NewInt(1))
	return new(big.Int).Mul(target, sol).Cmp(goal) < 0
}
