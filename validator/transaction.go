package validator

import (
	"bytes"
	"encoding/hex"
	"errors"
	"posnode/interfaces"
	"posnode/ringct"
	"posnode/types"
	"posnode/utils"
	"posnode/vdf"
	"time"
)

// VerifyTransaction 交易校验流水线。奖励交易只能作为区块的一部分校验，单独提交一律 Invalid
func (v *Validator) VerifyTransaction(tx *types.Transaction) (result types.VerifyResult) {
	start := time.Now()
	defer func() {
		v.stats.RecordVerify("tx", result.String(), time.Since(start))
	}()

	if r := VerifyStructure(tx); r != types.Succeed {
		return r
	}
	if tx.IsCoinbase() {
		v.logger.Debug("[Validator] tx %s: reward outputs outside a block", tx.TxnId.Short())
		return types.Invalid
	}

	if r := v.verifyTimeLock(tx); r != types.Succeed {
		return r
	}
	rings, r := v.loadRings(tx)
	if r != types.Succeed {
		return r
	}
	if r := v.verifyKeyImages(tx); r != types.Succeed {
		return r
	}
	if r := verifyBalance(tx); r != types.Succeed {
		return r
	}
	if r := verifyRangeProofs(tx); r != types.Succeed {
		return r
	}
	msg := tx.SigningHash()
	for i := range tx.Vin {
		rct := &tx.Rct[i]
		if err := ringct.VerifyInput(msg[:], rings[i], rct.I, rct.C, rct.M, rct.P); err != nil {
			v.logger.Debug("[Validator] tx %s input %d: %v", tx.TxnId.Short(), i, err)
			return types.UnableToVerify
		}
	}
	return types.Succeed
}

// VerifyStructure 只看交易本身的字段，不访问存储
func VerifyStructure(tx *types.Transaction) types.VerifyResult {
	if tx == nil || len(tx.Vout) == 0 {
		return types.Invalid
	}
	if tx.TxnId != tx.ComputeID() {
		return types.Invalid
	}
	changes := 0
	for i := range tx.Vout {
		out := &tx.Vout[i]
		if !out.T.Valid() || len(out.C) == 0 || len(out.P) == 0 {
			return types.Invalid
		}
		if out.T == types.CoinChange {
			changes++
		}
	}

	if tx.IsCoinbase() {
		// 奖励交易没有输入，金额明文
		if len(tx.Vin) != 0 || len(tx.Rct) != 0 || len(tx.Bp) != 0 {
			return types.Invalid
		}
		return types.Succeed
	}

	if len(tx.Vin) == 0 || len(tx.Rct) != len(tx.Vin) || len(tx.Bp) != changes {
		return types.Invalid
	}
	for i := range tx.Vin {
		in := &tx.Vin[i]
		if len(in.KeyImage) == 0 || len(in.Offsets) == 0 {
			return types.Invalid
		}
		if tx.Mix > 0 && len(in.Offsets) != int(tx.Mix) {
			return types.Invalid
		}
		if !bytes.Equal(in.KeyImage, tx.Rct[i].I) {
			return types.Invalid
		}
	}
	return types.Succeed
}

func (v *Validator) verifyTimeLock(tx *types.Transaction) types.VerifyResult {
	vt := tx.Vtime
	if vt == nil || vt.I < v.minLockDelay {
		return types.Invalid
	}
	msg := tx.SigningHash()
	if !bytes.Equal(vt.M, msg[:]) {
		return types.UnableToVerify
	}
	if !vdf.VerifyBytes(vt.I, vt.M, vt.N) {
		return types.UnableToVerify
	}
	lockTime, err := utils.ParseLockTimeScript(vt.S)
	if err != nil || lockTime != vt.L {
		return types.UnableToVerify
	}
	return types.Succeed
}

// loadRings 把每个输入引用的承诺换成链上输出
func (v *Validator) loadRings(tx *types.Transaction) ([][]ringct.RingMember, types.VerifyResult) {
	now := v.now()
	rings := make([][]ringct.RingMember, len(tx.Vin))
	for i := range tx.Vin {
		ring := make([]ringct.RingMember, 0, len(tx.Vin[i].Offsets))
		for _, commitment := range tx.Vin[i].Offsets {
			out, err := v.store.GetOutput(commitment)
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil, types.CommitmentNotFound
			}
			if err != nil {
				v.logger.Error("[Validator] output lookup failed: %v", err)
				return nil, types.Unknown
			}
			if out.T == types.CoinCoinbase || out.T == types.CoinCoinstake {
				if !utils.LockTimeExpired(out.S, now) {
					return nil, types.UnableToVerify
				}
			}
			ring = append(ring, ringct.RingMember{SpendKey: out.P, Commitment: out.C})
		}
		rings[i] = ring
	}
	return rings, types.Succeed
}

func (v *Validator) verifyKeyImages(tx *types.Transaction) types.VerifyResult {
	seen := make(map[string]struct{}, len(tx.Vin))
	for _, image := range tx.KeyImages() {
		k := hex.EncodeToString(image)
		if _, dup := seen[k]; dup {
			return types.KeyImageAlreadyExists
		}
		seen[k] = struct{}{}

		exists, err := v.store.KeyImageExists(image)
		if err != nil {
			v.logger.Error("[Validator] key image lookup failed: %v", err)
			return types.Unknown
		}
		if exists {
			return types.KeyImageAlreadyExists
		}
	}
	return types.Succeed
}

func verifyBalance(tx *types.Transaction) types.VerifyResult {
	inputs := make([][]byte, 0, len(tx.Rct))
	for i := range tx.Rct {
		inputs = append(inputs, tx.Rct[i].C)
	}
	outputs := make([][]byte, 0, len(tx.Vout))
	for i := range tx.Vout {
		outputs = append(outputs, tx.Vout[i].C)
	}
	if !ringct.Balanced(inputs, outputs) {
		return types.UnableToVerify
	}
	return types.Succeed
}

// verifyRangeProofs Bp 与找零输出按顺序一一对应
func verifyRangeProofs(tx *types.Transaction) types.VerifyResult {
	next := 0
	for i := range tx.Vout {
		if tx.Vout[i].T != types.CoinChange {
			continue
		}
		if err := ringct.VerifyRange(tx.Vout[i].C, tx.Bp[next].Proof); err != nil {
			return types.UnableToVerify
		}
		next++
	}
	return types.Succeed
}
