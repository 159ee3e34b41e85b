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

// blockCheck 流水线中的一步，prev 为父块，找不到时为 nil
type blockCheck struct {
	name string
	fn   func(b, prev *types.Block) types.VerifyResult
}

// VerifyBlock 区块校验流水线，遇到第一个失败即返回
func (v *Validator) VerifyBlock(block *types.Block) (result types.VerifyResult) {
	start := time.Now()
	defer func() {
		v.stats.RecordVerify("block", result.String(), time.Since(start))
	}()

	if block == nil {
		return types.Invalid
	}
	if block.IsGenesis() {
		if block.Hash == types.GenesisBlock().Hash && block.ComputeHash(types.GenesisPrevHash) == block.Hash {
			return types.Succeed
		}
		return types.Invalid
	}

	prev, err := v.store.GetBlock(block.BlockHeader.PrevBlockHash)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		v.logger.Error("[Validator] previous block lookup failed: %v", err)
		return types.Unknown
	}
	checks := append(v.headerChecks(), blockCheck{"transactions", v.verifyBlockTransactions})
	return v.runChecks(block, prev, checks)
}

// headerChecks 不依赖链上交易状态的检查
func (v *Validator) headerChecks() []blockCheck {
	return []blockCheck{
		{"vdf", v.verifyBlockVdf},
		{"coinstake", v.verifyCoinstake},
		{"vrf", v.verifyKernelVrf},
		{"solution", v.verifySolution},
		{"bits", v.verifyBits},
		{"locktime", v.verifyLockTime},
		{"chain", v.verifyChaining},
		{"keyimages", v.verifyBlockKeyImages},
	}
}

func (v *Validator) runChecks(b, prev *types.Block, checks []blockCheck) types.VerifyResult {
	for _, c := range checks {
		if r := c.fn(b, prev); r != types.Succeed {
			v.logger.Warn("[Validator] block height=%d hash=%s failed %s: %s", b.Height, b.Hash.Short(), c.name, r)
			return r
		}
	}
	return types.Succeed
}

func (v *Validator) verifyBlockVdf(b, _ *types.Block) types.VerifyResult {
	pos := &b.BlockPos
	if pos.Bits == 0 || len(pos.VrfSig) == 0 {
		return types.Invalid
	}
	if !vdf.VerifyBytes(pos.Bits, pos.VrfSig, pos.Nonce) {
		return types.UnableToVerify
	}
	return types.Succeed
}

// rewardTransaction 区块里唯一的奖励交易
func rewardTransaction(b *types.Block) (*types.Transaction, types.VerifyResult) {
	var found *types.Transaction
	for i := range b.Txs {
		if !b.Txs[i].IsCoinbase() {
			continue
		}
		if found != nil {
			return nil, types.Invalid
		}
		found = &b.Txs[i]
	}
	if found == nil {
		return nil, types.Invalid
	}
	return found, types.Succeed
}

// verifyCoinstake 奖励交易恰好一个 coinstake 输出，全部明文输出之和等于本区块奖励
func (v *Validator) verifyCoinstake(b, _ *types.Block) types.VerifyResult {
	tx, r := rewardTransaction(b)
	if r != types.Succeed {
		return r
	}
	if r := VerifyStructure(tx); r != types.Succeed {
		return r
	}
	var (
		stakes int
		total  uint64
	)
	for i := range tx.Vout {
		out := &tx.Vout[i]
		switch out.T {
		case types.CoinCoinstake:
			stakes++
		case types.CoinCoinbase:
		default:
			return types.Invalid
		}
		if total+out.A < total {
			return types.Invalid
		}
		total += out.A
		if !ringct.VerifyClearCommitment(out.A, out.P, out.C) {
			return types.UnableToVerify
		}
	}
	if stakes != 1 {
		return types.Invalid
	}
	share := NetworkShare(b.BlockPos.Solution, b.Height)
	if total != RewardAmount(share) {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifyKernelVrf(b, _ *types.Block) types.VerifyResult {
	kernel := Kernel(b.BlockHeader.PrevBlockHash, TxSetHash(b.Txs), b.Height)
	output, err := v.vrf.Verify(b.BlockPos.PublicKey, kernel[:], b.BlockPos.VrfProof)
	if err != nil {
		v.logger.Debug("[Validator] vrf verify height=%d: %v", b.Height, err)
		return types.UnableToVerify
	}
	if !bytes.Equal(output, b.BlockPos.VrfSig) {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifySolution(b, _ *types.Block) types.VerifyResult {
	if !VerifySolution(b.BlockPos.VrfProof, b.BlockPos.VrfSig, b.BlockPos.Solution) {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifyBits(b, _ *types.Block) types.VerifyResult {
	share := NetworkShare(b.BlockPos.Solution, b.Height)
	if Difficulty(b.BlockPos.Solution, share) != b.BlockPos.Bits {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifyLockTime(b, _ *types.Block) types.VerifyResult {
	lockTime, err := utils.ParseLockTimeScript(b.BlockHeader.LocktimeScript)
	if err != nil || lockTime != b.BlockHeader.Locktime {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifyChaining(b, prev *types.Block) types.VerifyResult {
	if prev == nil {
		return types.UnableToVerify
	}
	if b.BlockHeader.PrevBlockHash != prev.Hash {
		return types.Invalid
	}
	if b.Height != prev.Height+1 || b.BlockHeader.Height != b.Height {
		return types.Invalid
	}
	if b.NrTx != len(b.Txs) {
		return types.Invalid
	}
	if b.Hash != b.ComputeHash(prev.Hash) {
		return types.UnableToVerify
	}
	if b.BlockHeader.MerkleRoot != utils.MerkleRoot(prev.BlockHeader.MerkleRoot, b.TxIDs()) {
		return types.UnableToVerify
	}
	return types.Succeed
}

func (v *Validator) verifyBlockKeyImages(b, _ *types.Block) types.VerifyResult {
	seen := make(map[string]struct{})
	for i := range b.Txs {
		for _, image := range b.Txs[i].KeyImages() {
			k := hex.EncodeToString(image)
			if _, dup := seen[k]; dup {
				return types.KeyImageAlreadyExists
			}
			seen[k] = struct{}{}
		}
	}
	return types.Succeed
}

// verifyBlockTransactions 奖励交易已由 verifyCoinstake 检查，其余逐笔走交易流水线
func (v *Validator) verifyBlockTransactions(b, _ *types.Block) types.VerifyResult {
	for i := range b.Txs {
		if b.Txs[i].IsCoinbase() {
			continue
		}
		if r := v.VerifyTransaction(&b.Txs[i]); r != types.Succeed {
			return r
		}
	}
	return types.Succeed
}
