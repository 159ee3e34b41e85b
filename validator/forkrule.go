package validator

import (
	"errors"
	"posnode/interfaces"
	"posnode/types"
)

// ForkRule 比较竞争链段与本地重叠窗口的累计难度。
// 链段必须接在本地 from-1 高度的区块之后，且每个区块都要通过完整校验。
// 竞争链段累计难度更大或长度不同即接受：删除本地 from 及以上的全部区块，再写入链段。
func (v *Validator) ForkRule(segment []*types.Block) types.VerifyResult {
	if len(segment) == 0 {
		return types.Invalid
	}
	for i, b := range segment {
		if b == nil || b.Height == 0 {
			return types.Invalid
		}
		if i > 0 && (b.Height != segment[i-1].Height+1 || b.BlockHeader.PrevBlockHash != segment[i-1].Hash) {
			return types.Invalid
		}
	}

	from := segment[0].Height
	anchor, err := v.store.GetBlockByHeight(from - 1)
	if errors.Is(err, interfaces.ErrNotFound) {
		return types.UnableToVerify
	}
	if err != nil {
		v.logger.Error("[Validator] fork anchor lookup failed height=%d: %v", from-1, err)
		return types.Unknown
	}
	if segment[0].BlockHeader.PrevBlockHash != anchor.Hash {
		v.logger.Info("[Validator] fork rejected from=%d: does not extend local block %s", from, anchor.Hash.Short())
		return types.UnableToVerify
	}

	// 区块头先逐块校验，此时本地链还没动
	prev := anchor
	for _, b := range segment {
		if r := v.runChecks(b, prev, v.headerChecks()); r != types.Succeed {
			v.logger.Info("[Validator] fork rejected from=%d: block height=%d %s", from, b.Height, r)
			return r
		}
		prev = b
	}

	tail, err := v.localTail(from)
	if err != nil {
		v.logger.Error("[Validator] fork window lookup failed from=%d: %v", from, err)
		return types.Unknown
	}
	overlap := tail
	if len(overlap) > len(segment) {
		overlap = overlap[:len(segment)]
	}

	var localBits, otherBits uint64
	for _, b := range overlap {
		localBits += b.BlockPos.Bits
	}
	for _, b := range segment {
		otherBits += b.BlockPos.Bits
	}
	if otherBits <= localBits && len(overlap) == len(segment) {
		v.logger.Info("[Validator] fork rejected from=%d local_bits=%d other_bits=%d", from, localBits, otherBits)
		return types.UnableToVerify
	}

	if r := v.replaceTail(tail, segment); r != types.Succeed {
		return r
	}
	v.logger.Info("[Validator] fork accepted from=%d blocks=%d replaced=%d local_bits=%d other_bits=%d",
		from, len(segment), len(tail), localBits, otherBits)
	return types.Succeed
}

// localTail 本地高度 >= from 的全部区块，按高度升序
func (v *Validator) localTail(from uint64) ([]*types.Block, error) {
	height, err := v.store.BlockHeight()
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if height < from {
		return nil, nil
	}
	return v.store.GetBlocks(from, height-from+1)
}

// replaceTail 删除本地尾部后逐块校验交易并写入链段。
// 交易要在旧尾部删除之后才能校验（key image、输出都以 from-1 为准），失败时恢复原状
func (v *Validator) replaceTail(tail, segment []*types.Block) types.VerifyResult {
	for i := len(tail) - 1; i >= 0; i-- {
		if err := v.store.DeleteBlock(tail[i].Hash); err != nil {
			v.logger.Error("[Validator] fork delete height=%d: %v", tail[i].Height, err)
			v.restoreTail(nil, tail[i+1:])
			return types.Unknown
		}
	}
	for i, b := range segment {
		if r := v.verifyBlockTransactions(b, nil); r != types.Succeed {
			v.logger.Warn("[Validator] fork block height=%d hash=%s failed transactions: %s", b.Height, b.Hash.Short(), r)
			v.restoreTail(segment[:i], tail)
			return r
		}
		saved, err := v.store.PutBlock(b)
		if err != nil || !saved {
			v.logger.Error("[Validator] fork put height=%d saved=%v: %v", b.Height, saved, err)
			v.restoreTail(segment[:i], tail)
			return types.Unknown
		}
	}
	return types.Succeed
}

func (v *Validator) restoreTail(added, tail []*types.Block) {
	for i := len(added) - 1; i >= 0; i-- {
		if err := v.store.DeleteBlock(added[i].Hash); err != nil {
			v.logger.Error("[Validator] fork rollback delete height=%d: %v", added[i].Height, err)
		}
	}
	for _, b := range tail {
		if _, err := v.store.PutBlock(b); err != nil {
			v.logger.Error("[Validator] fork rollback put height=%d: %v", b.Height, err)
		}
	}
}
