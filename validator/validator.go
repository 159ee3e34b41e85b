// Package validator 实现区块与交易的共识校验。校验器本身不保存状态，链数据只通过 ChainStore 借用。
package validator

import (
	"errors"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
	"time"
)

// Validator 区块/交易校验
type Validator struct {
	store        interfaces.ChainStore
	vrf          interfaces.VRF
	minLockDelay uint64
	logger       logs.Logger
	stats        *stats.Stats

	// now 锁定脚本到期判断使用的时钟
	now func() time.Time
}

func New(store interfaces.ChainStore, vrf interfaces.VRF, minLockDelay uint64, logger logs.Logger, st *stats.Stats) *Validator {
	if logger == nil {
		logger = logs.NewNodeLogger("validator", 0)
	}
	return &Validator{
		store:        store,
		vrf:          vrf,
		minLockDelay: minLockDelay,
		logger:       logger,
		stats:        st,
		now:          time.Now,
	}
}

// SetClock 测试用
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// BlockHeightExists 该高度已有区块时返回 AlreadyExists
func (v *Validator) BlockHeightExists(height uint64) types.VerifyResult {
	_, err := v.store.GetBlockByHeight(height)
	switch {
	case err == nil:
		return types.AlreadyExists
	case errors.Is(err, interfaces.ErrNotFound):
		return types.Succeed
	default:
		v.logger.Error("[Validator] block height lookup failed height=%d: %v", height, err)
		return types.Unknown
	}
}

// BlockExists 按哈希判断
func (v *Validator) BlockExists(hash types.Hash) types.VerifyResult {
	_, err := v.store.GetBlock(hash)
	switch {
	case err == nil:
		return types.AlreadyExists
	case errors.Is(err, interfaces.ErrNotFound):
		return types.Succeed
	default:
		v.logger.Error("[Validator] block lookup failed hash=%s: %v", hash.Short(), err)
		return types.Unknown
	}
}
