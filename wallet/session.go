// Package wallet 节点内置的最小钱包：生成 coinstake 交易，跟踪已上链的奖励输出
package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"posnode/logs"
	"posnode/ringct"
	"posnode/types"
	"posnode/utils"
	"sync"
	"time"

	"go.dedis.ch/kyber/v3"
)

// DefaultMaturity coinstake 输出上链后多久才能被引用为环成员
const DefaultMaturity = time.Hour

// OwnedOutput 属于本钱包的已上链输出
type OwnedOutput struct {
	Out      types.Vout
	SpendKey kyber.Scalar
	TxnId    types.Hash
}

// Session 实现 interfaces.WalletSession
type Session struct {
	mu       sync.Mutex
	keys     map[string]kyber.Scalar // 一次性公钥 hex -> 私钥
	owned    []OwnedOutput
	maturity time.Duration
	now      func() time.Time
	Logger   logs.Logger
}

func NewSession(maturity time.Duration, logger logs.Logger) *Session {
	if maturity <= 0 {
		maturity = DefaultMaturity
	}
	if logger == nil {
		logger = logs.NewNodeLogger("wallet", 0)
	}
	return &Session{
		keys:     make(map[string]kyber.Scalar),
		maturity: maturity,
		now:      time.Now,
		Logger:   logger,
	}
}

// CreateStakeTransaction 生成 coinstake 交易：明文金额，盲化因子由一次性公钥确定，
// 附言里写入奖励地址的 witness program
func (s *Session) CreateStakeTransaction(ctx context.Context, bits, reward uint64, address string) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var note []byte
	if address != "" {
		program, err := utils.DecodeRewardAddress(address)
		if err != nil {
			return nil, fmt.Errorf("reward address: %w", err)
		}
		note = program
	}

	x, pub := ringct.KeyPair()
	spendKey := ringct.PointBytes(pub)
	script, err := utils.LockTimeScript(s.now().Add(s.maturity).Unix())
	if err != nil {
		return nil, fmt.Errorf("lock script: %w", err)
	}
	_, ephemeral := ringct.KeyPair()

	tx := &types.Transaction{
		Ver: 1,
		Vout: []types.Vout{{
			A: reward,
			C: ringct.CommitBytes(reward, ringct.CoinstakeBlind(spendKey)),
			E: ringct.PointBytes(ephemeral),
			N: note,
			P: spendKey,
			S: script,
			T: types.CoinCoinstake,
		}},
	}
	tx.TxnId = tx.ComputeID()

	s.mu.Lock()
	s.keys[hex.EncodeToString(spendKey)] = x
	s.mu.Unlock()

	s.Logger.Debug("[Wallet] coinstake %s reward=%d bits=%d", tx.TxnId.Short(), reward, bits)
	return tx, nil
}

// Notify 记录已上链交易里属于本钱包的输出
func (s *Session) Notify(txs []types.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range txs {
		for _, out := range txs[i].Vout {
			k := hex.EncodeToString(out.P)
			x, ok := s.keys[k]
			if !ok {
				continue
			}
			s.owned = append(s.owned, OwnedOutput{Out: out, SpendKey: x, TxnId: txs[i].TxnId})
			delete(s.keys, k)
			s.Logger.Info("[Wallet] received %s output amount=%d tx=%s", out.T, out.A, txs[i].TxnId.Short())
		}
	}
}

// Outputs 已上链的输出
func (s *Session) Outputs() []OwnedOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OwnedOutput(nil), s.owned...)
}

// Balance 明文金额之和（只统计奖励输出）
func (s *Session) Balance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for _, o := range s.owned {
		total += o.Out.A
	}
	return total
}
