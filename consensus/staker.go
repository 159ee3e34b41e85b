package consensus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
	"posnode/validator"
	"posnode/vdf"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrStakingBusy     = errors.New("staking attempt already running")
	ErrStakingDisabled = errors.New("staking disabled")
	ErrSyncing         = errors.New("node is syncing")
	ErrNoSolution      = errors.New("no solution within timeout")
	ErrVdfTimeout      = errors.New("vdf evaluation timed out")
)

// StakePool Staker 需要的交易池操作
type StakePool interface {
	DrainVerified(ctx context.Context, maxCount int) []*types.Transaction
	PurgeCoinstake() int
}

// GraphPublisher 新区块的 BlockGraph 交给收集器
type GraphPublisher interface {
	PublishLocal(ctx context.Context, graph *types.BlockGraph) error
}

// Staker 定时尝试出块
type Staker struct {
	store     interfaces.ChainStore
	pool      StakePool
	vrf       interfaces.VRF
	wallet    interfaces.WalletSession
	peers     interfaces.PeerDiscovery
	signer    interfaces.Signer
	publisher GraphPublisher

	cfg    *config.Config
	Logger logs.Logger
	stats  *stats.Stats

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// StakerDeps 构造参数
type StakerDeps struct {
	Store     interfaces.ChainStore
	Pool      StakePool
	VRF       interfaces.VRF
	Wallet    interfaces.WalletSession
	Peers     interfaces.PeerDiscovery
	Signer    interfaces.Signer
	Publisher GraphPublisher
	Config    *config.Config
	Logger    logs.Logger
	Stats     *stats.Stats
}

func NewStaker(deps StakerDeps) *Staker {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logs.NewNodeLogger("staker", 0)
	}
	return &Staker{
		store:     deps.Store,
		pool:      deps.Pool,
		vrf:       deps.VRF,
		wallet:    deps.Wallet,
		peers:     deps.Peers,
		signer:    deps.Signer,
		publisher: deps.Publisher,
		cfg:       cfg,
		Logger:    logger,
		stats:     deps.Stats,
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
}

// Start 每个 Interval 触发一次出块尝试，上一次没结束时本次直接跳过
func (s *Staker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		ticker := time.NewTicker(s.cfg.Staking.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					if err := s.Stake(ctx); err != nil && !errors.Is(err, ErrStakingBusy) {
						s.Logger.Debug("[Staker] attempt ended: %v", err)
					}
				}()
			}
		}
	}()
	s.Logger.Info("[Staker] Started interval=%s", s.cfg.Staking.Interval)
}

// Stop 取消进行中的 VDF / 解搜索并等待退出
func (s *Staker) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.Logger.Info("[Staker] Stopped")
}

// Syncing 任何已知对端的区块数多于本地即认为在同步
func (s *Staker) Syncing() (bool, error) {
	count, err := s.store.BlockCount()
	if err != nil {
		return false, err
	}
	if s.peers == nil {
		return false, nil
	}
	for _, p := range s.peers.DiscoveredPeers() {
		if p.BlockCount > count {
			return true, nil
		}
	}
	return false, nil
}

// Stake 一次完整的出块尝试
func (s *Staker) Stake(ctx context.Context) (err error) {
	if !s.running.CompareAndSwap(false, true) {
		return ErrStakingBusy
	}
	defer s.running.Store(false)
	defer func() {
		if n := s.pool.PurgeCoinstake(); n > 0 {
			s.Logger.Warn("[Staker] purged %d coinstake txs from pool", n)
		}
	}()
	defer func() {
		outcome := "published"
		switch {
		case err == nil:
		case errors.Is(err, ErrSyncing), errors.Is(err, ErrStakingDisabled):
			outcome = "skipped"
		case errors.Is(err, ErrNoSolution), errors.Is(err, ErrVdfTimeout):
			outcome = "timeout"
		default:
			outcome = "failed"
			s.Logger.Warn("[Staker] %v", err)
		}
		s.stats.RecordStaking(outcome)
	}()

	if !s.cfg.Staking.Enabled {
		return ErrStakingDisabled
	}
	syncing, err := s.Syncing()
	if err != nil {
		return fmt.Errorf("sync check: %w", err)
	}
	if syncing {
		return ErrSyncing
	}

	height, err := s.store.BlockHeight()
	if err != nil {
		return fmt.Errorf("read height: %w", err)
	}
	prev, err := s.store.GetBlockByHeight(height)
	if err != nil {
		return fmt.Errorf("read block %d: %w", height, err)
	}
	round := height + 1

	txs := s.collectTxs(ctx)

	// kernel -> VRF
	kernel := validator.Kernel(prev.Hash, validator.TxSetHash(txs), round)
	proof, err := s.vrf.Prove(kernel[:])
	if err != nil {
		return fmt.Errorf("vrf prove: %w", err)
	}
	output, err := s.vrf.Verify(s.vrf.PublicKey(), kernel[:], proof)
	if err != nil {
		return fmt.Errorf("vrf verify: %w", err)
	}

	solution := validator.SearchSolution(ctx, proof, output, s.cfg.Staking.SolutionTimeout)
	if solution == 0 {
		return ErrNoSolution
	}
	share := validator.NetworkShare(solution, round)
	bits := validator.Difficulty(solution, share)
	s.Logger.Debug("[Staker] round=%d solution=%d bits=%d share=%s", round, solution, bits, share.String())

	nonce, err := vdf.EvalBytes(ctx, bits, output, s.now().Add(s.cfg.Staking.VdfTimeout))
	if err != nil {
		return fmt.Errorf("vdf: %w", err)
	}
	if nonce == nil {
		return ErrVdfTimeout
	}

	// 钱包生成新奖励交易之前清掉池里残留的旧奖励交易
	if n := s.pool.PurgeCoinstake(); n > 0 {
		s.Logger.Warn("[Staker] purged %d stale coinstake txs before creating a new one", n)
	}
	coinstake, err := s.wallet.CreateStakeTransaction(ctx, bits, validator.RewardAmount(share), s.cfg.Node.RewardAddress)
	if err != nil {
		return fmt.Errorf("coinstake: %w", err)
	}
	if coinstake == nil {
		return errors.New("wallet returned no coinstake")
	}

	// 上面的步骤耗时较长，高度可能已经变了
	if h, err := s.store.BlockHeight(); err != nil || h != height {
		return fmt.Errorf("chain moved to %d while staking round %d", h, round)
	}

	pos := types.BlockPoS{
		Bits:      bits,
		Nonce:     nonce,
		Solution:  solution,
		VrfProof:  proof,
		VrfSig:    output,
		PublicKey: s.vrf.PublicKey(),
	}
	block, err := validator.AssembleBlock(prev, append(txs, *coinstake), pos, s.now().Unix())
	if err != nil {
		return fmt.Errorf("assemble block: %w", err)
	}
	graph, err := types.NewBlockGraph(s.signer.NodeID(), block, prev)
	if err != nil {
		return fmt.Errorf("block graph: %w", err)
	}
	if err := s.publisher.PublishLocal(ctx, graph); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	s.Logger.Info("[Staker] proposed block height=%d hash=%s solution=%d bits=%d txs=%d",
		block.Height, block.Hash.Short(), solution, bits, len(block.Txs))
	return nil
}

// collectTxs 从交易池取出已校验交易，去掉奖励交易和 key image 冲突的
func (s *Staker) collectTxs(ctx context.Context) []types.Transaction {
	drained := s.pool.DrainVerified(ctx, s.cfg.TxPool.MaxTxsPerBlock)
	txs := make([]types.Transaction, 0, len(drained))
	images := make(map[string]struct{})
next:
	for _, tx := range drained {
		if tx.IsCoinbase() {
			s.Logger.Warn("[Staker] skip reward tx %s from pool", tx.TxnId.Short())
			continue
		}
		for _, image := range tx.KeyImages() {
			if _, dup := images[hex.EncodeToString(image)]; dup {
				s.Logger.Debug("[Staker] skip tx %s with conflicting key image", tx.TxnId.Short())
				continue next
			}
		}
		for _, image := range tx.KeyImages() {
			images[hex.EncodeToString(image)] = struct{}{}
		}
		txs = append(txs, *tx)
	}
	return txs
}
