package consensus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"posnode/config"
	"posnode/db"
	"posnode/interfaces"
	"posnode/types"
	"posnode/utils"
	"posnode/validator"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePeers struct {
	mu    sync.Mutex
	peers []types.Peer
}

func (f *fakePeers) DiscoveredPeers() []types.Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Peer(nil), f.peers...)
}

func peersOf(n int) *fakePeers {
	f := &fakePeers{}
	for i := 0; i < n; i++ {
		f.peers = append(f.peers, types.Peer{ID: types.NodeID(1000 + i), Address: fmt.Sprintf("peer-%d", i)})
	}
	return f
}

// verdictVerifier 默认全部通过，可以指定某些区块失败
type verdictVerifier struct {
	mu   sync.Mutex
	fail map[types.Hash]types.VerifyResult
}

func (v *verdictVerifier) VerifyBlock(b *types.Block) types.VerifyResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.fail[b.Hash]; ok {
		return r
	}
	return types.Succeed
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBroadcaster) Broadcast(topic types.Topic, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func (b *recordingBroadcaster) graphs(t *testing.T) []*types.BlockGraph {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.BlockGraph, 0, len(b.payloads))
	for _, p := range b.payloads {
		g := &types.BlockGraph{}
		require.NoError(t, types.Unmarshal(p, g))
		out = append(out, g)
	}
	return out
}

type recordingWallet struct {
	mu       sync.Mutex
	notified []types.Transaction
}

func (w *recordingWallet) CreateStakeTransaction(ctx context.Context, bits, reward uint64, address string) (*types.Transaction, error) {
	return nil, fmt.Errorf("not used")
}

func (w *recordingWallet) Notify(txs []types.Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notified = append(w.notified, txs...)
}

type removedIDs struct {
	mu  sync.Mutex
	ids []types.Hash
}

func (r *removedIDs) Remove(ids ...types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ids...)
}

// captureFactory 记录每次构造的排序器及其收到的 BlockGraph
type captureFactory struct {
	mu      sync.Mutex
	configs []interfaces.OrdererConfig
	added   []*types.BlockGraph
	panics  bool
}

type captureOrderer struct{ f *captureFactory }

func (o *captureOrderer) Add(g *types.BlockGraph) error {
	o.f.mu.Lock()
	defer o.f.mu.Unlock()
	if o.f.panics {
		panic("orderer exploded")
	}
	o.f.added = append(o.f.added, g)
	return nil
}

func (o *captureOrderer) Close() {}

func (f *captureFactory) New(cfg interfaces.OrdererConfig, out chan<- interfaces.Interpreted) interfaces.Orderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return &captureOrderer{f: f}
}

func (f *captureFactory) built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

func newStore(t *testing.T) *db.Manager {
	t.Helper()
	store, err := db.NewMemoryManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.PutBlock(types.GenesisBlock())
	require.NoError(t, err)
	return store
}

func newKey(t *testing.T) *utils.NodeKey {
	t.Helper()
	k, err := utils.NewNodeKey("")
	require.NoError(t, err)
	return k
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Consensus.DebounceDelay = 20 * time.Millisecond
	cfg.Staking.Interval = 50 * time.Millisecond
	return cfg
}

type testCollector struct {
	*Collector
	store       *db.Manager
	key         *utils.NodeKey
	peers       *fakePeers
	verifier    *verdictVerifier
	broadcaster *recordingBroadcaster
	wallet      *recordingWallet
	pool        *removedIDs
}

func newTestCollector(t *testing.T, peers int, factory interfaces.OrdererFactory) *testCollector {
	t.Helper()
	tc := &testCollector{
		store:       newStore(t),
		key:         newKey(t),
		peers:       peersOf(peers),
		verifier:    &verdictVerifier{fail: map[types.Hash]types.VerifyResult{}},
		broadcaster: &recordingBroadcaster{},
		wallet:      &recordingWallet{},
		pool:        &removedIDs{},
	}
	c, err := NewCollector(CollectorDeps{
		Store:       tc.store,
		Verifier:    tc.verifier,
		Signer:      tc.key,
		Peers:       tc.peers,
		Broadcaster: tc.broadcaster,
		Wallet:      tc.wallet,
		Pool:        tc.pool,
		Orderer:     factory,
		Config:      testConfig(),
	})
	require.NoError(t, err)
	tc.Collector = c
	return tc
}

// candidateBlock 高度 1 的候选区块，只填排序相关字段
func candidateBlock(t *testing.T, solution, bits uint64) *types.Block {
	t.Helper()
	genesis := types.GenesisBlock()
	tx := types.Transaction{Ver: 1, Vout: []types.Vout{{A: solution, C: []byte{byte(solution)}, P: []byte{byte(bits)}, T: types.CoinCoinstake}}}
	tx.TxnId = tx.ComputeID()
	b, err := validator.AssembleBlock(genesis, []types.Transaction{tx}, types.BlockPoS{Solution: solution, Bits: bits}, time.Now().UnixNano())
	require.NoError(t, err)
	return b
}

// signedGraph 由 key 出块并签名的 BlockGraph
func signedGraph(t *testing.T, key *utils.NodeKey, block *types.Block) *types.BlockGraph {
	t.Helper()
	g, err := types.NewBlockGraph(key.NodeID(), block, types.GenesisBlock())
	require.NoError(t, err)
	msg := g.SigningHash()
	sig, pub, err := key.Sign(msg[:])
	require.NoError(t, err)
	g.Signature, g.PublicKey = sig, pub
	return g
}
