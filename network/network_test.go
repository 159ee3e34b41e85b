package network

import (
	"sort"
	"sync"
	"testing"
	"time"

	"posnode/config"
	"posnode/db"
	"posnode/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T) *db.Manager {
	t.Helper()
	store, err := db.NewMemoryManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPeersPersistAcrossRestart(t *testing.T) {
	store := newStore(t)
	n := NewNetwork(store, 1, nil)

	assert.True(t, n.AddOrUpdatePeer(types.Peer{ID: 2, Address: "10.0.0.2:6000", BlockCount: 4}))
	assert.False(t, n.AddOrUpdatePeer(types.Peer{ID: 2, Address: "10.0.0.2:6000", BlockCount: 5}))
	// 自己和无地址的记录不入表
	assert.False(t, n.AddOrUpdatePeer(types.Peer{ID: 1, Address: "10.0.0.1:6000"}))
	assert.False(t, n.AddOrUpdatePeer(types.Peer{ID: 3}))

	p, ok := n.GetPeer(2)
	require.True(t, ok)
	assert.Equal(t, uint64(5), p.BlockCount)

	reloaded := NewNetwork(store, 1, nil)
	peers := reloaded.DiscoveredPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, types.NodeID(2), peers[0].ID)
	assert.True(t, reloaded.IsKnownNode(2))
}

func TestDiscoveredPeersSorted(t *testing.T) {
	n := NewNetwork(newStore(t), 0, nil)
	for _, id := range []types.NodeID{9, 3, 7} {
		n.AddOrUpdatePeer(types.Peer{ID: id, Address: id.String()})
	}
	peers := n.DiscoveredPeers()
	ids := make([]types.NodeID, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID)
	}
	assert.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }))
	assert.Len(t, ids, 3)
}

func TestPruneStalePeers(t *testing.T) {
	store := newStore(t)
	n := NewNetwork(store, 0, nil)
	now := time.Unix(1_700_000_000, 0)
	n.now = func() time.Time { return now }

	n.AddOrUpdatePeer(types.Peer{ID: 1, Address: "a"})
	now = now.Add(5 * time.Minute)
	n.AddOrUpdatePeer(types.Peer{ID: 2, Address: "b"})
	now = now.Add(6 * time.Minute)
	n.Touch(2)

	assert.Equal(t, 1, n.Prune(10*time.Minute))
	assert.False(t, n.IsKnownNode(1))
	assert.True(t, n.IsKnownNode(2))

	saved, err := store.GetAllNodeInfos()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, types.NodeID(2), saved[0].ID)
}

type sentMessage struct {
	address string
	topic   types.Topic
	payload []byte
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *recordingSender) SendTo(address string, topic types.Topic, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{address, topic, payload})
}

func (s *recordingSender) addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.address)
	}
	sort.Strings(out)
	return out
}

func TestAnnounceReachesSeedsAndPeers(t *testing.T) {
	n := NewNetwork(newStore(t), 1, nil)
	n.AddOrUpdatePeer(types.Peer{ID: 2, Address: "10.0.0.2:6000"})
	n.AddOrUpdatePeer(types.Peer{ID: 3, Address: "10.0.0.3:6000"})

	cfg := config.DefaultConfig()
	cfg.Network.Seeds = []string{"10.0.0.2:6000", "10.0.0.9:6000", "10.0.0.1:6000"}
	me := types.Peer{ID: 1, Address: "10.0.0.1:6000", BlockCount: 12}
	sender := &recordingSender{}
	a := NewAnnouncer(n, sender, func() (types.Peer, error) { return me, nil }, cfg, nil)

	assert.Equal(t, 3, a.Announce())
	assert.Equal(t, []string{"10.0.0.2:6000", "10.0.0.3:6000", "10.0.0.9:6000"}, sender.addresses())

	var got types.Peer
	require.NoError(t, types.Unmarshal(sender.sent[0].payload, &got))
	assert.Equal(t, types.TopicPeer, sender.sent[0].topic)
	assert.Equal(t, uint64(12), got.BlockCount)
}

func TestAnnouncerLoop(t *testing.T) {
	n := NewNetwork(newStore(t), 1, nil)
	cfg := config.DefaultConfig()
	cfg.Network.Seeds = []string{"seed:6000"}
	cfg.Network.AnnounceInterval = 10 * time.Millisecond
	sender := &recordingSender{}
	a := NewAnnouncer(n, sender, func() (types.Peer, error) {
		return types.Peer{ID: 1, Address: "me:6000"}, nil
	}, cfg, nil)

	a.Start()
	require.Eventually(t, func() bool { return len(sender.addresses()) >= 2 }, time.Second, 5*time.Millisecond)
	a.Stop()
	a.Stop()
}
