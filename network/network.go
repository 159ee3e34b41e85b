package network

import (
	"posnode/logs"
	"posnode/types"
	"sort"
	"sync"
	"time"
)

// PeerStore 对端信息的持久化
type PeerStore interface {
	GetAllNodeInfos() ([]types.Peer, error)
	SaveNodeInfo(node types.Peer) error
	DeleteNodeInfo(id types.NodeID)
}

// Network 负责维护对等节点列表、从DB加载或更新
type Network struct {
	store  PeerStore
	self   types.NodeID
	mu     sync.RWMutex
	nodes  map[types.NodeID]*types.Peer
	Logger logs.Logger
	now    func() time.Time
}

// NewNetwork 创建一个 Network 实例并从DB加载已有节点
func NewNetwork(store PeerStore, self types.NodeID, logger logs.Logger) *Network {
	if logger == nil {
		logger = logs.NewNodeLogger("network", 0)
	}
	n := &Network{
		store:  store,
		self:   self,
		nodes:  make(map[types.NodeID]*types.Peer),
		Logger: logger,
		now:    time.Now,
	}

	nodes, err := store.GetAllNodeInfos()
	if err != nil {
		n.Logger.Verbose("[Network] Failed to load nodes from DB: %v", err)
		return n
	}
	for i := range nodes {
		if nodes[i].ID == self {
			continue
		}
		p := nodes[i]
		// 重启后给持久化的对端一个完整的存活窗口
		p.LastSeen = n.now()
		n.nodes[p.ID] = &p
	}
	n.Logger.Info("[Network] loaded %d peers", len(n.nodes))
	return n
}

// AddOrUpdatePeer 更新或新增节点信息，返回是否为新节点
func (n *Network) AddOrUpdatePeer(peer types.Peer) bool {
	if peer.ID == n.self || peer.Address == "" {
		return false
	}
	n.mu.Lock()
	_, known := n.nodes[peer.ID]
	peer.LastSeen = n.now()
	n.nodes[peer.ID] = &peer
	n.mu.Unlock()

	// 经写队列落盘
	if err := n.store.SaveNodeInfo(peer); err != nil {
		n.Logger.Verbose("[Network] Failed to save node info: %v", err)
	}
	if !known {
		n.Logger.Info("[Network] new peer %s at %s", peer.ID, peer.Address)
	}
	return !known
}

// Touch 收到对端消息时刷新最近活跃时间
func (n *Network) Touch(id types.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.nodes[id]; ok {
		p.LastSeen = n.now()
	}
}

func (n *Network) GetPeer(id types.NodeID) (types.Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.nodes[id]
	if !ok {
		return types.Peer{}, false
	}
	return *p, true
}

func (n *Network) IsKnownNode(id types.NodeID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.nodes[id]
	return ok
}

// DiscoveredPeers 按节点 ID 排序的对端快照
func (n *Network) DiscoveredPeers() []types.Peer {
	n.mu.RLock()
	out := make([]types.Peer, 0, len(n.nodes))
	for _, p := range n.nodes {
		out = append(out, *p)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune 删除超过 staleAfter 没有消息的对端
func (n *Network) Prune(staleAfter time.Duration) int {
	cutoff := n.now().Add(-staleAfter)
	var stale []types.NodeID
	n.mu.Lock()
	for id, p := range n.nodes {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, id)
			delete(n.nodes, id)
		}
	}
	n.mu.Unlock()
	for _, id := range stale {
		n.store.DeleteNodeInfo(id)
	}
	if len(stale) > 0 {
		n.Logger.Info("[Network] pruned %d stale peers", len(stale))
	}
	return len(stale)
}
