package sender

import (
	"math/rand/v2"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
)

// Manager 把广播拆成逐个对端的发送任务
type Manager struct {
	peers     interfaces.PeerDiscovery
	self      types.NodeID
	sendQueue *SendQueue
	transport Transporter
	cfg       *config.Config
	Logger    logs.Logger
}

// NewManager transport 为 nil 时使用 HTTP/3
func NewManager(peers interfaces.PeerDiscovery, self types.NodeID, transport Transporter, cfg *config.Config, logger logs.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("sender", 0)
	}
	if transport == nil {
		transport = NewHttp3Transport(cfg)
	}
	return &Manager{
		peers:     peers,
		self:      self,
		sendQueue: NewSendQueue(transport, cfg, logger),
		transport: transport,
		cfg:       cfg,
		Logger:    logger,
	}
}

func (sm *Manager) envelope(topic types.Topic, payload []byte) ([]byte, bool) {
	data, err := types.EncodeGossipPayload(&types.GossipPayload{Topic: topic, Sender: sm.self, Body: payload})
	if err != nil {
		sm.Logger.Error("[Sender] encode %s payload: %v", topic, err)
		return nil, false
	}
	return data, true
}

// Broadcast 发给已知对端；BroadcastPeerCount > 0 时随机抽取这么多个
func (sm *Manager) Broadcast(topic types.Topic, payload []byte) {
	data, ok := sm.envelope(topic, payload)
	if !ok {
		return
	}
	targets := sm.pickTargets()
	for _, p := range targets {
		sm.sendQueue.Enqueue(&SendTask{Target: p.Address, Topic: topic, Message: data})
	}
	sm.Logger.Trace("[Sender] broadcast %s to %d peers, %d bytes", topic, len(targets), len(payload))
}

// SendTo 发给单个地址，用于尚未入表的种子节点
func (sm *Manager) SendTo(address string, topic types.Topic, payload []byte) {
	data, ok := sm.envelope(topic, payload)
	if !ok {
		return
	}
	sm.sendQueue.Enqueue(&SendTask{Target: address, Topic: topic, Message: data})
}

func (sm *Manager) pickTargets() []types.Peer {
	if sm.peers == nil {
		return nil
	}
	all := sm.peers.DiscoveredPeers()
	peers := all[:0]
	for _, p := range all {
		if p.ID != sm.self && p.Address != "" {
			peers = append(peers, p)
		}
	}
	n := sm.cfg.Network.BroadcastPeerCount
	if n <= 0 || n >= len(peers) {
		return peers
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	return peers[:n]
}

func (sm *Manager) GetChannelStats() []stats.ChannelStat {
	return sm.sendQueue.GetChannelStats()
}

// Stop 停止 worker 并关闭 HTTP/3 连接
func (sm *Manager) Stop() error {
	sm.sendQueue.Stop()
	if c, ok := sm.transport.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
