package network

import (
	"posnode/config"
	"posnode/logs"
	"posnode/types"
	"sync"
	"time"
)

// Sender 点对点发送，不等待结果
type Sender interface {
	SendTo(address string, topic types.Topic, payload []byte)
}

// Announcer 定期向种子和已知对端宣告本节点，同时清理失联对端
type Announcer struct {
	network *Network
	sender  Sender
	self    func() (types.Peer, error)
	seeds   []string

	interval   time.Duration
	staleAfter time.Duration
	Logger     logs.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAnnouncer(network *Network, sender Sender, self func() (types.Peer, error), cfg *config.Config, logger logs.Logger) *Announcer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = network.Logger
	}
	return &Announcer{
		network:    network,
		sender:     sender,
		self:       self,
		seeds:      cfg.Network.Seeds,
		interval:   cfg.Network.AnnounceInterval,
		staleAfter: cfg.Network.PeerStaleAfter,
		Logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

func (a *Announcer) Start() {
	a.wg.Add(1)
	go a.processLoop()
}

func (a *Announcer) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
	})
	a.wg.Wait()
}

func (a *Announcer) processLoop() {
	defer a.wg.Done()

	a.Announce()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.network.Prune(a.staleAfter)
			a.Announce()
		}
	}
}

// Announce 把本节点信息发给种子和所有已知对端，返回发送目标数
func (a *Announcer) Announce() int {
	me, err := a.self()
	if err != nil {
		a.Logger.Warn("[Announcer] self info unavailable: %v", err)
		return 0
	}
	if me.Address == "" {
		return 0
	}
	payload, err := types.Marshal(&me)
	if err != nil {
		a.Logger.Error("[Announcer] marshal self: %v", err)
		return 0
	}

	targets := make(map[string]struct{})
	for _, s := range a.seeds {
		targets[s] = struct{}{}
	}
	for _, p := range a.network.DiscoveredPeers() {
		targets[p.Address] = struct{}{}
	}
	delete(targets, me.Address)

	for addr := range targets {
		a.sender.SendTo(addr, types.TopicPeer, payload)
	}
	a.Logger.Trace("[Announcer] announced to %d targets", len(targets))
	return len(targets)
}
