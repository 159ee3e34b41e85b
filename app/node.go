package app

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"posnode/config"
	"posnode/consensus"
	"posnode/crt"
	"posnode/db"
	"posnode/handlers"
	"posnode/logs"
	"posnode/middleware"
	"posnode/network"
	"posnode/sender"
	"posnode/stats"
	"posnode/txpool"
	"posnode/types"
	"posnode/utils"
	"posnode/validator"
	"posnode/wallet"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Node 一个完整节点实例
type Node struct {
	cfg    *config.Config
	Logger logs.Logger
	Stats  *stats.Stats

	Key       *utils.NodeKey
	VRF       *utils.VRFProvider
	Store     *db.Manager
	Network   *network.Network
	Announcer *network.Announcer
	Sender    *sender.Manager
	Validator *validator.Validator
	TxPool    *txpool.TxPool
	Wallet    *wallet.Session
	Collector *consensus.Collector
	Staker    *consensus.Staker
	Handlers  *handlers.HandlerManager

	limiter  *middleware.RateLimiter
	server   *http3.Server
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode 按依赖顺序构造各模块，不启动任何 goroutine
func NewNode(cfg *config.Config, logger logs.Logger) (*Node, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger(cfg.Node.Name, 1000)
	}
	n := &Node{
		cfg:      cfg,
		Logger:   logger,
		Stats:    stats.NewStats(),
		limiter:  middleware.NewRateLimiter(cfg.Server.RateLimit),
		stopChan: make(chan struct{}),
	}

	// 1. 身份与 VRF 密钥
	key, err := loadOrCreateKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("node key: %w", err)
	}
	n.Key = key
	if cfg.Node.RewardAddress == "" {
		cfg.Node.RewardAddress = key.Address()
	}
	if n.VRF, err = utils.NewVRFProvider(key.BLSPrivateKey()); err != nil {
		return nil, fmt.Errorf("vrf key: %w", err)
	}

	// 2. 数据库
	store, err := db.NewManagerWithConfig(filepath.Join(cfg.Node.DataDir, "chain"), logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	n.Store = store
	if err := ensureGenesis(store); err != nil {
		store.Close()
		return nil, err
	}

	// 3. 网络与发送
	n.Network = network.NewNetwork(store, key.NodeID(), logger)
	n.Sender = sender.NewManager(n.Network, key.NodeID(), nil, cfg, logger)
	n.Announcer = network.NewAnnouncer(n.Network, n.Sender, n.SelfPeer, cfg, logger)

	// 4. 校验、交易池、钱包
	n.Validator = validator.New(store, n.VRF, cfg.Staking.MinLockDelay, logger, n.Stats)
	if n.TxPool, err = txpool.NewTxPoolWithConfig(n.Validator, n.Sender, logger, cfg, n.Stats); err != nil {
		n.closeOnError()
		return nil, fmt.Errorf("failed to create TxPool: %w", err)
	}
	n.Wallet = wallet.NewSession(wallet.DefaultMaturity, logger)

	// 5. 共识
	n.Collector, err = consensus.NewCollector(consensus.CollectorDeps{
		Store:       store,
		Verifier:    n.Validator,
		Signer:      key,
		Peers:       n.Network,
		Broadcaster: n.Sender,
		Wallet:      n.Wallet,
		Pool:        n.TxPool,
		Config:      cfg,
		Logger:      logger,
		Stats:       n.Stats,
	})
	if err != nil {
		n.closeOnError()
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}
	n.Staker = consensus.NewStaker(consensus.StakerDeps{
		Store:     store,
		Pool:      n.TxPool,
		VRF:       n.VRF,
		Wallet:    n.Wallet,
		Peers:     n.Network,
		Signer:    key,
		Publisher: n.Collector,
		Config:    cfg,
		Logger:    logger,
		Stats:     n.Stats,
	})

	// 6. HTTP 处理器
	n.Handlers = handlers.NewHandlerManager(handlers.HandlerDeps{
		Self:   key.NodeID(),
		Chain:  n.Collector,
		Pool:   n.TxPool,
		Graphs: n.Collector,
		Peers:  n.Network,
		Fork:   n.Validator,
		Config: cfg,
		Logger: logger,
		Stats:  n.Stats,
	})
	return n, nil
}

func (n *Node) closeOnError() {
	_ = n.Sender.Stop()
	_ = n.Store.Close()
}

// loadOrCreateKey 配置里没有私钥时使用 DataDir/node.key，不存在则生成
func loadOrCreateKey(cfg *config.Config) (*utils.NodeKey, error) {
	if cfg.Node.KeyHex != "" {
		return utils.NewNodeKey(cfg.Node.KeyHex)
	}
	path := filepath.Join(cfg.Node.DataDir, "node.key")
	data, err := os.ReadFile(path)
	if err == nil {
		return utils.NewNodeKey(strings.TrimSpace(string(data)))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())), 0o600); err != nil {
		return nil, err
	}
	return utils.NodeKeyFromPrivate(priv)
}

func ensureGenesis(store *db.Manager) error {
	count, err := store.BlockCount()
	if err != nil {
		return fmt.Errorf("read block count: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := store.PutBlock(types.GenesisBlock()); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}
	return nil
}

// SelfPeer 本节点对外宣告的信息
func (n *Node) SelfPeer() (types.Peer, error) {
	count, err := n.Store.BlockCount()
	if err != nil {
		return types.Peer{}, err
	}
	return types.Peer{
		ID:         n.Key.NodeID(),
		Address:    n.cfg.Network.AdvertiseAddr,
		PublicKey:  n.Key.PublicKey(),
		BlockCount: count,
	}, nil
}

// Handler 路由加限流
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	n.Handlers.RegisterRoutes(mux)
	return n.limiter.Wrap(mux)
}

// Start 按依赖顺序启动，HTTP/3 监听失败时返回错误
func (n *Node) Start() error {
	n.Store.InitWriteQueue(n.cfg.Database.MaxBatchSize, n.cfg.Database.FlushInterval)
	if err := n.TxPool.Start(); err != nil {
		return fmt.Errorf("failed to start TxPool: %w", err)
	}
	n.Collector.Start()
	if err := n.startServer(); err != nil {
		return err
	}
	n.Announcer.Start()
	if n.cfg.Staking.Enabled {
		n.Staker.Start()
	}

	n.wg.Add(1)
	go n.observeChannels()
	n.Logger.Info("[Node] %s started node=%s address=%s listen=%s",
		n.cfg.Node.Name, n.Key.NodeID(), n.cfg.Node.RewardAddress, n.cfg.Server.ListenAddr)
	return nil
}

func (n *Node) startServer() error {
	certPath := filepath.Join(n.cfg.Node.DataDir, "server.crt")
	keyPath := filepath.Join(n.cfg.Node.DataDir, "server.key")
	validity := time.Duration(n.cfg.Server.CertValidityDays) * 24 * time.Hour
	cert, err := crt.LoadOrCreate(certPath, keyPath, n.cfg.Node.RewardAddress, validity)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		NextProtos:   []string{http3.NextProtoH3},
	}
	quicConfig := &quic.Config{
		KeepAlivePeriod: n.cfg.Server.QUICKeepAlivePeriod,
		MaxIdleTimeout:  n.cfg.Server.QUICMaxIdleTimeout,
	}
	listener, err := quic.ListenAddr(n.cfg.Server.ListenAddr, tlsConfig, quicConfig)
	if err != nil {
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}
	n.server = &http3.Server{
		Addr:        n.cfg.Server.ListenAddr,
		Handler:     http.TimeoutHandler(n.Handler(), n.cfg.Server.HTTPTimeout, "request timed out"),
		TLSConfig:   tlsConfig,
		QUICConfig:  quicConfig,
		IdleTimeout: n.cfg.Server.QUICMaxIdleTimeout,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.ServeListener(listener); err != nil && !isServerClosedErr(err) {
			n.Logger.Error("[Node] HTTP/3 server error: %v", err)
		}
	}()
	return nil
}

func isServerClosedErr(err error) bool {
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, quic.ErrServerClosed) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "server closed")
}

// observeChannels 定期把内部队列占用写入指标
func (n *Node) observeChannels() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.Server.ChannelStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopChan:
			return
		case <-ticker.C:
			n.Stats.ObserveChannels(n.TxPool.GetChannelStats())
			n.Stats.ObserveChannels(n.Collector.GetChannelStats())
			n.Stats.ObserveChannels(n.Sender.GetChannelStats())
			n.Stats.ObserveChannels(n.Store.GetChannelStats())
			n.Stats.SetTxPoolSize(n.TxPool.Count())
		}
	}
}

// Stop 与启动顺序相反地关闭，汇总所有错误
func (n *Node) Stop() error {
	var result *multierror.Error
	n.stopOnce.Do(func() {
		close(n.stopChan)
		n.Staker.Stop()
		n.Announcer.Stop()
		if n.server != nil {
			if err := n.server.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("http3 server: %w", err))
			}
		}
		n.Collector.Stop()
		if err := n.TxPool.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("txpool: %w", err))
		}
		if err := n.Sender.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("sender: %w", err))
		}
		n.wg.Wait()
		if err := n.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("db: %w", err))
		}
		n.Logger.Info("[Node] %s stopped", n.cfg.Node.Name)
	})
	return result.ErrorOrNil()
}
