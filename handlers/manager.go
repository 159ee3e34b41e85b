package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"posnode/config"
	"posnode/interfaces"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const contentType = "application/msgpack"

// ChainQuery 链上只读查询
type ChainQuery interface {
	GetBlock(hash types.Hash) (*types.Block, error)
	GetBlockByHeight(height uint64) (*types.Block, error)
	GetBlocks(skip, take uint64) ([]*types.Block, error)
	BlockCount() (uint64, error)
	BlockHeight() (uint64, error)
	GetTransaction(id types.Hash) (*types.Transaction, error)
	GetTransactionBlockIndex(id types.Hash) (*types.TxBlockIndex, error)
	GetSafeguardBlocks(height, count uint64) ([]*types.Block, error)
}

type TxSubmitter interface {
	Submit(tx *types.Transaction) types.VerifyResult
	Count() int
}

type GraphPublisher interface {
	Publish(ctx context.Context, graph *types.BlockGraph) error
}

type PeerRegistry interface {
	AddOrUpdatePeer(peer types.Peer) bool
	Touch(id types.NodeID)
	DiscoveredPeers() []types.Peer
}

type ForkChooser interface {
	ForkRule(segment []*types.Block) types.VerifyResult
}

// HandlerDeps 构造参数
type HandlerDeps struct {
	Self   types.NodeID
	Chain  ChainQuery
	Pool   TxSubmitter
	Graphs GraphPublisher
	Peers  PeerRegistry
	Fork   ForkChooser
	Config *config.Config
	Logger logs.Logger
	Stats  *stats.Stats
}

// HandlerManager 管理所有HTTP处理器及其依赖
type HandlerManager struct {
	self   types.NodeID
	chain  ChainQuery
	pool   TxSubmitter
	graphs GraphPublisher
	peers  PeerRegistry
	fork   ForkChooser
	cfg    *config.Config

	// 统计相关字段
	Stats  *stats.Stats
	Logger logs.Logger
}

// NewHandlerManager 创建新的处理器管理器
func NewHandlerManager(deps HandlerDeps) *HandlerManager {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logs.NewNodeLogger("handlers", 0)
	}
	st := deps.Stats
	if st == nil {
		st = stats.NewStats()
	}
	return &HandlerManager{
		self:   deps.Self,
		chain:  deps.Chain,
		pool:   deps.Pool,
		graphs: deps.Graphs,
		peers:  deps.Peers,
		fork:   deps.Fork,
		cfg:    cfg,
		Stats:  st,
		Logger: logger,
	}
}

// RegisterRoutes 注册所有路由
func (hm *HandlerManager) RegisterRoutes(mux *http.ServeMux) {
	// 节点间广播，body 为 GossipPayload
	mux.HandleFunc("/"+string(types.TopicTx), hm.HandleTxGossip)
	mux.HandleFunc("/"+string(types.TopicBlockGraph), hm.HandleBlockGraph)
	mux.HandleFunc("/"+string(types.TopicPeer), hm.HandlePeer)
	// 客户端提交
	mux.HandleFunc("/submittx", hm.HandleSubmitTx)
	mux.HandleFunc("/segment", hm.HandleChainSegment)
	// 查询
	mux.HandleFunc("/getblock", hm.HandleGetBlock)
	mux.HandleFunc("/getblockbyheight", hm.HandleGetBlockByHeight)
	mux.HandleFunc("/getblocks", hm.HandleGetBlocks)
	mux.HandleFunc("/height", hm.HandleHeight)
	mux.HandleFunc("/gettx", hm.HandleGetTx)
	mux.HandleFunc("/gettxindex", hm.HandleGetTxIndex)
	mux.HandleFunc("/safeguard", hm.HandleSafeguard)
	// 基本功能
	mux.HandleFunc("/status", hm.HandleStatus)
	mux.HandleFunc("/nodes", hm.HandleNodes)
	mux.HandleFunc("/logs", hm.HandleLogs)
	if hm.cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(hm.Stats.Registry, promhttp.HandlerOpts{}))
	}
}

// 辅助方法

// readBody 读取 msgpack 请求体到 v
func (hm *HandlerManager) readBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, hm.cfg.Server.MaxRequestBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := types.Unmarshal(data, v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid %T body", v), http.StatusBadRequest)
		return false
	}
	return true
}

// readGossip 读取并校验节点间广播的信封
func (hm *HandlerManager) readGossip(w http.ResponseWriter, r *http.Request, topic types.Topic) (*types.GossipPayload, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return nil, false
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, hm.cfg.Server.MaxRequestBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	payload, err := types.DecodeGossipPayload(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if payload.Topic != topic {
		http.Error(w, fmt.Sprintf("topic %q posted to /%s", payload.Topic, topic), http.StatusBadRequest)
		return nil, false
	}
	if hm.peers != nil {
		hm.peers.Touch(payload.Sender)
	}
	return payload, true
}

func (hm *HandlerManager) writeMsgpack(w http.ResponseWriter, status int, v interface{}) {
	data, err := types.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeLookupError 不存在返回 404，其余为 500
func (hm *HandlerManager) writeLookupError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	hm.Logger.Error("[Handlers] %s lookup: %v", what, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
