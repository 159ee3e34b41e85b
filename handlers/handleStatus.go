package handlers

import (
	"net/http"
	"posnode/types"
	"strconv"
)

// StatusResponse 节点概况
type StatusResponse struct {
	Node    types.NodeID `msgpack:"node"`
	Height  uint64       `msgpack:"height"`
	Pending int          `msgpack:"pending"`
	Peers   int          `msgpack:"peers"`
}

// 处理状态查询
func (hm *HandlerManager) HandleStatus(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleStatus")
	height, err := hm.chain.BlockHeight()
	if err != nil {
		hm.writeLookupError(w, "height", err)
		return
	}
	resp := &StatusResponse{Node: hm.self, Height: height, Pending: hm.pool.Count()}
	if hm.peers != nil {
		resp.Peers = len(hm.peers.DiscoveredPeers())
	}
	hm.writeMsgpack(w, http.StatusOK, resp)
}

// 处理节点列表请求
func (hm *HandlerManager) HandleNodes(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleNodes")
	var peers []types.Peer
	if hm.peers != nil {
		peers = hm.peers.DiscoveredPeers()
	}
	hm.writeMsgpack(w, http.StatusOK, peers)
}

// HandleLogs 最近的日志行，?n= 限制行数
func (hm *HandlerManager) HandleLogs(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleLogs")
	lines := hm.Logger.History()
	if n, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && n > 0 && n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	hm.writeMsgpack(w, http.StatusOK, lines)
}
