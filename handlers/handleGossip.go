package handlers

import (
	"errors"
	"net/http"
	"posnode/types"
)

// HandleTxGossip 对端广播的交易
func (hm *HandlerManager) HandleTxGossip(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleTxGossip")
	payload, ok := hm.readGossip(w, r, types.TopicTx)
	if !ok {
		return
	}
	var tx types.Transaction
	if err := types.Unmarshal(payload.Body, &tx); err != nil {
		http.Error(w, "Invalid transaction", http.StatusBadRequest)
		return
	}
	result := hm.pool.Submit(&tx)
	hm.Logger.Trace("[Handlers] tx %s from %s: %s", tx.TxnId.Short(), payload.Sender, result)
	hm.writeMsgpack(w, http.StatusOK, &types.SubmitResponse{Result: result})
}

// HandleBlockGraph 对端广播的 BlockGraph，交给收集器异步处理
func (hm *HandlerManager) HandleBlockGraph(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleBlockGraph")
	payload, ok := hm.readGossip(w, r, types.TopicBlockGraph)
	if !ok {
		return
	}
	graph := &types.BlockGraph{}
	if err := types.Unmarshal(payload.Body, graph); err != nil {
		http.Error(w, "Invalid block graph", http.StatusBadRequest)
		return
	}
	if err := hm.graphs.Publish(r.Context(), graph); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, r.Context().Err()) {
			status = http.StatusRequestTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, &types.SubmitResponse{Result: types.Succeed})
}

// HandlePeer 对端宣告自身地址与区块数
func (hm *HandlerManager) HandlePeer(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandlePeer")
	payload, ok := hm.readGossip(w, r, types.TopicPeer)
	if !ok {
		return
	}
	var peer types.Peer
	if err := types.Unmarshal(payload.Body, &peer); err != nil {
		http.Error(w, "Invalid peer", http.StatusBadRequest)
		return
	}
	if peer.ID != payload.Sender {
		http.Error(w, "peer id does not match sender", http.StatusBadRequest)
		return
	}
	hm.peers.AddOrUpdatePeer(peer)
	hm.writeMsgpack(w, http.StatusOK, &types.SubmitResponse{Result: types.Succeed})
}
