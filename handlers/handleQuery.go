package handlers

import (
	"net/http"
	"posnode/types"
)

// HandleGetBlock 按哈希取区块
func (hm *HandlerManager) HandleGetBlock(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleGetBlock")
	var req types.HashRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	block, err := hm.chain.GetBlock(req.Hash)
	if err != nil {
		hm.writeLookupError(w, "block", err)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, block)
}

func (hm *HandlerManager) HandleGetBlockByHeight(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleGetBlockByHeight")
	var req types.HeightRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	block, err := hm.chain.GetBlockByHeight(req.Height)
	if err != nil {
		hm.writeLookupError(w, "block", err)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, block)
}

// HandleGetBlocks 区间查询，单次最多 SafeguardWindow 个
func (hm *HandlerManager) HandleGetBlocks(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleGetBlocks")
	var req types.BlocksRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	if limit := hm.cfg.Consensus.SafeguardWindow; req.Take == 0 || req.Take > limit {
		req.Take = limit
	}
	blocks, err := hm.chain.GetBlocks(req.Skip, req.Take)
	if err != nil {
		hm.writeMsgpack(w, http.StatusInternalServerError, &types.BlocksResponse{Error: err.Error()})
		return
	}
	hm.writeMsgpack(w, http.StatusOK, &types.BlocksResponse{Blocks: blocks})
}

func (hm *HandlerManager) HandleHeight(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleHeight")
	height, err := hm.chain.BlockHeight()
	if err != nil {
		hm.writeLookupError(w, "height", err)
		return
	}
	count, err := hm.chain.BlockCount()
	if err != nil {
		hm.writeLookupError(w, "count", err)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, &types.HeightResponse{Height: height, Count: count})
}

func (hm *HandlerManager) HandleGetTx(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleGetTx")
	var req types.HashRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	tx, err := hm.chain.GetTransaction(req.Hash)
	if err != nil {
		hm.writeLookupError(w, "transaction", err)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, tx)
}

// HandleGetTxIndex 交易所在的区块
func (hm *HandlerManager) HandleGetTxIndex(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleGetTxIndex")
	var req types.HashRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	idx, err := hm.chain.GetTransactionBlockIndex(req.Hash)
	if err != nil {
		hm.writeLookupError(w, "transaction", err)
		return
	}
	hm.writeMsgpack(w, http.StatusOK, idx)
}

// HandleSafeguard 分叉比较用的历史窗口
func (hm *HandlerManager) HandleSafeguard(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleSafeguard")
	var req types.SafeguardRequest
	if !hm.readBody(w, r, &req) {
		return
	}
	blocks, err := hm.chain.GetSafeguardBlocks(req.Height, req.Count)
	if err != nil {
		hm.writeMsgpack(w, http.StatusInternalServerError, &types.BlocksResponse{Error: err.Error()})
		return
	}
	hm.writeMsgpack(w, http.StatusOK, &types.BlocksResponse{Blocks: blocks})
}
