package handlers

import (
	"net/http"
	"posnode/types"
)

// HandleSubmitTx 客户端提交交易，body 为 msgpack 编码的 Transaction
func (hm *HandlerManager) HandleSubmitTx(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleSubmitTx")
	var tx types.Transaction
	if !hm.readBody(w, r, &tx) {
		return
	}
	result := hm.pool.Submit(&tx)
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	hm.writeMsgpack(w, status, &types.SubmitResponse{Result: result})
}

// HandleChainSegment 对端提交的竞争链片段，按分叉规则决定是否替换本地
func (hm *HandlerManager) HandleChainSegment(w http.ResponseWriter, r *http.Request) {
	hm.Stats.RecordAPICall("HandleChainSegment")
	var req types.BlocksResponse
	if !hm.readBody(w, r, &req) {
		return
	}
	if len(req.Blocks) == 0 {
		http.Error(w, "empty segment", http.StatusBadRequest)
		return
	}
	result := hm.fork.ForkRule(req.Blocks)
	hm.Logger.Info("[Handlers] chain segment from height %d, %d blocks: %s", req.Blocks[0].Height, len(req.Blocks), result)
	hm.writeMsgpack(w, http.StatusOK, &types.SubmitResponse{Result: result})
}
