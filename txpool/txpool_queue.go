package txpool

import (
	"posnode/types"
	"time"
)

// 内部消息类型
type txMsgType int

const (
	msgBroadcastTx txMsgType = iota
)

// txPoolMessage 封装了要在 txpool 里处理的各种任务
type txPoolMessage struct {
	Type txMsgType
	Tx   *types.Transaction
}

type txPoolQueue struct {
	pool    *TxPool
	MsgChan chan *txPoolMessage
}

func newTxPoolQueue(pool *TxPool, size int) *txPoolQueue {
	if size <= 0 {
		size = 10000
	}
	return &txPoolQueue{
		pool:    pool,
		MsgChan: make(chan *txPoolMessage, size),
	}
}

// enqueueBroadcast 队列满时丢弃，交易仍留在池中
func (tq *txPoolQueue) enqueueBroadcast(tx *types.Transaction) {
	select {
	case tq.MsgChan <- &txPoolMessage{Type: msgBroadcastTx, Tx: tx}:
	default:
		tq.pool.Logger.Warn("[TxPoolQueue] queue is full (%d/%d), tx %s not broadcast",
			len(tq.MsgChan), cap(tq.MsgChan), tx.TxnId.Short())
	}
}

func (tq *txPoolQueue) runLoop(sweepInterval time.Duration) {
	defer tq.pool.wg.Done()

	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tq.pool.stopChan:
			// 停止前排空队列
			for {
				select {
				case msg := <-tq.MsgChan:
					tq.handle(msg)
				default:
					return
				}
			}
		case msg := <-tq.MsgChan:
			tq.handle(msg)
		case now := <-ticker.C:
			tq.pool.Sweep(now)
		}
	}
}

func (tq *txPoolQueue) handle(msg *txPoolMessage) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case msgBroadcastTx:
		tq.broadcastTx(msg.Tx)
	default:
		tq.pool.Logger.Debug("[TxPoolQueue] unknown msg type: %d", msg.Type)
	}
}

func (tq *txPoolQueue) broadcastTx(tx *types.Transaction) {
	if tq.pool.broadcaster == nil {
		return
	}
	payload, err := types.Marshal(tx)
	if err != nil {
		tq.pool.Logger.Error("[TxPoolQueue] encode tx %s: %v", tx.TxnId.Short(), err)
		return
	}
	tq.pool.broadcaster.Broadcast(types.TopicTx, payload)
	tq.pool.Logger.Trace("[TxPoolQueue] broadcast tx %s", tx.TxnId.Short())
}
