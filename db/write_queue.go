package db

import (
	"fmt"
	"posnode/logs"
	"posnode/stats"
	"time"
)

// InitWriteQueue 启动批量写 goroutine
func (manager *Manager) InitWriteQueue(maxBatchSize int, flushInterval time.Duration) {
	manager.maxBatchSize = maxBatchSize
	manager.flushInterval = flushInterval
	manager.writeQueueChan = make(chan WriteTask, 10000)
	manager.forceFlushChan = make(chan flushRequest, 1)
	manager.stopChan = make(chan struct{})
	manager.wg.Add(1)
	go manager.runWriteQueue()
}

func (manager *Manager) stopWriteQueue() {
	if manager.stopChan == nil {
		return
	}
	manager.stopOnce.Do(func() {
		close(manager.stopChan)
	})
	manager.wg.Wait()
}

// 写队列的核心 goroutine 逻辑
func (manager *Manager) runWriteQueue() {
	defer manager.wg.Done()

	batch := make([]WriteTask, 0, manager.maxBatchSize)
	ticker := time.NewTicker(manager.flushInterval)
	defer ticker.Stop()

	flushCurrentBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := manager.flushBatch(batch)
		batch = batch[:0]
		return err
	}

	for {
		select {
		case <-manager.stopChan:
			// 退出前先排空队列，再刷掉最后一批
			batch = manager.drainWriteQueue(batch)
			err := flushCurrentBatch()
			manager.resolvePendingForceFlush(err)
			return

		case task := <-manager.writeQueueChan:
			batch = append(batch, task)
			if len(batch) >= manager.maxBatchSize {
				if err := flushCurrentBatch(); err != nil {
					logs.Error("[runWriteQueue] flush by size failed: %v", err)
				}
			}

		case <-ticker.C:
			batch = manager.drainWriteQueue(batch)
			if err := flushCurrentBatch(); err != nil {
				logs.Error("[runWriteQueue] flush by ticker failed: %v", err)
			}

		case req := <-manager.forceFlushChan:
			// 同步 flush：排空已入队写请求并等待落盘完成
			batch = manager.drainWriteQueue(batch)
			req.done <- flushCurrentBatch()
			close(req.done)
		}
	}
}

// ForceFlush 同步刷盘
func (manager *Manager) ForceFlush() error {
	if manager.forceFlushChan == nil {
		return nil
	}
	req := flushRequest{done: make(chan error, 1)}
	select {
	case manager.forceFlushChan <- req:
	case <-manager.stopChan:
		return fmt.Errorf("write queue already stopped")
	}
	select {
	case err := <-req.done:
		return err
	case <-manager.stopChan:
		select {
		case err := <-req.done:
			return err
		default:
		}
		return fmt.Errorf("write queue stopped before flush completed")
	}
}

func (manager *Manager) drainWriteQueue(batch []WriteTask) []WriteTask {
	for {
		select {
		case task := <-manager.writeQueueChan:
			batch = append(batch, task)
		default:
			return batch
		}
	}
}

func (manager *Manager) resolvePendingForceFlush(err error) {
	for {
		select {
		case req := <-manager.forceFlushChan:
			req.done <- err
			close(req.done)
		default:
			return
		}
	}
}

// flushBatch 用 badger WriteBatch 提交
func (manager *Manager) flushBatch(batch []WriteTask) error {
	db, err := manager.db()
	if err != nil {
		return err
	}
	wb := db.NewWriteBatch()
	for _, task := range batch {
		switch task.Op {
		case OpSet:
			err = wb.Set(task.Key, task.Value)
		case OpDelete:
			err = wb.Delete(task.Key)
		}
		if err != nil {
			wb.Cancel()
			logs.Error("[flushBatch] set/delete error: %v", err)
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		logs.Error("[flushBatch] commit error: %v", err)
		return err
	}
	return nil
}

// EnqueueSet 投递写请求；写队列未启动时直接写入
func (manager *Manager) EnqueueSet(key string, value []byte) {
	task := WriteTask{Key: []byte(key), Value: value, Op: OpSet}
	if manager.writeQueueChan == nil {
		if err := manager.flushBatch([]WriteTask{task}); err != nil {
			logs.Error("[EnqueueSet] direct write failed: %v", err)
		}
		return
	}
	manager.writeQueueChan <- task
}

func (manager *Manager) EnqueueDelete(key string) {
	task := WriteTask{Key: []byte(key), Op: OpDelete}
	if manager.writeQueueChan == nil {
		if err := manager.flushBatch([]WriteTask{task}); err != nil {
			logs.Error("[EnqueueDelete] direct write failed: %v", err)
		}
		return
	}
	manager.writeQueueChan <- task
}

// GetChannelStats 返回 DB Manager 的 channel 状态
func (manager *Manager) GetChannelStats() []stats.ChannelStat {
	if manager.writeQueueChan == nil {
		return nil
	}
	return []stats.ChannelStat{
		stats.NewChannelStat("writeQueueChan", "db", len(manager.writeQueueChan), cap(manager.writeQueueChan)),
	}
}
