package sender

import (
	"context"
	"fmt"
	"posnode/config"
	"posnode/logs"
	"posnode/stats"
	"posnode/types"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

const contentType = "application/octet-stream"

// SendTask 封装一次发送所需的信息
type SendTask struct {
	Target    string
	Topic     types.Topic
	Message   []byte // 已编码的 GossipPayload
	CreatedAt time.Time
}

// SendQueue 负责管理任务队列 + worker
type SendQueue struct {
	workerCount int
	taskChan    chan *SendTask
	stopChan    chan struct{}
	stopOnce    sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	transport   Transporter
	cfg         *config.Config
	Logger      logs.Logger

	// 发送侧关键计数
	dropFull       atomic.Uint64
	retryExhausted atomic.Uint64
	sendSuccess    atomic.Uint64
	sendError      atomic.Uint64
}

// NewSendQueue 创建发送队列并启动 worker
func NewSendQueue(transport Transporter, cfg *config.Config, logger logs.Logger) *SendQueue {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("sender", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sq := &SendQueue{
		workerCount: cfg.Sender.WorkerCount,
		taskChan:    make(chan *SendTask, cfg.Sender.QueueCapacity),
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		transport:   transport,
		cfg:         cfg,
		Logger:      logger,
	}
	sq.Start()
	return sq
}

// Start 启动 worker 协程
func (sq *SendQueue) Start() {
	sq.wg.Add(sq.workerCount)
	for i := 0; i < sq.workerCount; i++ {
		go sq.workerLoop(i)
	}
	sq.Logger.Verbose("[SendQueue] Started with %d workers", sq.workerCount)
}

// Stop 停止队列，正在重试的任务随 ctx 取消
func (sq *SendQueue) Stop() {
	sq.stopOnce.Do(func() {
		close(sq.stopChan)
		sq.cancel()
	})
	sq.wg.Wait()
	sq.Logger.Verbose("[SendQueue] Stopped")
}

// Enqueue 非阻塞入队，队列满时丢弃并返回 false
func (sq *SendQueue) Enqueue(task *SendTask) bool {
	if task == nil {
		return false
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	select {
	case <-sq.stopChan:
		return false
	default:
	}
	select {
	case sq.taskChan <- task:
		return true
	default:
		sq.dropFull.Add(1)
		sq.Logger.Warn("[SendQueue] queue full, dropping %s to %s", task.Topic, task.Target)
		return false
	}
}

func (sq *SendQueue) workerLoop(id int) {
	defer sq.wg.Done()
	for {
		select {
		case <-sq.stopChan:
			return
		case task := <-sq.taskChan:
			if err := sq.send(sq.ctx, task); err != nil {
				sq.sendError.Add(1)
				sq.Logger.Debug("[SendQueue] worker %d: %v", id, err)
				continue
			}
			sq.sendSuccess.Add(1)
		}
	}
}

// send POST https://<target>/<topic>，瞬时错误按指数退避重试
func (sq *SendQueue) send(ctx context.Context, task *SendTask) error {
	backoff, err := retry.NewExponential(sq.cfg.Sender.BaseRetryDelay)
	if err != nil {
		return err
	}
	backoff = retry.WithCappedDuration(sq.cfg.Sender.MaxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(sq.cfg.Sender.MaxRetries, backoff)

	url := fmt.Sprintf("https://%s/%s", task.Target, task.Topic)
	attempts := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		reqCtx, cancel := context.WithTimeout(ctx, sq.cfg.Sender.RequestTimeout)
		defer cancel()

		status, body, err := sq.transport.Send(reqCtx, url, task.Message, contentType)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status == 200 {
			return nil
		}
		statusErr := &httpStatusError{op: "send " + string(task.Topic), statusCode: status, body: string(body)}
		if statusErr.retryable() {
			return retry.RetryableError(statusErr)
		}
		return statusErr
	})
	if err != nil {
		if attempts > int(sq.cfg.Sender.MaxRetries) {
			sq.retryExhausted.Add(1)
		}
		return fmt.Errorf("send %s to %s after %d attempts: %w", task.Topic, task.Target, attempts, err)
	}
	return nil
}

// Counters 返回 (成功, 失败, 因队列满丢弃, 重试耗尽)
func (sq *SendQueue) Counters() (uint64, uint64, uint64, uint64) {
	return sq.sendSuccess.Load(), sq.sendError.Load(), sq.dropFull.Load(), sq.retryExhausted.Load()
}

func (sq *SendQueue) GetChannelStats() []stats.ChannelStat {
	return []stats.ChannelStat{
		stats.NewChannelStat("taskChan", "SendQueue", len(sq.taskChan), cap(sq.taskChan)),
	}
}
