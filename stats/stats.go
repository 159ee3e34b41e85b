package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats 节点指标，全部注册在自己的 Registry 上，便于测试隔离
type Stats struct {
	statsLock     sync.RWMutex
	apiCallCounts map[string]uint64

	Registry *prometheus.Registry

	apiCalls        *prometheus.CounterVec
	verifyResults   *prometheus.CounterVec
	verifyDuration  *prometheus.HistogramVec
	stakingAttempts *prometheus.CounterVec
	roundsFinalized prometheus.Counter
	txPoolSize      prometheus.Gauge
	chainHeight     prometheus.Gauge
	channelUsage    *prometheus.GaugeVec
}

func NewStats() *Stats {
	s := &Stats{
		apiCallCounts: make(map[string]uint64),
		Registry:      prometheus.NewRegistry(),
	}
	s.apiCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posnode",
		Name:      "api_calls_total",
		Help:      "API calls by handler.",
	}, []string{"api"})
	s.verifyResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posnode",
		Name:      "verify_results_total",
		Help:      "Verification outcomes by subject (block/tx) and result.",
	}, []string{"subject", "result"})
	s.verifyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "posnode",
		Name:      "verify_duration_seconds",
		Help:      "Verification latency by subject.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"subject"})
	s.stakingAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posnode",
		Name:      "staking_attempts_total",
		Help:      "Staking cycles by outcome.",
	}, []string{"outcome"})
	s.roundsFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "posnode",
		Name:      "rounds_finalized_total",
		Help:      "Rounds whose winner was committed.",
	})
	s.txPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "posnode",
		Name:      "txpool_pending",
		Help:      "Pending transactions in the pool.",
	})
	s.chainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "posnode",
		Name:      "chain_height",
		Help:      "Height of the latest committed block.",
	})
	s.channelUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "posnode",
		Name:      "channel_usage_ratio",
		Help:      "len/cap of internal queues.",
	}, []string{"module", "name"})
	s.Registry.MustRegister(
		s.apiCalls,
		s.verifyResults,
		s.verifyDuration,
		s.stakingAttempts,
		s.roundsFinalized,
		s.txPoolSize,
		s.chainHeight,
		s.channelUsage,
	)
	return s
}

// 记录API调用
func (h *Stats) RecordAPICall(apiName string) {
	if h == nil {
		return
	}
	h.statsLock.Lock()
	h.apiCallCounts[apiName]++
	h.statsLock.Unlock()
	h.apiCalls.WithLabelValues(apiName).Inc()
}

// 获取API调用统计
func (h *Stats) GetAPICallStats() map[string]uint64 {
	h.statsLock.RLock()
	defer h.statsLock.RUnlock()

	stats := make(map[string]uint64, len(h.apiCallCounts))
	for api, count := range h.apiCallCounts {
		stats[api] = count
	}
	return stats
}

// RecordVerify subject 为 "block" 或 "tx"
func (h *Stats) RecordVerify(subject, result string, d time.Duration) {
	if h == nil {
		return
	}
	h.verifyResults.WithLabelValues(subject, result).Inc()
	h.verifyDuration.WithLabelValues(subject).Observe(d.Seconds())
}

func (h *Stats) RecordStaking(outcome string) {
	if h == nil {
		return
	}
	h.stakingAttempts.WithLabelValues(outcome).Inc()
}

func (h *Stats) RecordRoundFinalized(height uint64) {
	if h == nil {
		return
	}
	h.roundsFinalized.Inc()
	h.chainHeight.Set(float64(height))
}

func (h *Stats) SetTxPoolSize(n int) {
	if h == nil {
		return
	}
	h.txPoolSize.Set(float64(n))
}

// ObserveChannels 把 channel 状态写入 gauge
func (h *Stats) ObserveChannels(chs []ChannelStat) {
	if h == nil {
		return
	}
	for _, c := range chs {
		h.channelUsage.WithLabelValues(c.Module, c.Name).Set(c.Usage)
	}
}
