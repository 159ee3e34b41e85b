package middleware

import (
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// 最多跟踪的客户端 IP 数，超出后淘汰最久未访问的
const trackedIPs = 10000

// RateLimiter 按客户端 IP 的令牌桶限流
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache // ip -> *rate.Limiter
}

// NewRateLimiter perSecond <= 0 时不限流
func NewRateLimiter(perSecond int) *RateLimiter {
	cache, _ := lru.New(trackedIPs)
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    perSecond,
		limiters: cache,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if v, ok := rl.limiters.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	// 并发首访时以先写入者为准
	if prev, ok, _ := rl.limiters.PeekOrAdd(ip, l); ok {
		return prev.(*rate.Limiter)
	}
	return l
}

// Allow 该 IP 是否还有令牌
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}
	return rl.limiter(ip).Allow()
}

// Wrap 超过阈值返回 429 Too Many Requests
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.Allow(ip) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
