// Package limiter token bucket rate limiters for gin routes
// Package limiter 基于令牌桶的 gin 路由限流器
package limiter

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face limiter interface
// Face 限流器接口
type Face interface {
	Key(c *gin.Context) string
	GetBucket(key string) (*ratelimit.Bucket, bool)
}

// BucketRule token bucket rule
// BucketRule 令牌桶规则
type BucketRule struct {
	Key          string
	FillInterval time.Duration
	Capacity     int64
	Quantum      int64
}

// MethodLimiter limits by route path (without query string)
// MethodLimiter 按路由路径限流（不含查询参数）
type MethodLimiter struct {
	buckets map[string]*ratelimit.Bucket
}

func NewMethodLimiter() *MethodLimiter {
	return &MethodLimiter{buckets: make(map[string]*ratelimit.Bucket)}
}

func (l *MethodLimiter) Key(c *gin.Context) string {
	uri := c.Request.RequestURI
	if index := strings.Index(uri, "?"); index != -1 {
		return uri[:index]
	}
	return uri
}

func (l *MethodLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	bucket, ok := l.buckets[key]
	return bucket, ok
}

func (l *MethodLimiter) AddBuckets(rules ...BucketRule) *MethodLimiter {
	for _, rule := range rules {
		if _, ok := l.buckets[rule.Key]; !ok {
			l.buckets[rule.Key] = ratelimit.NewBucketWithQuantum(rule.FillInterval, rule.Capacity, rule.Quantum)
		}
	}
	return l
}

// DeviceLimiter gives every device its own bucket, created on first request
// DeviceLimiter 为每个设备单独分配令牌桶，首次请求时创建
type DeviceLimiter struct {
	header string
	rule   BucketRule

	mu      sync.Mutex
	buckets map[string]*ratelimit.Bucket
}

// NewDeviceLimiter header is the request header carrying the device id
// NewDeviceLimiter header 为携带设备 ID 的请求头
func NewDeviceLimiter(header string, rule BucketRule) *DeviceLimiter {
	return &DeviceLimiter{header: header, rule: rule, buckets: make(map[string]*ratelimit.Bucket)}
}

func (l *DeviceLimiter) Key(c *gin.Context) string {
	if id := c.GetHeader(l.header); id != "" {
		return id
	}
	return c.ClientIP()
}

func (l *DeviceLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	if l.rule.Capacity <= 0 {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = ratelimit.NewBucketWithQuantum(l.rule.FillInterval, l.rule.Capacity, l.rule.Quantum)
		l.buckets[key] = bucket
	}
	return bucket, true
}
