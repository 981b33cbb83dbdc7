package rest

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/config"
	"github.com/zlnvch/easel/logutils"
)

type RateLimiterConfig struct {
	GeneralRate     rate.Limit
	GeneralBurst    int
	UploadRate      rate.Limit
	UploadBurst     int
	CleanupInterval time.Duration
}

func RateLimiterConfigFrom(cfg config.RateLimitConfig) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(cfg.RequestsPerSecond),
		GeneralBurst:    cfg.Burst,
		UploadRate:      rate.Limit(float64(cfg.UploadsPerMinute) / 60.0),
		UploadBurst:     cfg.UploadsPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet holds one token bucket per user for a single limit.
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{name: name, rate: r, burst: burst, limiters: make(map[string]*userLimiter)}
}

func (s *limiterSet) get(userId string) *rate.Limiter {
	s.mu.RLock()
	ul, exists := s.limiters[userId]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		ul.lastAccess = time.Now()
		s.mu.Unlock()
		return ul.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have created it meanwhile.
	if ul, exists := s.limiters[userId]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[userId] = &userLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userId, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userId)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// RateLimiter applies per-user limits. It must sit behind Authenticate.
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	uploads *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		uploads: newLimiterSet("uploads", config.UploadRate, config.UploadBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) General() gin.HandlerFunc {
	return rl.middleware(rl.general)
}

// Uploads limits presigned upload requests independently of General.
func (rl *RateLimiter) Uploads() gin.HandlerFunc {
	return rl.middleware(rl.uploads)
}

func (rl *RateLimiter) middleware(set *limiterSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if !set.get(user.Id).Allow() {
			logutils.Log.WithFields(logutils.Fields{
				"userId":    user.Id,
				"limitType": set.name,
			}).Warn("rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(set.rate)))
			response.TooManyRequestsError(c)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.general.evictIdle(now, rl.config.CleanupInterval*2)
			rl.uploads.evictIdle(now, rl.config.CleanupInterval*2)
		case <-rl.stopCh:
			return
		}
	}
}

// retryAfterSeconds is the time until one token is refilled, at least 1s.
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	seconds := int(math.Ceil(1.0 / float64(r)))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
