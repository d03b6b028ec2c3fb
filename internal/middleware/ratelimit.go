package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"coworking/internal/pkg/response"
)

const limiterIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter keeps one token bucket per authenticated user. Anonymous
// requests are keyed by client IP.
type UserRateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

func NewUserRateLimiter(perSecond float64, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		rps:      rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Middleware answers 429 once the caller's bucket is empty.
func (l *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(callerKey(c)) {
			c.Header("Retry-After", "1")
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *UserRateLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > limiterIdle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdle {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func callerKey(c *gin.Context) string {
	if uid := c.GetInt64("user_id"); uid > 0 {
		return "user:" + strconv.FormatInt(uid, 10)
	}
	return "ip:" + c.ClientIP()
}
