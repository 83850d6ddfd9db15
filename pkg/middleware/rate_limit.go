package middleware

import (
	"net/http"
	"sync"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiters holds one token bucket per key for a RateLimitMiddleware.
type limiters struct {
	rps   float64
	burst int
	store sync.Map // map[string]*rate.Limiter
}

func (l *limiters) get(key string) *rate.Limiter {
	if v, ok := l.store.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.store.LoadOrStore(key, rate.NewLimiter(rate.Limit(l.rps), l.burst))
	return v.(*rate.Limiter)
}

// RateLimitMiddleware enforces an in-memory token bucket per client IP.
// rps is the refill rate and burst the bucket size. Mount it ahead of
// SessionMiddleware.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	l := &limiters{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !l.get(rateKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Muitas requisições. Tente novamente em instantes."})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
