package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// writeCost is the token cost of a mutating request. Writes contend for the
// single writer mutex (and a mine can hold it for a long proof-of-work
// search), so they draw down a client's budget twice as fast as reads.
const writeCost = 2

const staleAfter = 10 * time.Minute

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per client IP. Stale clients are
// evicted opportunistically on lookup instead of by a background sweeper.
type limiterPool struct {
	mu      sync.Mutex
	rps     int
	burst   int
	clients map[string]*clientBucket
}

func newLimiterPool(rps int) *limiterPool {
	return &limiterPool{
		rps:     rps,
		burst:   rps * 2,
		clients: make(map[string]*clientBucket),
	}
}

func (p *limiterPool) allow(ip string, cost int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	b, ok := p.clients[ip]
	if !ok {
		if len(p.clients) >= 1024 {
			p.evictStale(now)
		}
		b = &clientBucket{lim: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.clients[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, cost)
}

// evictStale must be called with mu held.
func (p *limiterPool) evictStale(now time.Time) {
	for ip, b := range p.clients {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(p.clients, ip)
		}
	}
}

// rateLimit returns a middleware enforcing per-IP token-bucket limits, with
// mutating methods billed at writeCost.
func (s *Server) rateLimit(rps int) gin.HandlerFunc {
	pool := newLimiterPool(rps)
	return func(c *gin.Context) {
		cost := 1
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			cost = writeCost
		}
		if !pool.allow(c.ClientIP(), cost) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
