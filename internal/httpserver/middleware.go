package httpserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("http: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

func (s *Server) cors() gin.HandlerFunc {
	origin := s.cfg.CORSOrigin
	return func(c *gin.Context) {
		if origin == "" {
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-User-Id")
		h.Add("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	clients   map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// newIPLimiter allows n requests per window per IP. It returns nil, which
// lets every request through, when n or window is not positive.
func newIPLimiter(n int, window time.Duration) *ipLimiter {
	if n <= 0 || window <= 0 {
		return nil
	}
	return &ipLimiter{
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		idle:    window,
		clients: make(map[string]*visitor),
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for k, v := range l.clients {
			if now.Sub(v.seen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.clients[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = v
	}
	v.seen = now
	return v.limiter.AllowN(now, 1)
}

func (l *ipLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if !l.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests from this IP, please try again later.",
			})
			return
		}
		c.Next()
	}
}
