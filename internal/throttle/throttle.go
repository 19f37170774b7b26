// Package throttle はクライアントIPごとのジョブ投入レート制限を提供します。
package throttle

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

var (
	idleTTL       = 10 * time.Minute
	sweepInterval = time.Minute
)

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter は IP ごとにトークンバケットを保持します。
type Limiter struct {
	limit rate.Limit
	burst int

	lock      sync.Mutex
	clients   map[string]*clientState
	lastSweep time.Time
	now       func() time.Time
}

// New は 1 分あたり perMinute 回まで許可する Limiter を作成します。
// perMinute が 0 以下の場合は nil を返し、制限しません。
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	return &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

// Allow は ip からのリクエストを許可するかを返します。
// 拒否した場合は次に許可されるまでの待ち時間を返します。
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	l.sweep(now)

	state, ok := l.clients[ip]
	if !ok {
		state = &clientState{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = state
	}
	state.lastSeen = now

	r := state.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for ip, state := range l.clients {
		if now.Sub(state.lastSeen) > idleTTL {
			delete(l.clients, ip)
		}
	}
}

// Middleware は制限を超えたリクエストを 429 で拒否します。
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := l.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_REQUESTS",
			"message": "投入回数の上限に達しました。一定時間後に再度お試しください。",
		})
	}
}
