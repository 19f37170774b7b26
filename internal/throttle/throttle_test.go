package throttle

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestNewDisabled(t *testing.T) {
	if l := New(0); l != nil {
		t.Fatalf("New(0) = %v, want nil", l)
	}
	var l *Limiter
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Fatal("nil limiter must allow every request")
	}
}

func TestAllowPerClient(t *testing.T) {
	l := New(2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("third request within a minute should be rejected")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("retry delay = %s, want (0, 30s]", wait)
	}

	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatal("other clients must not be affected")
	}

	now = now.Add(30 * time.Second)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatal("request should be allowed after a token is replenished")
	}
}

func TestSweepRemovesIdleClients(t *testing.T) {
	l := New(5)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(idleTTL + sweepInterval + time.Second)
	l.Allow("10.0.0.2")

	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Fatal("idle client should have been swept")
	}
	if len(l.clients) != 1 {
		t.Fatalf("len(clients) = %d, want 1", len(l.clients))
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(1)
	r := gin.New()
	r.POST("/submit", l.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
