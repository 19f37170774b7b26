// Package session はブラウザごとに最近投入したジョブIDをクッキーセッションに保持します。
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	CookieName           = "inference_session"
	sessionKeyRecentJobs = "recent_jobs"
	maxRecentJobs        = 10
)

var maxLifetime = 7 * 24 * time.Hour

// Middleware はクッキーセッションのミドルウェアを返します。
// secret が空の場合はプロセスごとにランダムな鍵を生成します。
func Middleware(secret string, secure bool) (gin.HandlerFunc, error) {
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
	}

	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(maxLifetime.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(CookieName, store), nil
}

// RememberJob はジョブIDを履歴の先頭に追加して保存します。
// セッションミドルウェアが無い場合は何もしません。
func RememberJob(c *gin.Context, jobID string) error {
	if !enabled(c) {
		return nil
	}
	s := sessions.Default(c)

	recent := []string{jobID}
	for _, id := range readIDs(s.Get(sessionKeyRecentJobs)) {
		if id == jobID {
			continue
		}
		if len(recent) == maxRecentJobs {
			break
		}
		recent = append(recent, id)
	}
	s.Set(sessionKeyRecentJobs, strings.Join(recent, ","))
	return s.Save()
}

// RecentJobs は新しい順にジョブIDを返します。
func RecentJobs(c *gin.Context) []string {
	if !enabled(c) {
		return nil
	}
	return readIDs(sessions.Default(c).Get(sessionKeyRecentJobs))
}

func enabled(c *gin.Context) bool {
	_, ok := c.Get(sessions.DefaultKey)
	return ok
}

func readIDs(v interface{}) []string {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
