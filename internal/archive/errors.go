package archive

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inference-server/internal/jobs"
)

const (
	codeInvalidInput      = "INVALID_INPUT"
	codeLimitExceeded     = "LIMIT_EXCEEDED"
	codeJobNotFound       = "JOB_NOT_FOUND"
	codeResultNotFound    = "JOB_RESULT_NOT_FOUND"
	codeServiceStopping   = "SERVICE_UNAVAILABLE"
	codeRequestCanceled   = "REQUEST_CANCELED"
	codeInternalError     = "INTERNAL_ERROR"
	messageInternalError  = "サーバー内部でエラーが発生しました。"
	messageJobNotFound    = "指定されたジョブは存在しません。"
	messageResultNotFound = "ジョブの結果はまだ利用できません。"
)

// Error はクライアントに返すエラーコードとメッセージを保持します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// classify はエラーを HTTP ステータスと応答用の Error に変換します。
func classify(err error) (int, *Error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case codeLimitExceeded:
			return http.StatusRequestEntityTooLarge, apiErr
		case codeJobNotFound, codeResultNotFound:
			return http.StatusNotFound, apiErr
		default:
			return http.StatusBadRequest, apiErr
		}
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound, newError(codeJobNotFound, messageJobNotFound, err)
	case errors.Is(err, jobs.ErrResultNotReady):
		return http.StatusNotFound, newError(codeResultNotFound, messageResultNotFound, err)
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable, newError(codeServiceStopping, "サーバーを停止中のため受け付けできません。", err)
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, newError(codeRequestCanceled, "リクエストがキャンセルされました。", err)
	default:
		return http.StatusInternalServerError, newError(codeInternalError, messageInternalError, err)
	}
}

func respondWithError(c *gin.Context, err error) {
	status, apiErr := classify(err)
	c.JSON(status, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}
