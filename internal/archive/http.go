// Package archive はZIPアーカイブの受付、ジョブ状態の照会、結果のダウンロードを行う HTTP ハンドラーを提供します。
package archive

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/inference-server/internal/jobs"
	"github.com/yourusername/inference-server/internal/session"
)

// refreshSeconds は処理中のジョブに対してクライアントへ再確認を促す間隔です。
const refreshSeconds = 10

// JobService はハンドラーが利用するジョブ管理の操作です。
type JobService interface {
	Submit(ctx context.Context, upload jobs.Upload) (string, error)
	Job(id string) (jobs.Job, bool)
	GetResultPath(id string) (string, error)
}

// HandlerOptions はハンドラーの設定です。
type HandlerOptions struct {
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Handlers はジョブ関連の HTML ページと JSON API をまとめたものです。
type Handlers struct {
	svc      JobService
	maxBytes int64
	logger   *zap.Logger
}

// NewHandlers は Handlers を作成します。
func NewHandlers(svc JobService, opts HandlerOptions) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 30
	}
	return &Handlers{svc: svc, maxBytes: maxBytes, logger: logger}
}

// IndexPage は GET / のハンドラーです。
func (h *Handlers) IndexPage(c *gin.Context) {
	var recent []recentJob
	for _, id := range session.RecentJobs(c) {
		job, ok := h.svc.Job(id)
		if !ok {
			continue
		}
		recent = append(recent, recentJob{ID: job.ID, UploadName: job.UploadName, Status: string(job.Status)})
	}
	renderPage(c, http.StatusOK, "index", indexData{Title: "ZIPアーカイブの処理", Recent: recent})
}

// SubmitPage は POST /, POST /submit のハンドラーです。
func (h *Handlers) SubmitPage(c *gin.Context) {
	jobID, err := h.submit(c)
	if err != nil {
		renderError(c, err)
		return
	}
	renderPage(c, http.StatusAccepted, "submitted", submittedData{Title: "受付完了", JobID: jobID})
}

// SubmitAPI は POST /api/submit のハンドラーです。
func (h *Handlers) SubmitAPI(c *gin.Context) {
	jobID, err := h.submit(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.Header("Location", "/api/jobs/"+jobID)
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (h *Handlers) submit(c *gin.Context) (string, error) {
	upload, cleanup, err := readUpload(c, h.maxBytes)
	if err != nil {
		h.logger.Info("upload rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		return "", err
	}
	defer cleanup()

	jobID, err := h.svc.Submit(c.Request.Context(), upload)
	if err != nil {
		h.logger.Error("failed to submit job", zap.String("upload_name", upload.Filename()), zap.Error(err))
		return "", err
	}
	if err := session.RememberJob(c, jobID); err != nil {
		h.logger.Warn("failed to save session", zap.String("job_id", jobID), zap.Error(err))
	}
	return jobID, nil
}

// StatusPage は GET /get_job_info, GET /track_result のハンドラーです。
func (h *Handlers) StatusPage(c *gin.Context) {
	job, err := h.lookup(c)
	if err != nil {
		renderError(c, err)
		return
	}

	data := statusData{
		Title:          "ジョブの状況",
		JobID:          job.ID,
		UploadName:     job.UploadName,
		State:          string(job.Status),
		RefreshSeconds: refreshSeconds,
	}
	switch job.Status {
	case jobs.StatusSucceeded:
		if _, err := h.svc.GetResultPath(job.ID); err != nil {
			data.State = "missing"
		}
	case jobs.StatusFailed:
	default:
		c.Header("Refresh", strconv.Itoa(refreshSeconds))
	}
	renderPage(c, http.StatusOK, "status", data)
}

// StatusAPI は GET /api/jobs/:id, GET /api/get_job_info のハンドラーです。
func (h *Handlers) StatusAPI(c *gin.Context) {
	job, err := h.lookup(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	payload := gin.H{
		"jobId":      job.ID,
		"status":     job.Status,
		"uploadName": job.UploadName,
		"createdAt":  job.CreatedAt.Format(time.RFC3339),
	}
	if job.FinishedAt != nil {
		payload["finishedAt"] = job.FinishedAt.Format(time.RFC3339)
	}
	if job.Status == jobs.StatusSucceeded {
		if _, err := h.svc.GetResultPath(job.ID); err == nil {
			payload["downloadUrl"] = "/api/jobs/" + job.ID + "/download"
		}
	}
	if !job.Status.IsTerminal() {
		c.Header("Retry-After", strconv.Itoa(refreshSeconds))
	}
	c.JSON(http.StatusOK, payload)
}

// DownloadPage は GET /get_result のハンドラーです。
func (h *Handlers) DownloadPage(c *gin.Context) {
	if err := h.download(c); err != nil {
		renderError(c, err)
	}
}

// DownloadAPI は GET /api/jobs/:id/download, GET /api/get_result のハンドラーです。
func (h *Handlers) DownloadAPI(c *gin.Context) {
	if err := h.download(c); err != nil {
		respondWithError(c, err)
	}
}

func (h *Handlers) download(c *gin.Context) error {
	jobID, err := jobIDFrom(c)
	if err != nil {
		return err
	}
	path, err := h.svc.GetResultPath(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) || errors.Is(err, jobs.ErrResultNotReady) {
			return newError(codeResultNotFound, messageResultNotFound, err)
		}
		return err
	}
	return streamResult(c, jobID, path)
}

func (h *Handlers) lookup(c *gin.Context) (jobs.Job, error) {
	jobID, err := jobIDFrom(c)
	if err != nil {
		return jobs.Job{}, err
	}
	job, ok := h.svc.Job(jobID)
	if !ok {
		return jobs.Job{}, newError(codeJobNotFound, messageJobNotFound, jobs.ErrJobNotFound)
	}
	return job, nil
}

// jobIDFrom はパスパラメータ id、クエリ job_id、旧形式のクエリ task の順にジョブIDを探します。
// UUID として解釈できないIDは存在しないジョブとして扱います。
func jobIDFrom(c *gin.Context) (string, error) {
	raw := c.Param("id")
	if raw == "" {
		raw = c.Query("job_id")
	}
	if raw == "" {
		raw = c.Query("task")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", newError(codeInvalidInput, "job_id を指定してください。", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", newError(codeJobNotFound, messageJobNotFound, jobs.ErrJobNotFound)
	}
	return id.String(), nil
}
