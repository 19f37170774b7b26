package archive

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inference-server/internal/storage"
)

func streamResult(c *gin.Context, jobID, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("結果ファイルの読み込みに失敗しました: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("結果ファイルの情報取得に失敗しました: %w", err)
	}

	filename := storage.OutputFilename(jobID)
	encodedName := url.PathEscape(filename)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", jobID)
	c.DataFromReader(http.StatusOK, info.Size(), zipMIME, file, nil)
	return nil
}
