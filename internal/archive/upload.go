package archive

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// multipartOverhead はファイル本体以外のマルチパートのヘッダー分として許容するバイト数です。
const multipartOverhead = 1 << 20

const zipMIME = "application/zip"

// fileUpload は jobs.Upload を実装します。
type fileUpload struct {
	c      *gin.Context
	header *multipart.FileHeader
}

func (u *fileUpload) Filename() string {
	return u.header.Filename
}

func (u *fileUpload) SaveAs(dst string) error {
	return u.c.SaveUploadedFile(u.header, dst)
}

// readUpload はリクエストからZIPファイルを1つだけ取り出して検証します。
// 戻り値の cleanup はマルチパートの一時ファイルを削除します。
func readUpload(c *gin.Context, maxBytes int64) (*fileUpload, func(), error) {
	noop := func() {}
	if c.Request.ContentLength > maxBytes+multipartOverhead {
		return nil, noop, limitExceeded(maxBytes)
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, noop, limitExceeded(maxBytes)
		}
		return nil, noop, newError(codeInvalidInput, "multipart/form-data でZIPファイルを送信してください。", err)
	}
	cleanup := func() { _ = form.RemoveAll() }

	header, err := extractSingleFile(form)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	if header.Size > maxBytes {
		cleanup()
		return nil, noop, limitExceeded(maxBytes)
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		cleanup()
		return nil, noop, newError(codeInvalidInput, "拡張子が .zip のファイルを送信してください。", nil)
	}
	if err := ensureZip(header); err != nil {
		cleanup()
		return nil, noop, err
	}

	return &fileUpload{c: c, header: header}, cleanup, nil
}

// extractSingleFile はフィールド名に関係なく、ファイルがちょうど1つであることを確認します。
func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	var found []*multipart.FileHeader
	if form != nil {
		for _, files := range form.File {
			found = append(found, files...)
		}
	}
	switch len(found) {
	case 0:
		return nil, newError(codeInvalidInput, "ZIPファイルを選択してください。", nil)
	case 1:
		return found[0], nil
	default:
		return nil, newError(codeInvalidInput, "ZIPファイルは1つだけ送信してください。", nil)
	}
}

func ensureZip(header *multipart.FileHeader) error {
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("detect upload type: %w", err)
	}
	// docx や jar など ZIP ベースの形式も受け付ける
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return nil
		}
	}
	return newError(codeInvalidInput, fmt.Sprintf("ZIP形式ではないファイルです（%s）。", mt.String()), nil)
}

func limitExceeded(maxBytes int64) *Error {
	return newError(codeLimitExceeded, fmt.Sprintf("ファイルサイズの上限（%dバイト）を超えています。", maxBytes), nil)
}
