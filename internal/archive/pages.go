package archive

import (
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

const pageLayout = `{{define "header"}}<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{end}}
{{define "footer"}}<p><a href="/">トップへ戻る</a></p>
</body>
</html>
{{end}}`

const indexPage = `{{define "index"}}{{template "header" .}}<form action="/submit" method="post" enctype="multipart/form-data">
<input type="file" name="file" accept=".zip,application/zip" required>
<button type="submit">送信</button>
</form>
{{if .Recent}}<h2>最近のジョブ</h2>
<ul>
{{range .Recent}}<li><a href="/get_job_info?job_id={{.ID}}">{{.ID}}</a> {{.UploadName}} ({{.Status}})</li>
{{end}}</ul>
{{end}}</body>
</html>
{{end}}`

const submittedPage = `{{define "submitted"}}{{template "header" .}}<p>ジョブを受け付けました: <code>{{.JobID}}</code></p>
<p><a href="/get_job_info?job_id={{.JobID}}">処理状況を確認する</a></p>
{{template "footer" .}}{{end}}`

const statusPage = `{{define "status"}}{{template "header" .}}<p>ジョブ: <code>{{.JobID}}</code>{{if .UploadName}} ({{.UploadName}}){{end}}</p>
{{if eq .State "running"}}<p>処理中です。このページは {{.RefreshSeconds}} 秒ごとに自動更新されます。</p>
{{else if eq .State "succeeded"}}<p>処理が完了しました。</p>
<p><a href="/get_result?job_id={{.JobID}}">結果をダウンロード</a></p>
{{else if eq .State "missing"}}<p>処理は完了しましたが、結果ファイルが見つかりません。</p>
{{else}}<p>ジョブが失敗しました。</p>
{{end}}{{template "footer" .}}{{end}}`

const errorPage = `{{define "error"}}{{template "header" .}}<p>{{.Message}}</p>
<p><small>{{.Code}}</small></p>
{{template "footer" .}}{{end}}`

var pages = template.Must(template.New("pages").Parse(
	pageLayout + indexPage + submittedPage + statusPage + errorPage,
))

type recentJob struct {
	ID         string
	UploadName string
	Status     string
}

type indexData struct {
	Title  string
	Recent []recentJob
}

type submittedData struct {
	Title string
	JobID string
}

type statusData struct {
	Title          string
	JobID          string
	UploadName     string
	State          string
	RefreshSeconds int
}

type errorData struct {
	Title   string
	Code    string
	Message string
}

func renderPage(c *gin.Context, status int, name string, data any) {
	c.Render(status, render.HTML{Template: pages, Name: name, Data: data})
}

func renderError(c *gin.Context, err error) {
	status, apiErr := classify(err)
	renderPage(c, status, "error", errorData{
		Title:   "エラー",
		Code:    apiErr.Code,
		Message: apiErr.Message,
	})
}
