// Package process は外部処理プログラムの起動と終了ステータスの判定を提供します。
//
// プログラムはシェルを介さず直接起動され、引数の末尾に入力パスと出力パスが追加されます:
//
//	<Path> [Args...] <inputPath> <outputPath>
//
// 成否は終了ステータスのみで判定します。出力ファイルの検証は行いません。
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// outputTailBytes は診断用に保持する標準出力/標準エラーの末尾サイズです。
const outputTailBytes = 16 * 1024

// pipeWaitDelay はプロセス終了後（または kill 後）に出力パイプが閉じるのを待つ上限です。
var pipeWaitDelay = 2 * time.Second

var ErrEmptyPath = errors.New("command path is empty")

// Command は起動する外部プログラムの定義です。
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration // 0 はタイムアウトなし
}

// Result は1回の実行結果です。
type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int    // 起動できなかった場合やシグナルで終了した場合は -1
	Output   string // stdout/stderr を結合した末尾
	Err      error
}

// Success は終了ステータス 0 で終了したかを返します。
func (r Result) Success() bool {
	return r.Err == nil
}

func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Stopped.IsZero() {
		return 0
	}
	return r.Stopped.Sub(r.Started)
}

// Runner は設定された外部プログラムを同期的に実行します。状態は持ちません。
type Runner struct {
	cmd Command
}

// NewRunner は Runner を作成します。
func NewRunner(cmd Command, logger *zap.Logger) (*Runner, error) {
	if strings.TrimSpace(cmd.Path) == "" {
		return nil, ErrEmptyPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cmd.Timeout == 0 {
		logger.Warn("external command has no timeout", zap.String("path", cmd.Path))
	}
	return &Runner{
		cmd: Command{
			Path:    cmd.Path,
			Args:    append([]string(nil), cmd.Args...),
			Env:     append([]string(nil), cmd.Env...),
			Timeout: cmd.Timeout,
		},
	}, nil
}

// Run はプログラムを起動し、終了するまでブロックします。
// ctx がキャンセルされるとプロセスは kill されます。
func (r *Runner) Run(ctx context.Context, inputPath, outputPath string) Result {
	args := append(append([]string(nil), r.cmd.Args...), inputPath, outputPath)
	res := Result{
		Path:     r.cmd.Path,
		Args:     args,
		ExitCode: -1,
	}

	if r.cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cmd.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cmd.Path, args...)
	if len(r.cmd.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cmd.Env...)
	}
	out := newTailBuffer(outputTailBytes)
	cmd.Stdout = out
	cmd.Stderr = out
	// 子孫プロセスごと停止できるよう、独立したプロセスグループで起動する
	setProcessGroup(cmd)
	cmd.WaitDelay = pipeWaitDelay

	res.Started = time.Now().UTC()
	err := cmd.Run()
	res.Stopped = time.Now().UTC()
	res.Output = out.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	// 正常終了後にバックグラウンドの子孫がパイプを保持していただけなら成功とする
	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil && res.ExitCode == 0 {
		err = nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", err, ctxErr)
		}
		res.Err = err
	}
	return res
}

// tailBuffer は書き込まれたデータの末尾 limit バイトだけを保持します。
type tailBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + n - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	if b.truncated {
		return "..." + string(b.buf)
	}
	return string(b.buf)
}
