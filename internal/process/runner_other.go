//go:build !unix

package process

import "os/exec"

// プロセスグループを扱えない環境では直接の子プロセスだけを kill する。
func setProcessGroup(cmd *exec.Cmd) {}
