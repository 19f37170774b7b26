package process

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestRunnerBackgroundChildHoldingOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	saved := pipeWaitDelay
	pipeWaitDelay = 100 * time.Millisecond
	t.Cleanup(func() { pipeWaitDelay = saved })

	runner, err := NewRunner(Command{
		Path:    sh,
		Args:    []string{"-c", "sleep 5 & echo started", "sh"},
		Timeout: 10 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}

	start := time.Now()
	res := runner.Run(context.Background(), "in", "out")
	if !res.Success() {
		t.Fatalf("expected success, got err=%v exit=%d", res.Err, res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Run blocked on background child for %s", elapsed)
	}
	if res.Output != "started\n" {
		t.Fatalf("Output = %q, want %q", res.Output, "started\n")
	}
}
