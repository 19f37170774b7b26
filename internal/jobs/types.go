package jobs

import (
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrResultNotReady    = errors.New("job result not ready")
	ErrDuplicateJob      = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrShuttingDown      = errors.New("job manager is shutting down")
)

// transitions は許可される状態遷移です。終端状態からの遷移はありません。
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// IsTerminal は終端状態かどうかを返します。
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) canTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job はジョブの現在状態のスナップショットです。
type Job struct {
	ID         string
	Status     Status
	UploadName string
	CreatedAt  time.Time
	FinishedAt *time.Time
}
