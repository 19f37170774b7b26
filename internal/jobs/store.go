package jobs

import (
	"sync"
	"time"
)

// Store はジョブ状態をメモリ上に保持します。
// レコードはプロセスの生存期間中削除されません。
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewStore は空の Store を作成します。
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create は running 状態のジョブを登録します。既存IDは上書きしません。
func (s *Store) Create(id, uploadName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return ErrDuplicateJob
	}
	s.jobs[id] = &Job{
		ID:         id,
		Status:     StatusRunning,
		UploadName: uploadName,
		CreatedAt:  s.now(),
	}
	return nil
}

// UpdateStatus は状態を遷移させます。
// 未知のIDや不正な遷移では何も変更せずエラーを返します。
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !job.Status.canTransitionTo(status) {
		return ErrInvalidTransition
	}
	job.Status = status
	if status.IsTerminal() {
		finished := s.now()
		job.FinishedAt = &finished
	}
	return nil
}

// Get はジョブのコピーを返します。
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		snapshot.FinishedAt = &finished
	}
	return snapshot, true
}

// Stats は状態ごとのジョブ数を返します。
func (s *Store) Stats() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[Status]int{
		StatusRunning:   0,
		StatusSucceeded: 0,
		StatusFailed:    0,
	}
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats
}
