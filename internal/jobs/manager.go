// Package jobs はジョブの受付と非同期実行、状態の参照を提供します。
//
// 受付時点でジョブは running として記録され、外部プログラムの終了後に
// succeeded か failed のいずれかへ一度だけ遷移します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/inference-server/internal/process"
	"github.com/yourusername/inference-server/internal/storage"
)

// Upload はアップロードされた入力アーカイブです。
type Upload interface {
	Filename() string
	SaveAs(dst string) error
}

// Invoker は入力パスと出力パスを受け取って処理を実行します。
type Invoker interface {
	Run(ctx context.Context, inputPath, outputPath string) process.Result
}

// InvokerFunc は関数を Invoker として扱うためのアダプタです。
type InvokerFunc func(ctx context.Context, inputPath, outputPath string) process.Result

func (f InvokerFunc) Run(ctx context.Context, inputPath, outputPath string) process.Result {
	return f(ctx, inputPath, outputPath)
}

// Observer はジョブのライフサイクルイベントを受け取ります。
type Observer interface {
	JobSubmitted()
	JobStarted()
	JobFinished(status Status, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) JobSubmitted()                     {}
func (noopObserver) JobStarted()                       {}
func (noopObserver) JobFinished(Status, time.Duration) {}

// Options は Manager の任意設定です。
type Options struct {
	// MaxConcurrent は同時に実行する外部プロセス数の上限です。0 は無制限。
	MaxConcurrent int64
	NewID         func() (string, error)
	Observer      Observer
	Logger        *zap.Logger
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	store    *Store
	files    *storage.Local
	invoker  Invoker
	sem      *semaphore.Weighted
	newID    func() (string, error)
	observer Observer
	logger   *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	reserved map[string]struct{} // 入力を保存中でまだ Store に無いID
}

// NewManager は Manager を初期化します。
func NewManager(store *Store, files *storage.Local, invoker Invoker, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if files == nil {
		return nil, errors.New("storage is nil")
	}
	if invoker == nil {
		return nil, errors.New("invoker is nil")
	}
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent must be >= 0, got %d", opts.MaxConcurrent)
	}

	m := &Manager{
		store:    store,
		files:    files,
		invoker:  invoker,
		newID:    opts.NewID,
		observer: opts.Observer,
		logger:   opts.Logger,
		reserved: make(map[string]struct{}),
	}
	if opts.MaxConcurrent > 0 {
		m.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	if m.newID == nil {
		m.newID = newUUID
	}
	if m.observer == nil {
		m.observer = noopObserver{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Submit は入力を保存してジョブを登録し、処理を非同期に開始します。
// 戻り値のIDに対する GetStatus は、呼び出し直後から running を返します。
func (m *Manager) Submit(ctx context.Context, upload Upload) (string, error) {
	if upload == nil {
		return "", errors.New("upload is nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	id, err := m.prepare(upload)
	if err != nil {
		m.wg.Done()
		return "", err
	}

	m.observer.JobSubmitted()
	m.logger.Info("job accepted",
		zap.String("job_id", id),
		zap.String("upload_name", upload.Filename()),
	)
	go m.run(id)
	return id, nil
}

func (m *Manager) prepare(upload Upload) (string, error) {
	id, err := m.newID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	// UUID 以外の NewID では同じIDが返り得るため、保存前にIDを予約する
	if !m.reserve(id) {
		return "", ErrDuplicateJob
	}
	defer m.release(id)

	input := m.files.InputPath(id)
	if err := upload.SaveAs(input); err != nil {
		_ = m.files.Remove(input)
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := m.store.Create(id, upload.Filename()); err != nil {
		_ = m.files.Remove(input)
		return "", err
	}
	return id, nil
}

func (m *Manager) reserve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.reserved[id]; busy {
		return false
	}
	if _, exists := m.store.Get(id); exists {
		return false
	}
	m.reserved[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, id)
}

// GetStatus は保存されている状態をそのまま返します。
func (m *Manager) GetStatus(id string) (Status, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return "", ErrJobNotFound
	}
	return job.Status, nil
}

// Job はジョブのスナップショットを返します。
func (m *Manager) Job(id string) (Job, bool) {
	return m.store.Get(id)
}

// GetResultPath は成功したジョブの出力ファイルのパスを返します。
// 状態が succeeded で、かつ出力ファイルが存在する場合のみパスを返します。
func (m *Manager) GetResultPath(id string) (string, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return "", ErrJobNotFound
	}
	if job.Status != StatusSucceeded {
		return "", ErrResultNotReady
	}
	path := m.files.OutputPath(id)
	exists, err := m.files.Exists(path)
	if err != nil {
		return "", fmt.Errorf("stat result: %w", err)
	}
	if !exists {
		return "", ErrResultNotReady
	}
	return path, nil
}

// Stats は状態ごとのジョブ数を返します。
func (m *Manager) Stats() map[Status]int {
	return m.store.Stats()
}

// Shutdown は新規受付を止め、実行中のジョブの終了を待ちます。
// ctx が先に終了した場合は実行中の外部プロセスを停止させてから戻ります。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown deadline reached, killing running jobs")
		m.cancel()
		<-done
		return ctx.Err()
	}
}
