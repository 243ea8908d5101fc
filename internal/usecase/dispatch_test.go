package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/memory"
	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// inlineSubmitter runs tasks on the caller's goroutine so tests observe their effects directly.
type inlineSubmitter struct {
	names []string
	err   error
}

func (s *inlineSubmitter) Submit(name string, fn worker.Func) (*worker.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.names = append(s.names, name)
	_ = fn(context.Background())
	return nil, nil
}

type fakeRunner struct {
	paths []string
	err   error
}

func (r *fakeRunner) Run(_ context.Context, videoPath string, _ uuid.UUID) (*entity.VideoJob, error) {
	r.paths = append(r.paths, videoPath)
	if _, statErr := os.Stat(videoPath); statErr != nil && filepath.Base(videoPath) == "input.mp4" {
		return nil, statErr
	}
	return nil, r.err
}

// blockingRunner holds the first run open until release is closed, then checks
// that its input is still on disk.
type blockingRunner struct {
	entered chan string
	release chan struct{}

	mu      sync.Mutex
	calls   int
	statErr error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{entered: make(chan string, 4), release: make(chan struct{})}
}

func (r *blockingRunner) Run(_ context.Context, videoPath string, _ uuid.UUID) (*entity.VideoJob, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if !first {
		return nil, entity.ErrJobInFlight
	}

	r.entered <- videoPath
	<-r.release
	_, err := os.Stat(videoPath)
	r.mu.Lock()
	r.statErr = err
	r.mu.Unlock()
	return nil, nil
}

func (r *blockingRunner) result() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.statErr
}

type fakeStorage struct {
	err        error
	onDownload func()
}

func (s *fakeStorage) DownloadVideo(_ context.Context, _ string, destPath string) error {
	if s.onDownload != nil {
		s.onDownload()
	}
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

type dispatcher struct {
	uc          *DispatchVideoUseCase
	repo        *memory.JobRepository
	pool        *inlineSubmitter
	runner      *fakeRunner
	storage     *fakeStorage
	broadcaster *recordingBroadcaster
	dlq         *recordingDLQ
	notifier    *recordingNotifier
	tempDir     string
}

func newDispatcher(t *testing.T) *dispatcher {
	t.Helper()
	d := &dispatcher{
		repo:        memory.NewJobRepository(),
		pool:        &inlineSubmitter{},
		runner:      &fakeRunner{},
		storage:     &fakeStorage{},
		broadcaster: &recordingBroadcaster{},
		dlq:         &recordingDLQ{},
		notifier:    &recordingNotifier{},
		tempDir:     t.TempDir(),
	}
	d.uc = NewDispatchVideoUseCase(d.repo, d.storage, d.pool, d.runner, d.broadcaster, d.dlq, d.notifier,
		zap.NewNop(), DispatchVideoConfig{TempDir: d.tempDir})
	return d
}

func encode(t *testing.T, msg entity.VideoProcessingMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestDispatch_MalformedMessageGoesToDLQ(t *testing.T) {
	d := newDispatcher(t)

	require.NoError(t, d.uc.Execute(context.Background(), []byte("{not json")))
	require.Len(t, d.dlq.Reasons(), 1)
	assert.Contains(t, d.dlq.Reasons()[0], "unmarshal_error")
	assert.Empty(t, d.pool.names)
}

func TestDispatch_InvalidMessageGoesToDLQ(t *testing.T) {
	d := newDispatcher(t)

	raw := encode(t, entity.VideoProcessingMessage{UserID: "u", VideoPath: "/videos/a.mp4"})
	require.NoError(t, d.uc.Execute(context.Background(), raw))

	raw = encode(t, entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u"})
	require.NoError(t, d.uc.Execute(context.Background(), raw))

	assert.Len(t, d.dlq.Reasons(), 2)
	assert.Empty(t, d.pool.names)
}

func TestDispatch_CreatesMissingJobAndRunsLocalFile(t *testing.T) {
	d := newDispatcher(t)
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "user-1", VideoPath: "/videos/a.mp4"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	job, err := d.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, []string{"/videos/a.mp4"}, d.runner.paths)
	assert.Equal(t, []string{"process-video:" + msg.JobID.String()}, d.pool.names)
	assert.Empty(t, d.dlq.Reasons())
}

func TestDispatch_DownloadsObjectBeforeRunning(t *testing.T) {
	d := newDispatcher(t)
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "user-1", VideoKey: "user-1/clip.mp4"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	require.Len(t, d.runner.paths, 1)
	got := d.runner.paths[0]
	assert.Equal(t, "input.mp4", filepath.Base(got))
	assert.Equal(t, filepath.Join(d.tempDir, "uploads"), filepath.Dir(filepath.Dir(got)))
	assert.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(got)), msg.JobID.String()+"-"))
	assert.Empty(t, d.dlq.Reasons())

	_, err := os.Stat(filepath.Dir(got))
	assert.True(t, os.IsNotExist(err), "download workdir should be removed")
}

func TestDispatch_EachRunGetsItsOwnWorkdir(t *testing.T) {
	d := newDispatcher(t)
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "user-1", VideoKey: "user-1/clip.mp4"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))
	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	require.Len(t, d.runner.paths, 2)
	assert.NotEqual(t, filepath.Dir(d.runner.paths[0]), filepath.Dir(d.runner.paths[1]))
}

func TestDispatch_DuplicateMessageKeepsRunningInput(t *testing.T) {
	repo := memory.NewJobRepository()
	runner := newBlockingRunner()
	dlq := &recordingDLQ{}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(2, 4, zap.NewNop())
	pool.Start(ctx)

	uc := NewDispatchVideoUseCase(repo, &fakeStorage{}, pool, runner, &recordingBroadcaster{}, dlq, notifier,
		zap.NewNop(), DispatchVideoConfig{TempDir: t.TempDir()})

	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u", VideoKey: "u/clip.mp4", UserEmail: "a@b.c"}
	raw := encode(t, msg)
	require.NoError(t, uc.Execute(ctx, raw))

	var input string
	select {
	case input = <-runner.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	require.NoError(t, uc.Execute(ctx, raw))
	require.NoError(t, uc.Execute(ctx, raw))

	close(runner.release)
	pool.Close()

	calls, statErr := runner.result()
	assert.Equal(t, 1, calls)
	assert.NoError(t, statErr, "input must survive duplicate deliveries")
	assert.Empty(t, dlq.Reasons())
	assert.Empty(t, notifier.Sent())

	_, err := os.Stat(filepath.Dir(input))
	assert.True(t, os.IsNotExist(err))
}

func TestDispatch_DownloadFailureForClaimedJobIsNotReported(t *testing.T) {
	d := newDispatcher(t)
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u", VideoKey: "k.mp4", UserEmail: "a@b.c"}
	d.storage.err = errors.New("connection reset")
	d.storage.onDownload = func() {
		_ = d.repo.MarkProcessing(context.Background(), msg.JobID)
	}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	job, err := d.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, job.Status)
	assert.Empty(t, d.broadcaster.Events())
	assert.Empty(t, d.dlq.Reasons())
	assert.Empty(t, d.notifier.Sent())
}

func TestDispatch_DownloadFailureFailsJob(t *testing.T) {
	d := newDispatcher(t)
	d.storage.err = errors.New("no such key")
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "user-1", VideoKey: "k.mp4", UserEmail: "a@b.c"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	job, err := d.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "no such key")
	assert.Empty(t, d.runner.paths)

	events := d.broadcaster.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventFailed, events[0].Kind)
	assert.Len(t, d.dlq.Reasons(), 1)
	assert.Equal(t, []string{"a@b.c"}, d.notifier.Sent())
}

func TestDispatch_RunFailureNotifiesUser(t *testing.T) {
	d := newDispatcher(t)
	d.runner.err = &entity.ProbeError{Path: "/videos/a.mp4", Err: errors.New("invalid data")}
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u", VideoPath: "/videos/a.mp4", UserEmail: "a@b.c"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))

	require.Len(t, d.dlq.Reasons(), 1)
	assert.Contains(t, d.dlq.Reasons()[0], "invalid data")
	assert.Equal(t, []string{"a@b.c"}, d.notifier.Sent())
}

func TestDispatch_DuplicateRunIsNotAFailure(t *testing.T) {
	d := newDispatcher(t)
	d.runner.err = entity.ErrJobInFlight
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u", VideoPath: "/videos/a.mp4", UserEmail: "a@b.c"}

	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))
	assert.Empty(t, d.dlq.Reasons())
	assert.Empty(t, d.notifier.Sent())
}

func TestDispatch_IgnoresJobThatIsNotPending(t *testing.T) {
	d := newDispatcher(t)
	job := entity.NewVideoJob("u", "/videos/a.mp4", "")
	require.NoError(t, d.repo.Create(context.Background(), job))
	require.NoError(t, d.repo.MarkProcessing(context.Background(), job.ID))

	msg := entity.VideoProcessingMessage{JobID: job.ID, UserID: "u", VideoPath: job.VideoPath}
	require.NoError(t, d.uc.Execute(context.Background(), encode(t, msg)))
	assert.Empty(t, d.pool.names)
}

func TestDispatch_PoolFullRequestsRedelivery(t *testing.T) {
	d := newDispatcher(t)
	d.pool.err = worker.ErrPoolFull
	msg := entity.VideoProcessingMessage{JobID: uuid.New(), UserID: "u", VideoPath: "/videos/a.mp4"}

	err := d.uc.Execute(context.Background(), encode(t, msg))
	assert.ErrorIs(t, err, worker.ErrPoolFull)
	assert.Empty(t, d.dlq.Reasons())
}
