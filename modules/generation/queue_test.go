package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenergy-server/modules/common/gemini"
	"scenergy-server/modules/common/storage"
	"scenergy-server/modules/jobstore"
	"scenergy-server/modules/settings"
)

// fakeGenerator scripts the outcome of each sequential model call.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	results []error // nil means the call yields an image
	started chan struct{}
	block   bool
}

func (g *fakeGenerator) GenerateImage(ctx context.Context, prompt string, refs []gemini.ReferenceImage, aspectRatio, modelOverride string) ([]byte, error) {
	g.mu.Lock()
	call := g.calls
	g.calls++
	g.mu.Unlock()

	if g.started != nil && call == 0 {
		close(g.started)
	}
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if call < len(g.results) && g.results[call] != nil {
		return nil, g.results[call]
	}
	return []byte("not-a-real-png"), nil
}

// fakeStorage serves downloads from a path map and records uploads.
type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   []string
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Download(ctx context.Context, path string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.objects[path]; ok {
		return &storage.Object{Data: data, ContentType: "image/png"}, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStorage) DownloadURL(ctx context.Context, rawURL string) (*storage.Object, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeStorage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads = append(s.uploads, path)
	return nil
}

// recordingNotifier captures every persisted snapshot.
type recordingNotifier struct {
	mu        sync.Mutex
	snapshots []*Job
}

func (n *recordingNotifier) Notify(jobID string, job *Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snapshots = append(n.snapshots, job)
}

func (n *recordingNotifier) all() []*Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Job(nil), n.snapshots...)
}

func testOptions() Options {
	return Options{
		WorkerCount:   1,
		QueueCapacity: 4,
		VariantDelay:  time.Millisecond,
		TerminalTTL:   600 * time.Second,
		Retention:     10 * time.Minute,
	}
}

func testRequest(variants int) GenerationRequest {
	return GenerationRequest{
		ClientID:  "client-1",
		SessionID: "session-1",
		Prompt:    "on a beach at sunset",
		Settings:  &settings.Settings{NumberOfVariants: variants},
	}
}

func awaitTerminal(t *testing.T, q *Queue, jobID string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		loaded, err := q.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = loaded
		return job.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestEnqueueReturnsExpectedImageIDs(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	for _, n := range []int{1, 3, 5} {
		result, err := q.Enqueue(context.Background(), testRequest(n))
		require.NoError(t, err)
		assert.Len(t, result.ExpectedImageIDs, n)
		assert.NotEmpty(t, result.JobID)

		job, err := q.Get(context.Background(), result.JobID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, job.Status)
		assert.Equal(t, result.ExpectedImageIDs, job.ImageIDs)
	}
}

func TestEnqueueDefaultsVariantCount(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	result, err := q.Enqueue(context.Background(), GenerationRequest{ClientID: "c", SessionID: "s"})
	require.NoError(t, err)
	assert.Len(t, result.ExpectedImageIDs, 1)
}

func TestAllVariantsSucceed(t *testing.T) {
	store := jobstore.NewMemoryStore()
	fs := newFakeStorage()
	q := NewQueue(store, fs, &fakeGenerator{}, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Len(t, job.ImageIDs, 2)
	assert.Equal(t, result.ExpectedImageIDs, job.ImageIDs)
	assert.Nil(t, job.Error)
	assert.NotNil(t, job.CompletedAt)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Len(t, fs.uploads, 2)
	assert.Contains(t, fs.uploads[0], "sessions/session-1/generated/")
}

func TestPartialFailureStillCompletes(t *testing.T) {
	store := jobstore.NewMemoryStore()
	gen := &fakeGenerator{results: []error{nil, errors.New("model exploded")}}
	q := NewQueue(store, newFakeStorage(), gen, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusCompleted, job.Status)
	require.Len(t, job.ImageIDs, 1)
	assert.Equal(t, result.ExpectedImageIDs[0], job.ImageIDs[0])
	assert.Nil(t, job.Error)
}

func TestAllVariantsFail(t *testing.T) {
	store := jobstore.NewMemoryStore()
	gen := &fakeGenerator{results: []error{errors.New("boom"), errors.New("boom")}}
	q := NewQueue(store, newFakeStorage(), gen, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusError, job.Status)
	assert.Empty(t, job.ImageIDs)
	require.NotNil(t, job.Error)
	assert.Equal(t, "Failed to generate any images", *job.Error)
	assert.Equal(t, 0, job.Progress, "failed variants must not advance progress")
}

func TestProgressAdvancesOnlyOnSuccess(t *testing.T) {
	store := jobstore.NewMemoryStore()
	notifier := &recordingNotifier{}
	gen := &fakeGenerator{results: []error{errors.New("boom"), nil}}
	q := NewQueue(store, newFakeStorage(), gen, notifier, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	// The failed first variant persists nothing: progress jumps 0 -> 100.
	for _, snap := range notifier.all() {
		assert.Contains(t, []int{0, 100}, snap.Progress)
	}
}

func TestUploadFailureCountsAsVariantFailure(t *testing.T) {
	store := jobstore.NewMemoryStore()
	fs := newFakeStorage()
	fs.uploadErr = errors.New("bucket unavailable")
	q := NewQueue(store, fs, &fakeGenerator{}, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(1))
	require.NoError(t, err)

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusError, job.Status)
	assert.Empty(t, job.ImageIDs)
}

func TestProgressIsMonotonic(t *testing.T) {
	store := jobstore.NewMemoryStore()
	notifier := &recordingNotifier{}
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, notifier, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(4))
	require.NoError(t, err)
	awaitTerminal(t, q, result.JobID)

	snapshots := notifier.all()
	require.NotEmpty(t, snapshots)
	last := -1
	for _, snap := range snapshots {
		assert.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
	}
	assert.Equal(t, 100, last)
}

func TestTerminalJobsGetTTLPendingDoNot(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	// Not started: job stays pending.
	pending, err := q.Enqueue(context.Background(), testRequest(1))
	require.NoError(t, err)

	ttl, exists := store.TTL(jobKeyPrefix + pending.JobID)
	require.True(t, exists)
	assert.Equal(t, time.Duration(0), ttl, "pending jobs must not expire")

	q.Start()
	defer q.Stop()
	job := awaitTerminal(t, q, pending.JobID)
	require.True(t, job.Terminal())

	ttl, exists = store.TTL(jobKeyPrefix + pending.JobID)
	require.True(t, exists)
	assert.Greater(t, ttl, time.Duration(0), "terminal jobs must carry a TTL")
	assert.LessOrEqual(t, ttl, 600*time.Second)
}

func TestEnqueueBackpressureWhenQueueFull(t *testing.T) {
	store := jobstore.NewMemoryStore()
	opts := testOptions()
	opts.QueueCapacity = 1
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, opts)
	// Workers never started, so the buffer fills immediately.

	first, err := q.Enqueue(context.Background(), testRequest(1))
	require.NoError(t, err)

	second, err := q.Enqueue(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
	assert.Nil(t, second)

	// The rejected job record was removed, the accepted one kept.
	_, err = q.Get(context.Background(), first.JobID)
	assert.NoError(t, err)
}

func TestCancelFinalizesJob(t *testing.T) {
	store := jobstore.NewMemoryStore()
	started := make(chan struct{})
	gen := &fakeGenerator{block: true, started: started}
	q := NewQueue(store, newFakeStorage(), gen, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	<-started
	require.True(t, q.Cancel(result.JobID))

	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusError, job.Status)
	assert.Empty(t, job.ImageIDs)
}

// ctxCheckingStore fails any call whose context is already done, the way the
// Redis client does. The plain MemoryStore ignores contexts entirely.
type ctxCheckingStore struct {
	*jobstore.MemoryStore
}

func (s *ctxCheckingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *ctxCheckingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *ctxCheckingStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Del(ctx, key)
}

func TestCancelFinalizesOnContextCheckingStore(t *testing.T) {
	mem := jobstore.NewMemoryStore()
	started := make(chan struct{})
	gen := &fakeGenerator{block: true, started: started}
	q := NewQueue(&ctxCheckingStore{mem}, newFakeStorage(), gen, nil, testOptions())
	q.Start()
	defer q.Stop()

	result, err := q.Enqueue(context.Background(), testRequest(2))
	require.NoError(t, err)

	<-started
	require.True(t, q.Cancel(result.JobID))

	// Even though the job's own context is dead, the terminal transition must
	// still land and carry its TTL.
	job := awaitTerminal(t, q, result.JobID)
	assert.Equal(t, StatusError, job.Status)
	assert.Empty(t, job.ImageIDs)

	ttl, exists := mem.TTL(jobKeyPrefix + result.JobID)
	require.True(t, exists)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	q := NewQueue(jobstore.NewMemoryStore(), newFakeStorage(), &fakeGenerator{}, nil, testOptions())
	q.Start()
	q.Stop()

	_, err := q.Enqueue(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")
}

func TestCancelUnknownJob(t *testing.T) {
	q := NewQueue(jobstore.NewMemoryStore(), newFakeStorage(), &fakeGenerator{}, nil, testOptions())
	assert.False(t, q.Cancel("no-such-job"))
}

func TestListNewestFirst(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	seedJob(t, store, "job-old", StatusCompleted, time.Now().Add(-2*time.Hour), "session-a")
	seedJob(t, store, "job-new", StatusPending, time.Now(), "session-b")

	jobs, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-new", jobs[0].ID)
	assert.Equal(t, "job-old", jobs[1].ID)
}

func TestListBySessionFilters(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	seedJob(t, store, "job-a", StatusPending, time.Now(), "session-a")
	seedJob(t, store, "job-b", StatusPending, time.Now(), "session-b")

	jobs, err := q.ListBySession(context.Background(), "session-a")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-a", jobs[0].ID)
}

func TestCleanupDeletesOnlyOldTerminalJobs(t *testing.T) {
	store := jobstore.NewMemoryStore()
	q := NewQueue(store, newFakeStorage(), &fakeGenerator{}, nil, testOptions())

	seedJob(t, store, "job-stale", StatusCompleted, time.Now().Add(-11*time.Minute), "s")
	seedJob(t, store, "job-fresh", StatusCompleted, time.Now().Add(-1*time.Minute), "s")
	seedJob(t, store, "job-running", StatusGenerating, time.Now().Add(-30*time.Minute), "s")

	q.CleanupOldJobs(context.Background())

	_, err := q.Get(context.Background(), "job-stale")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)

	_, err = q.Get(context.Background(), "job-fresh")
	assert.NoError(t, err)

	// Non-terminal jobs are never reclaimed by the sweeper, however old.
	_, err = q.Get(context.Background(), "job-running")
	assert.NoError(t, err)
}

func seedJob(t *testing.T, store jobstore.Store, id, status string, at time.Time, sessionID string) {
	t.Helper()
	job := &Job{
		ID:        id,
		Request:   GenerationRequest{ClientID: "c", SessionID: sessionID, Settings: &settings.Settings{NumberOfVariants: 1}},
		Status:    status,
		ImageIDs:  []string{},
		CreatedAt: at,
		UpdatedAt: at,
		Version:   1,
	}
	if status == StatusCompleted || status == StatusError {
		job.CompletedAt = &at
	}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), jobKeyPrefix+id, data, 0))
}
