package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenergy-server/modules/common/gemini"
	"scenergy-server/modules/common/imaging"
	"scenergy-server/modules/jobstore"
	"scenergy-server/modules/prompt"
	"scenergy-server/modules/settings"
)

const jobKeyPrefix = "generation_job:"

// ImageGenerator is the slice of the Gemini client the orchestrator needs.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, refs []gemini.ReferenceImage, aspectRatio string, modelOverride string) ([]byte, error)
}

// Notifier receives job snapshots after every persisted state change.
type Notifier interface {
	Notify(jobID string, job *Job)
}

// sessionKeyLister is the optional fast path a backend can offer for
// session-scoped listing. The Supabase adapter implements it via flow_id.
type sessionKeyLister interface {
	KeysBySession(ctx context.Context, sessionID string) ([]string, error)
}

// Options tunes the worker pool and retention behavior.
type Options struct {
	WorkerCount   int
	QueueCapacity int
	VariantDelay  time.Duration
	TerminalTTL   time.Duration
	Retention     time.Duration
}

// Queue is the generation job orchestrator: one instance per process,
// constructed at bootstrap and injected into every caller. Jobs run on a
// bounded worker pool; enqueue applies backpressure when the pool's buffer
// is full.
type Queue struct {
	store     jobstore.Store
	resolver  *Resolver
	storage   ObjectStorage
	generator ImageGenerator
	notifier  Notifier
	opts      Options

	tasks   chan string
	wg      sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

// NewQueue wires the orchestrator. The notifier may be nil.
func NewQueue(store jobstore.Store, objStorage ObjectStorage, generator ImageGenerator, notifier Notifier, opts Options) *Queue {
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = 1
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Queue{
		store:     store,
		resolver:  NewResolver(objStorage),
		storage:   objStorage,
		generator: generator,
		notifier:  notifier,
		opts:      opts,
		tasks:     make(chan string, opts.QueueCapacity),
		baseCtx:   baseCtx,
		stop:      stop,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	log.Printf("🔄 Generation worker pool starting (%d workers, queue capacity %d)", q.opts.WorkerCount, q.opts.QueueCapacity)
	for i := 0; i < q.opts.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
}

// Stop cancels all in-flight jobs and waits for the workers to drain. The
// closed flag keeps a concurrent Enqueue from sending on the closed channel.
func (q *Queue) Stop() {
	q.stop()
	q.mu.Lock()
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
	log.Println("🔌 Generation worker pool stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for jobID := range q.tasks {
		log.Printf("🎯 Worker #%d picked up job: %s", id, jobID)
		if err := q.runJob(jobID); err != nil {
			log.Printf("❌ Job %s failed: %v", jobID, err)
		}
	}
}

// Enqueue validates nothing beyond defaulting the variant count, writes the
// pending record with its placeholder image ids, and hands the job to the
// pool. Returns immediately; callers poll Get for progress.
func (q *Queue) Enqueue(ctx context.Context, req GenerationRequest) (*EnqueueResult, error) {
	if req.Settings == nil {
		req.Settings = &settings.Settings{}
	}
	req.Settings.Normalize()
	variants := req.Settings.NumberOfVariants

	placeholders := make([]string, variants)
	for i := range placeholders {
		placeholders[i] = uuid.New().String()
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusPending,
		ImageIDs:  placeholders,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	// Pending records carry no TTL: only terminal jobs are reclaimed.
	if err := q.store.Set(ctx, jobKeyPrefix+job.ID, data, 0); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if delErr := q.store.Del(ctx, jobKeyPrefix+job.ID); delErr != nil {
			log.Printf("⚠️  Failed to remove rejected job %s: %v", job.ID, delErr)
		}
		return nil, fmt.Errorf("queue is shut down")
	}
	select {
	case q.tasks <- job.ID:
		q.mu.Unlock()
	default:
		q.mu.Unlock()
		// Pool buffer is full: reject instead of piling up unbounded work.
		if delErr := q.store.Del(ctx, jobKeyPrefix+job.ID); delErr != nil {
			log.Printf("⚠️  Failed to remove rejected job %s: %v", job.ID, delErr)
		}
		return nil, fmt.Errorf("queue is full (%d jobs pending)", q.opts.QueueCapacity)
	}

	log.Printf("📥 Enqueued job %s (%d variant(s), session %s)", job.ID, variants, req.SessionID)
	return &EnqueueResult{JobID: job.ID, ExpectedImageIDs: placeholders}, nil
}

// Cancel aborts an in-flight job. The job still finalizes: any variants that
// already uploaded are reported as a completed partial result.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	cancel, ok := q.cancels[jobID]
	q.mu.Unlock()
	if ok {
		cancel()
		log.Printf("🛑 Cancel requested for job %s", jobID)
	}
	return ok
}

func (q *Queue) registerCancel(jobID string, cancel context.CancelFunc) {
	q.mu.Lock()
	q.cancels[jobID] = cancel
	q.mu.Unlock()
}

func (q *Queue) unregisterCancel(jobID string) {
	q.mu.Lock()
	delete(q.cancels, jobID)
	q.mu.Unlock()
}

// runJob drives one job through the state machine: generating, the sequential
// per-variant loop, then a single terminal transition.
func (q *Queue) runJob(jobID string) error {
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.registerCancel(jobID, cancel)
	defer q.unregisterCancel(jobID)
	defer cancel()

	loadCtx, loadCancel := storeContext()
	job, err := q.Get(loadCtx, jobID)
	loadCancel()
	if errors.Is(err, jobstore.ErrNotFound) {
		// Evicted between enqueue and pickup. Nothing to do.
		log.Printf("⚠️  Job %s no longer exists, skipping", jobID)
		return nil
	}
	if err != nil {
		return err
	}

	job.Status = StatusGenerating
	if err := q.persistDetached(job, 0); err != nil {
		return err
	}
	q.notify(job)

	refs := q.resolveReferences(ctx, &job.Request)
	finalPrompt := composePrompt(&job.Request)
	variants := len(job.ImageIDs)
	aspectRatio := job.Request.Settings.AspectRatio
	modelOverride := job.Request.ModelOverrides["image"]

	log.Printf("🚀 Job %s: %d variant(s), %d reference(s), prompt %d chars", jobID, variants, len(refs), len(finalPrompt))

	var succeeded []string
	for i := 0; i < variants; i++ {
		if ctx.Err() != nil {
			log.Printf("🛑 Job %s cancelled after %d variant(s)", jobID, len(succeeded))
			break
		}

		imageID := job.ImageIDs[i]
		data, err := q.generator.GenerateImage(ctx, finalPrompt, refs, aspectRatio, modelOverride)
		if err != nil {
			// Per-variant failure is not fatal: log, skip, continue. Progress
			// only advances on success, so a failed variant leaves it untouched.
			log.Printf("⚠️  Job %s variant %d/%d failed: %v", jobID, i+1, variants, err)
		} else if uploadedID := q.uploadVariant(ctx, job, imageID, data); uploadedID != "" {
			succeeded = append(succeeded, uploadedID)
			job.Progress = int(math.Round(float64(i+1) / float64(variants) * 100))
			if err := q.persistDetached(job, 0); err != nil {
				return err
			}
			q.notify(job)
		}

		if i < variants-1 {
			// Fixed inter-variant delay to stay under upstream rate limits.
			select {
			case <-time.After(q.opts.VariantDelay):
			case <-ctx.Done():
			}
		}
	}

	return q.finalize(job, succeeded)
}

// finalize applies the single terminal transition, with the TTL that lets the
// backend reclaim the record. On the error path progress keeps its last
// successful value instead of jumping to 100.
func (q *Queue) finalize(job *Job, succeeded []string) error {
	now := time.Now()
	if len(succeeded) > 0 {
		job.Status = StatusCompleted
		job.Progress = 100
		job.ImageIDs = succeeded
		job.CompletedAt = &now
		log.Printf("🏁 Job %s completed: %d image(s)", job.ID, len(succeeded))
	} else {
		job.Status = StatusError
		job.ImageIDs = []string{}
		msg := ErrNoImages
		job.Error = &msg
		job.CompletedAt = &now
		log.Printf("🏁 Job %s failed: no images generated", job.ID)
	}

	if err := q.persistDetached(job, q.opts.TerminalTTL); err != nil {
		return err
	}
	q.notify(job)
	return nil
}

// storeContext returns a context for persistence calls that survives job
// cancellation: a cancelled job must still reach its terminal transition and
// receive its TTL.
func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (q *Queue) persistDetached(job *Job, ttl time.Duration) error {
	ctx, cancel := storeContext()
	defer cancel()
	return q.persist(ctx, job, ttl)
}

// uploadVariant converts the model output to WebP and uploads it under the
// session-scoped key. Returns the image id on success, empty string otherwise.
func (q *Queue) uploadVariant(ctx context.Context, job *Job, imageID string, data []byte) string {
	path := fmt.Sprintf("sessions/%s/generated/%s.webp", job.Request.SessionID, imageID)
	contentType := "image/webp"

	webpData, err := imaging.ConvertPNGToWebP(data, job.Request.Settings.WebPQuality())
	if err != nil {
		// Conversion failure should not lose the image: upload the original bytes.
		log.Printf("⚠️  WebP conversion failed for %s, uploading original: %v", imageID, err)
		path = fmt.Sprintf("sessions/%s/generated/%s.png", job.Request.SessionID, imageID)
		contentType = "image/png"
		webpData = data
	}

	if err := q.storage.Upload(ctx, path, webpData, contentType); err != nil {
		log.Printf("⚠️  Upload failed for %s: %v", imageID, err)
		return ""
	}
	return imageID
}

func (q *Queue) resolveReferences(ctx context.Context, req *GenerationRequest) []gemini.ReferenceImage {
	imageIDs := req.ProductImageIDs
	if len(imageIDs) == 0 && req.ProductImageID != "" {
		imageIDs = []string{req.ProductImageID}
	}

	var refs []gemini.ReferenceImage
	for _, imageID := range imageIDs {
		if ref := q.resolver.ResolveProductImage(ctx, req.ClientID, req.ProductID, imageID); ref != nil {
			refs = append(refs, *ref)
		}
	}
	if ref := q.resolver.ResolveInspiration(ctx, req); ref != nil {
		refs = append(refs, *ref)
	}
	return refs
}

// composePrompt picks the composition path: art director sandwich when a
// subject analysis or bubble list exists, legacy flat settings otherwise.
func composePrompt(req *GenerationRequest) string {
	if req.ArtDirector != nil {
		input := *req.ArtDirector
		if input.UserPrompt == "" {
			input.UserPrompt = req.Prompt
		}
		return prompt.BuildArtDirectorPrompt(input).FinalPrompt
	}
	return prompt.BuildLegacyPrompt(req.Settings, req.Prompt)
}

// persist writes the job back with optimistic concurrency: it refuses to
// clobber a record that changed (or vanished) since this copy was loaded.
func (q *Queue) persist(ctx context.Context, job *Job, ttl time.Duration) error {
	current, err := q.loadJob(ctx, job.ID)
	if err != nil && !errors.Is(err, jobstore.ErrNotFound) {
		return err
	}
	if errors.Is(err, jobstore.ErrNotFound) {
		return fmt.Errorf("job %s was deleted mid-flight: %w", job.ID, jobstore.ErrNotFound)
	}
	if current.Version != job.Version {
		return fmt.Errorf("job %s version conflict (have %d, store has %d)", job.ID, job.Version, current.Version)
	}

	job.Version++
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := q.store.Set(ctx, jobKeyPrefix+job.ID, data, ttl); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.store.Get(ctx, jobKeyPrefix+jobID)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", jobID, err)
	}
	return &job, nil
}

// Get returns the current job snapshot.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	return q.loadJob(ctx, jobID)
}

// List returns all known jobs, newest first.
func (q *Queue) List(ctx context.Context) ([]*Job, error) {
	keys, err := q.store.Keys(ctx, jobKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list job keys: %w", err)
	}
	return q.loadAll(ctx, keys)
}

// ListBySession returns the session's jobs, newest first. Uses the backend's
// session index when it has one, otherwise filters the full scan.
func (q *Queue) ListBySession(ctx context.Context, sessionID string) ([]*Job, error) {
	if lister, ok := q.store.(sessionKeyLister); ok {
		keys, err := lister.KeysBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to list session jobs: %w", err)
		}
		return q.loadAll(ctx, keys)
	}

	jobs, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := jobs[:0]
	for _, job := range jobs {
		if job.Request.SessionID == sessionID {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func (q *Queue) loadAll(ctx context.Context, keys []string) ([]*Job, error) {
	values, err := q.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	for _, data := range values {
		if data == nil {
			continue // expired between list and fetch
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			log.Printf("⚠️  Skipping unparsable job record: %v", err)
			continue
		}
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// CleanupOldJobs deletes terminal jobs older than the retention window. It is
// advisory cleanup layered over store-native TTL: errors are logged, never
// returned, and racing an in-flight mutation is tolerated because only
// terminal records are touched.
func (q *Queue) CleanupOldJobs(ctx context.Context) {
	jobs, err := q.List(ctx)
	if err != nil {
		log.Printf("⚠️  Cleanup scan failed: %v", err)
		return
	}

	cutoff := time.Now().Add(-q.opts.Retention)
	removed := 0
	for _, job := range jobs {
		if !job.Terminal() || !job.terminalAt().Before(cutoff) {
			continue
		}
		if err := q.store.Del(ctx, jobKeyPrefix+job.ID); err != nil {
			log.Printf("⚠️  Failed to delete old job %s: %v", job.ID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("🧹 Cleanup removed %d old job(s)", removed)
	}
}

func (q *Queue) notify(job *Job) {
	if q.notifier != nil {
		snapshot := *job
		q.notifier.Notify(job.ID, &snapshot)
	}
}
