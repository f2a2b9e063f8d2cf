package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// objectSaver is the part of S3Store the uploader needs.
type objectSaver interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// AsyncUploader handles background S3 uploads without blocking a render.
// Files are already written locally before being enqueued here.
type AsyncUploader struct {
	s3       objectSaver
	ch       chan uploadJob
	workers  int
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once
	dropped  atomic.Int64
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an async S3 uploader with the given buffer size.
func NewAsyncUploader(s3 objectSaver, bufferSize, workers int, log zerolog.Logger) *AsyncUploader {
	if workers < 1 {
		workers = 1
	}
	return &AsyncUploader{
		s3:      s3,
		ch:      make(chan uploadJob, bufferSize),
		workers: workers,
		log:     log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an S3 upload job. Non-blocking; drops with warning if full or stopped.
// Safe because the file is already on local disk.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) {
	if u.stopped.Load() {
		return
	}
	job := uploadJob{key: key, data: data, contentType: contentType}
	select {
	case u.ch <- job:
	default:
		u.dropped.Add(1)
		u.log.Warn().Str("key", key).Msg("async upload queue full, skipping (file safe on disk)")
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start() {
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", u.workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop drains queued uploads and waits for the workers.
func (u *AsyncUploader) Stop() {
	u.stopped.Store(true)
	u.stopOnce.Do(func() { close(u.ch) })
	u.wg.Wait()
}

// Dropped returns how many uploads were skipped because the queue was full.
func (u *AsyncUploader) Dropped() int64 { return u.dropped.Load() }

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.s3.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.log.Error().Err(err).Str("key", job.key).Msg("async S3 upload failed (file safe on disk)")
		}
		cancel()
	}
}
