package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// objectStore is the part of S3Store the reconciler needs.
type objectStore interface {
	objectSaver
	Exists(ctx context.Context, key string) bool
}

// UploadReconciler scans the local output tree for artifacts missing from S3
// and re-uploads them. Handles dropped async uploads and crash recovery.
type UploadReconciler struct {
	root     string
	s3       objectStore
	interval time.Duration
	window   time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewUploadReconciler creates a reconciler that checks for missing S3 uploads.
func NewUploadReconciler(root string, s3 objectStore, log zerolog.Logger) *UploadReconciler {
	return &UploadReconciler{
		root:     root,
		s3:       s3,
		interval: 5 * time.Minute,
		window:   24 * time.Hour,
		log:      log.With().Str("component", "upload-reconciler").Logger(),
		stop:     make(chan struct{}),
	}
}

func (r *UploadReconciler) Start() { go r.loop() }
func (r *UploadReconciler) Stop()  { r.stopOnce.Do(func() { close(r.stop) }) }

func (r *UploadReconciler) loop() {
	// Delay first run to let startup uploads settle
	select {
	case <-time.After(2 * time.Minute):
	case <-r.stop:
		return
	}

	r.reconcile()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stop:
			return
		}
	}
}

// reconcile uploads recently modified artifacts that S3 does not have.
func (r *UploadReconciler) reconcile() (uploaded, failed, checked int) {
	cutoff := time.Now().Add(-r.window)

	filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) && strings.HasSuffix(d.Name(), tempSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return nil
		}
		checked++
		key := filepath.ToSlash(rel)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		exists := r.s3.Exists(ctx, key)
		cancel()
		if exists {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}

		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if saveErr := r.s3.Save(ctx, key, data, ContentType(key)); saveErr != nil {
			r.log.Warn().Err(saveErr).Str("key", key).Msg("reconcile upload failed")
			failed++
		} else {
			uploaded++
		}
		return nil
	})

	if uploaded > 0 || failed > 0 {
		r.log.Info().
			Int("uploaded", uploaded).
			Int("failed", failed).
			Int("checked", checked).
			Msg("reconcile complete")
	}
	return uploaded, failed, checked
}
