package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/api"
	"github.com/snarg/narrator/internal/script"
)

// EnqueueFunc queues a render of the script file at path.
type EnqueueFunc func(scriptName, path string) error

// ScriptWatcher monitors the scripts directory and queues a render whenever
// a script file is created or rewritten.
type ScriptWatcher struct {
	watchDir string
	enqueue  EnqueueFunc
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesQueued  atomic.Int64
	filesSkipped atomic.Int64
	status       atomic.Value // string: "starting", "watching", "stopped"
}

// NewScriptWatcher creates a watcher for dir. Call Start to begin watching.
func NewScriptWatcher(dir string, enqueue EnqueueFunc, log zerolog.Logger) *ScriptWatcher {
	sw := &ScriptWatcher{
		watchDir:       dir,
		enqueue:        enqueue,
		debounce:       500 * time.Millisecond,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
	sw.status.Store("starting")
	return sw
}

// Start adds the directory tree to fsnotify and begins watching.
func (sw *ScriptWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	sw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(sw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			sw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				sw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil || dirCount == 0 {
		w.Close()
		if err == nil {
			err = &fs.PathError{Op: "watch", Path: sw.watchDir, Err: fs.ErrNotExist}
		}
		return err
	}

	sw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", sw.watchDir).
		Msg("script watcher initialized")

	sw.status.Store("watching")
	sw.wg.Add(1)
	go sw.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounced renders.
func (sw *ScriptWatcher) Stop() {
	sw.status.Store("stopped")
	select {
	case <-sw.done:
		return
	default:
		close(sw.done)
	}
	if sw.watcher != nil {
		sw.watcher.Close()
	}
	sw.wg.Wait()

	sw.debounceMu.Lock()
	for path, t := range sw.debounceTimers {
		t.Stop()
		delete(sw.debounceTimers, path)
	}
	sw.debounceMu.Unlock()

	sw.log.Info().
		Int64("files_queued", sw.filesQueued.Load()).
		Int64("files_skipped", sw.filesSkipped.Load()).
		Msg("script watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (sw *ScriptWatcher) Status() *api.WatcherStatusData {
	s, _ := sw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:       s,
		WatchDir:     sw.watchDir,
		FilesQueued:  sw.filesQueued.Load(),
		FilesSkipped: sw.filesSkipped.Load(),
	}
}

func (sw *ScriptWatcher) watchLoop() {
	defer sw.wg.Done()
	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// New subdirectory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := sw.watcher.Add(event.Name); err != nil {
					sw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					sw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !script.IsScriptFile(event.Name) {
				continue
			}
			sw.scheduleRender(event.Name)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleRender debounces a changed script so editors that write in several
// steps trigger one render, after the file is complete.
func (sw *ScriptWatcher) scheduleRender(path string) {
	sw.debounceMu.Lock()
	defer sw.debounceMu.Unlock()

	if t, ok := sw.debounceTimers[path]; ok {
		t.Reset(sw.debounce)
		return
	}

	sw.debounceTimers[path] = time.AfterFunc(sw.debounce, func() {
		sw.debounceMu.Lock()
		delete(sw.debounceTimers, path)
		sw.debounceMu.Unlock()

		select {
		case <-sw.done:
			return
		default:
		}
		sw.queueScript(path)
	})
}

// queueScript validates the script and hands it to the render queue.
func (sw *ScriptWatcher) queueScript(path string) {
	s, err := script.Load(path)
	if err != nil {
		// A removed file also lands here after a rename.
		sw.filesSkipped.Add(1)
		sw.log.Warn().Err(err).Str("path", path).Msg("skipping invalid script")
		return
	}
	if err := sw.enqueue(s.Name, path); err != nil {
		sw.filesSkipped.Add(1)
		sw.log.Warn().Err(err).Str("script", s.Name).Msg("failed to queue render")
		return
	}
	sw.filesQueued.Add(1)
	sw.log.Info().Str("script", s.Name).Str("path", path).Msg("script changed, render queued")
}
