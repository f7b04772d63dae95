package evaldef

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of writes from editors.
const DefaultDebounce = 200 * time.Millisecond

var ErrWatch = errors.New("watch eval definitions")

// Watch calls fn with the current listing, then again after every settled
// change to a definition file under evals/. It blocks until ctx is done.
// Listing errors are handed to fn rather than ending the watch.
func (l *Loader) Watch(ctx context.Context, projectPath string, debounce time.Duration, fn func([]EvalSummary, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatch, err)
	}
	defer watcher.Close()

	dir := filepath.Join(projectPath, Dir)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("%w %s: %w", ErrWatch, dir, err)
	}
	l.logger.Debug("watching eval definitions", zap.String("dir", dir))

	fn(l.ListSummaries(projectPath))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || !IsDefinitionFile(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("eval watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			fn(l.ListSummaries(projectPath))
		}
	}
}
