package sessions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ChangeFunc is invoked after the watched database changed
type ChangeFunc func(ctx context.Context) error

// Watcher observes a sqlite database file (and its -wal/-journal siblings)
// and calls a ChangeFunc once writes settle.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange ChangeFunc
	watcher  *fsnotify.Watcher
	log      *logrus.Logger
}

// NewWatcher creates a watcher for the database file at path
func NewWatcher(path string, debounce time.Duration, onChange ChangeFunc, log *logrus.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	if log == nil {
		log = logrus.New()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: sqlite replaces and appends to sibling files.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		log:      log,
	}, nil
}

// Run processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debugf("Session store changed: %s (%s)", event.Name, event.Op)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if err := w.onChange(ctx); err != nil {
				w.log.WithError(err).Warn("Failed to handle session store change")
			} else {
				w.log.Info("Session store changed, derived analytics invalidated")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Session store watcher error")
		}
	}
}

// Close stops watching. Run returns once its event channel closes.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.path || strings.HasPrefix(name, w.path+"-")
}
