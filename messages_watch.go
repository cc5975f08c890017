package arena

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MessageWatcher reloads a messages file whenever it changes on disk.
type MessageWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	fn      func(Messages)
	log     *zap.Logger
	closeCh chan struct{}
	once    sync.Once
	done    chan struct{}
}

// WatchMessages watches path and calls fn with the reloaded messages after
// every change. A file that fails to parse is logged and skipped, so the
// previous messages stay in use. The directory is watched rather than the
// file, since editors often replace files instead of writing to them.
//
// Usage:
//
//	w, err := arena.WatchMessages("messages.yml", log, engine.SetMessages)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
func WatchMessages(path string, log *zap.Logger, fn func(Messages)) (*MessageWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &MessageWatcher{
		watcher: fw,
		path:    abs,
		fn:      fn,
		log:     log.With(zap.String("messages", abs)),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching and waits for the watcher goroutine to exit.
func (w *MessageWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

// settle is how long the file must stay quiet before it is reloaded. Saves
// usually arrive as a truncate followed by one or more writes.
const settle = 100 * time.Millisecond

func (w *MessageWatcher) run() {
	defer close(w.done)
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(settle)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("messages watcher", zap.Error(err))
		case <-w.closeCh:
			return
		}
	}
}

func (w *MessageWatcher) reload() {
	m, err := LoadMessages(w.path)
	if err != nil {
		w.log.Warn("reload messages", zap.Error(err))
		return
	}
	w.fn(m)
	w.log.Info("messages reloaded")
}
