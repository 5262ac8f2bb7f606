package preset

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDelay collapses the burst of events editors emit on save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands the parsed file to
// apply. Load and apply errors are logged and the previous settings stay
// active. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log logrus.FieldLogger, apply func(*File) error) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("preset watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log = log.WithField("preset", abs)
	log.Info("watching preset")

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("preset watcher error")
		case <-timer.C:
			f, err := LoadJSON(abs)
			if err != nil {
				log.WithError(err).Warn("preset reload failed")
				continue
			}
			if err := apply(f); err != nil {
				log.WithError(err).Warn("preset apply failed")
				continue
			}
			log.Info("preset reloaded")
		}
	}
}
