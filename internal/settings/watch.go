package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watch calls onChange with freshly loaded settings whenever the preference
// file changes, until ctx is cancelled. The directory is watched rather than
// the file because writes replace the file by rename.
func Watch(ctx context.Context, p *Prefs, logger *slog.Logger, onChange func(Settings)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(p.Path())
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Debug("settings watcher: started", slog.String("path", p.Path()))

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
			logger.Debug("settings watcher: stopped")
			return nil

		case <-timerCh:
			timerCh = nil
			s, err := Load(p)
			if err != nil {
				logger.Warn("settings watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("settings reloaded", slog.String("model", s.Model), slog.String("endpoint", s.EndpointURL))
			onChange(s)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != PrefsFileName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerCh = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher: error", slog.String("error", err.Error()))
		}
	}
}
