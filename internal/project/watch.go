package project

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever the projects file changes. It returns a
// stop function closing the underlying watcher. A reload that fails to parse
// is logged and skipped; the registry keeps serving the last good set.
func Watch(path string, reg *Registry, logger *slog.Logger) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors typically replace the file via rename,
	// which would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				projects, err := Load(path)
				if err != nil {
					logger.Warn("projects file reload failed; keeping previous definitions",
						"path", path, "error", err)
					continue
				}
				reg.Replace(projects)
				logger.Info("projects file reloaded", "path", path, "projects", len(projects))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("projects file watcher error", "error", err)
			}
		}
	}()

	return watcher.Close, nil
}
