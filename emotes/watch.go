package emotes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog at path whenever it is written and delivers each
// successfully parsed catalog on out. A file that fails to parse is logged
// and ignored, so the previous catalog stays in effect. The watcher stops
// when ctx is done.
func Watch(ctx context.Context, path string, out chan<- *Catalog) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("emote watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("emote watcher: %w", err)
	}
	name := filepath.Base(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				c, err := Load(path)
				if err != nil {
					slog.Warn("emote catalog reload failed, keeping previous", "path", path, "err", err)
					continue
				}
				slog.Info("emote catalog reloaded", "path", path, "emotes", c.Len())
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("emote watcher error", "err", err)
			}
		}
	}()
	return nil
}
