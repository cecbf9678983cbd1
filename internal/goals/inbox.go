package goals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"fleetops/internal/logging"
)

// Inbox file suffixes after processing.
const (
	SuffixDone   = ".done"
	SuffixFailed = ".failed"
)

// WatchInbox submits every *.yaml plan that appears in dir, then renames it
// with SuffixDone, or SuffixFailed when it does not parse. Plans already in
// dir when the watch starts are processed first. It returns when ctx is done.
func WatchInbox(ctx context.Context, dir string, submit func(context.Context, *Plan) error) error {
	ctx = logging.With(ctx, "component", "inbox")
	log := logging.FromContext(ctx)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range existing {
		ingest(ctx, path, submit)
	}

	log.Info("watching goal inbox", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				ingest(ctx, event.Name, submit)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("fsnotify error", "err", err)
		}
	}
}

func ingest(ctx context.Context, path string, submit func(context.Context, *Plan) error) {
	log := logging.FromContext(ctx).With("file", filepath.Base(path))
	if _, err := os.Stat(path); err != nil {
		// already handled by an earlier event
		return
	}
	plan, err := LoadPlan(path)
	if err == nil {
		err = submit(ctx, plan)
	}
	suffix := SuffixDone
	if err != nil {
		log.Warn("plan rejected", "err", err)
		suffix = SuffixFailed
	} else {
		log.Info("plan submitted", "goals", len(plan.Goals))
	}
	if rerr := os.Rename(path, path+suffix); rerr != nil {
		log.Warn("rename plan", "err", rerr)
	}
}
