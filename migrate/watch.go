package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

type watchConfig struct {
	debounce time.Duration
	onError  func(error)
	onApply  func(int)
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

// WithDebounce sets how long Watch waits after the last filesystem event
// before re-running Up. Defaults to 250ms, which folds editor
// write-then-rename bursts into one run.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// WithOnError sets the callback receiving watcher errors and failed Up
// runs. By default they are logged through the migrator's logger.
func WithOnError(fn func(error)) WatchOption {
	return func(c *watchConfig) { c.onError = fn }
}

// WithOnApply sets a callback invoked after each Up run that applied at
// least one migration, with the number applied.
func WithOnApply(fn func(int)) WatchOption {
	return func(c *watchConfig) { c.onApply = fn }
}

// Watch re-runs m.Up whenever a .sql file under dir changes. It is a
// development helper: point the migrator at DirSource(os.DirFS(dir), ".")
// and saved migration files apply as you write them. Renaming files that
// were already applied trips the out-of-order check, so pair Watch with
// WithAllowOutOfOrder during heavy editing.
//
// Watch runs Up once on startup, then blocks until ctx is canceled and
// returns ctx.Err().
func Watch(ctx context.Context, dir string, m *Migrator, opts ...WatchOption) error {
	cfg := watchConfig{
		debounce: defaultDebounce,
		onError:  func(err error) { m.log.Error("migration watch", "err", err) },
		onApply:  func(int) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("migrate: watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("migrate: watch %s: %w", dir, err)
	}
	run := func() {
		n, err := m.Up(ctx)
		if err != nil {
			cfg.onError(err)
			return
		}
		if n > 0 {
			cfg.onApply(n)
		}
	}
	run()
	debounce := time.NewTimer(cfg.debounce)
	debounce.Stop()
	defer debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".sql") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(cfg.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			cfg.onError(err)
		case <-debounce.C:
			run()
		}
	}
}
