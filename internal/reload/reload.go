// Package reload implements C11: watches the resolved config file set for
// changes, debounces, re-runs C5/C6, and atomically swaps the active
// registry without ever invalidating an in-flight request. Grounded on the
// teacher's internal/tray/tray.go initConfigWatcher/watchConfigFile
// (fsnotify watcher, select loop over Events/Errors/ctx.Done(), a debounce
// sleep after a Write/Create event, then reload) — lifted out of the tray
// package, which this module drops entirely, into its own standalone
// package with no GUI dependency.
package reload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/registry"
	"go.uber.org/zap"
)

// Builder rebuilds a *registry.Registry from the current on-disk config.
// Supplied by the caller (internal/server) so this package stays ignorant
// of config.Load/registry.Build's exact signatures and of pool/source
// resolution.
type Builder func() (*registry.Registry, error)

// defaultDebounce matches the teacher's 500ms debounce window.
const defaultDebounce = 500 * time.Millisecond

// Watcher observes a set of files/directories and atomically swaps an
// *registry.Registry pointer (via Current) whenever they change and the
// rebuild succeeds.
type Watcher struct {
	watcher *fsnotify.Watcher
	build   Builder
	logger  *zap.Logger
	debounce time.Duration

	current atomic.Pointer[registry.Registry]

	// OnSwap, if set, is invoked synchronously after a successful reload
	// with the old and new registries, so a caller (internal/server) can
	// resync anything it mirrors from the registry outside of Current()
	// lookups — e.g. mcp-go's own AddTools/DeleteTools-backed tools/list,
	// which is otherwise only populated once at startup.
	OnSwap func(old, newReg *registry.Registry)
}

// NewWatcher constructs a Watcher over paths, performing an initial build
// via build so Current is populated before Start is ever called.
func NewWatcher(paths []string, build Builder, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fw.Add(p); err != nil {
			if logger != nil {
				logger.Warn("failed to watch config path, hot reload will miss changes here",
					zap.String("path", p), zap.Error(err))
			}
		}
	}

	reg, err := build()
	if err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		build:    build,
		logger:   logger,
		debounce: defaultDebounce,
	}
	w.current.Store(reg)
	return w, nil
}

// StaticWatcher wraps an already-built registry with no filesystem watch:
// Current always returns reg and Start is a no-op. Used when hot reload is
// disabled (spec.md §6 YAML_AUTO_RELOAD=false), so the dispatcher can treat
// the watched and unwatched cases identically.
func StaticWatcher(reg *registry.Registry) *Watcher {
	w := &Watcher{}
	w.current.Store(reg)
	return w
}

// Current returns the registry currently in effect. The returned pointer
// remains valid for the lifetime of any handler invocation that captured
// it, even across a later Swap — spec.md §4.11 step 4 / §3's ToolDescriptor
// lifecycle.
func (w *Watcher) Current() *registry.Registry {
	return w.current.Load()
}

// Start runs the watch loop until ctx is cancelled. On a debounced change
// batch it reruns Builder; a failed rebuild is logged and the previous
// registry stays in effect (spec.md §4.11 step 2); a successful rebuild
// atomically replaces Current (step 3).
func (w *Watcher) Start(ctx context.Context) {
	if w.watcher == nil {
		return
	}
	go func() {
		defer w.watcher.Close()
		var debounceTimer *time.Timer

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					w.reload()
				})

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				if w.logger != nil {
					w.logger.Warn("config watcher error", zap.Error(err))
				}

			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			}
		}
	}()
}

func (w *Watcher) reload() {
	reg, err := w.build()
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous registry", zap.Error(err))
		}
		return
	}
	old := w.current.Swap(reg)
	if w.logger != nil {
		w.logger.Info("config reloaded", zap.Int("tools", reg.Len()))
	}
	if w.OnSwap != nil {
		w.OnSwap(old, reg)
	}
}
