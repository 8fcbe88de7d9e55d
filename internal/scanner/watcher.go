package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	defaultDebounceTick = 200 * time.Millisecond
	eventBufferSize     = 256
)

// Watcher is an optional rescan trigger for long-running daemons: it
// watches for filesystem writes under root and, at each tick after
// writes were observed, emits a single coalesced signal on Rescans
// (writes that keep arriving produce one signal per tick). The core scan itself stays synchronous (spec §5: no implicit
// suspension outside the points it names) — Watcher exists only to
// decide *when* to call Scan again. Grounded on the teacher's
// file_watcher.go/sync.go debounced-dedup pattern, simplified to a
// periodic-flush design to avoid timer-reset races.
type Watcher struct {
	root      string
	rescans   chan struct{}
	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        sync.WaitGroup

	mu    sync.Mutex
	dirty bool
}

// NewWatcher builds a Watcher rooted at root. Call Start to begin
// watching and Stop to release OS resources.
func NewWatcher(root string) *Watcher {
	return &Watcher{
		root:    root,
		rescans: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Rescans returns the channel that receives a signal (coalesced; never
// blocks) whenever the watched tree has changed since the last flush.
func (w *Watcher) Rescans() <-chan struct{} {
	return w.rescans
}

// Start begins watching w.root recursively until ctx is done or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(w.root+"/...", w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return err
	}
	slog.Info("scanner: watch start", "dir", w.root)

	w.wg.Add(2)
	go w.collectEvents(ctx)
	go w.flushLoop(ctx)
	return nil
}

func (w *Watcher) collectEvents(ctx context.Context) {
	defer w.wg.Done()
	defer notify.Stop(w.rawEvents)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case _, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.mu.Lock()
			w.dirty = true
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()
	defer slog.Info("scanner: watch stop", "dir", w.root)

	ticker := time.NewTicker(defaultDebounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			wasDirty := w.dirty
			w.dirty = false
			w.mu.Unlock()
			if wasDirty {
				select {
				case w.rescans <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Stop releases the watch and waits for the background goroutines to exit.
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()
}
