package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// stallTimeout is how long a started device may deliver no data before it
// is reported as failed.
const stallTimeout = 2 * time.Second

// watchdog reports ErrCapture when a started device stops delivering data
// or when the backend signals an unexpected stop.
type watchdog struct {
	lastData atomic.Int64
	onErr    atomic.Pointer[ErrorCallback]

	mu   sync.Mutex
	stop chan struct{}
}

func (w *watchdog) setErrorCallback(cb ErrorCallback) {
	w.onErr.Store(&cb)
}

func (w *watchdog) fed() {
	w.lastData.Store(time.Now().UnixNano())
}

func (w *watchdog) report(format string, args ...any) {
	if cb := w.onErr.Load(); cb != nil && *cb != nil {
		(*cb)(fmt.Errorf("%w: "+format, append([]any{ErrCapture}, args...)...))
	}
}

func (w *watchdog) start(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}
	w.fed()
	stop := make(chan struct{})
	w.stop = stop
	go func() {
		ticker := time.NewTicker(stallTimeout / 4)
		defer ticker.Stop()
		reported := false
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, w.lastData.Load()))
				if idle >= stallTimeout && !reported {
					reported = true
					w.report("%s delivered no audio for %s", name, idle.Round(time.Millisecond))
				} else if idle < stallTimeout {
					reported = false
				}
			}
		}
	}()
}

func (w *watchdog) halt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}
