package proxy

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-proxy/internal/metrics"
)

// expectTTL is how long a removal announced by Cleanup stays excused.
const expectTTL = time.Minute

// outputWatcher reports ready proxies whose files disappear without going
// through Cleanup. It only logs and counts. Readiness is still re-checked
// lazily by Generator.Path.
type outputWatcher struct {
	w        *fsnotify.Watcher
	registry *registry

	mu       sync.Mutex
	expected map[string]time.Time

	done chan struct{}
}

func newOutputWatcher(dir string, reg *registry) (*outputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	o := &outputWatcher{
		w:        w,
		registry: reg,
		expected: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go o.loop()
	return o, nil
}

// expect excuses the next removal of path.
func (o *outputWatcher) expect(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expected[path] = time.Now()
}

func (o *outputWatcher) loop() {
	defer close(o.done)
	for {
		select {
		case ev, ok := <-o.w.Events:
			if !ok {
				return
			}
			o.handle(ev)
		case err, ok := <-o.w.Errors:
			if !ok {
				return
			}
			log.Warn("Proxy output watcher error: %v", err)
		}
	}
}

// handle reports whether ev was an unexpected removal of a ready proxy.
func (o *outputWatcher) handle(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if strings.HasSuffix(ev.Name, partSuffix) {
		return false
	}

	o.mu.Lock()
	now := time.Now()
	_, excused := o.expected[ev.Name]
	delete(o.expected, ev.Name)
	for path, at := range o.expected {
		if now.Sub(at) > expectTTL {
			delete(o.expected, path)
		}
	}
	o.mu.Unlock()
	if excused {
		return false
	}

	rec, ok := o.registry.byOutput(ev.Name)
	if !ok || !rec.Ready {
		return false
	}
	metrics.ProxyExternalRemovals.Inc()
	log.Warn("Ready proxy %s for %s was removed externally (%s)", rec.Fingerprint, rec.Source, ev.Op)
	return true
}

func (o *outputWatcher) close() error {
	err := o.w.Close()
	<-o.done
	return err
}
