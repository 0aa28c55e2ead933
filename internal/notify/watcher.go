package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

const (
	eventExt   = ".event"
	claimedExt = ".claimed"
)

// EventWatcher republishes event files written by other processes. Every
// change in the events directory triggers a rescan, and pending files are
// delivered in name order, which is write order.
type EventWatcher struct {
	dir     string
	deliver func(engine.Event)

	fsw      *fsnotify.Watcher
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewEventWatcher creates a watcher for {dataPath}/events/ that hands each
// event to deliver exactly once.
func NewEventWatcher(dataPath string, deliver func(engine.Event)) *EventWatcher {
	return &EventWatcher{
		dir:     eventsDir(dataPath),
		deliver: deliver,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start delivers any events already waiting and then follows the directory
// until Stop.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", ew.dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("notify: create watcher: %w", err)
	}
	if err := fsw.Add(ew.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("notify: watch %s: %w", ew.dir, err)
	}
	ew.fsw = fsw

	ew.scan()
	go ew.follow()
	log.Printf("notify: relaying events from %s", ew.dir)
	return nil
}

// Stop ends the watcher and waits for an in-flight scan to finish. It is
// safe to call on a watcher that never started.
func (ew *EventWatcher) Stop() {
	if ew.fsw == nil {
		return
	}
	ew.stopOnce.Do(func() {
		close(ew.stop)
		_ = ew.fsw.Close()
		<-ew.stopped
	})
}

func (ew *EventWatcher) follow() {
	defer close(ew.stopped)
	for {
		select {
		case <-ew.stop:
			return
		case change, ok := <-ew.fsw.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(change.Name, eventExt) && change.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				ew.scan()
			}
		case err, ok := <-ew.fsw.Errors:
			if !ok {
				return
			}
			// Overflow loses notifications, not files; the rescan catches up.
			log.Printf("notify: watcher error: %v", err)
			ew.scan()
		}
	}
}

// scan delivers every pending event file. os.ReadDir sorts by name, and
// names begin with the event timestamp.
func (ew *EventWatcher) scan() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		log.Printf("notify: read %s: %v", ew.dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != eventExt {
			continue
		}
		ev, ok := ew.claim(filepath.Join(ew.dir, entry.Name()))
		if ok && ew.deliver != nil {
			ew.deliver(ev)
		}
	}
}

// claim takes ownership of an event file by renaming it, so that two
// watchers on one directory never deliver the same event, then decodes
// and removes it.
func (ew *EventWatcher) claim(path string) (engine.Event, bool) {
	claimed := strings.TrimSuffix(path, eventExt) + claimedExt
	if err := os.Rename(path, claimed); err != nil {
		return engine.Event{}, false
	}
	defer os.Remove(claimed)

	data, err := os.ReadFile(claimed)
	if err != nil {
		log.Printf("notify: read %s: %v", filepath.Base(claimed), err)
		return engine.Event{}, false
	}
	var ev engine.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("notify: discarding malformed event %s: %v", filepath.Base(path), err)
		return engine.Event{}, false
	}
	if ev.Type == "" || ev.MemoryID == "" {
		log.Printf("notify: discarding incomplete event %s", filepath.Base(path))
		return engine.Event{}, false
	}
	return ev, true
}
