// Package notify relays engine events between processes that share a data
// directory. A short-lived process such as whisper-memoryctl writes one file
// per event; the server watches the directory and republishes them to its
// websocket subscribers.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

// EventWriter writes event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: eventsDir(dataPath)}
}

// Notify writes ev as an event file. It is safe for concurrent use.
func (w *EventWriter) Notify(ev engine.Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	name := fmt.Sprintf("%d-%s-%s", ev.At.UnixNano(), sanitizeID(string(ev.Type)), sanitizeID(ev.MemoryID))
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	// The watcher only picks up complete files.
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish %s: %w", name, err)
	}
	return nil
}

func eventsDir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}
