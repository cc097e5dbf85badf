package sensor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// FileSource mirrors a JSON states document into a Hub. The document maps
// entity ids to either a bare value or {"state": ..., "attributes": {...}}:
//
//	{"sensor.k2_energy": {"state": "12.4", "attributes": {"total_increased": 12.4}},
//	 "binary_sensor.k2_printing": "on"}
//
// Changes are picked up through fsnotify with a polling fallback.
type FileSource struct {
	path         string
	hub          *Hub
	pollInterval time.Duration

	mu      sync.Mutex
	owned   map[string]bool // entities last loaded from the file
	modTime time.Time
	size    int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewFileSource creates a source for path feeding hub.
func NewFileSource(path string, hub *Hub, pollInterval time.Duration) *FileSource {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &FileSource{
		path:         path,
		hub:          hub,
		pollInterval: pollInterval,
		owned:        make(map[string]bool),
		stop:         make(chan struct{}),
	}
}

// Load reads the file once and applies it to the hub.
func (f *FileSource) Load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading states file: %w", err)
	}
	states, err := ParseStates(data)
	if err != nil {
		return err
	}

	f.mu.Lock()
	seen := make(map[string]bool, len(states))
	for _, st := range states {
		seen[st.EntityID] = true
	}
	for id := range f.owned {
		if !seen[id] {
			f.hub.Remove(id)
		}
	}
	f.owned = seen
	if info, err := os.Stat(f.path); err == nil {
		f.modTime = info.ModTime()
		f.size = info.Size()
	}
	f.mu.Unlock()

	for _, st := range states {
		f.hub.Set(st)
	}
	return nil
}

// ParseStates decodes a states document.
func ParseStates(data []byte) ([]State, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("states file is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("states file must be a JSON object")
	}

	var states []State
	root.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		if value.IsObject() {
			var attrs map[string]any
			if a := value.Get("attributes"); a.IsObject() {
				attrs, _ = a.Value().(map[string]any)
			}
			st := NewState(id, value.Get("state").String(), attrs)
			if avail := value.Get("available"); avail.Exists() && !avail.Bool() {
				st.Available = false
			}
			states = append(states, st)
			return true
		}
		states = append(states, NewState(id, value.String(), nil))
		return true
	})
	return states, nil
}

type stateEntry struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Available  *bool          `json:"available,omitempty"`
}

// EncodeStates writes states in the document format ParseStates reads.
// Availability is only recorded when it disagrees with the raw value.
func EncodeStates(states []State) ([]byte, error) {
	doc := make(map[string]stateEntry, len(states))
	for _, st := range states {
		e := stateEntry{State: st.Value, Attributes: st.Attributes}
		if st.Available != IsAvailableValue(st.Value) {
			avail := st.Available
			e.Available = &avail
		}
		doc[st.EntityID] = e
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding states: %w", err)
	}
	return data, nil
}

// Start loads the file and begins watching it.
func (f *FileSource) Start() error {
	if err := f.Load(); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("states file: initial load failed")
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory so editors that replace the file are seen.
		if err := fsw.Add(filepath.Dir(f.path)); err != nil {
			_ = fsw.Close()
			fsw = nil
		}
	} else {
		fsw = nil
	}

	if fsw != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer fsw.Close()
			for {
				select {
				case event, ok := <-fsw.Events:
					if !ok {
						return
					}
					if filepath.Clean(event.Name) != filepath.Clean(f.path) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
						f.reload()
					}
				case err, ok := <-fsw.Errors:
					if !ok {
						return
					}
					log.Debug().Err(err).Msg("states file: watcher error")
				case <-f.stop:
					return
				}
			}
		}()
	}

	// Polling fallback always runs as a safety net.
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if f.changedOnDisk() {
					f.reload()
				}
			case <-f.stop:
				return
			}
		}
	}()
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (f *FileSource) Stop() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	f.wg.Wait()
}

func (f *FileSource) reload() {
	if err := f.Load(); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("states file: reload failed")
	}
}

func (f *FileSource) changedOnDisk() bool {
	info, err := os.Stat(f.path)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !info.ModTime().Equal(f.modTime) || info.Size() != f.size
}
