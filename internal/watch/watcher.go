// Package watch turns file-system changes into pipeline work. A Source
// watches directories through fsnotify, filters and debounces the raw event
// stream, and hands batches of change events to registered handlers — the
// watch-mode task source for a long-lived dispatcher.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/workpipe/internal/logging"
)

// Source watches for file changes with debouncing and feeds them to
// handlers as deduplicated batches.
type Source struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []Filter
	handlers  []Handler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// Event represents a single file change.
type Event struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventRenamed
)

// String returns the string representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Filter reports whether a changed path should enter the pipeline.
type Filter func(path string) bool

// Handler receives a debounced batch of change events.
type Handler func(events []Event) error

// Debouncer groups rapid file changes together and dedupes them by path, so
// an editor's save-rename-chmod burst becomes one task instead of three.
type Debouncer struct {
	delay   time.Duration
	events  chan Event
	output  chan []Event
	timer   *time.Timer
	pending []Event
	mutex   sync.Mutex
}

// NewSource creates a file-change source with the given debounce window.
func NewSource(debounce time.Duration, logger logging.Logger) (*Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	debouncer := &Debouncer{
		delay:   debounce,
		events:  make(chan Event, 100),
		output:  make(chan []Event, 10),
		pending: make([]Event, 0),
	}

	return &Source{
		watcher:   watcher,
		debouncer: debouncer,
		filters:   make([]Filter, 0),
		handlers:  make([]Handler, 0),
		logger:    logger.WithComponent("watch"),
	}, nil
}

// AddFilter adds a path filter. A path must pass every filter to be
// reported.
func (s *Source) AddFilter(filter Filter) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.filters = append(s.filters, filter)
}

// AddHandler adds a batch handler.
func (s *Source) AddHandler(handler Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers = append(s.handlers, handler)
}

// AddPath adds a single path to watch.
func (s *Source) AddPath(path string) error {
	cleanPath, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	return s.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all its subdirectories to watch.
func (s *Source) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			cleanPath, err := validatePath(path)
			if err != nil {
				s.logger.Warn(context.Background(), err, "skipping invalid directory", "path", path)
				return nil
			}
			return s.watcher.Add(cleanPath)
		}

		return nil
	})
}

// validatePath cleans a path and rejects directory traversal.
func validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("path contains directory traversal: %s", path)
	}

	return cleanPath, nil
}

// Start runs the source's goroutines. It returns immediately; events flow
// to handlers until the context is cancelled or Stop is called.
func (s *Source) Start(ctx context.Context) error {
	go s.debouncer.start(ctx)
	go s.dispatchBatches(ctx)
	go s.watchLoop(ctx)

	return nil
}

// Stop stops the source and releases the fsnotify watcher.
func (s *Source) Stop() error {
	if s.debouncer.timer != nil {
		s.debouncer.timer.Stop()
	}

	return s.watcher.Close()
}

func (s *Source) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFsnotifyEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching; a transient error loses at most one event.
			s.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (s *Source) handleFsnotifyEvent(event fsnotify.Event) {
	s.mutex.RLock()
	filters := s.filters
	s.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	var size int64
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventRenamed
	default:
		eventType = EventModified
	}

	changeEvent := Event{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case s.debouncer.events <- changeEvent:
	default:
		// Channel full, skip this event
	}
}

func (s *Source) dispatchBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-s.debouncer.output:
			s.mutex.RLock()
			handlers := s.handlers
			s.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					s.logger.Warn(ctx, err, "change handler error", "events", len(events))
				}
			}
		}
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event Event) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.flush()
	})
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Last event per path wins.
	eventMap := make(map[string]Event)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]Event, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}

	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	d.pending = d.pending[:0]
}

// ExtensionFilter passes only paths whose extension is in the allowed set.
// An empty set passes everything.
func ExtensionFilter(extensions ...string) Filter {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	return func(path string) bool {
		if len(allowed) == 0 {
			return true
		}
		return allowed[filepath.Ext(path)]
	}
}

// IgnoreFilter rejects paths containing any of the given directory names.
func IgnoreFilter(names ...string) Filter {
	return func(path string) bool {
		for _, name := range names {
			if filepath.Base(path) == name ||
				strings.Contains(path, string(filepath.Separator)+name+string(filepath.Separator)) ||
				strings.HasPrefix(path, name+string(filepath.Separator)) {
				return false
			}
		}
		return true
	}
}

// NoHiddenFilter rejects dotfiles and files inside dot-directories.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}
