package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// Entry is one registered channel's discovery record.
type Entry struct {
	Channel    string `json:"channel"`
	ShmName    string `json:"shm_name"`
	SchemaHash string `json:"schema_hash"`
	Endpoint   string `json:"endpoint"`
	SecretHash string `json:"secret_hash"`
}

// registryFile is the on-disk JSONC shape: comments are welcome in a
// hand-edited seed file, and are stripped before unmarshalling.
type registryFile struct {
	Entries []Entry `json:"entries"`
}

// Registry is the broker's in-memory channel directory, mirrored to a
// JSONC file on disk so a restart doesn't forget what was registered.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
}

// NewRegistry creates an empty registry backed by path. Load must be
// called separately to populate it from an existing file.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, entries: make(map[string]Entry)}
}

// Load reads and parses the JSONC registry file, tolerating a missing
// file as "start empty".
func (r *Registry) Load() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("broker: read registry %s: %w", r.path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("broker: parse registry %s: %w", r.path, err)
	}

	var f registryFile
	if err := json.Unmarshal(std, &f); err != nil {
		return fmt.Errorf("broker: unmarshal registry %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry, len(f.Entries))
	for _, e := range f.Entries {
		r.entries[e.Channel] = e
	}
	return nil
}

// save persists the current entries with an atomic rename, so a crash
// mid-write never leaves a truncated or half-written registry file.
func (r *Registry) save() error {
	f := registryFile{Entries: make([]Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		f.Entries = append(f.Entries, e)
	}

	out, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("broker: marshal registry: %w", err)
	}

	if err := atomic.WriteFile(r.path, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("broker: write registry %s: %w", r.path, err)
	}
	return nil
}

// Register inserts or updates a channel's entry. Registering an
// already-registered channel with a different shm_name is a conflict.
func (r *Registry) Register(e Entry) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[e.Channel]; ok && existing.ShmName != e.ShmName {
		return StatusConflict, nil
	}
	r.entries[e.Channel] = e
	return StatusOK, r.save()
}

// Lookup returns a channel's entry, or false if it is not registered.
func (r *Registry) Lookup(channel string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[channel]
	return e, ok
}

// Deregister removes a channel's entry.
func (r *Registry) Deregister(channel string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[channel]; !ok {
		return StatusNotFound, nil
	}
	delete(r.entries, channel)
	return StatusOK, r.save()
}
