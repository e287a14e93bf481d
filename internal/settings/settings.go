// Package settings keeps small whole-value documents in named slots of a
// local YAML file, separate from the record store.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Slot names one stored value.
type Slot string

const (
	// SlotLastData holds the last known data snapshot.
	SlotLastData Slot = "lastData"
	// SlotSettings holds user preferences.
	SlotSettings Slot = "settings"
	// SlotFilter holds the active filter criteria.
	SlotFilter Slot = "filters"
)

// Store reads and writes slots of one YAML document.
// Every Put replaces the whole slot; there are no partial updates.
//
// Thread-safety: Store is safe for concurrent use within one process.
// Across processes the last writer wins.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a settings store at path. The file is created on first Put.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get decodes slot into v. It reports false when the slot is unset.
func (s *Store) Get(slot Slot, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	node, ok := doc[string(slot)]
	if !ok {
		return false, nil
	}
	if err := node.Decode(v); err != nil {
		return false, fmt.Errorf("decode slot %s: %w", slot, err)
	}
	return true, nil
}

// Put stores v as the whole value of slot.
func (s *Store) Put(slot Slot, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("encode slot %s: %w", slot, err)
	}
	doc[string(slot)] = node
	return s.save(doc)
}

// Remove clears slot. Removing an unset slot succeeds.
func (s *Store) Remove(slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[string(slot)]; !ok {
		return nil
	}
	delete(doc, string(slot))
	return s.save(doc)
}

// load reads the document. A missing file is an empty document.
func (s *Store) load() (map[string]yaml.Node, error) {
	doc := map[string]yaml.Node{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	if doc == nil {
		doc = map[string]yaml.Node{}
	}
	return doc, nil
}

// save writes doc to a temp file and renames it over the old one.
func (s *Store) save(doc map[string]yaml.Node) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
