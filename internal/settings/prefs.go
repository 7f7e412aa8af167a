// Package settings stores user preferences for the assistant: the
// completion endpoint, model and sampling parameters, and privacy toggles.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PrefsFileName is the preference file inside the data directory.
const PrefsFileName = "prefs.json"

// Prefs is a small keyed store of JSON values backed by one file.
// Writes replace the file atomically.
type Prefs struct {
	path string
	mu   sync.Mutex
}

// OpenPrefs returns the preference store at baseDir/prefs.json. The file is
// created on first write.
func OpenPrefs(baseDir string) *Prefs {
	return &Prefs{path: filepath.Join(baseDir, PrefsFileName)}
}

// Path returns the backing file path.
func (p *Prefs) Path() string { return p.path }

// Get decodes the value stored under key into dst. found is false when the
// key is absent.
func (p *Prefs) Get(key string, dst any) (found bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.read()
	if err != nil {
		return false, err
	}
	raw, ok := values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode preference %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key.
func (p *Prefs) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preference %q: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.read()
	if err != nil {
		return err
	}
	values[key] = data
	return p.write(values)
}

// Remove deletes key. Removing an absent key is not an error.
func (p *Prefs) Remove(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return p.write(values)
}

func (p *Prefs) read() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("read preferences %s: %w", p.path, err)
	}
	return values, nil
}

func (p *Prefs) write(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	_ = os.Chmod(p.path, 0600)
	success = true
	return nil
}
