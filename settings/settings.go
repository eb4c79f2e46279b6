// Package settings provides named, persisted key/value property containers
// for grid front-ends. Each container is a JSON document on disk,
// manipulated in place so unknown keys written by other tools survive.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Container is one named settings store.
type Container struct {
	mu       sync.Mutex
	name     string
	path     string
	document string
}

// Open loads (or creates) the container with the given name below dataDir.
func Open(dataDir, name string) (*Container, error) {
	fileName := sanitize(name) + ".json"
	path := filepath.Join(dataDir, "session", "settings", fileName)
	c := &Container{name: name, path: path, document: "{}"}
	data, err := os.ReadFile(path)
	if err == nil {
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("settings file %s is not valid JSON", path)
		}
		c.document = string(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return c, nil
}

// Name returns the container's name.
func (c *Container) Name() string {
	return c.name
}

// Setting returns the value stored at key, or the fallback.
func (c *Container) Setting(key string, fallback string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := gjson.Get(c.document, key)
	if !value.Exists() {
		return fallback
	}
	return value.String()
}

// IntSetting returns the integer stored at key, or the fallback.
func (c *Container) IntSetting(key string, fallback int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := gjson.Get(c.document, key)
	if !value.Exists() {
		return fallback
	}
	return int(value.Int())
}

// SetSetting stores a value at key and persists the document.
func (c *Container) SetSetting(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated, err := sjson.Set(c.document, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	c.document = updated
	return c.persist()
}

// ClearSetting removes a key and persists the document.
func (c *Container) ClearSetting(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated, err := sjson.Delete(c.document, key)
	if err != nil {
		return fmt.Errorf("failed to clear %q: %w", key, err)
	}
	c.document = updated
	return c.persist()
}

// HasSetting reports whether a key is present.
func (c *Container) HasSetting(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gjson.Get(c.document, key).Exists()
}

// Caller holds c.mu.
func (c *Container) persist() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(c.document), 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '.' || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "unnamed"
	}
	return sb.String()
}
