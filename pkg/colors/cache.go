// Package colors assigns Google Calendar event colour ids to projects. The
// eleven event colours are handed out least-recently-used first and the
// assignment survives restarts in a JSON file.
package colors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// FileName is the cache file inside the config directory.
	FileName = "project_colors.json"

	// NoProjectColor is graphite, used for tasks without a project.
	NoProjectColor = "8"

	paletteSize = 11
)

type entry struct {
	ColorID  string    `json:"color_id"`
	Active   bool      `json:"active"`
	LastUsed time.Time `json:"last_used"`
}

// Cache maps project names to colour ids.
type Cache struct {
	path     string
	now      func() time.Time
	projects map[string]*entry
	dirty    bool
}

// Open loads the cache at path. A missing file yields an empty cache.
func Open(path string) (*Cache, error) {
	c := &Cache{
		path:     path,
		now:      time.Now,
		projects: make(map[string]*entry),
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read colour cache: %w", err)
	}
	if err := json.Unmarshal(b, &c.projects); err != nil {
		return nil, fmt.Errorf("parse colour cache %s: %w", path, err)
	}
	return c, nil
}

// ColorID returns the colour for project, assigning one on first sight.
// When all colours are taken the least recently used project gives up its
// colour, preferring projects with no active tasks.
func (c *Cache) ColorID(project string, active bool) string {
	if project == "" {
		return NoProjectColor
	}
	if e, ok := c.projects[project]; ok {
		e.LastUsed = c.now()
		e.Active = e.Active || active
		c.dirty = true
		return e.ColorID
	}

	id := c.freeColor()
	if id == "" {
		id = c.evict()
	}
	c.projects[project] = &entry{ColorID: id, Active: active, LastUsed: c.now()}
	c.dirty = true
	return id
}

func (c *Cache) freeColor() string {
	used := make(map[string]bool, len(c.projects))
	for _, e := range c.projects {
		used[e.ColorID] = true
	}
	for i := 1; i <= paletteSize; i++ {
		id := strconv.Itoa(i)
		if !used[id] {
			return id
		}
	}
	return ""
}

func (c *Cache) evict() string {
	var victim string
	var victimEntry *entry
	for name, e := range c.projects {
		if victimEntry == nil || older(e, victimEntry) {
			victim, victimEntry = name, e
		}
	}
	delete(c.projects, victim)
	slog.Debug("recycled project colour", "project", victim, "color_id", victimEntry.ColorID)
	return victimEntry.ColorID
}

// older orders inactive projects before active ones, then by last use.
func older(a, b *entry) bool {
	if a.Active != b.Active {
		return !a.Active
	}
	return a.LastUsed.Before(b.LastUsed)
}

// Save writes the cache back when it changed.
func (c *Cache) Save() error {
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create colour cache directory: %w", err)
	}
	b, err := json.MarshalIndent(c.projects, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, b, 0o600); err != nil {
		return fmt.Errorf("write colour cache: %w", err)
	}
	c.dirty = false
	return nil
}
