package logging

import (
	"sync"
)

// LineCollector holds the output lines of the current or most recent run of
// each script. It is safe for concurrent use.
type LineCollector struct {
	mu    sync.RWMutex
	lines map[string][]string
}

// NewLineCollector creates an empty LineCollector.
func NewLineCollector() *LineCollector {
	return &LineCollector{
		lines: make(map[string][]string),
	}
}

// Reset starts a fresh buffer for script.
func (c *LineCollector) Reset(script string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines[script] = make([]string, 0)
}

// Append adds a line to the buffer of script.
func (c *LineCollector) Append(script, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines[script] = append(c.lines[script], line)
}

// Lines returns a copy of the buffer of script, or nil if it has none.
func (c *LineCollector) Lines(script string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines, ok := c.lines[script]
	if !ok {
		return nil
	}
	result := make([]string, len(lines))
	copy(result, lines)
	return result
}

// All returns a copy of every buffer keyed by script name.
func (c *LineCollector) All() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]string, len(c.lines))
	for script, lines := range c.lines {
		cp := make([]string, len(lines))
		copy(cp, lines)
		result[script] = cp
	}
	return result
}

// Remove drops the buffer of script.
func (c *LineCollector) Remove(script string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.lines, script)
}
