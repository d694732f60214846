package dispatch

import (
	"github.com/maxlabs/maxagent/internal/agent/tools"
)

// cacheEntry is one remembered tool execution. For read_file entries, path
// and version pin the file state the result reflects; fullRead marks entries
// that hold the entire file body and are therefore patchable on write.
type cacheEntry struct {
	name     string
	args     string // normalized
	result   *tools.Execution
	path     string
	version  int
	fullRead bool
}

// resultCache is a fixed-capacity ring of recent tool executions, oldest
// evicted first.
type resultCache struct {
	entries  []cacheEntry
	capacity int
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 12
	}
	return &resultCache{capacity: capacity}
}

// add appends an entry, evicting the oldest when full. A fresh entry for the
// same (name, args) replaces the old one instead of duplicating it.
func (c *resultCache) add(e cacheEntry) {
	c.remove(e.name, e.args)
	if len(c.entries) >= c.capacity {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, e)
}

// find returns the newest entry matching (name, args), or nil.
func (c *resultCache) find(name, args string) *cacheEntry {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].name == name && c.entries[i].args == args {
			return &c.entries[i]
		}
	}
	return nil
}

// remove drops every entry matching (name, args).
func (c *resultCache) remove(name, args string) {
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.name == name && e.args == args {
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
}

// patchReads rewrites full-read entries for path to carry the new file body
// and version, so the next identical read is a valid hit that reflects the
// write. Partial (offset/limit) reads are left stale; the version check will
// drop them.
func (c *resultCache) patchReads(path, content string, version int) {
	for i := range c.entries {
		e := &c.entries[i]
		if e.name != toolReadFile || e.path != path || !e.fullRead {
			continue
		}
		e.result = &tools.Execution{Success: true, Output: content}
		e.version = version
	}
}

func (c *resultCache) len() int { return len(c.entries) }
