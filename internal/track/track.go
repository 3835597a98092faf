// Package track holds the process-wide "currently selected track" slot.
package track

import "sync"

// Info identifies a track's origin URL and opaque key identifier.
// Equality is by value (all fields).
type Info struct {
	URL   string
	KeyID string
}

// Empty reports whether i carries no track (the zero value).
func (i Info) Empty() bool {
	return i.URL == "" && i.KeyID == ""
}

// Registry is a single-slot holder for the currently selected track.
// The slot starts empty; it becomes populated on the first Set and is
// never cleared implicitly. Reads and writes are mutually exclusive but
// never block for I/O.
type Registry struct {
	mu      sync.RWMutex
	current Info
	set     bool
}

// Set overwrites the current track. Last writer wins.
func (r *Registry) Set(t Info) {
	r.mu.Lock()
	r.current = t
	r.set = true
	r.mu.Unlock()
}

// Get returns the current track and whether one has ever been set.
func (r *Registry) Get() (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.set
}
