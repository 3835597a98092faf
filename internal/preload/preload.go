// Package preload speculatively fetches and decrypts the head of a
// candidate next track so it can be spliced into the loopback relay's
// response without a gap. At most one preload task runs at a time and at
// most one decrypted result is cached.
package preload

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/auricle/auricle/internal/keyvault"
	"github.com/auricle/auricle/internal/origin"
	"github.com/auricle/auricle/internal/streamcipher"
	"github.com/auricle/auricle/internal/track"
)

// DefaultMaxBytes is the cap on preloaded plaintext, matching the
// PRELOAD_BYTES constant.
const DefaultMaxBytes = 512 * 1024

const fetchChunkSize = 32 * 1024

type cachedResult struct {
	track track.Info
	bytes []byte
}

// Engine owns the single in-flight preload task and the single cached
// result. All mutators serialize on a mutex; the in-flight task acquires
// the mutex only for its final store, never across network I/O.
type Engine struct {
	origin   origin.Origin
	master   keyvault.MasterKey
	maxBytes int

	mu      sync.Mutex
	cancel  context.CancelFunc
	cached  *cachedResult
	taskID  string
}

// TaskID returns the id of the in-flight or most recently completed preload
// task, for correlating diag log lines with a single fetch.
func (e *Engine) TaskID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskID
}

// New builds a preload Engine that fetches via o, unwraps keys with
// master, and caps cached plaintext at maxBytes (DefaultMaxBytes if <= 0).
func New(o origin.Origin, master keyvault.MasterKey, maxBytes int) *Engine {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Engine{origin: o, master: master, maxBytes: maxBytes}
}

// Start cancels any in-flight preload, discards its buffered bytes, and
// (if t carries a non-empty URL and key id) schedules a new fetch.
func (e *Engine) Start(t track.Info) {
	e.mu.Lock()
	e.cancelLocked()
	if t.URL == "" || t.KeyID == "" {
		e.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	taskID := uuid.NewString()
	e.taskID = taskID
	e.mu.Unlock()

	go e.run(ctx, taskID, t)
}

// Cancel aborts any in-flight preload task and clears the cache.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelLocked()
	e.cached = nil
	e.mu.Unlock()
}

func (e *Engine) cancelLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// PeekNext returns the cached track iff a result is cached and it is not
// equal to current. It never mutates the cache.
func (e *Engine) PeekNext(current track.Info) (track.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached == nil {
		return track.Info{}, false
	}
	if e.cached.track == current {
		return track.Info{}, false
	}
	return e.cached.track, true
}

// TakeIfMatches atomically removes and returns the cached bytes iff the
// cache holds a result for exactly t.
func (e *Engine) TakeIfMatches(t track.Info) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached == nil || e.cached.track != t {
		return nil, false
	}
	bytes := e.cached.bytes
	e.cached = nil
	return bytes, true
}

func (e *Engine) run(ctx context.Context, taskID string, t track.Info) {
	resp, err := e.origin.Get(ctx, t.URL, &origin.Range{Start: 0, End: int64(e.maxBytes - 1)})
	if err != nil {
		log.Printf("PRELOAD[%s]: fetch %s: %v", taskID, t.URL, err)
		return
	}
	defer resp.Body.Close()

	if !origin.IsSuccess(resp.StatusCode) {
		log.Printf("PRELOAD[%s]: fetch %s: upstream status %d", taskID, t.URL, resp.StatusCode)
		return
	}

	key, err := keyvault.Unwrap(t.KeyID, e.master)
	if err != nil {
		log.Printf("PRELOAD[%s]: unwrap key for %s: %v", taskID, t.URL, err)
		return
	}

	buf, err := decryptUpTo(resp.Body, key, e.maxBytes)
	if err != nil {
		// Any partial plaintext decoded before the error is discarded.
		log.Printf("PRELOAD[%s]: read %s: %v", taskID, t.URL, err)
		return
	}
	if len(buf) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx.Err() != nil {
		// Superseded or cancelled while we were fetching; drop the result.
		return
	}
	e.cached = &cachedResult{track: t, bytes: buf}
}

func decryptUpTo(body io.Reader, key keyvault.UnwrappedKey, maxBytes int) ([]byte, error) {
	out := make([]byte, 0, maxBytes)
	offset := uint64(0)
	chunk := make([]byte, fetchChunkSize)

	for len(out) < maxBytes {
		want := len(chunk)
		if remaining := maxBytes - len(out); remaining < want {
			want = remaining
		}
		n, err := body.Read(chunk[:want])
		if n > 0 {
			plain, derr := streamcipher.DecryptChunk(key.Key, key.Nonce, chunk[:n], offset)
			if derr != nil {
				return out, fmt.Errorf("decrypt chunk at offset %d: %w", offset, derr)
			}
			out = append(out, plain...)
			offset += uint64(n)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
	}
	return out, nil
}
