// Package diag provides a small ring-buffer log sink so recent process
// log lines are queryable over HTTP without pulling in a logging framework.
package diag

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/auricle/auricle/internal/util"
)

const defaultCapacity = 500

// Entry is one logged line with its arrival time.
type Entry struct {
	TS  time.Time `json:"ts"`
	Msg string    `json:"msg"`
}

// Log is an io.Writer log sink backed by a ring buffer, with pub/sub so
// SSE handlers can tail new lines as they arrive.
type Log struct {
	mu      sync.Mutex
	ring    *util.RingBuffer[Entry]
	subs    map[chan Entry]struct{}
	partial bytes.Buffer
}

// NewLog creates a log sink holding the last capacity lines.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Log{
		ring: util.NewRingBuffer[Entry](capacity),
		subs: make(map[chan Entry]struct{}),
	}
}

// Write implements io.Writer so it can be installed via log.SetOutput.
// Input is split on newlines; partial lines are buffered until completed.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	l.partial.Write(p)
	for {
		buf := l.partial.Bytes()
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := string(buf[:idx])
		l.partial.Next(idx + 1)
		l.emitLocked(Entry{TS: time.Now(), Msg: line})
	}
	l.mu.Unlock()
	return len(p), nil
}

// Printf formats and records a line directly, bypassing io.Writer framing.
func (l *Log) Printf(format string, args ...any) {
	l.mu.Lock()
	l.emitLocked(Entry{TS: time.Now(), Msg: fmt.Sprintf(format, args...)})
	l.mu.Unlock()
}

func (l *Log) emitLocked(e Entry) {
	l.ring.Push(e)
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Snapshot returns all buffered lines, oldest first.
func (l *Log) Snapshot() []Entry {
	return l.ring.Snapshot()
}

// Subscribe registers a channel that receives every line logged from this
// point forward. The returned func unregisters it; callers must call it
// to avoid leaking the channel from the subscriber set.
func (l *Log) Subscribe() (ch <-chan Entry, cancel func()) {
	c := make(chan Entry, 32)
	l.mu.Lock()
	l.subs[c] = struct{}{}
	l.mu.Unlock()
	return c, func() {
		l.mu.Lock()
		delete(l.subs, c)
		l.mu.Unlock()
	}
}
