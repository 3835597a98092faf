// Package relay implements the loopback HTTP/1.1 server that republishes
// decrypted track bytes to the native audio engine, splicing in preloaded
// bytes when available, and (in debug mode) exposes diagnostic routes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/auricle/auricle/internal/audioengine"
	"github.com/auricle/auricle/internal/bridge"
	"github.com/auricle/auricle/internal/diag"
	"github.com/auricle/auricle/internal/keyvault"
	"github.com/auricle/auricle/internal/origin"
	"github.com/auricle/auricle/internal/preload"
	"github.com/auricle/auricle/internal/streamcipher"
	"github.com/auricle/auricle/internal/track"
)

// ErrRelayBind reports a failure to bind the loopback listener at startup.
var ErrRelayBind = errors.New("relay: bind failed")

// Relay serves the decrypted stream for the currently registered track.
type Relay struct {
	origin   origin.Origin
	master   keyvault.MasterKey
	registry *track.Registry
	preload  *preload.Engine
	driver   *audioengine.Driver
	diagLog  *diag.Log
	debug    bool

	listener net.Listener
	server   *http.Server
}

// New builds a Relay. driver and diagLog may be nil; when either is nil
// the corresponding /debug route answers 404 even if debug is true.
func New(o origin.Origin, master keyvault.MasterKey, registry *track.Registry, pre *preload.Engine, driver *audioengine.Driver, diagLog *diag.Log, debug bool) *Relay {
	return &Relay{
		origin:   o,
		master:   master,
		registry: registry,
		preload:  pre,
		driver:   driver,
		diagLog:  diagLog,
		debug:    debug,
	}
}

// Start binds 127.0.0.1:0 and begins serving in the background. Returns
// an error wrapping ErrRelayBind on failure, which callers should treat
// as fatal at startup.
func (r *Relay) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayBind, err)
	}
	r.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/bridge.js", r.handleBridge)
	if r.debug {
		mux.HandleFunc("/debug/events", r.handleDebugEvents)
		mux.HandleFunc("/debug/logs", r.handleDebugLogs)
	}
	mux.HandleFunc("/", r.handleStream)

	r.server = &http.Server{Handler: mux}
	go func() {
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("RELAY: serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound loopback address ("127.0.0.1:PORT"), valid only
// after Start succeeds.
func (r *Relay) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Close shuts the relay down.
func (r *Relay) Close() error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(context.Background())
}

func (r *Relay) handleBridge(w http.ResponseWriter, req *http.Request) {
	bridge.Handler().ServeHTTP(w, req)
}

// handleStream serves the decrypted stream for the currently registered
// track. Any path/method reaching this handler is treated as /stream.
func (r *Relay) handleStream(w http.ResponseWriter, req *http.Request) {
	current, ok := r.registry.Get()
	if !ok {
		http.Error(w, "No track loaded", http.StatusNotFound)
		return
	}

	cached, hasCache := r.preload.TakeIfMatches(current)
	preloadLen := 0
	if hasCache {
		preloadLen = len(cached)
	}

	ctx := req.Context()
	var rng *origin.Range
	if preloadLen > 0 {
		rng = &origin.Range{Start: int64(preloadLen), End: -1}
	}

	resp, err := r.origin.Get(ctx, current.URL, rng)
	if err != nil {
		log.Printf("RELAY: fetch %s: %v", current.URL, err)
		http.Error(w, "upstream fetch failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if !origin.IsSuccess(resp.StatusCode) {
		log.Printf("RELAY: fetch %s: upstream status %d", current.URL, resp.StatusCode)
		http.Error(w, "upstream error", http.StatusInternalServerError)
		return
	}

	offset := uint64(preloadLen)
	body := resp.Body

	if rng != nil && !resp.RangeHonored {
		// Range ignored by the origin; the preload is unusable. Restart
		// the fetch from offset 0 without it.
		resp.Body.Close()
		resp2, err := r.origin.Get(ctx, current.URL, nil)
		if err != nil {
			log.Printf("RELAY: refetch %s: %v", current.URL, err)
			http.Error(w, "upstream fetch failed", http.StatusInternalServerError)
			return
		}
		if !origin.IsSuccess(resp2.StatusCode) {
			resp2.Body.Close()
			log.Printf("RELAY: refetch %s: upstream status %d", current.URL, resp2.StatusCode)
			http.Error(w, "upstream error", http.StatusInternalServerError)
			return
		}
		defer resp2.Body.Close()
		body = resp2.Body
		offset = 0
		cached = nil
	}

	key, err := keyvault.Unwrap(current.KeyID, r.master)
	if err != nil {
		log.Printf("RELAY: unwrap key: %v", err)
		http.Error(w, "key unwrap failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/flac")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	if len(cached) > 0 {
		if _, err := w.Write(cached); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			plain, derr := streamcipher.DecryptChunk(key.Key, key.Nonce, buf[:n], offset)
			if derr != nil {
				log.Printf("RELAY: decrypt at offset %d: %v", offset, derr)
				return
			}
			if _, werr := w.Write(plain); werr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			offset += uint64(n)
		}
		if readErr != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (r *Relay) handleDebugEvents(w http.ResponseWriter, req *http.Request) {
	if r.driver == nil {
		http.NotFound(w, req)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("RELAY: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := r.driver.Subscribe()
	defer cancel()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (r *Relay) handleDebugLogs(w http.ResponseWriter, req *http.Request) {
	if r.diagLog == nil {
		http.NotFound(w, req)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	entries, cancel := r.diagLog.Subscribe()
	defer cancel()

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
