// Package controller mediates IPC requests from the embedded UI to the
// track registry, preload engine, and audio engine driver, and forwards
// driver events back as UI notifications. It also performs the gapless
// auto-advance on track completion.
package controller

import (
	"context"
	"fmt"

	"github.com/auricle/auricle/internal/audioengine"
	"github.com/auricle/auricle/internal/preload"
	"github.com/auricle/auricle/internal/track"
)

// Controller implements ipc.Handler.
type Controller struct {
	registry  *track.Registry
	preload   *preload.Engine
	driver    *audioengine.Driver
	relayAddr string
}

// New builds a Controller. relayAddr is the loopback relay's bound
// address ("127.0.0.1:PORT"), used to build the stream URL passed to the
// audio engine's Load command.
func New(registry *track.Registry, pre *preload.Engine, driver *audioengine.Driver, relayAddr string) *Controller {
	return &Controller{registry: registry, preload: pre, driver: driver, relayAddr: relayAddr}
}

func (c *Controller) streamURL() string {
	return fmt.Sprintf("http://%s/stream", c.relayAddr)
}

// Load registers the track and asks the engine to load the relay's
// stream URL. format is accepted for IPC-channel parity with the vendor
// contract but otherwise unused: the relay always serves audio/flac.
func (c *Controller) Load(url, format, keyID string) {
	c.registry.Set(track.Info{URL: url, KeyID: keyID})
	c.driver.Load(c.streamURL())
}

func (c *Controller) Preload(url, format, keyID string) {
	c.preload.Start(track.Info{URL: url, KeyID: keyID})
}

func (c *Controller) PreloadCancel() { c.preload.Cancel() }

func (c *Controller) Play()  { c.driver.Play() }
func (c *Controller) Pause() { c.driver.Pause() }
func (c *Controller) Stop()  { c.driver.Stop() }

func (c *Controller) Seek(seconds float64) { c.driver.Seek(seconds) }
func (c *Controller) SetVolume(v int)      { c.driver.SetVolume(v) }

func (c *Controller) DevicesGet(reqID string) { c.driver.ListDevices(reqID) }
func (c *Controller) DevicesSet(deviceID string, exclusive bool) {
	c.driver.SetDevice(deviceID, exclusive)
}

// Run consumes driver events until ctx is cancelled, forwarding each to
// onEvent (wired to the UI notification channel by the caller) and
// performing gapless auto-advance: on StateChange(completed), if the
// preload engine holds a cached result for some track other than the one
// that just completed, that track is promoted to current and reloaded.
func (c *Controller) Run(ctx context.Context, onEvent func(audioengine.Event)) {
	events, cancel := c.driver.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == audioengine.EventStateChange && ev.State == audioengine.StateCompleted {
				c.handleCompleted()
			}
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}
}

func (c *Controller) handleCompleted() {
	current, _ := c.registry.Get()
	next, ok := c.preload.PeekNext(current)
	if !ok {
		return
	}
	c.registry.Set(next)
	c.driver.Load(c.streamURL())
}
