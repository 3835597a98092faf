// Package audioengine drives a native audio engine from one dedicated
// goroutine behind a command queue, and synthesizes a typed event stream
// from the engine's observed properties and lifecycle events.
package audioengine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Format identifies the wire type of an observed mpv-style property.
type Format int

const (
	FormatDouble Format = iota
	FormatFlag
	FormatString
)

// NativeEventID tags the kind of event a NativeEngine.WaitEvent call
// returned.
type NativeEventID int

const (
	NativeEventNone NativeEventID = iota
	NativeEventPropertyChange
	NativeEventStartFile
	NativeEventEndFile
	NativeEventShutdown
)

// NativeEvent is one event polled off the native engine.
type NativeEvent struct {
	ID           NativeEventID
	PropertyName string
	PropertyData any
}

// NativeDevice is one entry in the engine's raw device list.
type NativeDevice struct {
	Name        string
	Description string
}

// NativeEngine is the bounded command/property/event surface the driver
// needs from the underlying native audio library. It mirrors libmpv's
// client API: observed properties (time-pos, duration, pause,
// idle-active), lifecycle events (StartFile, EndFile), and a handful of
// commands and properties.
type NativeEngine interface {
	SetOptionString(name, value string) error
	Initialize() error
	ObserveProperty(name string, format Format) error
	Command(args ...string) error
	SetProperty(name string, value any) error
	GetPropertyString(name string) (string, error)
	GetDeviceList() ([]NativeDevice, error)
	WaitEvent(timeout time.Duration) NativeEvent
	Destroy()
}

// Sentinel error kinds.
var (
	ErrEngineInit    = errors.New("audioengine: init failed")
	ErrEngineCommand = errors.New("audioengine: command failed")
	ErrEngineObserve = errors.New("audioengine: observe failed")
)

// State mirrors the AudioEngine state machine observed by the Controller.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// EventKind tags the synthesized events published by the driver.
type EventKind string

const (
	EventTimeUpdate   EventKind = "time_update"
	EventDuration     EventKind = "duration"
	EventStateChange  EventKind = "state_change"
	EventAudioDevices EventKind = "audio_devices"
)

// Device is the UI-facing shape of one audio output device.
type Device struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ControllableVolume bool   `json:"controllableVolume"`
	Type               string `json:"type,omitempty"`
}

// Event is one lifecycle/property-change notification published by the
// driver. Only the fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     float64   `json:"time,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	State    State     `json:"state,omitempty"`
	Devices  []Device  `json:"devices,omitempty"`
	ReqID    string    `json:"reqId,omitempty"`
}

type commandKind int

const (
	cmdLoad commandKind = iota
	cmdPlay
	cmdPause
	cmdStop
	cmdSeek
	cmdSetVolume
	cmdListDevices
	cmdSetDevice
)

type command struct {
	kind      commandKind
	url       string
	seconds   float64
	volume    int
	reqID     string
	deviceID  string
	exclusive bool
}

// Driver owns the native engine and the one goroutine allowed to touch it.
// Commands are sent through a queue and drained in FIFO order; events are
// fanned out to subscribers.
type Driver struct {
	engine       NativeEngine
	exclusionSet map[string]struct{}

	cmds chan command
	quit chan struct{}

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	pendingActive bool
	lastDuration  float64
}

// NewDriver initializes the native engine (config=no, terminal=no,
// numeric locale forced by the caller via environment before this runs)
// and starts observing the properties the event-synthesis rules depend
// on. The returned Driver's Run method must be started in its own
// goroutine; engine init failure here is meant to be fatal to the
// process.
func NewDriver(engine NativeEngine, exclusionIDs []string) (*Driver, error) {
	if err := engine.SetOptionString("config", "no"); err != nil {
		return nil, fmt.Errorf("%w: config=no: %v", ErrEngineInit, err)
	}
	if err := engine.SetOptionString("terminal", "no"); err != nil {
		return nil, fmt.Errorf("%w: terminal=no: %v", ErrEngineInit, err)
	}
	if err := engine.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	for _, prop := range []struct {
		name   string
		format Format
	}{
		{"time-pos", FormatDouble},
		{"duration", FormatDouble},
		{"pause", FormatFlag},
		{"idle-active", FormatFlag},
	} {
		if err := engine.ObserveProperty(prop.name, prop.format); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEngineObserve, prop.name, err)
		}
	}

	exclusion := make(map[string]struct{}, len(exclusionIDs))
	for _, id := range exclusionIDs {
		exclusion[id] = struct{}{}
	}

	return &Driver{
		engine:       engine,
		exclusionSet: exclusion,
		cmds:         make(chan command, 32),
		quit:         make(chan struct{}),
		subs:         make(map[chan Event]struct{}),
	}, nil
}

// Run is the driver's dedicated loop: poll the engine with a bounded
// wait, then drain the command queue non-blockingly. Call it in its own
// goroutine; it returns when Close is called.
func (d *Driver) Run() {
	for {
		select {
		case <-d.quit:
			d.engine.Destroy()
			return
		default:
		}

		ev := d.engine.WaitEvent(250 * time.Millisecond)
		d.handleNativeEvent(ev)

	drainCommands:
		for {
			select {
			case cmd := <-d.cmds:
				d.handleCommand(cmd)
			default:
				break drainCommands
			}
		}
	}
}

// Close stops the driver loop after its current poll cycle.
func (d *Driver) Close() {
	close(d.quit)
}

// Subscribe registers a channel that receives every event published from
// this point forward. The returned cancel func must be called to avoid
// leaking the channel from the subscriber set.
func (d *Driver) Subscribe() (ch <-chan Event, cancel func()) {
	c := make(chan Event, 16)
	d.subsMu.Lock()
	d.subs[c] = struct{}{}
	d.subsMu.Unlock()
	return c, func() {
		d.subsMu.Lock()
		delete(d.subs, c)
		d.subsMu.Unlock()
	}
}

func (d *Driver) emit(e Event) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for c := range d.subs {
		select {
		case c <- e:
		default:
		}
	}
}

// --- commands (safe to call from any goroutine) ---

func (d *Driver) Load(url string) { d.cmds <- command{kind: cmdLoad, url: url} }
func (d *Driver) Play()           { d.cmds <- command{kind: cmdPlay} }
func (d *Driver) Pause()          { d.cmds <- command{kind: cmdPause} }
func (d *Driver) Stop()           { d.cmds <- command{kind: cmdStop} }
func (d *Driver) Seek(seconds float64) {
	d.cmds <- command{kind: cmdSeek, seconds: seconds}
}
func (d *Driver) SetVolume(v int) { d.cmds <- command{kind: cmdSetVolume, volume: v} }
func (d *Driver) ListDevices(reqID string) {
	d.cmds <- command{kind: cmdListDevices, reqID: reqID}
}
func (d *Driver) SetDevice(id string, exclusive bool) {
	d.cmds <- command{kind: cmdSetDevice, deviceID: id, exclusive: exclusive}
}

// --- native event / command handling (runs only on the driver goroutine) ---

func (d *Driver) handleNativeEvent(ev NativeEvent) {
	switch ev.ID {
	case NativeEventPropertyChange:
		d.handlePropertyChange(ev.PropertyName, ev.PropertyData)
	case NativeEventStartFile:
		d.pendingActive = true
	case NativeEventEndFile:
		d.emit(Event{Kind: EventTimeUpdate, Time: d.lastDuration})
		d.emit(Event{Kind: EventStateChange, State: StateCompleted})
		d.lastDuration = 0
		d.pendingActive = false
	case NativeEventShutdown, NativeEventNone:
	}
}

func (d *Driver) handlePropertyChange(name string, data any) {
	switch name {
	case "time-pos":
		t, ok := data.(float64)
		if ok && t > 0 {
			d.emit(Event{Kind: EventTimeUpdate, Time: t})
		}
	case "duration":
		dur, ok := data.(float64)
		if !ok {
			return
		}
		d.lastDuration = dur
		d.emit(Event{Kind: EventDuration, Duration: dur})
		if d.pendingActive {
			d.emit(Event{Kind: EventStateChange, State: StateActive})
			d.pendingActive = false
		}
	case "pause":
		paused, ok := data.(bool)
		if !ok {
			return
		}
		state := StateActive
		if paused {
			state = StatePaused
		}
		d.emit(Event{Kind: EventStateChange, State: state})
	case "idle-active":
		// Observed but not mapped to a synthesized event.
	}
}

func (d *Driver) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdLoad:
		if err := d.engine.Command("loadfile", cmd.url); err != nil {
			log.Printf("ENGINE: loadfile %s: %v", cmd.url, err)
		}
	case cmdPlay:
		if err := d.engine.SetProperty("pause", false); err != nil {
			log.Printf("ENGINE: play: %v", err)
		}
	case cmdPause:
		if err := d.engine.SetProperty("pause", true); err != nil {
			log.Printf("ENGINE: pause: %v", err)
		}
	case cmdStop:
		if err := d.engine.Command("stop"); err != nil {
			log.Printf("ENGINE: stop: %v", err)
		}
	case cmdSeek:
		if err := d.engine.SetProperty("time-pos", cmd.seconds); err != nil {
			log.Printf("ENGINE: seek %.3f: %v", cmd.seconds, err)
		}
	case cmdSetVolume:
		if err := d.engine.SetProperty("volume", cmd.volume); err != nil {
			log.Printf("ENGINE: set volume %d: %v", cmd.volume, err)
		}
	case cmdListDevices:
		d.handleListDevices(cmd.reqID)
	case cmdSetDevice:
		d.handleSetDevice(cmd.deviceID, cmd.exclusive)
	}
}

func (d *Driver) handleListDevices(reqID string) {
	native, err := d.engine.GetDeviceList()
	if err != nil {
		log.Printf("ENGINE: list devices: %v", err)
		native = nil
	}

	devices := make([]Device, 0, len(native))
	for _, nd := range native {
		if _, excluded := d.exclusionSet[nd.Name]; excluded {
			continue
		}
		if nd.Name == "auto" {
			devices = append(devices, Device{
				ID:                 "default",
				Name:               "System Default",
				ControllableVolume: true,
				Type:               "systemDefault",
			})
			continue
		}
		devices = append(devices, Device{
			ID:                 nd.Name,
			Name:               nd.Description,
			ControllableVolume: true,
		})
	}

	d.emit(Event{Kind: EventAudioDevices, Devices: devices, ReqID: reqID})
}

func (d *Driver) handleSetDevice(id string, exclusive bool) {
	if err := d.engine.SetProperty("audio-exclusive", exclusive); err != nil {
		log.Printf("ENGINE: set audio-exclusive=%v: %v", exclusive, err)
	}
	if exclusive {
		if err := d.engine.SetProperty("volume", 100); err != nil {
			log.Printf("ENGINE: exclusive-mode volume hint: %v", err)
		}
		if err := d.engine.SetProperty("audio-channels", "auto"); err != nil {
			log.Printf("ENGINE: exclusive-mode channels hint: %v", err)
		}
	}
	if err := d.engine.SetProperty("audio-device", id); err != nil {
		log.Printf("%s: set audio-device=%s: %v", ErrEngineCommand, id, err)
	}
}
