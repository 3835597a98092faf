package audioengine

import (
	"sync"
	"time"
)

// FakeNative is a programmable NativeEngine test double. Tests push
// events via PushEvent and assert on issued commands/properties via the
// exported logs.
type FakeNative struct {
	mu sync.Mutex

	events  chan NativeEvent
	devices []NativeDevice

	Options    map[string]string
	Properties map[string]any
	Commands   [][]string

	InitErr    error
	ObserveErr map[string]error
}

// NewFakeNative builds a FakeNative with an empty event queue.
func NewFakeNative() *FakeNative {
	return &FakeNative{
		events:     make(chan NativeEvent, 64),
		Options:    make(map[string]string),
		Properties: make(map[string]any),
		ObserveErr: make(map[string]error),
	}
}

// PushEvent enqueues an event to be returned by a future WaitEvent call.
func (f *FakeNative) PushEvent(ev NativeEvent) {
	f.events <- ev
}

// SetDeviceList configures what GetDeviceList returns.
func (f *FakeNative) SetDeviceList(devices []NativeDevice) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *FakeNative) SetOptionString(name, value string) error {
	f.mu.Lock()
	f.Options[name] = value
	f.mu.Unlock()
	return nil
}

func (f *FakeNative) Initialize() error { return f.InitErr }

func (f *FakeNative) ObserveProperty(name string, _ Format) error {
	if err, ok := f.ObserveErr[name]; ok {
		return err
	}
	return nil
}

// Snapshot returns a copy of the commands issued so far, safe to read
// concurrently with the driver goroutine still running.
func (f *FakeNative) Snapshot() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.Commands))
	copy(out, f.Commands)
	return out
}

func (f *FakeNative) Command(args ...string) error {
	f.mu.Lock()
	f.Commands = append(f.Commands, append([]string{}, args...))
	f.mu.Unlock()
	return nil
}

func (f *FakeNative) SetProperty(name string, value any) error {
	f.mu.Lock()
	f.Properties[name] = value
	f.mu.Unlock()
	return nil
}

func (f *FakeNative) GetPropertyString(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := f.Properties[name].(string)
	return v, nil
}

func (f *FakeNative) GetDeviceList() ([]NativeDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *FakeNative) WaitEvent(timeout time.Duration) NativeEvent {
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(timeout):
		return NativeEvent{ID: NativeEventNone}
	}
}

func (f *FakeNative) Destroy() {}
