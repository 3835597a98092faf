package audioengine

import (
	"encoding/json"
	"fmt"
	"time"

	mpv "github.com/supersonic-app/go-mpv"
)

// MpvEngine adapts github.com/supersonic-app/go-mpv to NativeEngine. It is
// the real engine; FakeNative stands in for it in tests.
type MpvEngine struct {
	handle *mpv.Mpv
}

// NewMpvEngine creates an uninitialized libmpv instance. Callers must
// still call SetOptionString/Initialize (done by NewDriver) before using
// it.
func NewMpvEngine() (*MpvEngine, error) {
	h := mpv.New()
	if h == nil {
		return nil, fmt.Errorf("%w: mpv.New returned nil", ErrEngineInit)
	}
	return &MpvEngine{handle: h}, nil
}

func (e *MpvEngine) SetOptionString(name, value string) error {
	return e.handle.SetOptionString(name, value)
}

func (e *MpvEngine) Initialize() error {
	return e.handle.Initialize()
}

func (e *MpvEngine) ObserveProperty(name string, format Format) error {
	return e.handle.ObserveProperty(0, name, toMpvFormat(format))
}

func (e *MpvEngine) Command(args ...string) error {
	return e.handle.Command(args)
}

func (e *MpvEngine) SetProperty(name string, value any) error {
	switch v := value.(type) {
	case bool:
		return e.handle.SetPropertyFlag(name, v)
	case float64:
		return e.handle.SetPropertyDouble(name, v)
	case int:
		return e.handle.SetPropertyDouble(name, float64(v))
	case string:
		return e.handle.SetPropertyString(name, v)
	default:
		return fmt.Errorf("%w: unsupported property value type %T for %s", ErrEngineCommand, value, name)
	}
}

func (e *MpvEngine) GetPropertyString(name string) (string, error) {
	return e.handle.GetPropertyString(name)
}

func (e *MpvEngine) GetDeviceList() ([]NativeDevice, error) {
	raw, err := e.handle.GetPropertyString("audio-device-list")
	if err != nil {
		return nil, err
	}
	return parseDeviceListJSON(raw)
}

func (e *MpvEngine) WaitEvent(timeout time.Duration) NativeEvent {
	ev := e.handle.WaitEvent(timeout.Seconds())
	if ev == nil {
		return NativeEvent{ID: NativeEventNone}
	}

	switch ev.EventID {
	case mpv.EventPropertyChange:
		if ev.Property == nil {
			return NativeEvent{ID: NativeEventNone}
		}
		return NativeEvent{
			ID:           NativeEventPropertyChange,
			PropertyName: ev.Property.Name,
			PropertyData: ev.Property.Data,
		}
	case mpv.EventStartFile:
		return NativeEvent{ID: NativeEventStartFile}
	case mpv.EventEndFile:
		return NativeEvent{ID: NativeEventEndFile}
	case mpv.EventShutdown:
		return NativeEvent{ID: NativeEventShutdown}
	default:
		return NativeEvent{ID: NativeEventNone}
	}
}

func (e *MpvEngine) Destroy() {
	e.handle.TerminateDestroy()
}

type mpvDeviceEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func parseDeviceListJSON(raw string) ([]NativeDevice, error) {
	var entries []mpvDeviceEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse audio-device-list: %w", err)
	}
	out := make([]NativeDevice, 0, len(entries))
	for _, e := range entries {
		out = append(out, NativeDevice{Name: e.Name, Description: e.Description})
	}
	return out, nil
}

func toMpvFormat(f Format) mpv.Format {
	switch f {
	case FormatDouble:
		return mpv.FormatDouble
	case FormatFlag:
		return mpv.FormatFlag
	case FormatString:
		return mpv.FormatString
	default:
		return mpv.FormatNone
	}
}
