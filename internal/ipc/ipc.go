// Package ipc represents the dynamic IPC channel names consumed from the
// embedded UI as a tagged variant of message kinds with exhaustive
// handling; unknown kinds are logged and dropped rather than causing
// dynamic dispatch failures deep in the call stack.
package ipc

import (
	"log"

	"github.com/google/uuid"
)

// Kind names one of the player.* IPC channels.
type Kind string

const (
	KindLoad          Kind = "player.load"
	KindPreload       Kind = "player.preload"
	KindPreloadCancel Kind = "player.preload.cancel"
	KindPlay          Kind = "player.play"
	KindPause         Kind = "player.pause"
	KindStop          Kind = "player.stop"
	KindSeek          Kind = "player.seek"
	KindVolume        Kind = "player.volume"
	KindDevicesGet    Kind = "player.devices.get"
	KindDevicesSet    Kind = "player.devices.set"
)

// ExclusiveMode is the Message.Mode value requesting exclusive device mode.
const ExclusiveMode = "exclusive"

// Message is one IPC request from the embedded UI. Only the fields
// relevant to Kind are populated; replies to request-bearing messages
// carry ReqID back to the caller alongside a JSON value.
type Message struct {
	Kind     Kind    `json:"kind"`
	ReqID    string  `json:"reqId,omitempty"`
	URL      string  `json:"url,omitempty"`
	Format   string  `json:"format,omitempty"`
	KeyID    string  `json:"keyId,omitempty"`
	Seconds  float64 `json:"seconds,omitempty"`
	Volume   int     `json:"volume,omitempty"`
	DeviceID string  `json:"deviceId,omitempty"`
	Mode     string  `json:"mode,omitempty"`
}

// Handler receives the component action corresponding to each IPC kind.
// Controller implements this.
type Handler interface {
	Load(url, format, keyID string)
	Preload(url, format, keyID string)
	PreloadCancel()
	Play()
	Pause()
	Stop()
	Seek(seconds float64)
	SetVolume(v int)
	DevicesGet(reqID string)
	DevicesSet(deviceID string, exclusive bool)
}

// NewReqID generates a request id for a UI-originated message that didn't
// supply its own, the same way outbound async work elsewhere in this
// codebase is tagged with a fresh uuid.
func NewReqID() string {
	return uuid.NewString()
}

// Dispatch routes msg to the matching Handler method. Unknown kinds are
// logged and dropped.
func Dispatch(h Handler, msg Message) {
	if msg.Kind == KindDevicesGet && msg.ReqID == "" {
		msg.ReqID = NewReqID()
	}

	switch msg.Kind {
	case KindLoad:
		h.Load(msg.URL, msg.Format, msg.KeyID)
	case KindPreload:
		h.Preload(msg.URL, msg.Format, msg.KeyID)
	case KindPreloadCancel:
		h.PreloadCancel()
	case KindPlay:
		h.Play()
	case KindPause:
		h.Pause()
	case KindStop:
		h.Stop()
	case KindSeek:
		h.Seek(msg.Seconds)
	case KindVolume:
		h.SetVolume(msg.Volume)
	case KindDevicesGet:
		h.DevicesGet(msg.ReqID)
	case KindDevicesSet:
		h.DevicesSet(msg.DeviceID, msg.Mode == ExclusiveMode)
	default:
		log.Printf("IPC: unknown message kind %q, dropping", msg.Kind)
	}
}
