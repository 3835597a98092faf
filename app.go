// app.go
package main

import (
	"context"
	"log"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/auricle/auricle/internal/audioengine"
	"github.com/auricle/auricle/internal/config"
	"github.com/auricle/auricle/internal/controller"
	"github.com/auricle/auricle/internal/diag"
	"github.com/auricle/auricle/internal/ipc"
	"github.com/auricle/auricle/internal/keyvault"
	"github.com/auricle/auricle/internal/origin"
	"github.com/auricle/auricle/internal/preload"
	"github.com/auricle/auricle/internal/relay"
	"github.com/auricle/auricle/internal/track"
)

// App binds the secure streaming pipeline to the embedded web view. Its
// one bound method, Dispatch, forwards every player.* IPC message to the
// Controller via ipc.Dispatch.
type App struct {
	ctx context.Context
	cfg config.Config

	registry   *track.Registry
	preload    *preload.Engine
	driver     *audioengine.Driver
	controller *controller.Controller
	relay      *relay.Relay
	diagLog    *diag.Log

	cancelRun context.CancelFunc
}

// NewApp wires C1-C7 together, starts the driver loop and the loopback
// relay. The controller's event loop starts in startup once a Wails
// context is available.
func NewApp(cfg config.Config, master keyvault.MasterKey) *App {
	a := &App{cfg: cfg}

	a.diagLog = diag.NewLog(500)
	log.SetOutput(a.diagLog)

	a.registry = &track.Registry{}
	o := origin.NewHTTPOrigin()
	a.preload = preload.New(o, master, cfg.Audio.PreloadBytes)

	engine, err := audioengine.NewMpvEngine()
	if err != nil {
		log.Fatalf("ENGINE: %v", err)
	}
	driver, err := audioengine.NewDriver(engine, cfg.Audio.DeviceExclusionIDs)
	if err != nil {
		log.Fatalf("ENGINE: %v", err)
	}
	a.driver = driver
	go a.driver.Run()

	a.relay = relay.New(o, master, a.registry, a.preload, a.driver, a.diagLog, cfg.Viewer.Debug)
	if err := a.relay.Start(); err != nil {
		log.Fatalf("RELAY: %v", err)
	}

	a.controller = controller.New(a.registry, a.preload, a.driver, a.relay.Addr())
	return a
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.driver.SetVolume(a.cfg.Audio.DefaultVolumePercent)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRun = cancel
	go a.controller.Run(runCtx, func(ev audioengine.Event) {
		runtime.EventsEmit(a.ctx, "player:event", ev)
	})
}

func (a *App) shutdown(ctx context.Context) {
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.driver.Close()
	_ = a.relay.Close()
}

// Dispatch is bound to the frontend; the embedded page posts IPC
// messages here using the player.* channel names.
func (a *App) Dispatch(msg ipc.Message) {
	ipc.Dispatch(a.controller, msg)
}
