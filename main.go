// main.go
package main

import (
	"context"
	"embed"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"

	"github.com/auricle/auricle/internal/config"
	"github.com/auricle/auricle/internal/keyvault"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/appicon.png
var appIcon []byte

// masterKeyB64 is the compile-time master key described in spec §6: 32
// raw bytes, base64-encoded, never read from disk or environment at
// runtime. The value here is a placeholder; a real build substitutes the
// vendor-specific key via -ldflags at build time.
var masterKeyB64 = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

var headless = flag.Bool("headless", false, "run the streaming pipeline without a window")

func main() {
	flag.Parse()

	if err := os.Setenv("LC_ALL", "C"); err != nil {
		log.Fatalf("setenv LC_ALL: %v", err)
	}
	if err := os.Setenv("LC_NUMERIC", "C"); err != nil {
		log.Fatalf("setenv LC_NUMERIC: %v", err)
	}

	master := mustDecodeMasterKey(masterKeyB64)

	cfgPath := filepath.Join("data", "config.json")
	cfg, _, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *headless {
		runHeadless(cfg, master)
		return
	}
	runDesktopApp(cfg, master)
}

func mustDecodeMasterKey(b64 string) keyvault.MasterKey {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		log.Fatalf("master key: invalid base64: %v", err)
	}
	if len(raw) != 32 {
		log.Fatalf("master key: want 32 bytes, got %d", len(raw))
	}
	var m keyvault.MasterKey
	copy(m[:], raw)
	return m
}

func runDesktopApp(cfg config.Config, master keyvault.MasterKey) {
	app := NewApp(cfg, master)

	err := wails.Run(&options.App{
		Title:  cfg.Window.Title,
		Width:  1200,
		Height: 800,

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		Linux: &linux.Options{
			Icon: appIcon,
		},

		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind:       []any{app},
	})
	if err != nil {
		log.Fatal(err)
	}
}

// runHeadless starts the same pipeline without a Wails window, for local
// manual exercise of the loopback relay and device listing.
func runHeadless(cfg config.Config, master keyvault.MasterKey) {
	app := NewApp(cfg, master)
	app.startup(context.Background())

	fmt.Printf("auricle (headless)\n")
	fmt.Printf("relay:  http://%s/stream\n", app.relay.Addr())
	if cfg.Viewer.Debug {
		fmt.Printf("debug:  http://%s/debug/events  http://%s/debug/logs\n", app.relay.Addr(), app.relay.Addr())
	}
	fmt.Println("Press Ctrl+C to stop.")

	waitForBind(app.relay.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	app.shutdown(context.Background())
}

func waitForBind(addr string) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
