// Command pwrscan discovers a power station's MODBUS holding-register
// map over BLE and prints scan progress (registers scanned out of the
// total) as it goes. Per-register results are kept in an in-memory store
// and are not printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
	"github.com/fieldwire-iot/pwrscan-ble/internal/ble/tinygoble"
	"github.com/fieldwire-iot/pwrscan-ble/internal/config"
	pcrypto "github.com/fieldwire-iot/pwrscan-ble/internal/crypto"
	"github.com/fieldwire-iot/pwrscan-ble/internal/scanner"
	"github.com/fieldwire-iot/pwrscan-ble/internal/scanner/memstore"
)

func main() {
	configFile := flag.String("config", "", "path to pwrscan config file (defaults to the usual search path)")
	scanStart := flag.Uint("start", 0, "first register address to scan")
	scanEnd := flag.Uint("end", 8000, "end (exclusive) of the register range to scan")
	protocolVersion := flag.Uint("protocol-version", 0, "device protocol version, used to pick the default scan range when -start/-end aren't set")
	connectTimeout := flag.Duration("connect-timeout", 10*time.Second, "timeout for discovery and handshake")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("pwrscan: load config: %v", err)
	}
	setLogLevel(cfg.LogLevel)

	var keyBundle *pcrypto.KeyBundle
	if !cfg.KeyBundle.Empty() {
		keyBundle, err = pcrypto.NewKeyBundle(cfg.KeyBundle.SigningKeyHex, cfg.KeyBundle.VerifyKeyHex, cfg.KeyBundle.SharedSecretHex)
		if err != nil {
			log.Fatalf("pwrscan: load key bundle: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter, err := tinygoble.NewAdapter()
	if err != nil {
		log.Fatalf("pwrscan: adapter: %v", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, *connectTimeout)
	handles, err := adapter.Scan(scanCtx)
	cancel()
	if err != nil {
		log.Fatalf("pwrscan: scan for device: %v", err)
	}
	handle := handles[0]
	log.Printf("pwrscan: found device %s (%s)", handle.Name, handle.ID)

	opts := ble.ClientOptions{
		ResponseTimeout:        cfg.Client.ResponseTimeout,
		EncryptionWindow:       cfg.Client.EncryptionWindow,
		MTU:                    cfg.Client.MTU,
		MaxRegistersPerRequest: cfg.Client.MaxRegistersPerRequest,
	}
	client := ble.NewClient(adapter, handle, keyBundle, opts)

	connectCtx, cancel := context.WithTimeout(ctx, *connectTimeout)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		log.Fatalf("pwrscan: connect: %v", err)
	}
	defer client.Disconnect()
	log.Printf("pwrscan: connected (encrypted=%v)", client.IsEncrypted())

	rng := scanner.ScanRange{Start: uint16(*scanStart), End: uint16(*scanEnd)}
	if !flagsSet("start", "end") {
		rng = scanner.DefaultRange(uint16(*protocolVersion))
	}

	store := memstore.New()
	s := &scanner.Scanner{
		Device: scanner.DeviceRecord{ID: client.ID(), Name: client.DeviceName()},
		Ranges: []scanner.ScanRange{rng},
		Reader: client,
		Store:  store,
	}

	progressCh, errCh := s.Run(ctx)
	for p := range progressCh {
		fmt.Printf("\rscanning: %d/%d registers", p.Scanned, p.Total)
	}
	fmt.Println()
	if err := <-errCh; err != nil {
		log.Fatalf("pwrscan: scan: %v", err)
	}

	log.Printf("pwrscan: scan complete")
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(l)
}

func flagsSet(names ...string) bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, n := range names {
		if set[n] {
			return true
		}
	}
	return false
}
