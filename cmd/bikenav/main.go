package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/bikenav/internal/ble"
	"github.com/chaz8081/bikenav/internal/config"
	"github.com/chaz8081/bikenav/internal/gps"
	"github.com/chaz8081/bikenav/internal/output"
	"github.com/chaz8081/bikenav/internal/relay"
	"github.com/chaz8081/bikenav/internal/status"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/bikenav/config.yaml)")
	initConfig := flag.Bool("init", false, "write a default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Default config written to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	// Outputs for phone messages and fixes
	var (
		sinks      []output.Sink
		publishers []output.FixPublisher
	)
	if cfg.Output.Console {
		console := output.NewConsoleSink(os.Stdout)
		sinks = append(sinks, console)
		publishers = append(publishers, console)
	}
	if cfg.Output.MQTT.Broker != "" {
		mq, err := output.DialMQTT(output.MQTTOptions{
			Broker:      cfg.Output.MQTT.Broker,
			ClientID:    cfg.Output.MQTT.ClientID,
			TopicPrefix: cfg.Output.MQTT.TopicPrefix,
		})
		if err != nil {
			log.Printf("WARNING: MQTT output disabled: %v", err)
		} else {
			defer mq.Close()
			sinks = append(sinks, mq)
			publishers = append(publishers, mq)
		}
	}
	outputs := output.NewMulti(sinks, publishers)

	// Connection indicator
	var indicator status.Indicator = &status.LogIndicator{}
	if cfg.Status.LEDPin != "" {
		led, err := status.OpenLED(cfg.Status.LEDPin)
		if err != nil {
			log.Printf("WARNING: status LED disabled: %v", err)
		} else {
			defer led.Close()
			indicator = led
		}
	}

	// Bluetooth peripheral
	periph, err := ble.NewBlueZPeripheral()
	if err != nil {
		log.Fatalf("Failed to open Bluetooth adapter: %v", err)
	}
	ctrl, err := ble.NewController(periph, ble.ControllerOptions{
		Service: ble.ServiceDefinition{
			UUID:   cfg.BLE.ServiceUUID,
			TXUUID: cfg.BLE.TXUUID,
			RXUUID: cfg.BLE.RXUUID,
		},
		NamePrefix:        cfg.BLE.NamePrefix,
		AdvertiseInterval: cfg.BLE.AdvertiseInterval,
		LimitedDiscovery:  cfg.BLE.LimitedDiscovery,
		ClassicBluetooth:  cfg.BLE.BREDR,
		Sink:              outputs,
		Status:            indicator,
	})
	if err != nil {
		if ble.IsFatal(err) {
			log.Fatalf("Bluetooth setup failed: %v\n\nCheck that bluetoothd is running and the adapter is powered (bluetoothctl power on).", err)
		}
		log.Fatalf("Bluetooth setup failed: %v", err)
	}
	log.Printf("Advertising as %q", ctrl.Identity())

	// GPS receiver
	source, err := openSource(cfg.GPS)
	if err != nil {
		log.Fatalf("Failed to open GPS source: %v", err)
	}
	if source != nil {
		defer source.Close()
	}

	var defaultFix *gps.Fix
	if f := cfg.Relay.DefaultFix; f != nil {
		defaultFix = &gps.Fix{Latitude: f.Latitude, Longitude: f.Longitude}
	}
	loop := relay.New(source, gps.NewDecoder(gps.DecoderOptions{LegacyLongitude: cfg.GPS.LegacyLongitude}), ctrl, relay.Options{
		PollInterval:      cfg.Relay.PollInterval,
		BroadcastInterval: cfg.Relay.BroadcastInterval,
		DefaultFix:        defaultFix,
		Publisher:         outputs,
	})

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Ready! Waiting for a phone to connect. Ctrl+C to quit.")

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("ERROR: relay loop: %v", err)
	}
	log.Println("Goodbye!")
}

// openSource opens the configured GPS line source. It returns nil for
// source "none".
func openSource(cfg config.GPSConfig) (gps.LineSource, error) {
	switch cfg.Source {
	case "serial":
		src, err := gps.OpenSerial(gps.SerialOptions{Device: cfg.Device, Baud: cfg.Baud, Buffer: cfg.Buffer})
		if err != nil {
			return nil, err
		}
		return src, nil
	case "sim":
		log.Printf("Simulating GPS at %.6f, %.6f", cfg.Sim.Latitude, cfg.Sim.Longitude)
		return gps.NewSimSource(gps.SimOptions{
			Latitude:  cfg.Sim.Latitude,
			Longitude: cfg.Sim.Longitude,
			Interval:  cfg.Sim.Interval,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown gps source %q", cfg.Source)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults (bikenav -init writes one)")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== bikenav ===")
	fmt.Printf("  BLE:     %s <MAC>, every %s\n", cfg.BLE.NamePrefix, cfg.BLE.AdvertiseInterval)
	fmt.Printf("  Service: %s\n", cfg.BLE.ServiceUUID)
	switch cfg.GPS.Source {
	case "serial":
		fmt.Printf("  GPS:     %s @ %d baud\n", cfg.GPS.Device, cfg.GPS.Baud)
	default:
		fmt.Printf("  GPS:     %s\n", cfg.GPS.Source)
	}
	fmt.Printf("  Relay:   poll %s, broadcast %s\n", cfg.Relay.PollInterval, cfg.Relay.BroadcastInterval)
	if cfg.Output.MQTT.Broker != "" {
		fmt.Printf("  MQTT:    %s (%s/...)\n", cfg.Output.MQTT.Broker, cfg.Output.MQTT.TopicPrefix)
	}
	if cfg.Status.LEDPin != "" {
		fmt.Printf("  LED:     %s\n", cfg.Status.LEDPin)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
