package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/squadracorsepolito/acmeview"
	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path of the TOML config file")
	catalogPath := flag.String("dbc", "", "path of the DBC catalog (overrides catalog_path)")
	busKind := flag.String("bus", "", "bus kind: "+strings.Join(bus.Kinds(), " | "))
	channel := flag.String("channel", "", "socketcan interface (overrides bus_channel)")
	recorderKind := flag.String("recorder", "", "recorder kind: none | log | questdb | kafka")
	logLevel := flag.String("log-level", "", "log level: debug | info | warn | error")
	flag.Parse()

	cfg := newDefaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if *catalogPath != "" {
		cfg.Engine.CatalogPath = *catalogPath
	}
	if *busKind != "" {
		cfg.Engine.Bus.Kind = *busKind
	}
	if *channel != "" {
		cfg.Engine.Bus.Channel = *channel
	}
	if *recorderKind != "" {
		cfg.Engine.Recorder.Kind = *recorderKind
	}
	if *logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}

	internal.LogLevel.Set(cfg.LogLevel)

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	if cfg.TelemetryEnabled {
		providers, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := providers.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
			}
		}()
	}

	con := newConsole(nil, os.Stdout)

	engine, err := acmeview.NewEngine(cfg.Engine, acmeview.WithObserver(con.observe))
	if err != nil {
		return err
	}
	con.coord = engine.Coordinator()

	if err := engine.Init(ctx); err != nil {
		return err
	}

	engine.Run(ctx)
	defer engine.Stop()

	return con.run(ctx, os.Stdin)
}
