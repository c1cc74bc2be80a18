// Command cansim transmits frames of a DBC catalog with random signal values,
// to feed an acmeview session without a vehicle.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/squadracorsepolito/acmeview/bus"
	_ "github.com/squadracorsepolito/acmeview/bus/cannelloni"
	_ "github.com/squadracorsepolito/acmeview/bus/socketcan"
	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	catalogPath := flag.String("dbc", "", "path of the DBC catalog")
	busKind := flag.String("bus", "cannelloni", "bus kind: "+strings.Join(bus.Kinds(), " | "))
	channel := flag.String("channel", "can0", "socketcan interface")
	localAddr := flag.String("local", ":20001", "local UDP address of the cannelloni bus")
	remoteAddr := flag.String("remote", "127.0.0.1:20000", "remote UDP address of the cannelloni bus")
	interval := flag.Duration("interval", 100*time.Millisecond, "time between two rounds of frames")
	rounds := flag.Int("rounds", 0, "number of rounds, 0 runs until interrupted")
	flag.Parse()

	l := internal.NewLogger("cmd", "cansim")

	cat, err := catalog.LoadDBCFile(*catalogPath)
	if err != nil {
		return err
	}

	busCfg := bus.NewDefaultConfig()
	busCfg.Kind = *busKind
	busCfg.Channel = *channel
	busCfg.LocalAddr = *localAddr
	busCfg.RemoteAddr = *remoteAddr
	busCfg.ReceiveOwn = false

	b, err := bus.Open(busCfg)
	if err != nil {
		return err
	}
	defer b.Shutdown()

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	sim := newSimulator(cat, b, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))

	l.Info("simulating", "frames", cat.Len(), "bus", *busKind, "interval", *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for round := 1; *rounds == 0 || round <= *rounds; round++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		sent, err := sim.round(ctx)
		if err != nil {
			l.Error("failed to transmit", err, "round", round)
		}

		l.Debug("round done", "round", round, "sent", sent)
	}

	return nil
}
