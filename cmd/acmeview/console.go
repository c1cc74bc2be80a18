package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/acmeview/coordinator"
	"github.com/squadracorsepolito/acmeview/view"
)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  show [frame]               print the tracked frames and their signals
  inc <frame> <signal>       increment a signal by one step
  dec <frame> <signal>       decrement a signal by one step
  set <frame> <signal> <v>   set a signal value
  send <frame>               encode and transmit a frame
  stats                      print the coordinator counters
  watch on|off               print the values received from the bus as they change
  help                       print this message
  quit                       stop the engine and exit
`

// console is a line oriented front-end of the coordinator.
// Changed values received from the bus are printed as they arrive
// while watching is enabled.
type console struct {
	coord *coordinator.Coordinator

	watching atomic.Bool

	outMux sync.Mutex
	out    io.Writer
}

func newConsole(coord *coordinator.Coordinator, out io.Writer) *console {
	c := &console{
		coord: coord,
		out:   out,
	}
	c.watching.Store(true)
	return c
}

// observe is the coordinator observer that prints the bus updates.
func (c *console) observe(upd view.Update) {
	if upd.Source != view.SourceBus || !upd.Changed || !c.watching.Load() {
		return
	}

	c.printf("\nbus: ")
	c.printUpdate(upd)
}

// run executes the commands read from in until quit, end of input or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.printf("%s> ", consoleHelp)

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			if err := c.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("error: %v\n", err)
			}

			c.printf("> ")
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "show":
		return c.show(args)

	case "inc", "dec":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <frame> <signal>", cmd)
		}

		var upd view.Update
		var err error
		if cmd == "inc" {
			upd, err = c.coord.Increment(args[0], args[1])
		} else {
			upd, err = c.coord.Decrement(args[0], args[1])
		}
		if err != nil {
			return err
		}

		c.printUpdate(upd)

	case "set":
		if len(args) != 3 {
			return errors.New("usage: set <frame> <signal> <value>")
		}

		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}

		upd, err := c.coord.SetValue(args[0], args[1], value)
		if err != nil {
			return err
		}

		c.printUpdate(upd)

	case "send":
		if len(args) != 1 {
			return errors.New("usage: send <frame>")
		}

		if err := c.coord.Send(ctx, args[0]); err != nil {
			return err
		}

		c.printf("sent %s\n", args[0])

	case "stats":
		counters := c.coord.Counters()
		c.printf("received=%d foreign=%d dropped=%d decode_errors=%d sent=%d send_errors=%d\n",
			counters.Received, counters.Foreign, counters.Dropped, counters.DecodeErrors, counters.Sent, counters.SendErrors)

	case "watch":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: watch on|off")
		}

		c.watching.Store(args[0] == "on")

	case "help":
		c.printf("%s", consoleHelp)

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	return nil
}

func (c *console) show(args []string) error {
	views := c.coord.Views()

	if len(args) > 0 {
		fv, err := c.coord.View(args[0])
		if err != nil {
			return err
		}
		views = []*view.FrameView{fv}
	}

	if len(views) == 0 {
		c.printf("no tracked frames\n")
		return nil
	}

	for _, fv := range views {
		frame := fv.Frame()
		c.printf("%s (%08d) rev %d\n", frame.Name, frame.ID, fv.Revision())

		for _, cell := range fv.Snapshot() {
			c.printf("  %-24s %12g %-8s [%g, %g] %s %s\n",
				cell.Name, cell.Value, cell.Unit, cell.Min, cell.Max, cell.Policy, cell.State)
		}
	}

	return nil
}

func (c *console) printUpdate(upd view.Update) {
	c.printf("%s.%s = %g (%s) rev %d\n", upd.FrameName, upd.Signal, upd.Value, upd.State, upd.Revision)
}

func (c *console) printf(format string, args ...any) {
	c.outMux.Lock()
	defer c.outMux.Unlock()

	fmt.Fprintf(c.out, format, args...)
}
