//go:build linux

// wlinfo is a small diagnostic for Wayland compositors: it connects to
// the ambient compositor through the pure Go backend and reports what
// it finds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/subcommands"
	"github.com/op/go-logging"

	"github.com/gogpu/wayland"
	"github.com/gogpu/wayland/protocol"
)

var log = logging.MustGetLogger("wlinfo")

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{message}`,
)

func setupLogging(verbose bool) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)
	if verbose {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.WARNING, "")
	}
	logging.SetBackend(leveled)
}

// global is one wl_registry advertisement.
type global struct {
	name    uint32
	iface   string
	version uint32
}

// registryData collects globals announced on a wl_registry object.
type registryData struct {
	globals map[uint32]global
}

func (r *registryData) Event(_ *wayland.Handle, msg wayland.Message) wayland.ObjectData {
	switch msg.Opcode {
	case protocol.RegistryEventGlobal:
		g := global{
			name:    msg.Args[0].Uint,
			iface:   msg.Args[1].Str,
			version: msg.Args[2].Uint,
		}
		r.globals[g.name] = g
	case protocol.RegistryEventGlobalRemove:
		delete(r.globals, msg.Args[0].Uint)
	}
	return nil
}

func (r *registryData) Destroyed(wayland.ObjectID) {}

// fetchGlobals connects, binds a registry and round-trips once so every
// advertisement has arrived.
func fetchGlobals() (*wayland.Backend, *registryData, error) {
	backend, err := wayland.ConnectToEnv()
	if err != nil {
		return nil, nil, err
	}

	reg := &registryData{globals: make(map[uint32]global)}
	_, err = backend.SendRequest(wayland.Message{
		SenderID: backend.DisplayID(),
		Opcode:   protocol.DisplayGetRegistry,
		Args:     []wayland.Arg{wayland.NewIDArg(backend.NullID())},
	}, reg)
	if err != nil {
		return nil, nil, err
	}

	if _, err := backend.Roundtrip(); err != nil {
		return nil, nil, err
	}
	return backend, reg, nil
}

type globalsCmd struct{}

func (*globalsCmd) Name() string     { return "globals" }
func (*globalsCmd) Synopsis() string { return "list the globals advertised by the compositor" }
func (*globalsCmd) Usage() string {
	return `globals:
  Connect to the compositor, bind wl_registry and print every
  advertised global.
`
}
func (*globalsCmd) SetFlags(*flag.FlagSet) {}

func (*globalsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backend, reg, err := fetchGlobals()
	if err != nil {
		log.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	defer backend.Close()

	names := make([]uint32, 0, len(reg.globals))
	for name := range reg.globals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, name := range names {
		g := reg.globals[name]
		fmt.Printf("%3d: %s (version %d)\n", g.name, g.iface, g.version)
	}
	return subcommands.ExitSuccess
}

type roundtripCmd struct {
	count int
}

func (*roundtripCmd) Name() string     { return "roundtrip" }
func (*roundtripCmd) Synopsis() string { return "measure compositor round-trip latency" }
func (*roundtripCmd) Usage() string {
	return `roundtrip [-n count]:
  Time wl_display.sync round trips against the compositor.
`
}

func (c *roundtripCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.count, "n", 10, "number of round trips")
}

func (c *roundtripCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backend, err := wayland.ConnectToEnv()
	if err != nil {
		log.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	defer backend.Close()

	var total time.Duration
	for i := 0; i < c.count; i++ {
		start := time.Now()
		if _, err := backend.Roundtrip(); err != nil {
			log.Errorf("roundtrip %d: %v", i, err)
			return subcommands.ExitFailure
		}
		total += time.Since(start)
	}

	fmt.Printf("%d round trips, %v average\n", c.count, total/time.Duration(c.count))
	return subcommands.ExitSuccess
}

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&globalsCmd{}, "")
	subcommands.Register(&roundtripCmd{}, "")

	flag.Parse()
	setupLogging(*verbose)

	os.Exit(int(subcommands.Execute(context.Background())))
}
