// Command debug-events streams the pipeline's processed event frames for a
// single device, the Go-native analogue of libinput's libinput-debug-events
// tool: it wires the same plugin stack a production daemon would run, then
// taps the end of the pipeline to print what reaches the last plugin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/zaolin/libinput-plugin-pipeline/internal/config"
	"github.com/zaolin/libinput-plugin-pipeline/internal/ctl"
	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/ioctlevdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pluginhost"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/debounce"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/mtslot"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletdoubletool"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tableteraserbutton"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletforcedtool"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletproximity"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tfd"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/wheellowres"
	"github.com/zaolin/libinput-plugin-pipeline/internal/quirks"
)

var CLI struct {
	Config               string `help:"Path to config.json." type:"path"`
	Device               string `help:"Only print events for the device whose name contains this substring."`
	ShowKeycodes         bool   `help:"Print raw usage type/code instead of named usages."`
	Quiet                bool   `help:"Suppress device_new/device_added/device_removed lines."`
	Verbose              bool   `help:"Print scripted-plugin log.error burst counters alongside frames."`
	Grab                 bool   `help:"Request exclusive grab over the running daemon's control socket."`
	CompressMotionEvents bool   `help:"Collapse consecutive relative-motion-only frames into one line."`
	CtlSocket            string `help:"Path to the daemon's control socket." default:"/run/libinput-plugin-pipeline/ctl.sock"`
	CtlToken             string `help:"Bearer token for the control socket, if the daemon requires one."`
}

func main() {
	kong.Parse(&CLI, kong.Description("Stream pipeline-processed input events."))

	log := logging.New("debug-events")

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug-events: loading config: %v\n", err)
		os.Exit(2)
	}

	if CLI.Grab {
		_, err := ctl.Send(CLI.CtlSocket, ctl.Request{Token: CLI.CtlToken, Command: "grab", Device: CLI.Device})
		if err != nil {
			fmt.Fprintf(os.Stderr, "debug-events: grab request failed: %v\n", err)
			os.Exit(1)
		}
	}

	q := quirks.Empty()
	if cfg.Quirks.Path != "" {
		if loaded, err := quirks.Load(cfg.Quirks.Path); err == nil {
			q = loaded
		}
	}

	sys := pipeline.NewSystem(log, cfg.Pipeline.MaxFrameEvents)

	debounce.Register(sys, log.Named("debounce"), q, cfg.PluginDebounceConfig())
	mtslot.Register(sys, log.Named("mtslot"))
	wheellowres.Register(sys, log.Named("wheellowres"))
	tabletdoubletool.Register(sys, log.Named("tablet-double-tool"))
	tabletforcedtool.Register(sys, log.Named("tablet-forced-tool"))
	tableteraserbutton.Register(sys, log.Named("tablet-eraser-button"), cfg.PluginEraserButtonConfig())
	tabletproximity.Register(sys, log.Named("tablet-proximity"), cfg.PluginProximityConfig())
	tfd.Register(sys, log.Named("tfd"), tfd.DefaultConfig())

	var host *pluginhost.Host
	if len(cfg.Pipeline.PluginDirs) > 0 {
		host = pluginhost.NewHost(sys, log.Named("pluginhost"), cfg.Pipeline.PluginDirs[0])
		if err := host.LoadAll(); err != nil {
			log.Warn("loading scripted plugins", "dir", cfg.Pipeline.PluginDirs[0], "error", err)
		}
	}

	var lastWasMotion bool
	sys.Register("debug-events-printer", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) {
			if !matchesFilter(d, CLI.Device) {
				return
			}
			p.OptIn(d.ID())
			if !CLI.Quiet {
				fmt.Printf("device_new  %s (id %d)\n", d.Name(), d.ID())
			}
		},
		DeviceAdded: func(p *pipeline.Plugin, d *device.Device) {
			if !CLI.Quiet && p.WantsDevice(d.ID()) {
				fmt.Printf("device_added %s (id %d)\n", d.Name(), d.ID())
			}
		},
		DeviceRemoved: func(p *pipeline.Plugin, d *device.Device) {
			if !CLI.Quiet {
				fmt.Printf("device_removed %s (id %d)\n", d.Name(), d.ID())
			}
		},
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, _ *pipeline.Queue) {
			events := f.Events()
			if CLI.CompressMotionEvents && isMotionOnly(events) {
				if lastWasMotion {
					return
				}
				lastWasMotion = true
			} else {
				lastWasMotion = false
			}
			printFrame(d, events, f.Time(), CLI.ShowKeycodes)
		},
	})

	src := ioctlevdev.New(log)
	err = src.Open(
		func(d *device.Device) { sys.AddDevice(d) },
		func(id device.ID, ev []evdev.Event, t uint64) { sys.Dispatch(id, ev, t) },
		func(id device.ID) { sys.RemoveDevice(id) },
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug-events: opening device source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if host != nil {
		go func() {
			if err := host.Watch(ctx); err != nil {
				log.Warn("pluginhost watch stopped", "error", err)
			}
		}()
	}

	if CLI.Verbose && host != nil {
		go reportErrorCounts(ctx, host)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}

func matchesFilter(d *device.Device, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(d.Name(), filter)
}

func isMotionOnly(events []evdev.Event) bool {
	for _, e := range events {
		if e.Usage.Type() != evdev.EV_REL && e.Usage != evdev.UsageSynReport {
			return false
		}
	}
	return true
}

func reportErrorCounts(ctx context.Context, host *pluginhost.Host) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, count := range host.ErrorCounts() {
				if count > 0 {
					fmt.Printf("script %s: %d log.error calls in current burst window\n", name, count)
				}
			}
		}
	}
}

func printFrame(d *device.Device, events []evdev.Event, t uint64, showKeycodes bool) {
	fmt.Printf("-- %s (id %d) @%d --\n", d.Name(), d.ID(), t)
	for _, e := range events {
		if showKeycodes {
			fmt.Printf("  type 0x%04x code 0x%04x value %d\n", e.Usage.Type(), e.Usage.Code(), e.Value)
		} else {
			fmt.Printf("  %s %d\n", e.Usage, e.Value)
		}
	}
}
