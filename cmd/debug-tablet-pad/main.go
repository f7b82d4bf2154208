// Command debug-tablet-pad is a read-only interactive display of the
// synthesized tablet pad tool-configuration state, mirroring libinput's
// own debug-tablet-pad tool: one line per event, overwritten in place.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/zaolin/libinput-plugin-pipeline/internal/config"
	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/ioctlevdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletdoubletool"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tableteraserbutton"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletforcedtool"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletproximity"
)

var CLI struct {
	Config string `help:"Path to config.json." type:"path"`
	Device string `help:"Only display the device whose name contains this substring."`
}

func main() {
	kong.Parse(&CLI, kong.Description("Display tablet pad / tool state as it reaches the end of the pipeline."))

	log := logging.New("debug-tablet-pad")

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug-tablet-pad: loading config: %v\n", err)
		os.Exit(2)
	}

	sys := pipeline.NewSystem(log, cfg.Pipeline.MaxFrameEvents)

	tabletdoubletool.Register(sys, log.Named("tablet-double-tool"))
	tabletforcedtool.Register(sys, log.Named("tablet-forced-tool"))
	tableteraserbutton.Register(sys, log.Named("tablet-eraser-button"), cfg.PluginEraserButtonConfig())
	tabletproximity.Register(sys, log.Named("tablet-proximity"), cfg.PluginProximityConfig())

	sys.Register("debug-tablet-pad-display", pipeline.Hooks{
		DeviceNew: func(p *pipeline.Plugin, d *device.Device) {
			if !isTablet(d) || !matchesFilter(d, CLI.Device) {
				return
			}
			p.OptIn(d.ID())
			fmt.Printf("watching %s (id %d)\n", d.Name(), d.ID())
		},
		ToolConfigured: func(p *pipeline.Plugin, d *device.Device, tc pipeline.ToolConfig) {
			if !p.WantsDevice(d.ID()) {
				return
			}
			fmt.Printf("\rtool %-10s mode=%-8s button=%-14s", tc.Tool, tc.Mode, tc.Button)
		},
		EvdevFrame: func(p *pipeline.Plugin, d *device.Device, f *evdev.Frame, _ *pipeline.Queue) {
			if !p.WantsDevice(d.ID()) {
				return
			}
			for _, e := range f.Events() {
				if e.Usage == evdev.UsageSynReport {
					continue
				}
				fmt.Printf("\r%-24s %6d  ", e.Usage, e.Value)
			}
		},
	})

	src := ioctlevdev.New(log)
	err = src.Open(
		func(d *device.Device) { sys.AddDevice(d) },
		func(id device.ID, ev []evdev.Event, t uint64) { sys.Dispatch(id, ev, t) },
		func(id device.ID) { sys.RemoveDevice(id) },
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug-tablet-pad: opening device source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	fmt.Println()
}

func matchesFilter(d *device.Device, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(d.Name(), filter)
}

func isTablet(d *device.Device) bool {
	return d.HasCapability(evdev.UsageToolPen) || d.HasCapability(evdev.UsageToolRubber)
}
