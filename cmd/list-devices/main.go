// Command list-devices prints every input device the pipeline's real
// device source discovers, along with its identity and capability usages,
// the Go-native analogue of libinput's own list-devices debug tool.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/zaolin/libinput-plugin-pipeline/internal/config"
	"github.com/zaolin/libinput-plugin-pipeline/internal/device"
	"github.com/zaolin/libinput-plugin-pipeline/internal/evdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/ioctlevdev"
	"github.com/zaolin/libinput-plugin-pipeline/internal/logging"
	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

var CLI struct {
	Config   string        `help:"Path to config.json." type:"path"`
	ScanTime time.Duration `help:"How long to wait for hotplug discovery to settle." default:"300ms"`
}

func main() {
	kong.Parse(&CLI, kong.Description("List input devices visible to the pipeline."))

	log := logging.New("list-devices")

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list-devices: loading config: %v\n", err)
		os.Exit(2)
	}

	sys := pipeline.NewSystem(log, cfg.Pipeline.MaxFrameEvents)
	src := ioctlevdev.New(log)

	err = src.Open(
		func(d *device.Device) { sys.AddDevice(d) },
		func(id device.ID, events []evdev.Event, t uint64) { sys.Dispatch(id, events, t) },
		func(id device.ID) { sys.RemoveDevice(id) },
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list-devices: opening device source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	time.Sleep(CLI.ScanTime)

	devices := sys.Devices()
	if len(devices) == 0 {
		fmt.Println("no input devices found")
		return
	}
	for _, d := range devices {
		id := d.Identity()
		fmt.Printf("Device: %s\n", d.Name())
		fmt.Printf("  ID:           %d\n", d.ID())
		fmt.Printf("  Bus/Vendor/Product/Version: %04x/%04x/%04x/%04x\n",
			id.BusType, id.Vendor, id.Product, id.Version)
		caps := d.Capabilities()
		fmt.Printf("  Capabilities (%d):\n", len(caps))
		for _, u := range caps {
			fmt.Printf("    %s\n", u)
		}
		if props := d.Properties(); len(props) > 0 {
			fmt.Println("  Properties:")
			for k, v := range props {
				fmt.Printf("    %s=%s\n", k, v)
			}
		}
		fmt.Println()
	}
}
