package config

import (
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/debounce"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tableteraserbutton"
	"github.com/zaolin/libinput-plugin-pipeline/internal/plugins/tabletproximity"
)

// PluginDebounceConfig builds the debounce plugin's Config, applying any
// non-zero overrides from Debounce on top of the plugin's own defaults.
func (c *Config) PluginDebounceConfig() debounce.Config {
	cfg := debounce.DefaultConfig()
	if c.Debounce.BounceTimeoutMs > 0 {
		cfg.BounceTimeoutUs = uint64(c.Debounce.BounceTimeoutMs) * 1000
	}
	if c.Debounce.SpuriousTimeoutMs > 0 {
		cfg.SpuriousTimeoutUs = uint64(c.Debounce.SpuriousTimeoutMs) * 1000
	}
	return cfg
}

// PluginEraserButtonConfig builds the tablet eraser-button plugin's Config.
func (c *Config) PluginEraserButtonConfig() tableteraserbutton.Config {
	cfg := tableteraserbutton.DefaultConfig()
	if c.Tablet.EraserButtonDelayMs > 0 {
		cfg.DelayUs = uint64(c.Tablet.EraserButtonDelayMs) * 1000
	}
	return cfg
}

// PluginProximityConfig builds the tablet proximity-timer plugin's Config,
// starting from the longer test-harness default when Tablet.Testing is set
// (§4.8's 150ms test default vs. 50ms production default).
func (c *Config) PluginProximityConfig() tabletproximity.Config {
	cfg := tabletproximity.DefaultConfig()
	if c.Tablet.Testing {
		cfg = tabletproximity.TestConfig()
	}
	if c.Tablet.ProximityTimeoutMs > 0 {
		cfg.TimeoutUs = uint64(c.Tablet.ProximityTimeoutMs) * 1000
	}
	return cfg
}
