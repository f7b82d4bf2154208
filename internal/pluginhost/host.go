package pluginhost

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/zaolin/libinput-plugin-pipeline/internal/pipeline"
)

// Host loads every *.lua script in a directory as a scripted plugin and,
// once started, hot-reloads a script (unregister the old instance, load
// the new one) on write events, the same "watch the plugin directory"
// model the teacher's config loader uses fsnotify for.
type Host struct {
	sys *pipeline.System
	log hclog.Logger
	dir string

	plugins map[string]*pipeline.Plugin
}

// NewHost creates a host bound to sys, loading scripts from dir.
func NewHost(sys *pipeline.System, log hclog.Logger, dir string) *Host {
	return &Host{sys: sys, log: log, dir: dir, plugins: make(map[string]*pipeline.Plugin)}
}

// LoadAll loads every *.lua file directly under the host's directory.
// A script that fails to load is logged and skipped; it does not abort
// loading the rest.
func (h *Host) LoadAll() error {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		h.loadFile(e.Name())
	}
	return nil
}

func (h *Host) loadFile(name string) {
	path := filepath.Join(h.dir, name)
	src, err := os.ReadFile(path)
	if err != nil {
		h.log.Error("pluginhost: reading script", "path", path, "error", err)
		return
	}
	if old, ok := h.plugins[name]; ok {
		old.Unregister()
		delete(h.plugins, name)
	}
	p, err := Load(h.sys, h.log.Named(name), name, string(src))
	if err != nil {
		h.log.Error("pluginhost: loading script", "path", path, "error", err)
		return
	}
	h.plugins[name] = p
}

// ErrorCounts reports each loaded script's current log.error burst count,
// for cmd/debug-events --verbose.
func (h *Host) ErrorCounts() map[string]int {
	out := make(map[string]int, len(h.plugins))
	for name, p := range h.plugins {
		if sp, ok := p.UserData().(*scriptPlugin); ok {
			out[name] = sp.ErrorCount()
		}
	}
	return out
}

// Watch blocks, reloading a script whenever its file is written, until ctx
// is cancelled. It uses fsnotify the same way the teacher's config watcher
// does (single watcher, single directory, debounce not needed since
// reload is itself idempotent).
func (h *Host) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(h.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".lua") {
				continue
			}
			h.loadFile(name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.log.Error("pluginhost: watch", "error", err)
		}
	}
}
