package hostapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agentworkbench/workbench/internal/telemetry"
)

// LocalHost implements Host over the local filesystem rooted at Root. It is
// intentionally thin: there is no real editor UI in this control-plane-only
// repository, so OpenDocument/ShowDocument only log at debug level,
// ClipboardWrite does nothing, and ShowNotification just logs and returns
// the first action as if the user chose it (or "" if none is offered).
type LocalHost struct {
	Root string
	tel  telemetry.Handle

	mu       sync.Mutex
	commands map[string]func(args ...string) error
}

// NewLocalHost constructs a LocalHost rooted at root, creating it if
// necessary.
func NewLocalHost(root string, tel telemetry.Handle) (*LocalHost, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", root, err)
	}
	return &LocalHost{Root: root, tel: tel, commands: make(map[string]func(args ...string) error)}, nil
}

func (h *LocalHost) ReadFile(location string) ([]byte, error) {
	return os.ReadFile(location)
}

func (h *LocalHost) WriteFile(location string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return err
	}
	return os.WriteFile(location, data, 0o644)
}

func (h *LocalHost) DeleteFile(location string) error {
	return os.RemoveAll(location)
}

func (h *LocalHost) RenameFile(oldLocation, newLocation string) error {
	return os.Rename(oldLocation, newLocation)
}

func (h *LocalHost) CreateDirectory(location string) error {
	return os.MkdirAll(location, 0o755)
}

func (h *LocalHost) ReadDirectory(location string) ([]DirEntry, error) {
	entries, err := os.ReadDir(location)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (h *LocalHost) OpenDocument(location string, background bool) error {
	h.tel.Logger.Debug(context.Background(), "open document", "location", location, "background", background)
	return nil
}

func (h *LocalHost) ShowDocument(location string) error {
	h.tel.Logger.Debug(context.Background(), "show document", "location", location)
	return nil
}

func (h *LocalHost) ShowNotification(message string, actions ...string) (string, error) {
	h.tel.Logger.Info(context.Background(), "notification", "message", message)
	if len(actions) > 0 {
		return actions[0], nil
	}
	return "", nil
}

func (h *LocalHost) ClipboardWrite(text string) error {
	return nil
}

func (h *LocalHost) RegisterCommand(name string, handler func(args ...string) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = handler
	return nil
}

// RunCommand invokes a command previously registered with RegisterCommand.
// The CLI entrypoint does not go through it: its commands are cobra
// subcommands.
func (h *LocalHost) RunCommand(name string, args ...string) error {
	h.mu.Lock()
	handler, ok := h.commands[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return handler(args...)
}

// WatchDeletions implements createFileSystemWatcher + watchDeletions over
// fsnotify: any fsnotify.Remove event under root is reported through
// onDeleted. The returned cancel function stops the watcher.
func (h *LocalHost) WatchDeletions(root string, onDeleted func(location string)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Remove == fsnotify.Remove {
					onDeleted(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.tel.Logger.Warn(context.Background(), "filesystem watcher error", "err", err)
			case <-stop:
				watcher.Close()
				return
			}
		}
	}()
	return func() { close(stop) }, nil
}
