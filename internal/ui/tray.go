// Package ui runs the system tray menu.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/session"
)

//go:embed icon.png
var iconBytes []byte

// SessionSource is the part of the session manager the tray watches.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// PauseControl pauses and resumes the edit job runner.
type PauseControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Tray struct {
	session SessionSource
	runner  PauseControl
	logger  *slog.Logger

	statusItem    *systray.MenuItem
	framesItem    *systray.MenuItem
	selectionItem *systray.MenuItem
	pauseItem     *systray.MenuItem

	mu sync.Mutex

	onOpenOutputs func() error
	onClear       func()
	onQuit        func()
	stop          chan struct{}
}

type TrayConfig struct {
	Session       SessionSource
	Runner        PauseControl
	Logger        *slog.Logger
	OnOpenOutputs func() error
	OnClear       func()
	OnQuit        func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tray{
		session:       cfg.Session,
		runner:        cfg.Runner,
		logger:        logging.WithComponent(logger, "tray"),
		onOpenOutputs: cfg.OnOpenOutputs,
		onClear:       cfg.OnClear,
		onQuit:        cfg.OnQuit,
		stop:          make(chan struct{}),
	}
}

// Run blocks until the tray quits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("FaceKit")
	systray.SetTooltip("FaceKit Agent")

	t.statusItem = systray.AddMenuItem(statusTitle(session.Snapshot{State: session.StateEmpty}, false), "Current session")
	t.statusItem.Disable()

	t.framesItem = systray.AddMenuItem(framesTitle(0, 0), "Extracted frames")
	t.framesItem.Disable()

	t.selectionItem = systray.AddMenuItem(selectionTitle(session.Snapshot{}), "Selected position and range")
	t.selectionItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Edits", "Pause the edit job runner")
	openItem := systray.AddMenuItem("Open Outputs", "Open the output folder")
	clearItem := systray.AddMenuItem("Clear Session", "Discard the loaded frames")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit FaceKit Agent")

	if t.session != nil {
		go t.watch()
	}

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpenOutputs()
			case <-clearItem.ClickedCh:
				if t.onClear != nil {
					t.onClear()
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

// watch mirrors session snapshots into the menu until the tray exits.
func (t *Tray) watch() {
	updates, cancel := t.session.Subscribe()
	defer cancel()

	t.render(t.session.Snapshot())
	for {
		select {
		case snap := <-updates:
			t.render(snap)
		case <-t.stop:
			return
		}
	}
}

func (t *Tray) render(snap session.Snapshot) {
	var size int64
	if snap.Loaded() {
		size = frames.DirSize(snap.FramesDir)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(statusTitle(snap, t.paused()))
	t.framesItem.SetTitle(framesTitle(len(snap.Frames), size))
	t.selectionItem.SetTitle(selectionTitle(snap))
}

func (t *Tray) paused() bool {
	return t.runner != nil && t.runner.IsPaused()
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Edits")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Edits")
	}
	if t.session != nil {
		t.statusItem.SetTitle(statusTitle(t.session.Snapshot(), t.runner.IsPaused()))
	}
}

func (t *Tray) handleOpenOutputs() {
	if t.onOpenOutputs != nil {
		if err := t.onOpenOutputs(); err != nil {
			t.logger.Error("failed to open outputs", "error", err)
		}
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(snap session.Snapshot, paused bool) string {
	var s string
	switch {
	case snap.Pending:
		s = "Extracting..."
	case snap.Loaded():
		s = "Loaded"
	case snap.LastError != "":
		s = "Error"
	default:
		s = "Empty"
	}
	if paused {
		s += " (edits paused)"
	}
	return "Session: " + s
}

func framesTitle(n int, size int64) string {
	if n == 0 {
		return "Frames: none"
	}
	return fmt.Sprintf("Frames: %s (%s)", humanize.Comma(int64(n)), humanize.Bytes(uint64(size)))
}

func selectionTitle(snap session.Snapshot) string {
	if !snap.Loaded() || snap.Selection == nil {
		return "Selection: none"
	}
	sel := snap.Selection
	return fmt.Sprintf("Frame %d, range %d-%d", sel.Position, sel.Start, sel.End)
}
