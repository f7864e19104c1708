package chrome

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// x11Dir holds the lock files and the .X11-unix sockets of X servers.
var x11Dir = "/tmp"

// freeDisplay returns the first display from :99 upwards that no X server
// holds a lock on, so concurrent headful runs on one host do not collide.
func freeDisplay(dir string) (string, error) {
	for n := 99; n < 199; n++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf(".X%d-lock", n)))
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf(":%d", n), nil
		}
	}
	return "", fmt.Errorf("no free X display between :99 and :198")
}

func displaySocket(dir, display string) string {
	return filepath.Join(dir, ".X11-unix", "X"+strings.TrimPrefix(display, ":"))
}

// waitForFile polls until path exists, at most limit.
func waitForFile(ctx context.Context, path string, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", path, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// startXvfb launches the virtual display of a headful run and waits for
// its socket. The process outlives ctx; Close stops it.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	if display == "" {
		d, err := freeDisplay(x11Dir)
		if err != nil {
			return err
		}
		display = d
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", m.cfg.XvfbScreen, "-nolisten", "tcp", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb, m.display = cmd, display

	if err := waitForFile(ctx, displaySocket(x11Dir, display), 5*time.Second); err != nil {
		m.stopXvfb()
		return err
	}
	m.cfg.Logger.Info("chrome: xvfb started", "display", display, "screen", m.cfg.XvfbScreen, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("chrome: xvfb stopped", "display", m.display)
	m.xvfb, m.display = nil, ""
}
